package export

import (
	"encoding/json"

	"github.com/lotas/tabgruppen/internal/types"
)

// JSON renders the rule set as an indented JSON array, the same shape the
// rule store keeps, so the output can be imported again.
func JSON(rs []types.Rule) (string, error) {
	if rs == nil {
		rs = []types.Rule{}
	}
	b, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
