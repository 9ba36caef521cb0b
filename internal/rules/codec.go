package rules

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
	"gopkg.in/yaml.v3"
)

// EncodeJSON renders the rule set in its stored form: one JSON array.
func EncodeJSON(rs []types.Rule) ([]byte, error) {
	if rs == nil {
		rs = []types.Rule{}
	}
	return json.Marshal(rs)
}

// DecodeJSON parses the stored form.
func DecodeJSON(data []byte) ([]types.Rule, error) {
	var rs []types.Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules JSON: %w", err)
	}
	return rs, nil
}

// yamlFile is the import/export document shape.
type yamlFile struct {
	Groups []types.Rule `yaml:"groups"`
}

// DecodeYAML parses a rules file of the form
//
//	groups:
//	  - name: NS
//	    colour: blue
//	    urls: [newscientist.com]
func DecodeYAML(data []byte) ([]types.Rule, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules YAML: %w", err)
	}
	return f.Groups, nil
}

// EncodeYAML renders the rule set in the import/export shape.
func EncodeYAML(rs []types.Rule) ([]byte, error) {
	if rs == nil {
		rs = []types.Rule{}
	}
	return yaml.Marshal(yamlFile{Groups: rs})
}

// DecodeFile picks JSON or YAML by the file extension of name.
func DecodeFile(name string, data []byte) ([]types.Rule, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return DecodeJSON(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported rules file %q (want .json, .yaml or .yml)", name)
	}
}
