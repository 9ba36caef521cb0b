// Package rules reads and writes the ordered rule set and decides which
// rule a URL belongs to.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Key is the single configuration key holding the whole rule set.
const Key = "tab_groups"

// ErrInvalidRules is returned by Save when a rule fails shape validation.
var ErrInvalidRules = errors.New("invalid rule set")

// KV is the persistence the store needs. storage.KV satisfies it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store is the rule set accessor. It keeps no copy of the rules: every Load
// reads the store again.
type Store struct {
	kv KV
}

// NewStore returns a Store backed by kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the persisted rule set. A missing key, an unreachable store or
// an undecodable value all yield an empty set: no rules means no organization.
func (s *Store) Load(ctx context.Context) []types.Rule {
	data, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		applog.Error("rules.load", err)
		return nil
	}
	if !ok {
		return nil
	}
	rs, err := DecodeJSON(data)
	if err != nil {
		applog.Error("rules.decode", err)
		return nil
	}
	return rs
}

// Save validates and persists the rule set. Malformed input is logged and
// rejected with ErrInvalidRules; the stored value is left untouched.
func (s *Store) Save(ctx context.Context, rs []types.Rule) error {
	if err := Validate(rs); err != nil {
		applog.Error("rules.save.invalid", err, "count", len(rs))
		return err
	}
	data, err := EncodeJSON(rs)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		applog.Error("rules.save", err)
		return fmt.Errorf("save rules: %w", err)
	}
	applog.Info("rules.saved", "count", len(rs))
	return nil
}

// Defaults is the rule set written on first start.
func Defaults() []types.Rule {
	return []types.Rule{{
		Name:   "NS",
		URLs:   []string{"https://www.newscientist.com/*"},
		Colour: "blue",
	}}
}

// Seed writes Defaults when no rule set has ever been stored. It reports
// whether anything was written.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	_, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return false, fmt.Errorf("check rules: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := s.Save(ctx, Defaults()); err != nil {
		return false, err
	}
	applog.Info("rules.seeded")
	return true, nil
}

// Validate checks the shape of every rule: a non-empty name, a urls list
// (possibly empty, never absent) of non-empty fragments, and a known colour.
// Names are not checked for uniqueness.
func Validate(rs []types.Rule) error {
	for i, r := range rs {
		if r.Name == "" {
			return fmt.Errorf("%w: rule %d has no name", ErrInvalidRules, i)
		}
		if r.URLs == nil {
			return fmt.Errorf("%w: rule %q has no urls list", ErrInvalidRules, r.Name)
		}
		for _, u := range r.URLs {
			if u == "" {
				return fmt.Errorf("%w: rule %q has an empty url", ErrInvalidRules, r.Name)
			}
		}
		if !types.ValidColour(r.Colour) {
			return fmt.Errorf("%w: rule %q has unknown colour %q", ErrInvalidRules, r.Name, r.Colour)
		}
	}
	return nil
}
