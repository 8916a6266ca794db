package rules

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Snapshotter is implemented by targets that expose their rule inputs
// directly, typically because their fields are unexported.
type Snapshotter interface {
	RuleSnapshot() map[string]any
}

// Snapshot returns the values rules are evaluated against. Snapshotter and
// map targets are used as is; anything else goes through its JSON form.
func Snapshot(target any) (map[string]any, error) {
	switch value := target.(type) {
	case nil:
		return map[string]any{}, nil
	case Snapshotter:
		return maps.Clone(value.RuleSnapshot()), nil
	case map[string]any:
		return maps.Clone(value), nil
	}
	raw, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("rules: snapshot %T: %w", target, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rules: snapshot %T: %w", target, err)
	}
	return out, nil
}
