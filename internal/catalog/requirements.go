package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type requirementEntry struct {
	Key string
	Raw json.RawMessage
}

// requirementsDoc keeps the declaration order of a requirements object;
// resources are presented to players in the order the data lists them.
type requirementsDoc []requirementEntry

func (r *requirementsDoc) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("requirements: want object, got %v", tok)
	}
	out := requirementsDoc{}
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("requirements: bad key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("requirements[%q]: %w", key, err)
		}
		if seen[key] {
			return fmt.Errorf("requirements: duplicate key %q", key)
		}
		seen[key] = true
		out = append(out, requirementEntry{Key: key, Raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}
