package functiontool

import (
	"encoding/json"
	"fmt"
)

// mapToStruct converts a decoded arguments map to a typed struct via a
// JSON marshal/unmarshal round-trip, which handles numeric/bool/nested
// type coercion the same way the LLM's own JSON arguments would decode
// directly into the struct.
func mapToStruct(m map[string]any, target any) error {
	if m == nil {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	return nil
}
