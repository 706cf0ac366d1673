package tool

import "fmt"

// validateAgainstSchema performs a minimal structural check against a
// JSON-Schema-shaped Definition.Parameters: every required property must
// be present. Full JSON-Schema validation (types, enums, numeric
// ranges) is intentionally not implemented here — see DESIGN.md for why
// this stays on the standard library rather than a schema-validation
// dependency.
func validateAgainstSchema(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if name == "" {
			continue
		}
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	// also accept []string, which is what functiontool's schema
	// generation produces before a JSON round trip.
	if requiredStrs, ok := schema["required"].([]string); ok {
		for _, name := range requiredStrs {
			if _, ok := args[name]; !ok {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	return nil
}
