package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/arclane/conduit/pkg/config"
)

// SchemaCmd prints the JSON Schema for config.Config, for editor
// autocompletion or an external config-builder UI. Uses the same
// invopop/jsonschema reflector pkg/tool/functiontool uses for tool
// parameter schemas.
type SchemaCmd struct{}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: false,
		DoNotReference:             false,
	}
	schema := reflector.Reflect(&config.Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("schema: marshal: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
