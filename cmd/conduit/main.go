// Command conduit is the service entrypoint: serve runs the NDJSON
// HTTP adapter over one AgentController, validate and schema support
// authoring a configuration document, and version reports the build.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command tree.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the NDJSON HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration document."`
	Schema   SchemaCmd   `cmd:"" help:"Print the configuration document's JSON Schema."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config       string `short:"c" help:"Path to config file." type:"path" default:"conduit.yaml"`
	ConfigSource string `help:"Config source type (file, consul, etcd)." default:"file"`
	LogLevel     string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat    string `help:"Log format (text, json)." default:"text"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conduit"),
		kong.Description("conduit - streaming multi-agent task engine"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
