package main

import (
	"fmt"

	"github.com/arclane/conduit/pkg/config"
)

// ValidateCmd loads the configured document once, without starting a
// server, and reports whether it decodes and applies defaults
// successfully.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	sourceType, err := config.ParseSourceType(cli.ConfigSource)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.LoaderOptions{
		Type: sourceType,
		Path: cli.Config,
	}, nil)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return err
	}

	fmt.Printf("valid: %s (mode=%s, model=%s, tools=%d)\n",
		cli.Config, cfg.Controller.DefaultMode, cfg.LLM.Model, len(cfg.Tools))
	return nil
}
