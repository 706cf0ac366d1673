package main

import (
	"fmt"
	"runtime/debug"
)

// VersionCmd prints the build's module version, or "dev" outside a
// tagged build.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("conduit version %s\n", version)
	return nil
}
