package main

import (
	"os"

	"github.com/tphakala/syncbridge/cmd"
	"github.com/tphakala/syncbridge/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	root := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
