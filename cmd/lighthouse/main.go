package main

import (
	"fmt"
	"os"

	"github.com/melih/lighthouse-boot/internal/cli"
)

// Build-time variables (set via ldflags)
var version = "dev"

func main() {
	app := cli.New()
	app.SetVersion(version)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
