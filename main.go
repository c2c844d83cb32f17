package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/joweeba/dTOOL/internal/cmd"
	"github.com/joweeba/dTOOL/internal/config"
)

// Release builds stamp these through -ldflags, e.g.
// -ldflags="-X main.Version=v1.2.0 -X main.Commit=$(git rev-parse --short HEAD)".
// A plain go build keeps the dev placeholders.
var (
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = "unknown"
	Version   = "dev"
)

// Tagline is the one-line description kong prints at the top of --help
const Tagline = "dtool keeps unattended coding-agent sessions running"

// versionInfo renders the --version output
func versionInfo() string {
	return fmt.Sprintf("dtool %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

func main() {
	// Load settings from environment (and optional .env file)
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Kong parses flags first; CLI.AfterApply then brings up logging and
	// the dependency container in that order
	var cli cmd.CLI
	cli.SetSettings(settings)
	ctx := kong.Parse(&cli,
		kong.Name("dtool"),
		kong.Description(Tagline),
		kong.Vars{
			"version": versionInfo(),
		},
		kong.UsageOnError(),
		kong.Bind(&cli),
	)
	defer cli.Close()

	// Execute the selected command
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
