// gridconnect - chunked tabular file transfer and job runner for the planning platform.
package main

import (
	"os"

	"github.com/gridconnect/gridconnect/internal/cli"
	"github.com/gridconnect/gridconnect/internal/version"
)

// Version information, overridden by ldflags in release builds.
var (
	Version   = "v1.2.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	// cobra has already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
