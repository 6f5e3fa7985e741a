package main

import (
	"os"

	"github.com/coursepulse/telemetry/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
