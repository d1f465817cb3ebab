package main

import (
	"log"
	"os"

	"github.com/samaelod/dronecmd/cli"
)

// version is set with -ldflags "-X main.version=..." in release builds.
var version = "dev"

func main() {
	// The console owns the terminal, so stray stdlib log output from dev
	// builds goes to a file instead.
	if version == "dev" {
		if f, err := os.OpenFile("debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			defer f.Close()
			log.SetOutput(f)
		}
	}

	cli.Execute(version)
}
