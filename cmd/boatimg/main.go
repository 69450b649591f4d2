// Package main is the entry point for the boatimg CLI.
package main

import (
	"os"

	"github.com/jmylchreest/boatimg/cmd/boatimg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
