// Package main is the entry point for the cinetag CLI.
package main

import (
	"os"

	"github.com/jmylchreest/cinetag/cmd/cinetag/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
