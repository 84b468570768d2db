// Package main provides the entry point for the julie CLI.
package main

import (
	"os"

	"github.com/anortham/julie-go/cmd/julie/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
