// Package main is the entry point for the glint launcher.
package main

import (
	"os"

	"github.com/glint-sh/glint/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
