// Package main is the entry point for the edge-server binary.
package main

import (
	"os"

	"github.com/bitriver/edge/cmd/edge-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
