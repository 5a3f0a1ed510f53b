// Package main is the entry point for the transcoder-worker binary.
package main

import (
	"os"

	"github.com/bitriver/edge/cmd/transcoder-worker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
