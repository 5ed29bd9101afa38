// Package main is the entry point for the sonido-emotion service and CLI.
//
// Usage:
//
//	sonido-emotion [--config file] <command> [args]
//
// Commands:
//
//	serve        - run the HTTP API
//	predict      - predict the emotion of one file or video URL
//	predict-dir  - predict every audio file under a directory
//	emotions     - list the loaded model's labels
//	bootstrap    - write a randomly initialized model artifact
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-emotion/cmd/sonido-emotion/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
