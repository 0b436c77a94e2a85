// Package main is the entry point for the fragmentd IPv4 fragmenter.
package main

import (
	"fmt"
	"os"

	"github.com/otusnet/fragmentd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
