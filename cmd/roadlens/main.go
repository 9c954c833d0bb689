// Package main provides the roadlens CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/roadlens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
