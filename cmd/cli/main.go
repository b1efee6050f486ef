// Package main is the entry point for the billing-trust CLI.
package main

import (
	"os"

	"billing-trust/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
