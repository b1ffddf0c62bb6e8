// Package main provides the entry point for the mediadex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/mediadex/cmd/mediadex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
