// ./main.go
package main

import (
	"github.com/loupe-sh/loupe-cli/cmd"
)

// main is the entry point for the Loupe CLI application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
