// The main package for the greyhound executable.
package main

import (
	"github.com/kmorey/greyhound-pipeline/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
