// The main package for the pagewatch executable.
package main

import (
	"github.com/JakeFAU/pagewatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
