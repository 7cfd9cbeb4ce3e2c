// The main package for the plantmonitor executable.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/JakeFAU/solar-plant-monitor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
