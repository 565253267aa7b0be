// The main package for the starcrawler executable.
package main

import (
	"github.com/oss-observatory/starcrawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
