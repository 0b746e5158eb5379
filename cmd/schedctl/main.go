// Command schedctl is an operator tool for inspecting availability and
// running maintenance jobs against the scheduling database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(defaultCLI()).Execute(); err != nil {
		os.Exit(1)
	}
}
