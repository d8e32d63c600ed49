// cmd/sweepwatch/main.go
package main

import (
	cmd "github.com/mwiater/sweepwatch/internal/cli"
)

// main starts the sweepwatch CLI by delegating to the cobra root command.
func main() {
	cmd.Execute()
}
