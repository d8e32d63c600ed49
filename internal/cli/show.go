// internal/cli/show.go
package sweepwatch

import "github.com/spf13/cobra"

// showCmd groups read-only views of the local setup.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show local settings",
}

func init() {
	rootCmd.AddCommand(showCmd)
}
