// internal/cli/stop.go
package sweepwatch

import (
	"fmt"

	"github.com/spf13/cobra"
)

// stopCmd implements 'stop', which cancels a running sweep.
var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a running run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(getConfig()).Stop(commandContext(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped run %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
