// internal/cli/status.go
package sweepwatch

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// statusCmd implements 'status', a one-shot read of a run's lifecycle state.
var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(commandContext(cmd), cmd.OutOrStdout(), newClient(getConfig()), args[0], JSONModeEnabled())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, w io.Writer, client *benchmark.Client, runID string, jsonMode bool) error {
	st, err := client.Status(ctx, runID)
	if err != nil {
		return err
	}
	if jsonMode {
		return writeJSON(w, st)
	}
	dump(w, st)
	renderStatus(w, st)
	return nil
}
