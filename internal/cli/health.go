// internal/cli/health.go
package sweepwatch

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// healthCmd implements 'health', a reachability check of the service.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the load-test service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealth(commandContext(cmd), cmd.OutOrStdout(), newClient(getConfig()), JSONModeEnabled())
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(ctx context.Context, w io.Writer, client *benchmark.Client, jsonMode bool) error {
	h, err := client.Health(ctx)
	if err != nil {
		return err
	}
	if jsonMode {
		return writeJSON(w, h)
	}
	status := color.GreenString(h.Status)
	if h.Status != "healthy" {
		status = color.YellowString(h.Status)
	}
	fmt.Fprintf(w, "%s  %s", client.BaseURL(), status)
	if h.Version != "" {
		fmt.Fprintf(w, "  version %s", h.Version)
	}
	fmt.Fprintln(w)
	return nil
}
