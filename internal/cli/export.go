// internal/cli/export.go
package sweepwatch

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/appconfig"
	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/util"
)

var (
	exportFormat   string
	exportOut      string
	exportAttempts uint
)

// exportCmd implements 'export', which downloads a run's results as a file.
var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Download the results of a run as CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		path, err := runExport(commandContext(cmd), newClient(cfg), cfg, args[0], exportFormat, exportOut, exportAttempts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default <run>_benchmark.<format>)")
	exportCmd.Flags().UintVar(&exportAttempts, "attempts", 10, "attempts while the run is still running")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context, client *benchmark.Client, cfg *appconfig.Config, runID, format, out string, attempts uint) (string, error) {
	var body []byte
	err := retryWhileRunning(ctx, cfg.ResultPollInterval(), attempts, func() error {
		var err error
		body, err = client.Export(ctx, runID, format)
		return err
	})
	if err != nil {
		return "", err
	}

	if out == "" {
		if format == "" {
			format = "csv"
		}
		out = benchmark.ExportFileName(runID, format)
	}
	if err := util.WriteFile(out, body); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}
