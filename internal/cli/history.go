// internal/cli/history.go
package sweepwatch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/appconfig"
	"github.com/mwiater/sweepwatch/internal/archive"
	"github.com/mwiater/sweepwatch/internal/benchmark"
)

var (
	historyLimit  int
	historyOffset int
	historyStatus string
	historyLocal  bool
)

// historyCmd implements 'history', a paged listing of past runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		q := benchmark.HistoryQuery{Limit: historyLimit, Offset: historyOffset}
		if historyStatus != "" {
			q.Status = benchmark.ParseStatus(historyStatus)
			if q.Status == benchmark.StatusUnknown {
				return fmt.Errorf("unknown status %q", historyStatus)
			}
		}
		ctx, w := commandContext(cmd), cmd.OutOrStdout()
		if historyLocal {
			return runLocalHistory(ctx, w, cfg, q, cfg.JSONMode)
		}
		return runHistory(ctx, w, newClient(cfg), q, cfg.JSONMode)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of runs to skip")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only runs in this status")
	historyCmd.Flags().BoolVar(&historyLocal, "local", false, "list the local archive instead of the service")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, w io.Writer, client *benchmark.Client, q benchmark.HistoryQuery, jsonMode bool) error {
	list, err := client.History(ctx, q)
	if err != nil {
		return err
	}
	if jsonMode {
		return writeJSON(w, list)
	}
	dump(w, list)
	renderHistory(w, list)
	return nil
}

func runLocalHistory(ctx context.Context, w io.Writer, cfg *appconfig.Config, q benchmark.HistoryQuery, jsonMode bool) error {
	if !cfg.ArchiveEnabled() {
		return errors.New("archivePath is not configured")
	}
	store, err := archive.Open(ctx, cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.List(ctx, q.Limit, q.Status)
	if err != nil {
		return err
	}
	if jsonMode {
		return writeJSON(w, rows)
	}
	renderArchive(w, rows)
	return nil
}
