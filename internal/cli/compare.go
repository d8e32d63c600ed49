// internal/cli/compare.go
package sweepwatch

import (
	"context"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// compareCmd implements 'compare', a side-by-side view of several runs.
var compareCmd = &cobra.Command{
	Use:   "compare <run-id> <run-id> [run-id...]",
	Short: "Compare throughput of two or more runs",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare(commandContext(cmd), cmd.OutOrStdout(), newClient(getConfig()), args, JSONModeEnabled())
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

// runCompare asks the service for the comparison and, concurrently, fetches
// each run's result so the table can be labelled with model names.
func runCompare(ctx context.Context, w io.Writer, client *benchmark.Client, runIDs []string, jsonMode bool) error {
	var (
		cmp     benchmark.ComparisonResult
		mu      sync.Mutex
		results = make(map[string]benchmark.Result, len(runIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() error {
		var err error
		cmp, err = client.Compare(gctx, runIDs)
		return err
	})
	for _, id := range runIDs {
		g.Go(func() error {
			res, err := client.Result(gctx, id)
			if err != nil {
				// Labels are optional; a run without results keeps its id.
				return nil
			}
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if jsonMode {
		return writeJSON(w, cmp)
	}
	dump(w, cmp)
	renderComparison(w, cmp, runIDs, results)
	return nil
}
