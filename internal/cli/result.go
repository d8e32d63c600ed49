// internal/cli/result.go
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
	resultWait     bool
	resultAttempts uint
	resultLocal    bool
)

// resultCmd implements 'result', which prints the per-level results of a run.
var resultCmd = &cobra.Command{
	Use:   "result <run-id>",
	Short: "Show the per-level results of a run",
	Long: `The 'result' command prints the committed levels and the summary of a run.
With --wait it retries while the service reports the run as still running.
With --local it reads the run from the local archive instead of the service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		ctx, w := commandContext(cmd), cmd.OutOrStdout()
		if resultLocal {
			return runLocalResult(ctx, w, cfg, args[0], cfg.JSONMode)
		}
		attempts := uint(1)
		if resultWait {
			attempts = resultAttempts
		}
		return runResult(ctx, w, newClient(cfg), cfg, args[0], attempts, cfg.JSONMode)
	},
}

func init() {
	resultCmd.Flags().BoolVar(&resultWait, "wait", false, "retry while the run has no results yet")
	resultCmd.Flags().UintVar(&resultAttempts, "attempts", 100, "maximum attempts with --wait")
	resultCmd.Flags().BoolVar(&resultLocal, "local", false, "read the run from the local archive")
	rootCmd.AddCommand(resultCmd)
}

func isStillRunning(err error) bool { return benchmark.IsStillRunning(err) }

func runResult(ctx context.Context, w io.Writer, client *benchmark.Client, cfg *appconfig.Config, runID string, attempts uint, jsonMode bool) error {
	var res benchmark.Result
	err := retryWhileRunning(ctx, cfg.ResultPollInterval(), attempts, func() error {
		var err error
		res, err = client.Result(ctx, runID)
		return err
	})
	if err != nil {
		if isStillRunning(err) {
			return fmt.Errorf("run %s has no results yet (use --wait to keep polling)", runID)
		}
		return err
	}
	if jsonMode {
		return writeJSON(w, res)
	}
	dump(w, res)
	renderResult(w, res)
	return nil
}

func runLocalResult(ctx context.Context, w io.Writer, cfg *appconfig.Config, runID string, jsonMode bool) error {
	if !cfg.ArchiveEnabled() {
		return errors.New("archivePath is not configured")
	}
	store, err := archive.Open(ctx, cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(ctx, runID)
	if err != nil {
		return err
	}
	if jsonMode {
		return writeJSON(w, entry)
	}
	renderStatus(w, entry.Status)
	if entry.Result == nil {
		fmt.Fprintln(w, "(archived without results)")
		return nil
	}
	fmt.Fprintln(w)
	renderResult(w, *entry.Result)
	return nil
}
