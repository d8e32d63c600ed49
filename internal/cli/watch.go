// internal/cli/watch.go
package sweepwatch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/appconfig"
	"github.com/mwiater/sweepwatch/internal/archive"
	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/logging"
	"github.com/mwiater/sweepwatch/internal/progress"
	"github.com/mwiater/sweepwatch/internal/session"
	"github.com/mwiater/sweepwatch/internal/tui"
)

var (
	watchQuitOnDone bool
	watchNoPush     bool
)

// watchCmd implements 'watch', the live monitor of one run.
var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Watch a run live until it finishes",
	Long: `The 'watch' command polls the run's status and results, subscribes to its
live progress channel, and renders the reconciled per-level table. Use --plain
or --jsonMode for line-oriented output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := getConfig()
		return runWatch(ctx, cmd, cfg, newClient(cfg), args[0])
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchQuitOnDone, "quit-on-done", false, "exit the full-screen view once the run is finished")
	watchCmd.Flags().BoolVar(&watchNoPush, "no-push", false, "disable the live progress channel and rely on polling")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, cmd *cobra.Command, cfg *appconfig.Config, client *benchmark.Client, runID string) error {
	s := newWatchSession(ctx, cfg, client, runID, !watchNoPush)
	logging.LogEvent("watch: session=%s run=%s base=%s", s.ID(), runID, client.BaseURL())

	err := tui.Watch(ctx, s, tui.Options{
		Plain:      cfg.Plain,
		JSON:       cfg.JSONMode,
		QuitOnDone: watchQuitOnDone,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", runID, err)
	}
	if v := s.View(); v.Done {
		archiveFinished(cfg, v)
	}
	return nil
}

func newWatchSession(ctx context.Context, cfg *appconfig.Config, client *benchmark.Client, runID string, push bool) *session.Session {
	opts := []session.Option{
		session.WithPolicy(pollingPolicy(cfg)),
		session.WithOnFinished(func(v session.View) { archiveFinished(cfg, v) }),
	}
	if push {
		sub := progress.NewWebSocket(client.ProgressURL)
		initial, ceiling := cfg.ReconnectInitial(), cfg.ReconnectMax()
		sub.NewBackOff = func() backoff.BackOff { return progress.Backoff(initial, ceiling) }
		opts = append(opts, session.WithSubscriber(sub))
	}
	return session.New(ctx, runID, client, opts...)
}

var archived sync.Map

// archiveFinished stores a finished run once per process. It is called from
// the session hook and again after the program exits, whichever comes first.
func archiveFinished(cfg *appconfig.Config, v session.View) {
	if !cfg.ArchiveEnabled() || !v.HaveStatus {
		return
	}
	once, _ := archived.LoadOrStore(v.RunID, &sync.Once{})
	once.(*sync.Once).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := archive.Open(ctx, cfg.ArchivePath)
		if err != nil {
			logging.LogEvent("archive: %v", err)
			return
		}
		defer store.Close()
		if err := store.Save(ctx, v.Status, v.Result); err != nil {
			logging.LogEvent("archive: save %s: %v", v.RunID, err)
			return
		}
		logging.LogEvent("archive: stored run=%s status=%s", v.RunID, v.Status.Status)
	})
}
