// internal/cli/cli_test.go
package sweepwatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/sweepwatch/internal/appconfig"
	"github.com/mwiater/sweepwatch/internal/archive"
	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/session"
	"github.com/mwiater/sweepwatch/internal/simulator"
)

func init() {
	color.NoColor = true
}

// fixture is a simulator whose runs only move when the test advances them.
type fixture struct {
	sim    *simulator.Simulator
	client *benchmark.Client
	cfg    *appconfig.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := simulator.New(simulator.Config{LevelDurationMillis: 3_600_000, TickMillis: 3_600_000})
	srv := httptest.NewServer(sim.Routes())
	t.Cleanup(func() {
		sim.Close()
		srv.Close()
	})
	cfg := &appconfig.Config{
		BaseURL:          srv.URL + sim.Config().BasePath,
		ResultPollMillis: 1,
		ArchivePath:      filepath.Join(t.TempDir(), "archive.db"),
	}
	return &fixture{sim: sim, client: newClient(cfg), cfg: cfg}
}

func (f *fixture) start(t *testing.T, levels ...int) string {
	t.Helper()
	req := benchmark.DefaultStartRequest()
	req.ServerURL, req.Model, req.Concurrency, req.NumPrompts = "http://llm", "tiny", levels, 10
	var out bytes.Buffer
	id, err := runStart(context.Background(), &out, f.client, req, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Started run "+id)
	require.Eventually(t, func() bool {
		st, err := f.client.Status(context.Background(), id)
		return err == nil && st.Status == benchmark.StatusRunning
	}, time.Second, time.Millisecond)
	return id
}

func (f *fixture) finish(t *testing.T, id string, levels int) {
	t.Helper()
	for i := 0; i < levels; i++ {
		f.sim.Advance(id, time.Hour)
	}
	st, err := f.client.Status(context.Background(), id)
	require.NoError(t, err)
	require.True(t, st.Status.Terminal())
}

func TestStatusAndResultCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t, 1, 4)

	var out bytes.Buffer
	require.NoError(t, runStatus(ctx, &out, f.client, id, false))
	assert.Contains(t, out.String(), "Status:    running")

	err := runResult(ctx, io.Discard, f.client, f.cfg, id, 1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no results yet")

	f.finish(t, id, 2)
	out.Reset()
	require.NoError(t, runResult(ctx, &out, f.client, f.cfg, id, 1, false))
	text := out.String()
	assert.Contains(t, text, "Concurrency")
	assert.NotContains(t, text, "CONCURRENCY")
	assert.Contains(t, text, "Best throughput")
	assert.Contains(t, text, "Total requests 20")

	out.Reset()
	require.NoError(t, runStatus(ctx, &out, f.client, id, true))
	assert.Contains(t, out.String(), `"status": "completed"`)
}

func TestResultWaitRetriesWhileRunning(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"detail":"Benchmark still running"}`)
			return
		}
		_, _ = io.WriteString(w, `{"run_id":"r1","results":[{"concurrency":1}],"summary":{"total_requests":5}}`)
	}))
	defer srv.Close()

	cfg := &appconfig.Config{BaseURL: srv.URL, ResultPollMillis: 1}
	var out bytes.Buffer
	require.NoError(t, runResult(context.Background(), &out, newClient(cfg), cfg, "r1", 5, true))
	assert.EqualValues(t, 3, calls.Load())
	assert.Contains(t, out.String(), `"total_requests": 5`)

	calls.Store(-100)
	err := runResult(context.Background(), io.Discard, newClient(cfg), cfg, "r1", 2, false)
	require.Error(t, err)
	assert.EqualValues(t, -98, calls.Load(), "gives up after the attempt limit")
}

func TestResultWaitStopsOnOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Run not found"}`)
	}))
	defer srv.Close()

	cfg := &appconfig.Config{BaseURL: srv.URL, ResultPollMillis: 1}
	err := runResult(context.Background(), io.Discard, newClient(cfg), cfg, "r1", 5, false)
	require.Error(t, err)
	assert.True(t, benchmark.IsNotFound(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestHistoryAndCompareCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1, 2)
	b := f.start(t, 1, 2)
	f.finish(t, a, 2)
	f.finish(t, b, 2)

	var out bytes.Buffer
	require.NoError(t, runHistory(ctx, &out, f.client, benchmark.HistoryQuery{Limit: 10}, false))
	assert.Contains(t, out.String(), a)
	assert.Contains(t, out.String(), "(2 of 2 runs, offset 0)")

	out.Reset()
	require.NoError(t, runCompare(ctx, &out, f.client, []string{a, b}, false))
	text := out.String()
	assert.Contains(t, text, "tiny ("+a[:8]+")")
	assert.Contains(t, text, "Best throughput:")
	assert.Contains(t, text, "Best TTFT p50:")
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t)
	id := f.start(t, 1)
	f.finish(t, id, 1)

	dir := t.TempDir()
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	path, err := runExport(context.Background(), f.client, f.cfg, id, "csv", "", 1)
	require.NoError(t, err)
	assert.Equal(t, benchmark.ExportFileName(id, "csv"), path)
	data, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Benchmark Result Export"))

	custom := filepath.Join(dir, "out", "run.csv")
	path, err = runExport(context.Background(), f.client, f.cfg, id, "csv", custom, 1)
	require.NoError(t, err)
	assert.Equal(t, custom, path)
	assert.FileExists(t, custom)

	_, err = runExport(context.Background(), f.client, f.cfg, id, "xlsx", "", 1)
	require.Error(t, err)
}

func TestArchiveFinishedAndLocalReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t, 1, 4)
	f.finish(t, id, 2)

	st, err := f.client.Status(ctx, id)
	require.NoError(t, err)
	res, err := f.client.Result(ctx, id)
	require.NoError(t, err)

	view := session.View{RunID: id, Status: st, HaveStatus: true, Result: &res, Done: true}
	archiveFinished(f.cfg, view)
	archiveFinished(f.cfg, view)

	store, err := archive.Open(ctx, f.cfg.ArchivePath)
	require.NoError(t, err)
	rows, err := store.List(ctx, 0, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Levels)

	var out bytes.Buffer
	require.NoError(t, runLocalHistory(ctx, &out, f.cfg, benchmark.HistoryQuery{}, false))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "(1 archived runs)")

	out.Reset()
	require.NoError(t, runLocalResult(ctx, &out, f.cfg, id, false))
	assert.Contains(t, out.String(), "Status:    completed")
	assert.Contains(t, out.String(), "Total requests 20")

	err = runLocalResult(ctx, io.Discard, f.cfg, "missing", false)
	require.ErrorIs(t, err, archive.ErrNotFound)

	err = runLocalHistory(ctx, io.Discard, &appconfig.Config{}, benchmark.HistoryQuery{}, false)
	require.Error(t, err)
}

func TestBuildStartRequest(t *testing.T) {
	t.Cleanup(func() {
		startReq = benchmark.DefaultStartRequest()
		startDuration, startTTFT, startTPOT, startE2E = 0, 0, 0, 0
	})
	require.NoError(t, startCmd.Flags().Set("server-url", "http://llm"))
	require.NoError(t, startCmd.Flags().Set("model", "m"))
	require.NoError(t, startCmd.Flags().Set("concurrency", "1,2,4"))
	require.NoError(t, startCmd.Flags().Set("duration", "30"))
	require.NoError(t, startCmd.Flags().Set("goodput-ttft", "500"))

	req := buildStartRequest(startCmd)
	require.NoError(t, req.Validate())
	assert.Equal(t, []int{1, 2, 4}, req.Concurrency)
	require.NotNil(t, req.DurationSeconds)
	assert.Equal(t, 30, *req.DurationSeconds)
	require.NotNil(t, req.GoodputThresholds)
	require.NotNil(t, req.GoodputThresholds.TTFTMillis)
	assert.Nil(t, req.GoodputThresholds.E2EMillis)
}

func TestHealthCommand(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), &out, f.client, false))
	assert.Contains(t, out.String(), "healthy")
	assert.Contains(t, out.String(), "version 0.1.0-sim")
}

func TestRootShowConfigAndListCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"baseURL":"http://bench:9000/api/v1/benchmark","statusPollMillis":750}`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"show", "config", "--config", cfgPath, "--logFile", filepath.Join(dir, "test.log")})
	require.NoError(t, rootCmd.Execute())
	text := out.String()
	assert.Contains(t, text, "Config file: "+cfgPath)
	assert.Contains(t, text, "Base URL:           http://bench:9000/api/v1/benchmark")
	assert.Contains(t, text, "Status Poll:        750ms")

	out.Reset()
	t.Cleanup(func() { showConfigCheck = false })
	rootCmd.SetArgs([]string{"show", "config", "--check", "--config", cfgPath, "--logFile", filepath.Join(dir, "test.log")})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Config file "+cfgPath+" is valid (base URL http://bench:9000/api/v1/benchmark)")

	out.Reset()
	runListCommands(&out, rootCmd)
	assert.Contains(t, out.String(), "Description")
	for _, name := range []string{"watch", "status", "result", "history", "start", "stop", "delete", "compare", "export", "health", "show config"} {
		assert.Contains(t, out.String(), name)
	}
}
