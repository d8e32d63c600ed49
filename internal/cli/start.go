// internal/cli/start.go
package sweepwatch

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

var (
	startReq      = benchmark.DefaultStartRequest()
	startDuration int
	startTTFT     float64
	startTPOT     float64
	startE2E      float64
	startWatch    bool
)

// startCmd implements 'start', which submits a new concurrency sweep.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new load-test run",
	Long: `The 'start' command submits a concurrency sweep to the service and prints
the new run id. With --watch it continues straight into 'watch'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := buildStartRequest(cmd)
		cfg := getConfig()
		client := newClient(cfg)
		ctx := commandContext(cmd)

		runID, err := runStart(ctx, cmd.OutOrStdout(), client, req, cfg.JSONMode)
		if err != nil {
			return err
		}
		if !startWatch {
			return nil
		}
		return runWatch(ctx, cmd, cfg, client, runID)
	},
}

func init() {
	f := startCmd.Flags()
	f.StringVar(&startReq.ServerURL, "server-url", "", "URL of the inference server under test")
	f.StringVar(&startReq.Model, "model", "", "model name")
	f.StringVar(&startReq.Adapter, "adapter", startReq.Adapter, "backend adapter (openai, vllm, ...)")
	f.IntSliceVar(&startReq.Concurrency, "concurrency", startReq.Concurrency, "concurrency levels, e.g. 1,2,4")
	f.IntVar(&startReq.NumPrompts, "num-prompts", startReq.NumPrompts, "prompts per level")
	f.IntVar(&startReq.InputLen, "input-len", startReq.InputLen, "input length in tokens")
	f.IntVar(&startReq.OutputLen, "output-len", startReq.OutputLen, "output length in tokens")
	f.BoolVar(&startReq.Stream, "stream", startReq.Stream, "stream responses")
	f.IntVar(&startReq.Warmup, "warmup", startReq.Warmup, "warmup requests")
	f.Float64Var(&startReq.Timeout, "request-timeout", startReq.Timeout, "per-request timeout of the load generator in seconds")
	f.StringVar(&startReq.APIKey, "target-api-key", "", "API key of the server under test")
	f.IntVar(&startDuration, "duration", 0, "run each level for this many seconds instead of a prompt count")
	f.Float64Var(&startTTFT, "goodput-ttft", 0, "goodput TTFT threshold in ms")
	f.Float64Var(&startTPOT, "goodput-tpot", 0, "goodput TPOT threshold in ms")
	f.Float64Var(&startE2E, "goodput-e2e", 0, "goodput end-to-end threshold in ms")
	f.BoolVar(&startWatch, "watch", false, "watch the run after starting it")
	_ = startCmd.MarkFlagRequired("server-url")
	_ = startCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(startCmd)
}

func buildStartRequest(cmd *cobra.Command) benchmark.StartRequest {
	req := startReq
	req.Concurrency = append([]int(nil), startReq.Concurrency...)
	if cmd.Flags().Changed("duration") && startDuration > 0 {
		d := startDuration
		req.DurationSeconds = &d
	}
	var th benchmark.GoodputThresholds
	if startTTFT > 0 {
		v := startTTFT
		th.TTFTMillis = &v
	}
	if startTPOT > 0 {
		v := startTPOT
		th.TPOTMillis = &v
	}
	if startE2E > 0 {
		v := startE2E
		th.E2EMillis = &v
	}
	if th.TTFTMillis != nil || th.TPOTMillis != nil || th.E2EMillis != nil {
		req.GoodputThresholds = &th
	}
	return req
}

func runStart(ctx context.Context, w io.Writer, client *benchmark.Client, req benchmark.StartRequest, jsonMode bool) (string, error) {
	resp, err := client.Start(ctx, req)
	if err != nil {
		return "", err
	}
	if jsonMode {
		return resp.RunID, writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Started run %s (%s)\n", resp.RunID, resp.Status)
	return resp.RunID, nil
}
