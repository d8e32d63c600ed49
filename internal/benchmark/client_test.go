package benchmark

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/benchmark", opts...)
}

func TestClientStatusDecodesNaiveTimestamps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/benchmark/status/run-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"run_id":"run-1","status":"running","server_url":"http://llm","model":"m","adapter":"openai",
			"created_at":"2026-01-02T03:04:05.123456","started_at":"2026-01-02T03:04:06","completed_at":null}`)
	})

	status, err := client.Status(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status.Status)
	assert.Equal(t, "m", status.Model)
	start, ok := status.StartTime()
	require.True(t, ok)
	assert.Equal(t, 6, start.Second())
	assert.Nil(t, status.CompletedAt)
}

func TestClientStatusUnknownValue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"run_id":"x","status":"paused"}`)
	})
	status, err := client.Status(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status.Status)
	assert.False(t, status.Status.Running())
	assert.False(t, status.Status.Terminal())
}

func TestClientResultStillRunning(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"detail":"Benchmark still running"}`)
	})
	_, err := client.Result(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsStillRunning(err))
	assert.False(t, IsNotFound(err))
}

func TestClientResultKeepsBackendOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"run_id":"x","results":[{"concurrency":10},{"concurrency":1},{"concurrency":50,"goodput":{"satisfied_requests":9,"total_requests":10,"goodput_percent":90}}],
			"summary":{"best_throughput":12.5,"best_concurrency":10,"total_requests":30}}`)
	})
	res, err := client.Result(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, []int{10, 1, 50}, []int{res.Results[0].Concurrency, res.Results[1].Concurrency, res.Results[2].Concurrency})
	require.NotNil(t, res.Results[2].Goodput)
	assert.InDelta(t, 90.0, res.Results[2].Goodput.GoodputPercent, 0.001)
	assert.Nil(t, res.Results[0].TPOT)
	assert.Equal(t, 10, res.Summary.BestConcurrency)
}

func TestClientErrorDetail(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want string
	}{
		{name: "detail", code: http.StatusNotFound, body: `{"detail":"Run not found"}`, want: "Run not found"},
		{name: "no detail", code: http.StatusBadGateway, body: `upstream down`, want: "HTTP 502"},
		{name: "structured detail", code: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","model"]}]}`, want: `[{"loc":["body","model"]}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := client.Status(context.Background(), "x")
			require.Error(t, err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.code, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Error())
		})
	}
}

func TestClientMutatingCallsSendAPIKey(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" key="+r.Header.Get("X-API-Key"))
		mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/benchmark/run":
			var body StartRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []int{1, 2}, body.Concurrency)
			_, _ = io.WriteString(w, `{"run_id":"new-run","status":"started"}`)
		case r.Method == http.MethodDelete:
			_, _ = io.WriteString(w, `{"deleted":"new-run"}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}, WithAPIKey("secret"))

	req := DefaultStartRequest()
	req.ServerURL = "http://llm"
	req.Model = "m"
	req.Concurrency = []int{1, 2}
	resp, err := client.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "new-run", resp.RunID)
	require.NoError(t, client.Stop(context.Background(), "new-run"))
	require.NoError(t, client.Delete(context.Background(), "new-run"))
	_, err = client.Health(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/v1/benchmark/run key=secret",
		"POST /api/v1/benchmark/run/new-run/stop key=secret",
		"DELETE /api/v1/benchmark/run/new-run key=secret",
		"GET /api/v1/benchmark/health key=",
	}, seen)
}

func TestClientHistoryQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "completed", r.URL.Query().Get("status"))
		_, _ = io.WriteString(w, `{"runs":[{"run_id":"a","status":"completed"}],"total":1,"limit":10,"offset":20}`)
	})
	list, err := client.History(context.Background(), HistoryQuery{Limit: 10, Offset: 20, Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, StatusCompleted, list.Runs[0].Status)
}

func TestClientCompareNeedsTwoRuns(t *testing.T) {
	client := NewClient("")
	_, err := client.Compare(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
}

func TestClientCompareUnwrapsComparison(t *testing.T) {
	bodies := []string{
		`{"comparison":{"run_count":2,"best_throughput":{"run_id":"b","value":90,"concurrency":4},"by_concurrency":{"1":[{"run_id":"a","value":10}]}}}`,
		`{"run_count":2,"best_throughput":{"run_id":"b","value":90,"concurrency":4},"by_concurrency":{"1":[{"run_id":"a","value":10}]}}`,
	}
	for _, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req map[string][]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"a", "b"}, req["run_ids"])
			_, _ = io.WriteString(w, body)
		})
		cmp, err := client.Compare(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, 2, cmp.RunCount)
		require.NotNil(t, cmp.BestThroughput)
		assert.Equal(t, "b", cmp.BestThroughput.RunID)
		require.NotNil(t, cmp.BestThroughput.Concurrency)
		assert.Equal(t, 4, *cmp.BestThroughput.Concurrency)
		assert.Len(t, cmp.ByConcurrency["1"], 1)
	}
}

func TestClientExport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "xlsx" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"Excel export not available"}`)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "# Benchmark Result Export\n")
	})
	body, err := client.Export(context.Background(), "x", "CSV")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "# Benchmark Result Export"))

	_, err = client.Export(context.Background(), "x", "xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Excel export not available")

	_, err = client.Export(context.Background(), "x", "pdf")
	require.Error(t, err)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "0f3a9c1d_benchmark.csv", ExportFileName("0f3a9c1d-1111-2222", "csv"))
	assert.Equal(t, "ab_benchmark.xlsx", ExportFileName("AB", "xlsx"))
}

func TestProgressURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/api/v1/benchmark": "ws://localhost:8080/api/v1/benchmark/ws/r1",
		"https://svc.example/api/v1/benchmark/":  "wss://svc.example/api/v1/benchmark/ws/r1",
		"ws://svc.example/api/v1/benchmark?x=1":  "ws://svc.example/api/v1/benchmark/ws/r1",
	}
	for base, want := range cases {
		got, err := NewClient(base).ProgressURL("r1")
		require.NoError(t, err)
		assert.Equal(t, want, got, base)
	}
}

func TestStartRequestValidate(t *testing.T) {
	req := DefaultStartRequest()
	require.Error(t, req.Validate())

	req.ServerURL = "http://llm"
	req.Model = "m"
	require.NoError(t, req.Validate())

	req.Concurrency = []int{1, 1}
	require.Error(t, req.Validate())

	req.Concurrency = []int{0}
	require.Error(t, req.Validate())
}
