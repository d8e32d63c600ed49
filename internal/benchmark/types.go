// internal/benchmark/types.go
// Package benchmark holds the wire model of the load-test service and the HTTP
// client used to talk to it.
package benchmark

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a run as reported by the backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
	// StatusUnknown covers any value the client does not recognise. It is
	// neither running nor terminal.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a backend string onto a Status, falling back to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusRunning:
		return StatusRunning
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	case StatusStopped:
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the backend will never move the run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Running reports whether the run is executing levels right now.
func (s Status) Running() bool { return s == StatusRunning }

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}

// Timestamp decodes the datetime layouts the backend emits. Python's
// isoformat() omits the zone for naive datetimes, so those are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses s with every supported layout.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	if raw == "" {
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// RunIdentity names a run. It never changes once the run exists.
type RunIdentity struct {
	RunID     string `json:"run_id"`
	ServerURL string `json:"server_url"`
	Model     string `json:"model"`
	Adapter   string `json:"adapter"`
}

// RunStatus is the payload of GET /status/{id}.
type RunStatus struct {
	RunIdentity
	Status      Status     `json:"status"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	StartedAt   *Timestamp `json:"started_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

// StartTime returns the start timestamp when the backend has reported one.
func (r RunStatus) StartTime() (time.Time, bool) {
	if r.StartedAt == nil || r.StartedAt.IsZero() {
		return time.Time{}, false
	}
	return r.StartedAt.Time, true
}

// LatencyStats is a latency distribution in milliseconds.
type LatencyStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// Goodput counts requests that met every configured SLO threshold.
type Goodput struct {
	SatisfiedRequests int     `json:"satisfied_requests"`
	TotalRequests     int     `json:"total_requests"`
	GoodputPercent    float64 `json:"goodput_percent"`
}

// LevelRecord is the committed result of one concurrency level.
type LevelRecord struct {
	Concurrency        int           `json:"concurrency"`
	TTFT               LatencyStats  `json:"ttft"`
	TPOT               *LatencyStats `json:"tpot,omitempty"`
	E2ELatency         LatencyStats  `json:"e2e_latency"`
	ThroughputTokens   float64       `json:"throughput_tokens_per_sec"`
	RequestRate        float64       `json:"request_rate_per_sec"`
	TotalRequests      int           `json:"total_requests"`
	SuccessfulRequests int           `json:"successful_requests"`
	FailedRequests     int           `json:"failed_requests"`
	ErrorRatePercent   float64       `json:"error_rate_percent"`
	Goodput            *Goodput      `json:"goodput,omitempty"`
}

// Summary is the backend's aggregate over all committed levels.
type Summary struct {
	BestThroughput    float64  `json:"best_throughput"`
	BestTTFTP50       float64  `json:"best_ttft_p50"`
	BestConcurrency   int      `json:"best_concurrency"`
	TotalRequests     int      `json:"total_requests"`
	OverallErrorRate  float64  `json:"overall_error_rate"`
	AvgGoodputPercent *float64 `json:"avg_goodput_percent,omitempty"`
}

// Result is the payload of GET /result/{id}. Results keep the backend's order.
type Result struct {
	RunIdentity
	Results         []LevelRecord `json:"results"`
	Summary         Summary       `json:"summary"`
	StartedAt       *Timestamp    `json:"started_at,omitempty"`
	CompletedAt     *Timestamp    `json:"completed_at,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// LiveLevelSample is the provisional, in-flight view of the executing level.
type LiveLevelSample struct {
	Concurrency    int
	Throughput     float64
	TTFTP50        float64
	Completed      int
	Errors         int
	Total          int
	OverallPercent float64
	LevelPercent   float64
	LevelIndex     int
	LevelTotal     int
	ReceivedAt     time.Time
}

// ProgressMessage is one frame from the push channel.
type ProgressMessage struct {
	RunID          string  `json:"run_id"`
	OverallPercent float64 `json:"overall_percent"`
	Concurrency    struct {
		Level int `json:"level"`
		Index int `json:"index"`
		Total int `json:"total"`
	} `json:"concurrency"`
	Progress struct {
		Current int     `json:"current"`
		Total   int     `json:"total"`
		Percent float64 `json:"percent"`
	} `json:"progress"`
	Metrics struct {
		Concurrency       int     `json:"concurrency"`
		ThroughputCurrent float64 `json:"throughput_current"`
		TTFTP50           float64 `json:"ttft_p50"`
		Completed         int     `json:"completed"`
		ErrorCount        int     `json:"error_count"`
		Total             int     `json:"total"`
	} `json:"metrics"`
}

// ToSample converts a frame into a LiveLevelSample. It reports false when the
// frame names no concurrency level.
func (m ProgressMessage) ToSample(received time.Time) (LiveLevelSample, bool) {
	level := m.Metrics.Concurrency
	if level <= 0 {
		level = m.Concurrency.Level
	}
	if level <= 0 {
		return LiveLevelSample{}, false
	}
	total := m.Metrics.Total
	if total == 0 {
		total = m.Progress.Total
	}
	completed := m.Metrics.Completed
	if completed == 0 {
		completed = m.Progress.Current
	}
	return LiveLevelSample{
		Concurrency:    level,
		Throughput:     m.Metrics.ThroughputCurrent,
		TTFTP50:        m.Metrics.TTFTP50,
		Completed:      completed,
		Errors:         m.Metrics.ErrorCount,
		Total:          total,
		OverallPercent: m.OverallPercent,
		LevelPercent:   m.Progress.Percent,
		LevelIndex:     m.Concurrency.Index,
		LevelTotal:     m.Concurrency.Total,
		ReceivedAt:     received,
	}, true
}

// GoodputThresholds are the SLO limits used to compute goodput.
type GoodputThresholds struct {
	TTFTMillis *float64 `json:"ttft_ms,omitempty"`
	TPOTMillis *float64 `json:"tpot_ms,omitempty"`
	E2EMillis  *float64 `json:"e2e_ms,omitempty"`
}

// StartRequest is the body of POST /run.
type StartRequest struct {
	ServerURL         string             `json:"server_url"`
	Model             string             `json:"model"`
	Adapter           string             `json:"adapter"`
	Concurrency       []int              `json:"concurrency"`
	NumPrompts        int                `json:"num_prompts"`
	InputLen          int                `json:"input_len"`
	OutputLen         int                `json:"output_len"`
	Stream            bool               `json:"stream"`
	Warmup            int                `json:"warmup"`
	Timeout           float64            `json:"timeout"`
	APIKey            string             `json:"api_key,omitempty"`
	DurationSeconds   *int               `json:"duration_seconds,omitempty"`
	GoodputThresholds *GoodputThresholds `json:"goodput_thresholds,omitempty"`
}

// DefaultStartRequest mirrors the backend's defaults for omitted fields.
func DefaultStartRequest() StartRequest {
	return StartRequest{
		Adapter:     "openai",
		Concurrency: []int{1, 10, 50},
		NumPrompts:  100,
		InputLen:    256,
		OutputLen:   128,
		Stream:      true,
		Warmup:      3,
		Timeout:     60,
	}
}

// Validate checks the fields the backend would reject.
func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.ServerURL) == "" {
		return fmt.Errorf("server url is required")
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Concurrency) == 0 {
		return fmt.Errorf("at least one concurrency level is required")
	}
	seen := make(map[int]struct{}, len(r.Concurrency))
	for _, c := range r.Concurrency {
		if c <= 0 {
			return fmt.Errorf("concurrency levels must be positive, got %d", c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate concurrency level %d", c)
		}
		seen[c] = struct{}{}
	}
	if r.NumPrompts <= 0 {
		return fmt.Errorf("num_prompts must be positive")
	}
	return nil
}

// StartResponse is returned by POST /run.
type StartResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunList is one page of GET /history.
type RunList struct {
	Runs   []RunStatus `json:"runs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// HistoryQuery filters GET /history.
type HistoryQuery struct {
	Limit  int
	Offset int
	Status Status
}

// ComparisonMetric is one run's value in a comparison.
type ComparisonMetric struct {
	RunID       string  `json:"run_id"`
	Value       float64 `json:"value"`
	Concurrency *int    `json:"concurrency,omitempty"`
}

// ComparisonResult is returned by POST /compare.
type ComparisonResult struct {
	RunCount       int                           `json:"run_count"`
	BestThroughput *ComparisonMetric             `json:"best_throughput,omitempty"`
	BestTTFT       *ComparisonMetric             `json:"best_ttft,omitempty"`
	ByConcurrency  map[string][]ComparisonMetric `json:"by_concurrency"`
}

// Health is returned by GET /health.
type Health struct {
	Status    string     `json:"status"`
	Version   string     `json:"version,omitempty"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}
