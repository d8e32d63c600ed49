// internal/simulator/handlers.go
package simulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/logging"
)

type errResp struct {
	Detail string `json:"detail"`
}

var details = map[error]struct {
	status int
	detail string
}{
	ErrNotFound:     {http.StatusNotFound, "Run not found"},
	ErrNoResult:     {http.StatusNotFound, "Result not found"},
	ErrStillRunning: {http.StatusAccepted, "Benchmark still running"},
	ErrFailed:       {http.StatusInternalServerError, "Benchmark failed"},
	ErrNotRunning:   {http.StatusConflict, "Run is not running"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	for known, d := range details {
		if errors.Is(err, known) {
			writeJSON(w, d.status, errResp{Detail: d.detail})
			return
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, errResp{Detail: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Routes mounts the service API under the configured base path.
func (s *Simulator) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Recoverer)

	r.Route(s.cfg.BasePath, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/history", s.handleHistory)
		r.Post("/compare", s.handleCompare)
		r.Get("/status/{runID}", s.handleStatus)
		r.Get("/result/{runID}", s.handleResult)
		r.Get("/result/{runID}/export", s.handleExport)
		r.Get("/ws/{runID}", s.handleProgress)

		r.Route("/run", func(r chi.Router) {
			r.Get("/{runID}", s.handleStatus)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAPIKey)
				r.Post("/", s.handleStart)
				r.Post("/{runID}/stop", s.handleStop)
				r.Delete("/{runID}", s.handleDelete)
			})
		})
	})
	return r
}

func (s *Simulator) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, errResp{Detail: "Invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Simulator) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, benchmark.Health{
		Status:    "healthy",
		Version:   s.cfg.Version,
		Timestamp: s.stamp(),
	})
}

func (s *Simulator) handleStart(w http.ResponseWriter, r *http.Request) {
	req := benchmark.DefaultStartRequest()
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Detail: "invalid JSON: " + err.Error()})
		return
	}
	id, err := s.Start(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, benchmark.StartResponse{RunID: id, Status: "started"})
}

func (s *Simulator) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Simulator) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if err := s.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stopped": id})
}

func (s *Simulator) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if err := s.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Simulator) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.Result(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Simulator) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	var status benchmark.Status
	if raw := q.Get("status"); raw != "" {
		status = benchmark.ParseStatus(raw)
	}
	writeJSON(w, http.StatusOK, s.History(limit, offset, status))
}

func (s *Simulator) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunIDs []string `json:"run_ids"`
	}
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Detail: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.RunIDs) < 2 {
		writeJSON(w, http.StatusUnprocessableEntity, errResp{Detail: "At least two run ids are required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]benchmark.ComparisonResult{"comparison": s.Compare(req.RunIDs)})
}

func (s *Simulator) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeJSON(w, http.StatusUnprocessableEntity, errResp{Detail: "format must be csv or xlsx"})
		return
	}
	res, err := s.Result(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if format == "xlsx" {
		writeJSON(w, http.StatusInternalServerError, errResp{Detail: "Excel export not available in the simulator"})
		return
	}
	body, err := exportCSV(res)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{Detail: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+benchmark.ExportFileName(id, "csv")+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// handleProgress streams progress frames of one run until it ends or the
// client goes away.
func (s *Simulator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	frames, unsubscribe, err := s.subscribe(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogEvent("simulator: upgrade %s: %v", id, err)
		return
	}
	defer conn.Close()

	// The client never sends; reading only surfaces its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case frame, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
