// internal/logging/logging.go
// Package logging routes the standard logger to the sweepwatch log file and
// formats one line per API call.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	logFile *os.File
	debug   bool
)

// secretField matches credential fields in JSON bodies, such as the target
// server's api_key carried by a start request.
var secretField = regexp.MustCompile(`("(?:api_key|apiKey|x-api-key)"\s*:\s*)"[^"]*"`)

// Init sends the standard logger to logPath only. An empty path discards
// output, which is what the full-screen watch needs.
func Init(logPath string) error {
	return open(logPath, false)
}

// InitWithConsole also copies every line to stdout, for one-shot commands.
func InitWithConsole(logPath string) error {
	return open(logPath, true)
}

func open(logPath string, console bool) error {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()

	var sinks []io.Writer
	if console {
		sinks = append(sinks, os.Stdout)
	}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		sinks = append(sinks, f)
	}

	switch len(sinks) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(sinks[0])
	default:
		log.SetOutput(io.MultiWriter(sinks...))
	}
	return nil
}

func closeLocked() error {
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// Close releases the log file and points the logger back at stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

// SetDebug toggles Debugf output.
func SetDebug(enabled bool) {
	mu.Lock()
	debug = enabled
	mu.Unlock()
}

func debugOn() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

func LogEvent(format string, args ...any) {
	log.Printf(format, args...)
}

// Debugf logs only when debug output is enabled.
func Debugf(format string, args ...any) {
	if debugOn() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// LogRequest records one leg of API traffic. direction is "out" for requests
// and "in" for responses.
func LogRequest(direction, host, runID, call string, payload any) {
	log.Println(requestLine(direction, host, runID, call, payload))
}

func requestLine(direction, host, runID, call string, payload any) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] host=%s", strings.ToUpper(strings.TrimSpace(direction)), host)
	if runID = strings.TrimSpace(runID); runID != "" {
		fmt.Fprintf(&b, " run=%s", runID)
	}
	if call = strings.TrimSpace(call); call != "" {
		fmt.Fprintf(&b, " call=%s", call)
	}
	b.WriteString(" payload=")
	b.WriteString(redact(payloadText(payload)))
	return b.String()
}

func payloadText(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

func redact(s string) string {
	return secretField.ReplaceAllString(s, `$1"***"`)
}
