// internal/benchmark/schema.go
package benchmark

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// progressSchemaDef describes a push-channel frame. Only the metrics block is
// required; the level and progress blocks are optional on older backends.
var progressSchemaDef = map[string]any{
	"type":     "object",
	"required": []string{"metrics"},
	"properties": map[string]any{
		"run_id":          map[string]any{"type": "string"},
		"overall_percent": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"concurrency": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"level": map[string]any{"type": "integer", "minimum": 0},
				"index": map[string]any{"type": "integer", "minimum": 0},
				"total": map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"progress": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"current": map[string]any{"type": "integer", "minimum": 0},
				"total":   map[string]any{"type": "integer", "minimum": 0},
				"percent": map[string]any{"type": "number", "minimum": 0},
			},
		},
		"metrics": map[string]any{
			"type":     "object",
			"required": []string{"concurrency"},
			"properties": map[string]any{
				"concurrency":        map[string]any{"type": "integer", "minimum": 1},
				"throughput_current": map[string]any{"type": "number", "minimum": 0},
				"ttft_p50":           map[string]any{"type": "number", "minimum": 0},
				"completed":          map[string]any{"type": "integer", "minimum": 0},
				"error_count":        map[string]any{"type": "integer", "minimum": 0},
				"total":              map[string]any{"type": "integer", "minimum": 0},
			},
		},
	},
}

var (
	progressSchemaOnce sync.Once
	progressSchema     *gojsonschema.Schema
	progressSchemaErr  error
)

func compiledProgressSchema() (*gojsonschema.Schema, error) {
	progressSchemaOnce.Do(func() {
		progressSchema, progressSchemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(progressSchemaDef))
	})
	return progressSchema, progressSchemaErr
}

// ValidateProgress checks a raw push frame against the progress schema.
func ValidateProgress(data []byte) error {
	schema, err := compiledProgressSchema()
	if err != nil {
		return fmt.Errorf("compile progress schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("progress message failed validation: %s", strings.Join(details, "; "))
}

// DecodeProgress validates and decodes one push frame.
func DecodeProgress(data []byte) (ProgressMessage, error) {
	if err := ValidateProgress(data); err != nil {
		return ProgressMessage{}, err
	}
	var msg ProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ProgressMessage{}, fmt.Errorf("decode progress message: %w", err)
	}
	return msg, nil
}
