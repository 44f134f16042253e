/*
PURPOSE:
  Writes trace entries to a JSON Lines file (NDJSON).
  Optimized for machine parsing and downstream analysis.

REQUIREMENTS:
  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).
  - The full report is also written as one JSON document for tooling that wants everything.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Consumes: internal/model.TraceEntry, internal/model.Report

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("trace.jsonl")
  w.Write(entry)
  w.Close()
*/

package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daryltucker/donkey-runner/internal/model"
)

// JSONWriter handles writing trace entries to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter. It overwrites the file if it exists.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write writes a single trace entry as a JSON line.
func (jw *JSONWriter) Write(e model.TraceEntry) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(e)
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}

// WriteReportJSON writes the whole report as an indented JSON document.
func WriteReportJSON(path string, r *model.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
