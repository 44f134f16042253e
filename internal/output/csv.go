/*
PURPOSE:
  Writes trace entries to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Trace is exposed for external analysis.

  Implementation-discovered:
  - Overwrite on each run; one file per output directory.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Consumes: internal/model.TraceEntry

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).
  - Use Mutex; sweeps may share a writer.

USAGE:
  w, err := output.NewCSVWriter("trace.csv")
  w.Write(entry)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion.
*/

package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/donkey-runner/internal/model"
)

var csvHeader = []string{
	"timestamp", "task_id", "domain", "batch",
	"estimated_tokens", "prompt_tokens", "response_tokens", "total_tokens",
	"mutated", "fallback", "response",
}

// CSVWriter handles writing trace entries to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single trace entry to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(e model.TraceEntry) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		e.Timestamp.Format(time.RFC3339),
		e.TaskID,
		e.Domain,
		strconv.Itoa(e.Batch),
		strconv.Itoa(e.EstimatedTokens),
		strconv.Itoa(e.PromptTokens),
		strconv.Itoa(e.ResponseTokens),
		strconv.Itoa(e.TotalTokens),
		strconv.FormatBool(e.Mutated),
		strconv.FormatBool(e.Fallback),
		e.ResponseText,
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
