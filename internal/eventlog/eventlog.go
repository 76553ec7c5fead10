// Package eventlog appends structured run events to a JSONL file. Each
// line is one event; the file is opened in append mode so concurrent
// runs from separate processes interleave whole lines rather than
// corrupting each other.
package eventlog

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// Log writes events for one process.
type Log struct {
	file   *os.File
	logger *slog.Logger
}

// Open opens (creating if needed) the event log file for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Log{file: f, logger: slog.New(handler)}, nil
}

// Event appends one event line. Args are alternating key/value pairs,
// as with slog.
func (l *Log) Event(event string, args ...any) {
	l.logger.Info(event, args...)
}

// RunStarted records the start of a run.
func (l *Log) RunStarted(runID, workbook string) {
	l.Event("run_started", "run_id", runID, "workbook", workbook)
}

// RunCompleted records a successful run and its artifact hashes.
func (l *Log) RunCompleted(runID string, hashes map[string]string) {
	kinds := make([]string, 0, len(hashes))
	for kind := range hashes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	args := []any{"run_id", runID}
	for _, kind := range kinds {
		args = append(args, "hash_"+kind, hashes[kind])
	}
	l.Event("run_completed", args...)
}

// RunFailed records a failed run.
func (l *Log) RunFailed(runID string, err error) {
	l.Event("run_failed", "run_id", runID, "error", err.Error())
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}
