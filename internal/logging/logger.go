// Package logging provides leveled logging and run tracing for linksim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output), optionally
//     mirrored to a size-rotated JSON file
//   - A RunTracer for structured JSONL run traces (.linksim/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, per-iteration solver state and rule decisions are included.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRotatingLogger creates a slog.Logger writing JSON lines to a
// size-rotated file. maxSizeMB and maxBackups of zero fall back to 50 MB
// and 3 backups.
func NewRotatingLogger(level, path string, maxSizeMB, maxBackups int) *slog.Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// RunTracer writes structured run events to a JSONL file.
// It is safe for concurrent use. A nil RunTracer is safe to use;
// all methods are no-ops on nil receiver.
type RunTracer struct {
	mu   sync.Mutex
	file *os.File
}

// NewRunTracer creates a tracer writing to dir/runs.jsonl.
// At "info" level (the default), returns nil — no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewRunTracer(dir string, level string) *RunTracer {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "runs.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &RunTracer{file: f}
}

// Log writes a run event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (rt *RunTracer) Log(event map[string]any) {
	if rt == nil || rt.file == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = rt.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (rt *RunTracer) Close() {
	if rt == nil || rt.file == nil {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.file.Close()
	rt.file = nil
}
