// Package progress reports download progress.
package progress

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter receives byte counts while a file streams to disk. total is -1
// when the server did not declare a length.
type Reporter interface {
	Progress(label string, done, total int64)
}

// Nop discards progress.
type Nop struct{}

func (Nop) Progress(string, int64, int64) {}

// LogReporter logs progress at most once per interval per label, plus
// once on completion.
type LogReporter struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewLogReporter creates a LogReporter. interval <= 0 defaults to 2s.
func NewLogReporter(logger *slog.Logger, interval time.Duration) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &LogReporter{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (r *LogReporter) Progress(label string, done, total int64) {
	r.mu.Lock()
	now := r.now()
	finished := total >= 0 && done >= total
	if !finished && now.Sub(r.last[label]) < r.interval {
		r.mu.Unlock()
		return
	}
	if finished {
		delete(r.last, label)
	} else {
		r.last[label] = now
	}
	r.mu.Unlock()

	attrs := []any{"file", label, "done", humanize.IBytes(uint64(max(done, 0)))}
	if total >= 0 {
		attrs = append(attrs, "total", humanize.IBytes(uint64(total)))
		if total > 0 {
			attrs = append(attrs, "percent", done*100/total)
		}
	}
	r.logger.Info("progress: download", attrs...)
}

// Writer counts bytes written through it and reports them.
type Writer struct {
	w        io.Writer
	label    string
	total    int64
	n        int64
	reporter Reporter
}

// NewWriter wraps w. A nil reporter is treated as Nop.
func NewWriter(w io.Writer, label string, total int64, reporter Reporter) *Writer {
	if reporter == nil {
		reporter = Nop{}
	}
	return &Writer{w: w, label: label, total: total, reporter: reporter}
}

func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.n += int64(n)
	pw.reporter.Progress(pw.label, pw.n, pw.total)
	return n, err
}

// Written returns the number of bytes written so far.
func (pw *Writer) Written() int64 { return pw.n }
