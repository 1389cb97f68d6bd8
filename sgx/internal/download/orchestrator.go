// CLAUDE:SUMMARY Downloads a day's files: one attempt streams to <label>/<server name>.part then renames; failures are classified, logged and journaled; bounded immediate retry.
// Package download fetches the files published for a resolved day.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/sgxhist/sgx/internal/journal"
	"github.com/hazyhaar/sgxhist/sgx/internal/portal"
	"github.com/hazyhaar/sgxhist/sgx/internal/progress"
)

// Opener builds links and opens downloads. *portal.Client implements it.
type Opener interface {
	Link(id int, fileName string) string
	Open(ctx context.Context, link string) (*portal.Download, error)
}

// Journal receives one row per failed attempt.
type Journal interface {
	Append(e journal.Entry) error
}

// Attempt describes one finished fetch attempt, successful or not.
type Attempt struct {
	Link       string
	Label      string
	FileName   string
	Path       string
	Kind       journal.Kind // empty on success
	StatusCode int
	Bytes      int64
	Duration   time.Duration
	At         time.Time
}

// Recorder keeps a history of attempts.
type Recorder interface {
	RecordFetch(ctx context.Context, a Attempt) error
}

// Request names one file of one day.
type Request struct {
	Identifier int
	Label      string
	FileName   string
}

// Config configures an Orchestrator.
type Config struct {
	// OutputDir receives one sub-directory per day label. Default: ".".
	OutputDir string
	// MaxRetry is the number of extra attempts after a failure.
	MaxRetry int
}

func (c *Config) defaults() {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.MaxRetry < 0 {
		c.MaxRetry = 0
	}
}

// Orchestrator downloads files one at a time.
type Orchestrator struct {
	config   Config
	opener   Opener
	journal  Journal
	logger   *slog.Logger
	failed   *slog.Logger
	progress progress.Reporter
	recorder Recorder
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithProgress reports streamed bytes to r.
func WithProgress(r progress.Reporter) Option {
	return func(o *Orchestrator) { o.progress = r }
}

// WithRecorder records every attempt in r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an Orchestrator. A nil journal disables journaling.
func New(cfg Config, opener Opener, j Journal, logger *slog.Logger, opts ...Option) *Orchestrator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		config:   cfg,
		opener:   opener,
		journal:  j,
		logger:   logger,
		failed:   logger.With("channel", "failed"),
		progress: progress.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxRetry returns the configured retry bound.
func (o *Orchestrator) MaxRetry() int { return o.config.MaxRetry }

// Fetch makes one attempt and returns the saved path. Failures are logged
// and returned as *Failure (or ErrUnresolved) but not journaled.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (string, error) {
	if req.Identifier <= 0 {
		o.logger.Debug("download: skipped, identifier not resolved",
			"file", req.FileName, "label", req.Label, "id", req.Identifier)
		return "", ErrUnresolved
	}
	link := o.opener.Link(req.Identifier, req.FileName)
	start := time.Now()
	a := Attempt{Link: link, Label: req.Label, FileName: req.FileName, At: start.UTC()}

	path, n, err := o.fetch(ctx, link, req)
	a.Path, a.Bytes, a.Duration = path, n, time.Since(start)

	var f *Failure
	if errors.As(err, &f) {
		a.Kind, a.StatusCode = f.Kind, f.StatusCode
		o.logger.Error("download: failed",
			"link", link, "label", req.Label, "kind", string(f.Kind), "status", f.StatusCode, "error", f.Err)
	} else {
		o.logger.Info("download: saved", "path", path, "size", humanize.IBytes(uint64(n)), "elapsed", a.Duration.Round(time.Millisecond))
	}
	o.record(ctx, a)
	return path, err
}

// FetchOne makes one attempt and journals a failure unless it is LocalIO.
func (o *Orchestrator) FetchOne(ctx context.Context, req Request) bool {
	return o.fetchOne(ctx, req) == nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, req Request) error {
	_, err := o.Fetch(ctx, req)
	var f *Failure
	if errors.As(err, &f) && f.Kind != journal.LocalIO {
		e := f.Entry()
		o.failed.Error(e.String())
		if o.journal != nil {
			if jerr := o.journal.Append(e); jerr != nil {
				o.logger.Error("download: journal append failed", "link", f.Link, "error", jerr)
			}
		}
	}
	return err
}

// FetchWithRetry attempts a file up to 1+MaxRetry times, immediately,
// stopping at the first success.
func (o *Orchestrator) FetchWithRetry(ctx context.Context, req Request) bool {
	err := o.fetchOne(ctx, req)
	for retry := 1; err != nil && retry <= o.config.MaxRetry; retry++ {
		if errors.Is(err, ErrUnresolved) || ctx.Err() != nil {
			break
		}
		o.logger.Warn("download: retrying",
			"file", req.FileName, "label", req.Label, "retry", retry, "max_retry", o.config.MaxRetry)
		err = o.fetchOne(ctx, req)
	}
	return err == nil
}

// fetch streams the file to <OutputDir>/<label>/<server name>.
func (o *Orchestrator) fetch(ctx context.Context, link string, req Request) (string, int64, error) {
	dir := filepath.Join(o.config.OutputDir, req.Label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, localIO(link, req.Label, fmt.Errorf("mkdir %s: %w", dir, err))
	}

	d, err := o.opener.Open(ctx, link)
	if err != nil {
		return "", 0, classify(link, req.Label, err)
	}
	defer d.Body.Close()

	dest := filepath.Join(dir, d.Filename)
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, localIO(link, req.Label, fmt.Errorf("create %s: %w", tmp, err))
	}
	fw := &fileWriter{f: f}
	n, err := io.Copy(progress.NewWriter(fw, d.Filename, d.ContentLength, o.progress), d.Body)
	if cerr := f.Close(); cerr != nil && err == nil && fw.err == nil {
		fw.err = cerr
	}

	switch {
	case fw.err != nil:
		os.Remove(tmp)
		return "", n, localIO(link, req.Label, fmt.Errorf("write %s: %w", tmp, fw.err))
	case errors.Is(err, io.ErrUnexpectedEOF), err == nil && d.ContentLength >= 0 && n < d.ContentLength:
		os.Remove(tmp)
		return "", n, &Failure{
			Kind:   journal.ContentTooShort,
			Link:   link,
			Label:  req.Label,
			Detail: fmt.Sprintf("got=%d\twant=%d", n, d.ContentLength),
			Err:    fmt.Errorf("retrieval incomplete: got %d of %d bytes", n, d.ContentLength),
		}
	case err != nil:
		os.Remove(tmp)
		return "", n, &Failure{Kind: journal.NetworkError, Link: link, Label: req.Label, Err: err}
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", n, localIO(link, req.Label, fmt.Errorf("rename %s: %w", tmp, err))
	}
	return dest, n, nil
}

func (o *Orchestrator) record(ctx context.Context, a Attempt) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordFetch(ctx, a); err != nil {
		o.logger.Warn("download: record attempt failed", "link", a.Link, "error", err)
	}
}

// fileWriter remembers the first write error so local failures can be told
// apart from a body that broke off.
type fileWriter struct {
	f   *os.File
	err error
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}
