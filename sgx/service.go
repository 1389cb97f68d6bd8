// CLAUDE:SUMMARY Service facade: builds portal client, resolver, journal, orchestrator, scanner and ledger from a Config and exposes day/range/past/update/retry/discover/history.
// Package sgx downloads the SGX derivatives historical data files.
//
// The portal addresses each business day by an opaque identifier. The
// Service resolves calendar dates to identifiers, downloads every
// configured file of a day with bounded retries, records failures in a
// journal that a later retry pass replays, and keeps a SQLite ledger of
// confirmed identifiers and attempts.
//
// Usage:
//
//	svc, err := sgx.New(cfg, logger)
//	defer svc.Close()
//	sum := svc.Range(ctx, start, end)
package sgx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
	"github.com/hazyhaar/sgxhist/sgx/internal/download"
	"github.com/hazyhaar/sgxhist/sgx/internal/exclusion"
	"github.com/hazyhaar/sgxhist/sgx/internal/journal"
	"github.com/hazyhaar/sgxhist/sgx/internal/ledger"
	"github.com/hazyhaar/sgxhist/sgx/internal/portal"
	"github.com/hazyhaar/sgxhist/sgx/internal/progress"
	"github.com/hazyhaar/sgxhist/sgx/internal/replay"
	"github.com/hazyhaar/sgxhist/sgx/internal/resolve"
	"github.com/hazyhaar/sgxhist/sgx/internal/scan"
)

// Summary aggregates a batch of downloads.
type Summary = scan.Summary

// Result is the outcome of resolving a date.
type Result = resolve.Result

// Report summarises a journal replay.
type Report = replay.Report

// FetchRecord is one ledger attempt row.
type FetchRecord = ledger.FetchRecord

// Service wires the downloader together.
type Service struct {
	config     *Config
	logger     *slog.Logger
	clock      calendar.Clock
	httpClient *http.Client
	reporter   progress.Reporter

	labeler    calendar.Labeler
	exclusions *exclusion.Set
	files      []string
	portal     *portal.Client
	resolver   *resolve.Resolver
	journal    *journal.Journal
	orch       *download.Orchestrator
	scanner    *scan.Scanner
	ledger     *ledger.Store
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now. "Today" and "yesterday" follow it.
func WithClock(c calendar.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithHTTPClient replaces the portal HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.httpClient = hc }
}

// WithProgress sets the download progress reporter. Default: a
// LogReporter on the service logger.
func WithProgress(r progress.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// New validates cfg and builds every component.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{config: cfg, logger: logger, clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.reporter == nil {
		s.reporter = progress.NewLogReporter(logger, 0)
	}

	// Validate already parsed these; errors cannot occur here.
	s.labeler, _ = cfg.labeler()
	s.exclusions, _ = exclusion.Parse(cfg.Excluded)
	s.files, _ = cfg.Files()
	pivot, _ := cfg.pivot()

	var popts []portal.Option
	if s.httpClient != nil {
		popts = append(popts, portal.WithHTTPClient(s.httpClient))
	}
	s.portal = portal.New(portal.Config{
		LinkPattern:  cfg.Portal.Link,
		KeyFile:      cfg.FileNames[cfg.KeyFile],
		UserAgent:    cfg.Portal.UserAgent,
		Timeout:      cfg.Portal.Timeout,
		RateInterval: cfg.Portal.RateInterval,
	}, popts...)

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, err
	}
	s.journal = j

	var ropts []resolve.Option
	dopts := []download.Option{download.WithProgress(s.reporter)}
	if cfg.Ledger != "" {
		st, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return nil, err
		}
		s.ledger = st
		ropts = append(ropts, resolve.WithCache(st))
		dopts = append(dopts, download.WithRecorder(st))
	}

	s.resolver = resolve.New(resolve.Config{
		Pivot:      pivot,
		Labeler:    s.labeler,
		Exclusions: s.exclusions,
		Clock:      s.clock,
	}, s.portal, logger, ropts...)
	s.orch = download.New(download.Config{
		OutputDir: cfg.Output,
		MaxRetry:  cfg.MaxRetry,
	}, s.portal, s.journal, logger, dopts...)
	s.scanner = scan.New(scan.Config{
		Files:        s.files,
		Labeler:      s.labeler,
		SkipExcluded: cfg.SkipExcludedInRange,
	}, s.resolver, s.orch, s.exclusions, s.clock, logger)

	logger.Debug("sgx: service ready",
		"output", cfg.Output, "journal", cfg.Journal, "ledger", cfg.Ledger,
		"files", s.files, "excluded", s.exclusions.Len(), "max_retry", cfg.MaxRetry)
	return s, nil
}

// Close releases the ledger.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// Resolve maps a date to its portal identifier.
func (s *Service) Resolve(ctx context.Context, date time.Time) Result {
	return s.resolver.Resolve(ctx, date)
}

// Day downloads every configured file of one day.
func (s *Service) Day(ctx context.Context, date time.Time) Summary {
	return s.scanner.Day(ctx, date)
}

// Range downloads every business day in [start, end].
func (s *Service) Range(ctx context.Context, start, end time.Time) Summary {
	return s.scanner.Range(ctx, start, end)
}

// Past downloads the last n calendar days up to yesterday.
func (s *Service) Past(ctx context.Context, n int) Summary {
	return s.scanner.Past(ctx, n)
}

// Update downloads yesterday.
func (s *Service) Update(ctx context.Context) Summary {
	return s.scanner.Update(ctx)
}

// Retry replays a failure journal. An empty path replays the configured one.
func (s *Service) Retry(ctx context.Context, path string) (Report, error) {
	j := s.journal
	if path != "" && filepath.Clean(path) != filepath.Clean(s.journal.Path()) {
		var err error
		if j, err = journal.Open(path); err != nil {
			return Report{}, err
		}
	}
	return replay.New(j, s.orch, s.logger).Replay(ctx)
}

// Discover probes identifiers from..to and returns those the portal
// answers without a file.
func (s *Service) Discover(ctx context.Context, from, to int, onProbe func(id int, excluded bool)) (*exclusion.Set, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("%w: identifier range %d-%d", ErrInvalidInput, from, to)
	}
	set, err := exclusion.Discover(ctx, s.portal, from, to, onProbe)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sgx: discovery done", "from", from, "to", to, "excluded", set.String())
	return set, nil
}

// History returns the latest ledger attempts.
func (s *Service) History(ctx context.Context, limit int) ([]*FetchRecord, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	return s.ledger.RecentFetches(ctx, limit)
}

// FailureCounts returns failed attempts per error kind from the ledger.
func (s *Service) FailureCounts(ctx context.Context) (map[string]int, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	return s.ledger.FailureCounts(ctx)
}

// ParseDay parses a day argument relative to the service clock.
func (s *Service) ParseDay(v string) (time.Time, error) {
	d, err := calendar.ParseDay(v, s.clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return d, nil
}

// RunConfigured performs the work listed in the days section: the single
// day, then the start/end range, then the last N days.
func (s *Service) RunConfigured(ctx context.Context) (Summary, error) {
	var total Summary
	add := func(o Summary) {
		total.Days += o.Days
		total.Attempts += o.Attempts
		total.Failed += o.Failed
	}
	days := s.config.Days

	if enabled(days.Day) {
		d, err := s.ParseDay(days.Day)
		if err != nil {
			return total, err
		}
		add(s.Day(ctx, d))
	}
	if enabled(days.Start) && enabled(days.End) {
		start, err := s.ParseDay(days.Start)
		if err != nil {
			return total, err
		}
		end, err := s.ParseDay(days.End)
		if err != nil {
			return total, err
		}
		add(s.Range(ctx, start, end))
	}
	if days.Past > 0 {
		add(s.Past(ctx, days.Past))
	}
	return total, nil
}

func enabled(v string) bool {
	return v != "" && v != "off" && v != "OFF" && v != "Off"
}
