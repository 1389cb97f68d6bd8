// CLAUDE:SUMMARY Drives resolution + download across business days: single day, yesterday, last N days, and lockstep range walks.
// Package scan walks calendar days and downloads each day's files.
//
// A range is resolved at both ends only. Between them the scanner advances
// the identifier by one per business day in lockstep with the calendar,
// which assumes the portal skipped no identifier inside the range. When an
// excluded identifier falls inside the walk the scanner warns, or skips it
// when SkipExcluded is set.
package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
	"github.com/hazyhaar/sgxhist/sgx/internal/download"
	"github.com/hazyhaar/sgxhist/sgx/internal/exclusion"
	"github.com/hazyhaar/sgxhist/sgx/internal/resolve"
)

// Resolver maps a date to an identifier.
type Resolver interface {
	Resolve(ctx context.Context, date time.Time) resolve.Result
}

// Fetcher downloads one file with retries.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, req download.Request) bool
}

// Config configures a Scanner.
type Config struct {
	// Files are the portal file names fetched for each day, in order.
	Files   []string
	Labeler calendar.Labeler
	// SkipExcluded advances the running identifier past excluded ones.
	SkipExcluded bool
}

// Summary aggregates a batch.
type Summary struct {
	Days     int `json:"days"`
	Attempts int `json:"attempts"`
	Failed   int `json:"failed"`
}

func (s *Summary) add(o Summary) {
	s.Days += o.Days
	s.Attempts += o.Attempts
	s.Failed += o.Failed
}

// Scanner runs batches sequentially.
type Scanner struct {
	config     Config
	resolver   Resolver
	fetcher    Fetcher
	exclusions *exclusion.Set
	clock      calendar.Clock
	logger     *slog.Logger
}

// New creates a Scanner. A nil clock uses time.Now.
func New(cfg Config, r Resolver, f Fetcher, ex *exclusion.Set, clock calendar.Clock, logger *slog.Logger) *Scanner {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{config: cfg, resolver: r, fetcher: f, exclusions: ex, clock: clock, logger: logger}
}

// Day downloads every file of one day. Only a confirmed day is fetched;
// otherwise each file counts as a failure.
func (s *Scanner) Day(ctx context.Context, date time.Time) Summary {
	var sum Summary
	res := s.resolver.Resolve(ctx, date)
	day := calendar.Truncate(date).Format("2006-01-02")
	if !res.Confirmed() {
		s.logger.Error("scan: day not found on the portal",
			"day", day, "status", res.Status.String(), "reason", string(res.Reason), "estimate", res.Identifier)
		sum.Attempts = len(s.config.Files)
		sum.Failed = len(s.config.Files)
		return sum
	}
	sum.Days = 1
	sum.add(s.fetchDay(ctx, res.Identifier, res.Label))
	s.logger.Info("scan: day complete", "day", day, "id", res.Identifier, "failed", sum.Failed, "total", sum.Attempts)
	return sum
}

// Update downloads yesterday's files.
func (s *Scanner) Update(ctx context.Context) Summary {
	return s.Day(ctx, calendar.Yesterday(s.clock))
}

// Past downloads the last n calendar days: from today-(n+1) to yesterday.
func (s *Scanner) Past(ctx context.Context, n int) Summary {
	today := calendar.Today(s.clock)
	return s.Range(ctx, today.AddDate(0, 0, -(n+1)), today.AddDate(0, 0, -1))
}

// Range downloads every business day in [start, end].
func (s *Scanner) Range(ctx context.Context, start, end time.Time) Summary {
	var sum Summary
	first := calendar.NextBusinessDay(start)
	last := calendar.PrevBusinessDay(end)
	if y := calendar.PrevBusinessDay(calendar.Yesterday(s.clock)); last.After(y) {
		last = y
	}
	if first.After(last) {
		s.logger.Info("scan: no business day in range",
			"start", calendar.Truncate(start).Format("2006-01-02"), "end", calendar.Truncate(end).Format("2006-01-02"))
		return sum
	}

	rs := s.resolver.Resolve(ctx, first)
	re := s.resolver.Resolve(ctx, last)
	if rs.Status == resolve.Future || re.Status == resolve.Future {
		s.logger.Warn("scan: range reaches the future, nothing to do",
			"start", first.Format("2006-01-02"), "end", last.Format("2006-01-02"))
		return sum
	}
	if !rs.Confirmed() || !re.Confirmed() {
		s.logger.Warn("scan: range bounds not confirmed, walking from estimates",
			"start_id", rs.Identifier, "start_status", rs.Status.String(),
			"end_id", re.Identifier, "end_status", re.Status.String())
	}
	s.logger.Debug("scan: range", "start", first.Format("2006-01-02"), "start_id", rs.Identifier,
		"end", last.Format("2006-01-02"), "end_id", re.Identifier)

	id, day := rs.Identifier, first
	for id <= re.Identifier {
		if ctx.Err() != nil {
			s.logger.Warn("scan: cancelled", "day", day.Format("2006-01-02"), "error", ctx.Err())
			break
		}
		if day.After(last) {
			s.logger.Warn("scan: walked past the end date before the end identifier",
				"day", day.Format("2006-01-02"), "id", id, "end_id", re.Identifier)
			break
		}
		if calendar.IsWeekend(day) {
			day = day.AddDate(0, 0, 1)
			continue
		}
		if s.exclusions.Contains(id) {
			if s.config.SkipExcluded {
				for s.exclusions.Contains(id) {
					id++
				}
				if id > re.Identifier {
					break
				}
			} else {
				s.logger.Warn("scan: running identifier is excluded, day may be misaligned",
					"day", day.Format("2006-01-02"), "id", id)
			}
		}
		sum.Days++
		sum.add(s.fetchDay(ctx, id, s.config.Labeler.Format(day)))
		id++
		day = day.AddDate(0, 0, 1)
	}

	s.logger.Info("scan: batch complete", "days", sum.Days, "failed", sum.Failed, "total", sum.Attempts)
	return sum
}

func (s *Scanner) fetchDay(ctx context.Context, id int, label string) Summary {
	var sum Summary
	for _, f := range s.config.Files {
		sum.Attempts++
		if !s.fetcher.FetchWithRetry(ctx, download.Request{Identifier: id, Label: label, FileName: f}) {
			sum.Failed++
		}
	}
	return sum
}
