// Package replay re-attempts the downloads recorded in a failure journal
// and keeps only the rows that still fail.
package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/sgxhist/sgx/internal/download"
	"github.com/hazyhaar/sgxhist/sgx/internal/journal"
	"github.com/hazyhaar/sgxhist/sgx/internal/portal"
)

// Journal is the journal file being replayed.
type Journal interface {
	Read() (header string, rows []string, err error)
	Replace(header string, rows []string) error
}

// Fetcher makes a single attempt without journaling it.
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request) (string, error)
}

// Report summarises a replay pass.
type Report struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Remaining int `json:"remaining"`
}

// Replayer runs replay passes.
type Replayer struct {
	journal Journal
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates a Replayer.
func New(j Journal, f Fetcher, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{journal: j, fetcher: f, logger: logger}
}

// Replay makes one attempt per row. Rows that succeed are dropped; every
// other row, including unreadable ones and rows not reached after
// cancellation, is written back unchanged under the original header.
func (r *Replayer) Replay(ctx context.Context) (Report, error) {
	var rep Report
	header, rows, err := r.journal.Read()
	if err != nil {
		return rep, fmt.Errorf("replay: %w", err)
	}

	keep := make([]string, 0, len(rows))
	for i, row := range rows {
		if ctx.Err() != nil {
			r.logger.Warn("replay: cancelled, keeping remaining rows", "left", len(rows)-i)
			keep = append(keep, rows[i:]...)
			break
		}
		req, err := request(row)
		if err != nil {
			r.logger.Warn("replay: keeping unreadable row", "row", row, "error", err)
			keep = append(keep, row)
			continue
		}
		rep.Retried++
		if _, err := r.fetcher.Fetch(ctx, req); err != nil {
			keep = append(keep, row)
			continue
		}
		rep.Succeeded++
	}
	rep.Remaining = len(keep)

	if err := r.journal.Replace(header, keep); err != nil {
		return rep, fmt.Errorf("replay: %w", err)
	}
	r.logger.Info("replay: done",
		"retried", rep.Retried, "succeeded", rep.Succeeded, "remaining", rep.Remaining)
	return rep, nil
}

func request(row string) (download.Request, error) {
	e, err := journal.ParseEntry(row)
	if err != nil {
		return download.Request{}, err
	}
	id, file, err := portal.ParseLink(e.Link)
	if err != nil {
		return download.Request{}, err
	}
	return download.Request{Identifier: id, Label: e.Label, FileName: file}, nil
}
