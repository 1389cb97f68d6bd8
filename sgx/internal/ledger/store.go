// Package ledger records confirmed day identifiers and every download
// attempt in SQLite.
//
// The day index doubles as a resolution cache: a day confirmed once is never
// probed again. The fetch log feeds the history command and MCP tool.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/sgxhist/dbopen"
	"github.com/hazyhaar/sgxhist/idgen"
	"github.com/hazyhaar/sgxhist/sgx/internal/download"
)

// Fetch statuses stored in fetch_log.status.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// FetchRecord is one fetch_log row.
type FetchRecord struct {
	ID         string    `json:"id"`
	Link       string    `json:"link"`
	Label      string    `json:"label"`
	FileName   string    `json:"file_name"`
	Path       string    `json:"path,omitempty"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Store wraps the ledger database.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator sets the fetch_log row id generator. Default: UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) { s.newID = g }
}

// WithClock sets the time source for confirmed_at and fetched_at defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore wraps an open database that already carries Schema.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, newID: idgen.Default, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (or creates) the ledger at path and applies Schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	return NewStore(db, opts...), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Lookup returns the confirmed identifier for a day (YYYYMMDD).
func (s *Store) Lookup(ctx context.Context, day string) (int, bool, error) {
	var id int
	err := s.DB.QueryRowContext(ctx, `SELECT identifier FROM day_index WHERE day = ?`, day).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ledger: lookup %s: %w", day, err)
	}
	return id, true, nil
}

// Remember stores a confirmed identifier, replacing any previous one.
func (s *Store) Remember(ctx context.Context, day string, id int) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO day_index (day, identifier, confirmed_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET identifier = excluded.identifier, confirmed_at = excluded.confirmed_at`,
		day, id, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger: remember %s: %w", day, err)
	}
	return nil
}

// RecordFetch appends an attempt to fetch_log.
func (s *Store) RecordFetch(ctx context.Context, a download.Attempt) error {
	status := StatusOK
	if a.Kind != "" {
		status = StatusFailed
	}
	at := a.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO fetch_log (id, link, label, file_name, path, status, error_kind,
		status_code, bytes, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), a.Link, a.Label, a.FileName, a.Path, status, string(a.Kind),
		a.StatusCode, a.Bytes, a.Duration.Milliseconds(), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ledger: record fetch: %w", err)
	}
	return nil
}

// RecentFetches returns the latest attempts, newest first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]*FetchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, link, label, file_name, path, status, error_kind,
		status_code, bytes, duration_ms, fetched_at
		FROM fetch_log ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent fetches: %w", err)
	}
	defer rows.Close()

	var out []*FetchRecord
	for rows.Next() {
		var r FetchRecord
		var at int64
		if err := rows.Scan(&r.ID, &r.Link, &r.Label, &r.FileName, &r.Path, &r.Status,
			&r.ErrorKind, &r.StatusCode, &r.Bytes, &r.DurationMs, &at); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		r.FetchedAt = time.UnixMilli(at).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// FailureCounts returns the number of failed attempts per error kind.
func (s *Store) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT error_kind, COUNT(*) FROM fetch_log WHERE status = ? GROUP BY error_kind`, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("ledger: failure counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan failure counts: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
