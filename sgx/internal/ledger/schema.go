// CLAUDE:SUMMARY SQLite schema for the sgxhist ledger: confirmed day identifiers and the per-attempt fetch log.
package ledger

import "database/sql"

// Schema creates the ledger tables.
const Schema = `
-- Day identifiers the portal confirmed. Key: YYYYMMDD.
CREATE TABLE IF NOT EXISTS day_index (
    day          TEXT PRIMARY KEY,
    identifier   INTEGER NOT NULL,
    confirmed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_day_index_identifier ON day_index(identifier);

-- One row per download attempt.
CREATE TABLE IF NOT EXISTS fetch_log (
    id          TEXT PRIMARY KEY,
    link        TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    file_name   TEXT NOT NULL,
    path        TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    error_kind  TEXT NOT NULL DEFAULT '',
    status_code INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    fetched_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_time ON fetch_log(fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_log_label ON fetch_log(label);
`

// ApplySchema creates all tables and indexes on db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
