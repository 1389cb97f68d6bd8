package dbopen_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/sgxhist/dbopen"
)

func TestOpen_BusyTimeout(t *testing.T) {
	// WHAT: busy_timeout defaults to 10s and follows WithBusyTimeout.
	// WHY: A history query during an update run waits instead of failing.
	for _, tt := range []struct {
		opts []dbopen.Option
		want int
	}{
		{nil, 10_000},
		{[]dbopen.Option{dbopen.WithBusyTimeout(2500)}, 2500},
	} {
		db := dbopen.OpenMemory(t, tt.opts...)
		var got int
		if err := db.QueryRow("PRAGMA busy_timeout").Scan(&got); err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("busy_timeout = %d, want %d", got, tt.want)
		}
	}
}

func TestOpen_FileUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sgxhist.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpen_SchemaError(t *testing.T) {
	_, err := dbopen.Open(":memory:", dbopen.WithSchema("CREATE TABLE (\nbroken"))
	if err == nil {
		t.Fatal("expected schema error")
	}
}

func TestIsBusy(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table: day_index"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("database table is locked"), true},
	} {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE day_index (day TEXT PRIMARY KEY, identifier INTEGER)`))
	ctx := context.Background()
	if _, err := dbopen.Exec(ctx, db, `INSERT INTO day_index VALUES (?, ?)`, "20230516", 5420); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, err := dbopen.Exec(ctx, db, `INSERT INTO day_index VALUES (?, ?)`, "20230516", 1); err == nil {
		t.Fatal("expected constraint error")
	}
	var id int
	if err := db.QueryRow(`SELECT identifier FROM day_index WHERE day = '20230516'`).Scan(&id); err != nil {
		t.Fatal(err)
	}
	if id != 5420 {
		t.Errorf("identifier = %d, want 5420", id)
	}
}
