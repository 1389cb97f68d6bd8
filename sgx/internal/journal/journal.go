// CLAUDE:SUMMARY Tab-separated failure journal: header + one row per failed download attempt, append with fsync, atomic rewrite on replay.
// Package journal keeps the durable record of failed downloads.
//
// The file starts with one descriptive header line. Every following line
// is a row: link, day label, error kind and an optional extra field, tab
// separated. Rows are appended while downloading and the whole file is
// atomically replaced when a replay pass drops the rows that now succeed.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Header is written as the first line of every new journal.
const Header = "Each line describes a file that failed to download (tab separated): Link, QueryDay, ErrorType, AdditionalInfo (optional)."

// Kind classifies a failed download.
type Kind string

const (
	NotFound        Kind = "NotFound"
	HttpError       Kind = "HttpError"
	ContentTooShort Kind = "ContentTooShort"
	NetworkError    Kind = "NetworkError"
	LocalIO         Kind = "LocalIO"
)

// ErrMalformed is returned by ParseEntry for rows without the three
// mandatory fields.
var ErrMalformed = errors.New("journal: malformed row")

// Entry is one journal row.
type Entry struct {
	Link  string
	Label string
	Kind  Kind
	Extra string
}

// String renders the row without its trailing newline.
func (e Entry) String() string {
	s := e.Link + "\t" + e.Label + "\t" + string(e.Kind)
	if e.Extra != "" {
		s += "\t" + e.Extra
	}
	return s
}

// ParseEntry parses a row. Fields past the third are joined back into Extra.
func ParseEntry(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	f := strings.SplitN(line, "\t", 4)
	if len(f) < 3 || f[0] == "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	e := Entry{Link: f[0], Label: f[1], Kind: Kind(f[2])}
	if len(f) == 4 {
		e.Extra = f[3]
	}
	return e, nil
}

// Journal is a single-writer handle on a journal file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// Open returns a Journal for path, creating the file (and its directory)
// with the header when it does not exist.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case err == nil:
		_, werr := f.WriteString(Header + "\n")
		cerr := f.Close()
		if werr != nil || cerr != nil {
			return nil, fmt.Errorf("journal: write header: %w", errors.Join(werr, cerr))
		}
	case !errors.Is(err, os.ErrExist):
		return nil, fmt.Errorf("journal: create %s: %w", path, err)
	}
	return &Journal{path: path}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes one row and syncs it to disk.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open: %w", err)
	}
	if fi, err := f.Stat(); err == nil && fi.Size() == 0 {
		if _, err := f.WriteString(Header + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("journal: write header: %w", err)
		}
	}
	if _, err := f.WriteString(e.String() + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("journal: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("journal: sync: %w", err)
	}
	return f.Close()
}

// Read returns the header line and the data rows, each without its line
// terminator. Blank lines are dropped; every other row is returned as is.
func (j *Journal) Read() (header string, rows []string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		return "", nil, fmt.Errorf("journal: read: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return Header, nil, nil
	}
	header = lines[0]
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		rows = append(rows, l)
	}
	return header, rows, nil
}

// Replace atomically rewrites the journal with header followed by rows.
// The new content is written to a temporary file in the same directory,
// synced, then renamed over the journal.
func (j *Journal) Replace(header string, rows []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("journal: create tmp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("journal: write tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("journal: sync tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("journal: close tmp: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("journal: chmod tmp: %w", err)
	}
	if err := os.Rename(name, j.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("journal: rename: %w", err)
	}
	return nil
}
