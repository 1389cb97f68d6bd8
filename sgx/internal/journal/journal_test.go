package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "logs", "failed.tsv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return j
}

func TestOpen_WritesHeaderOnce(t *testing.T) {
	j := openTemp(t)
	if _, err := Open(j.Path()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := os.ReadFile(j.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != Header+"\n" {
		t.Errorf("content = %q, want header only", data)
	}
}

func TestOpen_KeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.tsv")
	content := "my header\nhttp://x/1/TC.txt\t20230516\tNotFound\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != content {
		t.Errorf("content changed: %q", data)
	}
}

func TestAppendRead(t *testing.T) {
	j := openTemp(t)
	entries := []Entry{
		{Link: "http://x/5420/TC.txt", Label: "20230516", Kind: NotFound},
		{Link: "http://x/5421/TC.txt", Label: "20230517", Kind: HttpError, Extra: "code=503"},
	}
	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	header, rows, err := j.Read()
	if err != nil {
		t.Fatal(err)
	}
	if header != Header {
		t.Errorf("header = %q", header)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1] != "http://x/5421/TC.txt\t20230517\tHttpError\tcode=503" {
		t.Errorf("row = %q", rows[1])
	}
	for i, r := range rows {
		got, err := ParseEntry(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != entries[i] {
			t.Errorf("ParseEntry(%q) = %+v, want %+v", r, got, entries[i])
		}
	}
}

func TestAppend_RecreatesMissingFile(t *testing.T) {
	// WHAT: A journal deleted mid-run is recreated with its header.
	j := openTemp(t)
	os.Remove(j.Path())
	if err := j.Append(Entry{Link: "l", Label: "d", Kind: NetworkError}); err != nil {
		t.Fatal(err)
	}
	header, rows, _ := j.Read()
	if header != Header || len(rows) != 1 {
		t.Errorf("header=%q rows=%v", header, rows)
	}
}

func TestParseEntry(t *testing.T) {
	e, err := ParseEntry("http://x/1/a.zip\t20230516\tHttpError\tcode=500\terrno=None\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if e.Kind != HttpError || e.Extra != "code=500\terrno=None" {
		t.Errorf("got %+v", e)
	}

	for _, bad := range []string{"", "just a link", "a\tb", "\t20230516\tNotFound"} {
		if _, err := ParseEntry(bad); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseEntry(%q): err = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestReplace_Atomic(t *testing.T) {
	// WHAT: Replace keeps the header verbatim, writes only the given rows
	// and leaves no temporary file behind.
	j := openTemp(t)
	for _, id := range []string{"1", "2", "3"} {
		j.Append(Entry{Link: "http://x/" + id + "/TC.txt", Label: "20230516", Kind: NotFound})
	}
	header, rows, _ := j.Read()

	if err := j.Replace(header, rows[1:2]); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	data, _ := os.ReadFile(j.Path())
	want := Header + "\n" + rows[1] + "\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}

	ents, _ := os.ReadDir(filepath.Dir(j.Path()))
	for _, e := range ents {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestReplace_EmptyKeepsHeader(t *testing.T) {
	j := openTemp(t)
	j.Append(Entry{Link: "l", Label: "d", Kind: NotFound})
	if err := j.Replace("custom header", nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(j.Path())
	if string(data) != "custom header\n" {
		t.Errorf("content = %q", data)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}
