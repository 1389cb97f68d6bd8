package replay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/sgxhist/sgx/internal/download"
	"github.com/hazyhaar/sgxhist/sgx/internal/journal"
	"github.com/hazyhaar/sgxhist/sgx/internal/replay"
)

type stubFetcher struct {
	fail  map[int]bool
	calls []download.Request
}

func (f *stubFetcher) Fetch(_ context.Context, req download.Request) (string, error) {
	f.calls = append(f.calls, req)
	if f.fail[req.Identifier] {
		return "", &download.Failure{Kind: journal.NotFound, Err: errors.New("still missing")}
	}
	return "/tmp/" + req.FileName, nil
}

func writeJournal(t *testing.T, content string) *journal.Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "failed.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	j, err := journal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestReplay_KeepsOnlyStillFailing(t *testing.T) {
	// WHAT: 3 rows, 2 now succeed: the journal keeps the header and the
	// one failing row, byte for byte.
	const header = "Links that failed\ttab in header"
	row1 := "https://links.sgx.com/1.0.0/derivatives-historical/5420/TC.txt\t20230516\tNotFound"
	row2 := "https://links.sgx.com/1.0.0/derivatives-historical/5421/WEBPXTICK_DT.zip\t20230517\tHttpError\tcode=500\terrno=None"
	row3 := "https://links.sgx.com/1.0.0/derivatives-historical/5422/TC.txt\t20230518\tNetworkError"
	j := writeJournal(t, header+"\n"+row1+"\n"+row2+"\n"+row3+"\n")

	f := &stubFetcher{fail: map[int]bool{5421: true}}
	rep, err := replay.New(j, f, nil).Replay(context.Background())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rep != (replay.Report{Retried: 3, Succeeded: 2, Remaining: 1}) {
		t.Errorf("report = %+v", rep)
	}
	data, _ := os.ReadFile(j.Path())
	if want := header + "\n" + row2 + "\n"; string(data) != want {
		t.Errorf("journal = %q, want %q", data, want)
	}
	if f.calls[1].Identifier != 5421 || f.calls[1].FileName != "WEBPXTICK_DT.zip" || f.calls[1].Label != "20230517" {
		t.Errorf("request = %+v", f.calls[1])
	}
}

func TestReplay_AllSucceedKeepsHeader(t *testing.T) {
	j := writeJournal(t, journal.Header+"\nhttps://x/1/a.zip\t20230516\tNotFound\n")
	rep, err := replay.New(j, &stubFetcher{}, nil).Replay(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(j.Path())
	if string(data) != journal.Header+"\n" || rep.Remaining != 0 {
		t.Errorf("journal = %q report = %+v", data, rep)
	}
}

func TestReplay_MalformedRowsKept(t *testing.T) {
	bad := "not a journal row"
	noID := "https://x/TC.txt\t20230516\tNotFound"
	j := writeJournal(t, journal.Header+"\n"+bad+"\n"+noID+"\n")

	f := &stubFetcher{}
	rep, err := replay.New(j, f, nil).Replay(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Retried != 0 || rep.Remaining != 2 || len(f.calls) != 0 {
		t.Errorf("report = %+v calls = %d", rep, len(f.calls))
	}
	data, _ := os.ReadFile(j.Path())
	if string(data) != journal.Header+"\n"+bad+"\n"+noID+"\n" {
		t.Errorf("journal = %q", data)
	}
}

func TestReplay_CancelledKeepsRows(t *testing.T) {
	content := journal.Header + "\nhttps://x/1/a.zip\t20230516\tNotFound\nhttps://x/2/a.zip\t20230517\tNotFound\n"
	j := writeJournal(t, content)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := replay.New(j, &stubFetcher{}, nil).Replay(ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(j.Path())
	if string(data) != content || rep.Remaining != 2 {
		t.Errorf("journal = %q report = %+v", data, rep)
	}
}
