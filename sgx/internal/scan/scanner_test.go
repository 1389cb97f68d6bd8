package scan

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
	"github.com/hazyhaar/sgxhist/sgx/internal/download"
	"github.com/hazyhaar/sgxhist/sgx/internal/exclusion"
	"github.com/hazyhaar/sgxhist/sgx/internal/resolve"
)

// Wednesday 2023-05-24, 10:00 UTC.
var now = time.Date(2023, time.May, 24, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fakeResolver struct {
	ids   map[time.Time]int
	calls []time.Time
}

func (r *fakeResolver) Resolve(_ context.Context, d time.Time) resolve.Result {
	d = calendar.Truncate(d)
	r.calls = append(r.calls, d)
	if !d.Before(calendar.Today(clock)) {
		return resolve.Result{Date: d, Identifier: -1, Status: resolve.Future}
	}
	if id, ok := r.ids[d]; ok {
		return resolve.Result{Date: d, Label: d.Format("20060102"), Identifier: id, Status: resolve.Confirmed}
	}
	return resolve.Result{Date: d, Identifier: 42, Status: resolve.Estimated, Reason: resolve.ReasonSearchExhausted}
}

type fakeFetcher struct {
	reqs []download.Request
	fail map[string]bool // by label
}

func (f *fakeFetcher) FetchWithRetry(_ context.Context, req download.Request) bool {
	f.reqs = append(f.reqs, req)
	return !f.fail[req.Label]
}

func day(m time.Month, d int) time.Time { return calendar.Date(2023, m, d) }

// portalIDs: 2023-05-15..2023-05-23 with no gaps, pivot 5420 on the 16th.
func portalIDs() map[time.Time]int {
	return map[time.Time]int{
		day(5, 15): 5419, day(5, 16): 5420, day(5, 17): 5421, day(5, 18): 5422,
		day(5, 19): 5423, day(5, 22): 5424, day(5, 23): 5425,
	}
}

func newScanner(r Resolver, f Fetcher, ex *exclusion.Set, skip bool) *Scanner {
	return New(Config{Files: []string{"TC.txt", "WEBPXTICK_DT.zip"}, SkipExcluded: skip}, r, f, ex, clock, nil)
}

func TestRange_SaturdayOnly(t *testing.T) {
	// WHAT: A range covering only a Saturday does nothing.
	r := &fakeResolver{ids: portalIDs()}
	f := &fakeFetcher{}
	sum := newScanner(r, f, nil, false).Range(context.Background(), day(5, 20), day(5, 20))

	if sum != (Summary{}) {
		t.Errorf("summary = %+v, want zero", sum)
	}
	if len(f.reqs) != 0 || len(r.calls) != 0 {
		t.Errorf("fetches = %d resolves = %d, want 0", len(f.reqs), len(r.calls))
	}
}

func TestRange_LockstepAcrossWeekend(t *testing.T) {
	r := &fakeResolver{ids: portalIDs()}
	f := &fakeFetcher{fail: map[string]bool{"20230519": true}}
	sum := newScanner(r, f, nil, false).Range(context.Background(), day(5, 18), day(5, 23))

	if sum.Days != 4 || sum.Attempts != 8 || sum.Failed != 2 {
		t.Errorf("summary = %+v, want 4 days / 8 attempts / 2 failed", sum)
	}
	if len(r.calls) != 2 {
		t.Errorf("resolves = %d, want 2 (range ends only)", len(r.calls))
	}
	want := []struct {
		id    int
		label string
	}{{5422, "20230518"}, {5423, "20230519"}, {5424, "20230522"}, {5425, "20230523"}}
	for i, w := range want {
		got := f.reqs[2*i]
		if got.Identifier != w.id || got.Label != w.label || got.FileName != "TC.txt" {
			t.Errorf("request %d = %+v, want %d/%s", 2*i, got, w.id, w.label)
		}
		if f.reqs[2*i+1].FileName != "WEBPXTICK_DT.zip" {
			t.Errorf("request %d file = %q", 2*i+1, f.reqs[2*i+1].FileName)
		}
	}
}

func TestRange_WeekendBoundsRolled(t *testing.T) {
	// Sunday 14th to Saturday 20th covers Mon 15th..Fri 19th.
	r := &fakeResolver{ids: portalIDs()}
	f := &fakeFetcher{}
	sum := newScanner(r, f, nil, false).Range(context.Background(), day(5, 14), day(5, 20))
	if sum.Days != 5 {
		t.Errorf("days = %d, want 5", sum.Days)
	}
	if f.reqs[0].Label != "20230515" || f.reqs[len(f.reqs)-1].Label != "20230519" {
		t.Errorf("first=%s last=%s", f.reqs[0].Label, f.reqs[len(f.reqs)-1].Label)
	}
}

func TestRange_EndClampedToYesterday(t *testing.T) {
	r := &fakeResolver{ids: portalIDs()}
	f := &fakeFetcher{}
	sum := newScanner(r, f, nil, false).Range(context.Background(), day(5, 22), day(6, 30))
	if sum.Days != 2 {
		t.Errorf("days = %d, want 2 (22nd and 23rd)", sum.Days)
	}
}

func TestRange_FutureStart(t *testing.T) {
	r := &fakeResolver{ids: portalIDs()}
	f := &fakeFetcher{}
	sum := newScanner(r, f, nil, false).Range(context.Background(), day(6, 1), day(6, 5))
	if sum != (Summary{}) || len(f.reqs) != 0 {
		t.Errorf("summary = %+v fetches = %d", sum, len(f.reqs))
	}
}

func TestRange_ExcludedInsideRange(t *testing.T) {
	// WHAT: The portal skipped 5422 between the 17th and the 18th.
	// WHY: Without skipping, the lockstep walk hands the 18th the skipped
	// identifier; with skipping, every day gets its real identifier.
	ids := map[time.Time]int{day(5, 16): 5420, day(5, 17): 5421, day(5, 18): 5423, day(5, 19): 5424}
	ex := exclusion.New(5422)

	f := &fakeFetcher{}
	sum := newScanner(&fakeResolver{ids: ids}, f, ex, false).Range(context.Background(), day(5, 16), day(5, 19))
	if sum.Days != 4 || f.reqs[4].Identifier != 5422 {
		t.Errorf("lockstep: days=%d third id=%d, want 4 days and 5422", sum.Days, f.reqs[4].Identifier)
	}

	f = &fakeFetcher{}
	sum = newScanner(&fakeResolver{ids: ids}, f, ex, true).Range(context.Background(), day(5, 16), day(5, 19))
	got := []int{f.reqs[0].Identifier, f.reqs[2].Identifier, f.reqs[4].Identifier, f.reqs[6].Identifier}
	want := []int{5420, 5421, 5423, 5424}
	if sum.Days != 4 || got[2] != want[2] || got[3] != want[3] {
		t.Errorf("skip: days=%d ids=%v, want %v", sum.Days, got, want)
	}
}

func TestDay_Confirmed(t *testing.T) {
	f := &fakeFetcher{}
	sum := newScanner(&fakeResolver{ids: portalIDs()}, f, nil, false).Day(context.Background(), day(5, 17))
	if sum != (Summary{Days: 1, Attempts: 2}) {
		t.Errorf("summary = %+v", sum)
	}
	if f.reqs[0].Identifier != 5421 || f.reqs[0].Label != "20230517" {
		t.Errorf("request = %+v", f.reqs[0])
	}
}

func TestDay_UnconfirmedCountsEveryFileFailed(t *testing.T) {
	f := &fakeFetcher{}
	sum := newScanner(&fakeResolver{}, f, nil, false).Day(context.Background(), day(5, 17))
	if sum != (Summary{Attempts: 2, Failed: 2}) {
		t.Errorf("summary = %+v", sum)
	}
	if len(f.reqs) != 0 {
		t.Errorf("fetches = %d, want 0", len(f.reqs))
	}
}

func TestUpdate_Yesterday(t *testing.T) {
	f := &fakeFetcher{}
	sum := newScanner(&fakeResolver{ids: portalIDs()}, f, nil, false).Update(context.Background())
	if sum.Days != 1 || f.reqs[0].Label != "20230523" {
		t.Errorf("summary = %+v reqs = %+v", sum, f.reqs)
	}
}

func TestPast(t *testing.T) {
	// Past 7 on Wed 24th: 16th..23rd, six business days.
	f := &fakeFetcher{}
	sum := newScanner(&fakeResolver{ids: portalIDs()}, f, nil, false).Past(context.Background(), 7)
	if sum.Days != 6 || sum.Attempts != 12 {
		t.Errorf("summary = %+v, want 6 days", sum)
	}
	if f.reqs[0].Label != "20230516" {
		t.Errorf("first label = %s", f.reqs[0].Label)
	}
}

func TestRange_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{}
	newScanner(&fakeResolver{ids: portalIDs()}, f, nil, false).Range(ctx, day(5, 15), day(5, 23))
	if len(f.reqs) != 0 {
		t.Errorf("fetches = %d after cancel, want 0", len(f.reqs))
	}
}
