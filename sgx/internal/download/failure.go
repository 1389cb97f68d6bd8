package download

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hazyhaar/sgxhist/sgx/internal/journal"
	"github.com/hazyhaar/sgxhist/sgx/internal/portal"
)

// ErrUnresolved is returned for requests whose day identifier never
// resolved (identifier <= 0). Nothing is fetched and nothing is journaled.
var ErrUnresolved = errors.New("download: day identifier not resolved")

// Failure is a classified download failure.
type Failure struct {
	Kind       journal.Kind
	Link       string
	Label      string
	StatusCode int
	Detail     string
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("download: %s %s (%s): %v", f.Kind, f.Link, f.Label, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Entry renders the failure as a journal row.
func (f *Failure) Entry() journal.Entry {
	e := journal.Entry{Link: f.Link, Label: f.Label, Kind: f.Kind}
	switch {
	case f.StatusCode != 0:
		e.Extra = "code=" + strconv.Itoa(f.StatusCode)
	case f.Detail != "":
		e.Extra = f.Detail
	}
	return e
}

// classify maps an error from the portal client to a Failure kind.
func classify(link, label string, err error) *Failure {
	f := &Failure{Link: link, Label: label, Err: err}
	var he *portal.HTTPError
	switch {
	case errors.Is(err, portal.ErrNoFile):
		f.Kind = journal.NotFound
	case errors.As(err, &he):
		f.Kind = journal.HttpError
		f.StatusCode = he.StatusCode
	default:
		f.Kind = journal.NetworkError
	}
	return f
}

func localIO(link, label string, err error) *Failure {
	return &Failure{Kind: journal.LocalIO, Link: link, Label: label, Err: err}
}
