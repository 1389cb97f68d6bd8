package resolve

import "time"

// Status tells how far a resolution got.
type Status int

const (
	// Estimated means the identifier is a best guess the portal did not confirm.
	Estimated Status = iota
	// Confirmed means the portal reported the requested day at Identifier.
	Confirmed
	// Future means the date is today or later; the portal has nothing yet.
	Future
)

func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Future:
		return "future"
	default:
		return "estimated"
	}
}

// Reason records which path of the resolver produced a Result.
type Reason string

const (
	ReasonPivot           Reason = "pivot"
	ReasonCache           Reason = "cache"
	ReasonProbe           Reason = "probe"
	ReasonOvershoot       Reason = "overshoot"
	ReasonSearchExhausted Reason = "search_exhausted"
	ReasonProbeFailed     Reason = "probe_failed"
	ReasonFutureDate      Reason = "future_date"
)

// Result is the outcome of resolving one calendar date.
type Result struct {
	Date time.Time
	// Label is the formatted day label. Empty unless Status is Confirmed.
	Label string
	// Identifier is the confirmed identifier, the estimate, or -1 for Future.
	Identifier int
	Status     Status
	Reason     Reason
	// Probes counts the portal requests spent on this resolution.
	Probes int
	// Err is the probe error that cut the search short, if any.
	Err error
}

// Confirmed reports whether the portal confirmed the identifier.
func (r Result) Confirmed() bool { return r.Status == Confirmed }
