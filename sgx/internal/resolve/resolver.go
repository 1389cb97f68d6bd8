// CLAUDE:SUMMARY Maps a calendar date to the portal's day identifier: business-day estimate from a pivot, then a bounded outward probe search.
// Package resolve turns calendar dates into portal day identifiers.
//
// Identifiers grow by one per business day except where the portal skipped
// values (the exclusion set). The resolver estimates the identifier from a
// known pivot, then probes outward from the estimate, in the direction away
// from the pivot, until the portal reports the wanted day, reports a day
// past it, or the search radius (the exclusion set size) is spent.
package resolve

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
	"github.com/hazyhaar/sgxhist/sgx/internal/exclusion"
)

// Prober reports the day label (YYYYMMDD digits) the portal holds at an
// identifier, or "" when it holds nothing.
type Prober interface {
	Probe(ctx context.Context, id int) (string, error)
}

// Cache remembers confirmed identifiers across runs. Keys are YYYYMMDD.
type Cache interface {
	Lookup(ctx context.Context, day string) (id int, ok bool, err error)
	Remember(ctx context.Context, day string, id int) error
}

// Pivot is a (date, identifier) pair known to match.
type Pivot struct {
	Date       time.Time
	Identifier int
}

// DefaultPivot: 2023-05-16 is identifier 5420 on the SGX portal.
var DefaultPivot = Pivot{Date: calendar.Date(2023, time.May, 16), Identifier: 5420}

// Config configures a Resolver.
type Config struct {
	Pivot      Pivot
	Labeler    calendar.Labeler
	Exclusions *exclusion.Set
	Clock      calendar.Clock
}

func (c *Config) defaults() {
	if c.Pivot.Date.IsZero() {
		c.Pivot = DefaultPivot
	}
	c.Pivot.Date = calendar.Truncate(c.Pivot.Date)
	if c.Exclusions == nil {
		c.Exclusions = exclusion.New()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Resolver maps dates to identifiers. It is safe for sequential use.
type Resolver struct {
	config Config
	prober Prober
	cache  Cache
	logger *slog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithCache consults c before probing and records confirmed identifiers in it.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// New creates a Resolver.
func New(cfg Config, prober Prober, logger *slog.Logger, opts ...Option) *Resolver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{config: cfg, prober: prober, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Pivot returns the pivot in use.
func (r *Resolver) Pivot() Pivot { return r.config.Pivot }

// Estimate returns the identifier the pivot predicts for date when no
// identifier is skipped in between.
func (r *Resolver) Estimate(date time.Time) int {
	p := r.config.Pivot
	d := calendar.Truncate(date)
	n := calendar.BusinessDaysBetween(p.Date, d)
	if d.Before(p.Date) {
		return p.Identifier - n
	}
	return p.Identifier + n
}

// Resolve maps date to an identifier. It never fails: network trouble and
// unreachable days degrade to an Estimated result.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) Result {
	d := calendar.Truncate(date)
	res := Result{Date: d}
	day := d.Format(calendar.DefaultLayout)

	if !d.Before(calendar.Today(r.config.Clock)) {
		r.logger.Warn("resolve: date is not in the past, the portal has no data for it yet", "day", day)
		res.Identifier = -1
		res.Status = Future
		res.Reason = ReasonFutureDate
		return res
	}

	label := r.config.Labeler.Format(d)
	pivot := r.config.Pivot
	if d.Equal(pivot.Date) {
		return r.confirm(res, label, pivot.Identifier, ReasonPivot)
	}
	if id, ok := r.lookup(ctx, day); ok {
		return r.confirm(res, label, id, ReasonCache)
	}

	sign := 1
	if d.Before(pivot.Date) {
		sign = -1
	}
	est := r.Estimate(d)
	res.Identifier = est
	res.Status = Estimated
	r.logger.Debug("resolve: estimate", "day", day, "estimate", est, "direction", sign)

	radius := r.config.Exclusions.Len()
	for step := 0; step <= radius; step++ {
		id := est + sign*step
		if id < 0 || r.config.Exclusions.Contains(id) {
			continue
		}
		got, err := r.prober.Probe(ctx, id)
		res.Probes++
		if err != nil {
			r.logger.Warn("resolve: probe failed, using estimate",
				"day", day, "id", id, "estimate", est, "error", err)
			res.Reason = ReasonProbeFailed
			res.Err = err
			return res
		}
		if got == "" {
			continue
		}
		gd, err := calendar.ParseDigits(got)
		if err != nil {
			r.logger.Debug("resolve: unreadable label", "id", id, "label", got)
			continue
		}
		if gd.Equal(d) {
			r.store(ctx, day, id)
			return r.confirm(res, label, id, ReasonProbe)
		}
		if (sign < 0 && gd.Before(d)) || (sign > 0 && gd.After(d)) {
			r.logger.Debug("resolve: search overshot target",
				"day", day, "id", id, "found", got, "estimate", est)
			res.Reason = ReasonOvershoot
			return res
		}
	}
	r.logger.Debug("resolve: search radius exhausted", "day", day, "estimate", est, "radius", radius)
	res.Reason = ReasonSearchExhausted
	return res
}

func (r *Resolver) confirm(res Result, label string, id int, reason Reason) Result {
	res.Label = label
	res.Identifier = id
	res.Status = Confirmed
	res.Reason = reason
	r.logger.Debug("resolve: confirmed", "label", label, "id", id, "reason", string(reason), "probes", res.Probes)
	return res
}

func (r *Resolver) lookup(ctx context.Context, day string) (int, bool) {
	if r.cache == nil {
		return 0, false
	}
	id, ok, err := r.cache.Lookup(ctx, day)
	if err != nil {
		r.logger.Warn("resolve: cache lookup failed", "day", day, "error", err)
		return 0, false
	}
	return id, ok
}

func (r *Resolver) store(ctx context.Context, day string, id int) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Remember(ctx, day, id); err != nil {
		r.logger.Warn("resolve: cache store failed", "day", day, "id", id, "error", err)
	}
}
