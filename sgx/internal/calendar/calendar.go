// Package calendar holds the business-day arithmetic and day-label helpers
// used to map calendar dates onto the portal's day identifiers.
//
// All dates are midnight UTC. Saturday and Sunday are the only non-trading
// days the identifier model knows about; exchange holidays show up as
// excluded identifiers, not as calendar gaps.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultLayout is the day-label layout the portal uses in its filenames.
const DefaultLayout = "20060102"

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// Date returns the UTC midnight for the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate normalizes t to midnight UTC of its UTC calendar day.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the current UTC calendar day.
func Today(clock Clock) time.Time {
	if clock == nil {
		clock = time.Now
	}
	return Truncate(clock())
}

// Yesterday returns the UTC calendar day before Today.
func Yesterday(clock Clock) time.Time {
	return Today(clock).AddDate(0, 0, -1)
}

// IsWeekend reports whether d falls on Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// BusinessDaysBetween walks one day at a time from "from" toward "to" and
// counts the visited days that are not weekends. "from" itself is not
// counted; "to" is. The count is the same whichever direction is walked.
func BusinessDaysBetween(from, to time.Time) int {
	from, to = Truncate(from), Truncate(to)
	step := 1
	if to.Before(from) {
		step = -1
	}
	n := 0
	for d := from; !d.Equal(to); {
		d = d.AddDate(0, 0, step)
		if !IsWeekend(d) {
			n++
		}
	}
	return n
}

// NextBusinessDay returns d if it is a business day, else the following Monday.
func NextBusinessDay(d time.Time) time.Time {
	d = Truncate(d)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PrevBusinessDay returns d if it is a business day, else the preceding Friday.
func PrevBusinessDay(d time.Time) time.Time {
	d = Truncate(d)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// ParseDay parses a user-supplied day: "yesterday", "today", YYYYMMDD or
// YYYY-MM-DD.
func ParseDay(s string, clock Clock) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "yesterday":
		return Yesterday(clock), nil
	case "today":
		return Today(clock), nil
	case "":
		return time.Time{}, errors.New("calendar: empty day")
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("calendar: unrecognized day %q (want YYYYMMDD, YYYY-MM-DD or yesterday)", s)
}
