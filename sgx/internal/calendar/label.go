package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// ErrNoDigits is returned when a string holds no run of 8 digits.
var ErrNoDigits = errors.New("calendar: no 8-digit day in label")

// Labeler formats day labels (directory names, journal rows) and recovers
// dates from the digits the portal embeds in its filenames.
type Labeler struct {
	// Layout is a Go time layout. Default: DefaultLayout.
	Layout string
}

func (l Labeler) layout() string {
	if l.Layout == "" {
		return DefaultLayout
	}
	return l.Layout
}

// Format renders d with the configured layout.
func (l Labeler) Format(d time.Time) string {
	return d.UTC().Format(l.layout())
}

// Validate checks that labels produced by Format can be read back by
// ParseDigits, which only understands year, month and day digits in that
// order.
func (l Labeler) Validate() error {
	probe := Date(2023, time.May, 16)
	got, err := ParseDigits(l.Format(probe))
	if err != nil {
		return fmt.Errorf("calendar: layout %q: %w", l.layout(), err)
	}
	if !got.Equal(probe) {
		return fmt.Errorf("calendar: layout %q does not round-trip (got %s)", l.layout(), got.Format("2006-01-02"))
	}
	return nil
}

// Digits returns the first 8 digits found in s, in order, or "" when s
// carries fewer than 8 digits. Non-digits between digits are skipped, so
// "TC_2023-05-16.txt" yields "20230516".
func Digits(s string) string {
	buf := make([]byte, 0, 8)
	for i := 0; i < len(s) && len(buf) < 8; i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			buf = append(buf, c)
		}
	}
	if len(buf) < 8 {
		return ""
	}
	return string(buf)
}

// ParseDigits extracts the first 8 digits of s and parses them as YYYYMMDD.
func ParseDigits(s string) (time.Time, error) {
	d := Digits(s)
	if d == "" {
		return time.Time{}, ErrNoDigits
	}
	t, err := time.ParseInLocation("20060102", d, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: parse %q: %w", d, err)
	}
	return t, nil
}

// LayoutOf accepts either a Go time layout or a strftime format such as
// "%Y%m%d" and returns the Go layout.
func LayoutOf(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}
	layout, err := strftime.Layout(format)
	if err != nil {
		return "", fmt.Errorf("calendar: day format %q: %w", format, err)
	}
	return layout, nil
}
