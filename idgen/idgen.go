// Package idgen generates fetch_log row identifiers.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Default yields UUID v7 strings, which sort by creation time.
var Default Generator = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence yields prefix-1, prefix-2, ... so tests can assert exact ids.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
