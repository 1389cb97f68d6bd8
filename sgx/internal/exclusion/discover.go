package exclusion

import (
	"context"
	"fmt"
)

// Prober reports whether an identifier carries data. hasData is false when
// the portal answers without a filename for the identifier.
type Prober interface {
	HasData(ctx context.Context, id int) (hasData bool, err error)
}

// Discover probes every identifier in [from, to] and returns the ones that
// answer without data. It is the slow, brute-force way the configured
// exclusion list was first built; run it when the portal grows new holes.
// onProbe, if non-nil, is called after each probe.
func Discover(ctx context.Context, p Prober, from, to int, onProbe func(id int, excluded bool)) (*Set, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("exclusion: invalid discovery range [%d, %d]", from, to)
	}
	found := New()
	for id := from; id <= to; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := p.HasData(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("exclusion: probe %d: %w", id, err)
		}
		if !ok {
			found.ids[id] = struct{}{}
		}
		if onProbe != nil {
			onProbe(id, !ok)
		}
	}
	return found, nil
}
