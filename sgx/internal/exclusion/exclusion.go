// Package exclusion holds the set of day identifiers known to exist in the
// portal's sequence without carrying any data.
//
// The set is expanded from a compact list such as "2725-2754,2771,2772"
// and is read-only once built. Its cardinality doubles as the resolver's
// search radius.
package exclusion

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Set is an immutable set of excluded identifiers.
type Set struct {
	ids map[int]struct{}
}

// New builds a Set from explicit identifiers.
func New(ids ...int) *Set {
	s := &Set{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Parse expands a comma-separated list of identifiers and inclusive
// "a-b" ranges. An empty list yields an empty set.
func Parse(list string) (*Set, error) {
	s := New()
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			s.ids[id] = struct{}{}
			continue
		}
		start, err := parseID(strings.TrimSpace(lo))
		if err != nil {
			return nil, err
		}
		end, err := parseID(strings.TrimSpace(hi))
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("exclusion: range %q is reversed", part)
		}
		for id := start; id <= end; id++ {
			s.ids[id] = struct{}{}
		}
	}
	return s, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("exclusion: invalid identifier %q", s)
	}
	if id < 0 {
		return 0, fmt.Errorf("exclusion: negative identifier %d", id)
	}
	return id, nil
}

// Contains reports whether id is excluded. A nil Set excludes nothing.
func (s *Set) Contains(id int) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of excluded identifiers.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the excluded identifiers in ascending order.
func (s *Set) IDs() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// String compacts the set back into Parse syntax. Runs of three or more
// consecutive identifiers become ranges; shorter runs stay as singletons.
func (s *Set) String() string {
	ids := s.IDs()
	var parts []string
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		switch {
		case j-i >= 2:
			parts = append(parts, fmt.Sprintf("%d-%d", ids[i], ids[j]))
		default:
			for k := i; k <= j; k++ {
				parts = append(parts, strconv.Itoa(ids[k]))
			}
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
