package inference

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseReplicas expands a selector such as "0-9,42" into sorted unique
// replica indexes below total. An empty selector selects 0..total-1.
func ParseReplicas(sel string, total int) ([]int, error) {
	if total <= 0 {
		return nil, fmt.Errorf("replica count must be positive, got %d", total)
	}
	sel = strings.TrimSpace(sel)
	if sel == "" {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	seen := make(map[int]bool)
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("replica selector %q: %w", part, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("replica selector %q: %w", part, err)
			}
		}
		if first > last {
			return nil, fmt.Errorf("replica selector %q: empty range", part)
		}
		if first < 0 || last >= total {
			return nil, fmt.Errorf("replica selector %q: outside 0-%d", part, total-1)
		}
		for i := first; i <= last; i++ {
			seen[i] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("replica selector %q selects nothing", sel)
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}
