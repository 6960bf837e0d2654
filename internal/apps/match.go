package apps

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// nameSource and descSource adapt []App for fuzzy.FindFrom.
type nameSource []App

func (s nameSource) String(i int) string { return s[i].Name }
func (s nameSource) Len() int            { return len(s) }

type descSource []App

func (s descSource) String(i int) string { return s[i].Description }
func (s descSource) Len() int            { return len(s) }

// Match fuzzy-filters apps by query. Name matches count in full,
// description matches at half weight; an app scores the better of the two.
// Results come back best first, capped at max (0 = uncapped). Ties keep
// the incoming (alphabetical) order.
func Match(apps []App, query string, max int) []App {
	if query == "" {
		return apps
	}

	scores := make(map[int]int)
	for _, m := range fuzzy.FindFrom(query, nameSource(apps)) {
		scores[m.Index] = m.Score
	}
	for _, m := range fuzzy.FindFrom(query, descSource(apps)) {
		half := m.Score / 2
		if score, ok := scores[m.Index]; !ok || half > score {
			scores[m.Index] = half
		}
	}

	idx := make([]int, 0, len(scores))
	for i := range scores {
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if scores[idx[a]] != scores[idx[b]] {
			return scores[idx[a]] > scores[idx[b]]
		}
		return idx[a] < idx[b]
	})

	if max > 0 && len(idx) > max {
		idx = idx[:max]
	}
	matched := make([]App, len(idx))
	for i, j := range idx {
		matched[i] = apps[j]
	}
	return matched
}

// SortByUsage orders the resting (empty-query) list: most-launched apps
// first, everything else in the incoming alphabetical order. The input is
// not modified.
func SortByUsage(apps []App, counts map[string]int) []App {
	out := make([]App, len(apps))
	copy(out, apps)
	sort.SliceStable(out, func(i, j int) bool {
		return counts[out[i].Path] > counts[out[j].Path]
	})
	return out
}
