package crosstab

import (
	"sort"
	"strings"
)

// Group is one bucket of a multi-key grouping. UniquePatientIDs is a sorted
// set of the non-blank patient IDs seen in the bucket.
type Group struct {
	Keys             []string `json:"keys"`
	Count            int      `json:"count"`
	UniquePatientIDs []string `json:"uniquePatients"`
}

func (g Group) Key(i int) string {
	if i < 0 || i >= len(g.Keys) {
		return ""
	}
	return g.Keys[i]
}

type groupAcc struct {
	keys     []string
	count    int
	patients map[string]struct{}
}

func (a *groupAcc) group() Group {
	ids := make([]string, 0, len(a.patients))
	for id := range a.patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Group{Keys: a.keys, Count: a.count, UniquePatientIDs: ids}
}

// grouper accumulates groups in first-seen key order.
type grouper struct {
	order []*groupAcc
	index map[string]*groupAcc
}

func newGrouper() *grouper {
	return &grouper{index: make(map[string]*groupAcc)}
}

func (g *grouper) acc(keys []string) *groupAcc {
	id := strings.Join(keys, "\x00")
	a, ok := g.index[id]
	if !ok {
		a = &groupAcc{keys: keys, patients: make(map[string]struct{})}
		g.index[id] = a
		g.order = append(g.order, a)
	}
	return a
}

func (g *grouper) groups() []Group {
	out := make([]Group, 0, len(g.order))
	for _, a := range g.order {
		out = append(out, a.group())
	}
	return out
}

// GroupBy groups records by the composite key returned by keys. Blank key
// parts become Unknown. patient may be nil when no patient set is needed.
func GroupBy[T any](records []T, keys func(T) []string, patient KeyFunc[T]) []Group {
	g := newGrouper()
	for _, rec := range records {
		raw := keys(rec)
		parts := make([]string, len(raw))
		for i, k := range raw {
			parts[i] = normalizeKey(k)
		}
		a := g.acc(parts)
		a.count++
		if patient != nil {
			if id := strings.TrimSpace(patient(rec)); id != "" {
				a.patients[id] = struct{}{}
			}
		}
	}
	return g.groups()
}

// Regroup collapses groups onto the key parts at the given indexes, summing
// counts and unioning patient sets. Output keeps first-seen order.
func Regroup(groups []Group, keyIndexes ...int) []Group {
	g := newGrouper()
	for _, grp := range groups {
		parts := make([]string, len(keyIndexes))
		for i, idx := range keyIndexes {
			parts[i] = grp.Key(idx)
		}
		a := g.acc(parts)
		a.count += grp.Count
		for _, id := range grp.UniquePatientIDs {
			a.patients[id] = struct{}{}
		}
	}
	return g.groups()
}

// Filter returns the groups whose key at index equals value.
func Filter(groups []Group, index int, value string) []Group {
	out := make([]Group, 0)
	for _, g := range groups {
		if g.Key(index) == value {
			out = append(out, g)
		}
	}
	return out
}

// TopGroups returns at most n groups by descending count, keeping input order
// among equal counts.
func TopGroups(groups []Group, n int) []Group {
	if n <= 0 || len(groups) == 0 {
		return []Group{}
	}
	sorted := append([]Group(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
