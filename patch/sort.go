package patch

import (
	"sort"

	"go.uber.org/zap"
)

// Sort returns patches in application order: higher priority first,
// Before/After owner constraints honored, registration order breaking ties.
// A constraint cycle is broken at the earliest registered patch of the
// cycle. The input slice is not modified.
func Sort(patches []*Patch) []*Patch {
	if len(patches) < 2 {
		return append([]*Patch(nil), patches...)
	}
	base := append([]*Patch(nil), patches...)
	sort.SliceStable(base, func(i, j int) bool {
		if base[i].Priority != base[j].Priority {
			return base[i].Priority > base[j].Priority
		}
		return base[i].index < base[j].index
	})

	byOwner := make(map[string][]int)
	for i, p := range base {
		if p.Owner != "" {
			byOwner[p.Owner] = append(byOwner[p.Owner], i)
		}
	}

	// edges[u] lists the patches that must come after u.
	edges := make([][]int, len(base))
	indegree := make([]int, len(base))
	link := func(u, v int) {
		if u == v {
			return
		}
		edges[u] = append(edges[u], v)
		indegree[v]++
	}
	for i, p := range base {
		for _, owner := range p.Before {
			for _, j := range byOwner[owner] {
				link(i, j)
			}
		}
		for _, owner := range p.After {
			for _, j := range byOwner[owner] {
				link(j, i)
			}
		}
	}

	out := make([]*Patch, 0, len(base))
	done := make([]bool, len(base))
	for len(out) < len(base) {
		pick := -1
		for i := range base {
			if !done[i] && indegree[i] == 0 {
				pick = i
				break
			}
		}
		if pick < 0 {
			pick = earliestRegistered(base, done)
			Logger().Warn("patch ordering constraints form a cycle",
				zap.String("kind", base[pick].Kind.String()),
				zap.String("patch", base[pick].String()),
				zap.String("owner", base[pick].Owner))
		}
		done[pick] = true
		out = append(out, base[pick])
		for _, v := range edges[pick] {
			indegree[v]--
		}
	}
	return out
}

func earliestRegistered(base []*Patch, done []bool) int {
	pick := -1
	for i, p := range base {
		if done[i] {
			continue
		}
		if pick < 0 || p.index < base[pick].index {
			pick = i
		}
	}
	return pick
}
