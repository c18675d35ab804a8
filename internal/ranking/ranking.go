// Package ranking trims a dependency result to the modules worth showing.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/depprune/internal/model"
)

// Order returns the nodes of res sorted by rank, highest first. Ties and
// unranked modules fall back to id order.
func Order(res *model.DependencyResult) []string {
	ids := append([]string(nil), res.Nodes...)
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := res.Rank[ids[i]], res.Rank[ids[j]]
		if ri != rj {
			return ri > rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// SelectModules returns a new result with only the top-ranked modules and
// the edges between them. If maxModules is <= 0 or >= len(nodes), res is
// returned unchanged.
func SelectModules(res *model.DependencyResult, maxModules int) *model.DependencyResult {
	if maxModules <= 0 || maxModules >= len(res.Nodes) {
		return res
	}

	keep := make(map[string]struct{}, maxModules)
	for _, id := range Order(res)[:maxModules] {
		keep[id] = struct{}{}
	}

	return restrict(res, keep, func(e [2]string) bool {
		_, srcOK := keep[e[0]]
		_, tgtOK := keep[e[1]]
		return srcOK && tgtOK
	})
}

// FilterByModule returns a new result containing modules whose id or path
// contains substr (case-insensitive), their direct importers and imports,
// and every edge touching a matched module.
func FilterByModule(res *model.DependencyResult, substr string) *model.DependencyResult {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for _, id := range res.Nodes {
		if strings.Contains(strings.ToLower(id), lower) ||
			strings.Contains(strings.ToLower(res.Files[id]), lower) {
			matched[id] = struct{}{}
		}
	}

	touches := func(e [2]string) bool {
		_, srcOK := matched[e[0]]
		_, tgtOK := matched[e[1]]
		return srcOK || tgtOK
	}

	keep := make(map[string]struct{}, len(matched))
	for id := range matched {
		keep[id] = struct{}{}
	}
	for _, e := range res.Edges {
		if touches(e) {
			keep[e[0]] = struct{}{}
			keep[e[1]] = struct{}{}
		}
	}

	return restrict(res, keep, touches)
}

// restrict copies res keeping only modules in keep and edges accepted by
// edgeOK. Slice order is preserved.
func restrict(res *model.DependencyResult, keep map[string]struct{}, edgeOK func([2]string) bool) *model.DependencyResult {
	in := func(id string) bool {
		_, ok := keep[id]
		return ok
	}
	filter := func(ids []string) []string {
		out := []string{}
		for _, id := range ids {
			if in(id) {
				out = append(out, id)
			}
		}
		return out
	}

	out := &model.DependencyResult{
		Nodes:         filter(res.Nodes),
		Edges:         [][2]string{},
		Impacted:      filter(res.Impacted),
		TopoOrder:     filter(res.TopoOrder),
		UnusedImports: make(map[string][]string),
	}
	if len(res.Warnings.CircularImports) > 0 {
		out.Warnings.CircularImports = filter(res.Warnings.CircularImports)
	}
	for _, e := range res.Edges {
		if in(e[0]) && in(e[1]) && edgeOK(e) {
			out.Edges = append(out.Edges, e)
		}
	}
	for id, imports := range res.UnusedImports {
		if in(id) {
			out.UnusedImports[id] = imports
		}
	}
	if res.Files != nil {
		out.Files = make(map[string]string)
		for id, p := range res.Files {
			if in(id) {
				out.Files[id] = p
			}
		}
	}
	if res.Rank != nil {
		out.Rank = make(map[string]float64)
		for id, r := range res.Rank {
			if in(id) {
				out.Rank[id] = r
			}
		}
	}
	return out
}
