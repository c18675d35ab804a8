// Package graph builds the module import graph, orders it topologically and
// computes per-module centrality.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/phobologic/depprune/internal/model"
)

// Build creates the dependency graph for the given modules. Keys are exactly
// the module universe; imports that resolve to no known module are dropped.
func Build(files []model.FileImports) model.Graph {
	universe := make(map[string]struct{}, len(files))
	for i := range files {
		universe[files[i].Module.ID] = struct{}{}
	}

	targets := make(map[string]map[string]struct{}, len(files))
	for id := range universe {
		targets[id] = make(map[string]struct{})
	}

	for i := range files {
		fi := &files[i]
		src := fi.Module.ID
		add := func(tgt string) {
			if tgt != src {
				targets[src][tgt] = struct{}{}
			}
		}

		for j := range fi.Imports {
			rec := &fi.Imports[j]
			if !rec.From {
				if tgt, ok := Resolve(rec.Key, src, universe); ok {
					add(tgt)
				}
				continue
			}
			if !rec.Star {
				if tgt, ok := Resolve(joinKey(rec.Key, rec.Name), src, universe); ok {
					add(tgt)
					continue
				}
			}
			if tgt, ok := Resolve(rec.Key, src, universe); ok {
				add(tgt)
			}
		}
	}

	g := make(model.Graph, len(targets))
	for src, set := range targets {
		g[src] = sortedKeys(set)
	}
	return g
}

// joinKey appends name to an import key, keeping relative dots intact:
// ("b", "helper") -> "b.helper", ("..", "x") -> "..x", ("..p", "x") -> "..p.x".
func joinKey(key, name string) string {
	if strings.Trim(key, ".") == "" {
		return key + name
	}
	return key + "." + name
}

// Resolve maps an import key seen in module current onto a known module.
// Relative keys strip one trailing component of current per leading dot and
// append the remainder. Absolute keys drop trailing segments until a known
// module matches.
func Resolve(key, current string, universe map[string]struct{}) (string, bool) {
	if strings.HasPrefix(key, ".") {
		base := strings.TrimLeft(key, ".")
		level := len(key) - len(base)

		var parts []string
		if current != "" {
			parts = strings.Split(current, ".")
		}
		if level > len(parts) {
			return "", false
		}
		prefix := strings.Join(parts[:len(parts)-level], ".")
		cand := prefix
		if base != "" {
			cand = prefix + "." + base
		}
		cand = strings.Trim(cand, ".")
		if _, ok := universe[cand]; ok && cand != "" {
			return cand, true
		}
		return "", false
	}

	parts := strings.Split(key, ".")
	for len(parts) > 0 {
		cand := strings.Join(parts, ".")
		if _, ok := universe[cand]; ok {
			return cand, true
		}
		parts = parts[:len(parts)-1]
	}
	return "", false
}

// Edges returns every (source, target) pair sorted by source then target.
func Edges(g model.Graph) [][2]string {
	var edges [][2]string
	for src, dsts := range g {
		for _, dst := range dsts {
			edges = append(edges, [2]string{src, dst})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// Nodes returns the module universe in sorted order.
func Nodes(g model.Graph) []string {
	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// TopoSort orders the graph with Kahn's algorithm so that every importer
// precedes the modules it imports. Modules that never reach zero in-degree
// (cycle members and whatever they import) are returned as residual, sorted.
// Ties are broken by module id; callers should not depend on tie order.
func TopoSort(g model.Graph) (order, residual []string) {
	indeg := make(map[string]int, len(g))
	for n := range g {
		for _, d := range g[n] {
			indeg[d]++
		}
	}

	var queue []string
	for _, n := range Nodes(g) {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}

	placed := make(map[string]struct{}, len(g))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		placed[n] = struct{}{}
		for _, d := range g[n] {
			indeg[d]--
			if indeg[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	for _, n := range Nodes(g) {
		if _, ok := placed[n]; !ok {
			residual = append(residual, n)
		}
	}
	return order, residual
}

// Degree returns in-degree plus out-degree for every module.
func Degree(edges [][2]string) map[string]int {
	deg := make(map[string]int)
	for _, e := range edges {
		deg[e[0]]++
		deg[e[1]]++
	}
	return deg
}

// Rank applies PageRank over the import graph. Modules imported by many
// others rank highest. Ranks sum to ~1.0.
func Rank(g model.Graph) map[string]float64 {
	if len(g) == 0 {
		return nil
	}

	nodes := make(map[string]struct{}, len(g))
	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for src, dsts := range g {
		nodes[src] = struct{}{}
		outEdges[src] = append(outEdges[src], dsts...)
		outDegree[src] += len(dsts)
	}

	return pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Modules importing nothing spread their rank evenly.
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			if outDegree[src] == 0 {
				continue
			}
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
