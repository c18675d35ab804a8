// Package planner selects the single module a job will fix.
package planner

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/phobologic/depprune/internal/graph"
	"github.com/phobologic/depprune/internal/model"
)

// ErrNothingToPlan is returned when no module has unused imports.
var ErrNothingToPlan = errors.New("nothing to plan")

// Candidate is one module eligible for fixing with its ranking inputs.
type Candidate struct {
	Module  string
	Degree  int
	TopoPos int
}

// Candidates orders every module with unused imports by ascending total
// degree, then topological position (modules outside the order last), then
// module id.
func Candidates(res *model.DependencyResult) []Candidate {
	deg := graph.Degree(res.Edges)
	pos := make(map[string]int, len(res.TopoOrder))
	for i, m := range res.TopoOrder {
		pos[m] = i
	}

	out := make([]Candidate, 0, len(res.UnusedImports))
	for mod, entries := range res.UnusedImports {
		if len(entries) == 0 {
			continue
		}
		p, ok := pos[mod]
		if !ok {
			p = math.MaxInt
		}
		out = append(out, Candidate{Module: mod, Degree: deg[mod], TopoPos: p})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Degree != b.Degree {
			return a.Degree < b.Degree
		}
		if a.TopoPos != b.TopoPos {
			return a.TopoPos < b.TopoPos
		}
		return a.Module < b.Module
	})
	return out
}

// Plan picks the lowest-impact candidate and copies its unused imports.
func Plan(res *model.DependencyResult) (*model.Plan, error) {
	cands := Candidates(res)
	if len(cands) == 0 {
		return nil, ErrNothingToPlan
	}
	c := cands[0]

	unused := make([]string, len(res.UnusedImports[c.Module]))
	copy(unused, res.UnusedImports[c.Module])

	return &model.Plan{
		Candidate:     c.Module,
		Path:          res.Files[c.Module],
		UnusedImports: unused,
		Reason:        reason(c),
	}, nil
}

func reason(c Candidate) string {
	msg := fmt.Sprintf("Selected '%s' because it contains unused imports and appears low-impact (dependency degree=%d).",
		c.Module, c.Degree)
	if c.TopoPos != math.MaxInt {
		msg += " Topo order was considered for tie-breaking."
	}
	return msg
}
