package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/phobologic/depprune/internal/model"
)

func file(id string, imports ...model.ImportRecord) model.FileImports {
	return model.FileImports{Module: model.Module{ID: id}, Imports: imports}
}

func plain(key string) model.ImportRecord {
	return model.ImportRecord{Key: key, Name: key, Local: key}
}

func from(key, name string) model.ImportRecord {
	return model.ImportRecord{Key: key, Name: name, Local: name, From: true, Star: name == "*"}
}

func TestBuildFromImportResolvesModule(t *testing.T) {
	t.Parallel()

	g := Build([]model.FileImports{
		file("a", from("b", "helper")),
		file("b", plain("os")),
	})

	if !reflect.DeepEqual(g["a"], []string{"b"}) {
		t.Errorf("a -> %v, want [b]", g["a"])
	}
	if len(g["b"]) != 0 {
		t.Errorf("os is external, b -> %v", g["b"])
	}
	if len(g) != 2 {
		t.Errorf("graph keys = %v", Nodes(g))
	}
}

func TestBuildPrefersSubmodule(t *testing.T) {
	t.Parallel()

	g := Build([]model.FileImports{
		file("app", from("pkg", "sub")),
		file("pkg"),
		file("pkg.sub"),
	})
	if !reflect.DeepEqual(g["app"], []string{"pkg.sub"}) {
		t.Errorf("app -> %v, want only pkg.sub", g["app"])
	}
}

func TestBuildPlainImportWalksBack(t *testing.T) {
	t.Parallel()

	g := Build([]model.FileImports{
		file("app", plain("pkg.sub.missing")),
		file("pkg.sub"),
	})
	if !reflect.DeepEqual(g["app"], []string{"pkg.sub"}) {
		t.Errorf("app -> %v", g["app"])
	}
}

func TestBuildRelativeImports(t *testing.T) {
	t.Parallel()

	g := Build([]model.FileImports{
		file("pkg.a", from(".", "b")),
		file("pkg.b", from("..", "top")),
		file("pkg.sub.c", from("..a", "thing")),
		file("pkg"),
		file("top"),
	})

	if !reflect.DeepEqual(g["pkg.a"], []string{"pkg.b"}) {
		t.Errorf("pkg.a -> %v", g["pkg.a"])
	}
	if !reflect.DeepEqual(g["pkg.b"], []string{"top"}) {
		t.Errorf("pkg.b -> %v", g["pkg.b"])
	}
	if !reflect.DeepEqual(g["pkg.sub.c"], []string{"pkg.a"}) {
		t.Errorf("pkg.sub.c -> %v", g["pkg.sub.c"])
	}
}

func TestBuildNoSelfEdge(t *testing.T) {
	t.Parallel()

	g := Build([]model.FileImports{file("a", plain("a"), from("a", "x"))})
	if len(g["a"]) != 0 {
		t.Errorf("expected no self edge, got %v", g["a"])
	}
}

func TestResolveTooManyLevels(t *testing.T) {
	t.Parallel()

	universe := map[string]struct{}{"a": {}}
	if _, ok := Resolve("...a", "pkg.mod", universe); ok {
		t.Error("level beyond depth should not resolve")
	}
}

func TestTopoSortAcyclic(t *testing.T) {
	t.Parallel()

	g := model.Graph{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
		"d": {"a"},
	}
	order, residual := TopoSort(g)
	if len(residual) != 0 {
		t.Fatalf("residual = %v", residual)
	}
	if len(order) != len(g) {
		t.Fatalf("order = %v, want all %d modules", order, len(g))
	}
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	for _, e := range Edges(g) {
		if pos[e[0]] >= pos[e[1]] {
			t.Errorf("edge %s -> %s points backwards in %v", e[0], e[1], order)
		}
	}
}

func TestTopoSortCycle(t *testing.T) {
	t.Parallel()

	g := model.Graph{
		"entry": {"x"},
		"x":     {"y"},
		"y":     {"x"},
		"free":  nil,
	}
	order, residual := TopoSort(g)

	inOrder := make(map[string]bool)
	for _, n := range order {
		inOrder[n] = true
	}
	for _, n := range []string{"x", "y"} {
		if inOrder[n] {
			t.Errorf("cycle member %s placed in order %v", n, order)
		}
	}
	if !reflect.DeepEqual(residual, []string{"x", "y"}) {
		t.Errorf("residual = %v", residual)
	}
	if len(order)+len(residual) != len(g) {
		t.Errorf("order %v and residual %v do not cover graph", order, residual)
	}
}

func TestDegree(t *testing.T) {
	t.Parallel()

	deg := Degree([][2]string{{"a", "b"}, {"c", "b"}})
	if deg["b"] != 2 || deg["a"] != 1 || deg["c"] != 1 {
		t.Errorf("degree = %v", deg)
	}
}

func TestRankWithEdges(t *testing.T) {
	t.Parallel()

	g := model.Graph{
		"a": {"b"},
		"b": nil,
		"c": {"b"},
	}
	ranks := Rank(g)

	if ranks["b"] <= ranks["a"] || ranks["b"] <= ranks["c"] {
		t.Errorf("b should rank highest: %v", ranks)
	}

	var sum float64
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 0.01 {
		t.Errorf("ranks sum to %f, expected ~1.0", sum)
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	if Rank(nil) != nil {
		t.Error("expected nil ranks for empty graph")
	}
}
