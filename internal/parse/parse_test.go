package parse

import (
	"errors"
	"testing"

	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/model"
)

func setup(t *testing.T) func(source string) (model.FileImports, error) {
	t.Helper()
	l := lang.Languages["python"]
	if l == nil {
		t.Fatal("python not registered")
	}
	q, err := l.GetImportQuery()
	if err != nil {
		t.Fatalf("GetImportQuery: %v", err)
	}
	return func(source string) (model.FileImports, error) {
		p := l.NewParser()
		return Analyze(l, p, q, []byte(source), model.Module{ID: "pkg.mod", Path: "pkg/mod.py"})
	}
}

func findImport(imports []model.ImportRecord, local string) *model.ImportRecord {
	for i := range imports {
		if imports[i].Local == local {
			return &imports[i]
		}
	}
	return nil
}

func TestPlainImports(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	fi, err := analyze("import os, sys\nimport os.path\nimport numpy as np\n")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(fi.Imports) != 4 {
		t.Fatalf("expected 4 imports, got %d: %+v", len(fi.Imports), fi.Imports)
	}

	np := findImport(fi.Imports, "np")
	if np == nil || np.Key != "numpy" || np.Name != "numpy" || np.From {
		t.Errorf("numpy alias: %+v", np)
	}

	var dotted *model.ImportRecord
	for i := range fi.Imports {
		if fi.Imports[i].Key == "os.path" {
			dotted = &fi.Imports[i]
		}
	}
	if dotted == nil || dotted.Local != "os" || dotted.Line != 2 {
		t.Errorf("os.path: %+v", dotted)
	}
}

func TestFromImports(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	source := `from b import helper
from collections import OrderedDict as OD, defaultdict
from .. import sibling
from .sub.mod import thing
from pkg import (
    first,
    second,
)
from star import *
`
	fi, err := analyze(source)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	tests := []struct {
		local string
		key   string
		name  string
		level int
	}{
		{"helper", "b", "helper", 0},
		{"OD", "collections", "OrderedDict", 0},
		{"defaultdict", "collections", "defaultdict", 0},
		{"sibling", "..", "sibling", 2},
		{"thing", ".sub.mod", "thing", 1},
		{"first", "pkg", "first", 0},
		{"second", "pkg", "second", 0},
	}
	for _, tt := range tests {
		rec := findImport(fi.Imports, tt.local)
		if rec == nil {
			t.Errorf("missing import %q", tt.local)
			continue
		}
		if rec.Key != tt.key || rec.Name != tt.name || rec.Level != tt.level || !rec.From {
			t.Errorf("%s: got %+v", tt.local, rec)
		}
	}

	star := findImport(fi.Imports, "*")
	if star == nil || !star.Star || star.Key != "star" {
		t.Errorf("star import: %+v", star)
	}
}

func TestNestedImportsAndUsage(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	source := `import json

def load(path):
    import yaml
    return yaml.safe_load(open(path))
`
	fi, err := analyze(source)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if findImport(fi.Imports, "yaml") == nil {
		t.Error("function-level import not captured")
	}
	if _, ok := fi.Used["yaml"]; !ok {
		t.Error("yaml should be used")
	}
	if _, ok := fi.Used["json"]; ok {
		t.Error("json should not be used")
	}
	if _, ok := fi.Used["safe_load"]; ok {
		t.Error("attribute name should not count as usage")
	}
}

func TestFutureImportIgnored(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	fi, err := analyze("from __future__ import annotations\nimport os\n")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(fi.Imports) != 1 || fi.Imports[0].Key != "os" {
		t.Errorf("imports = %+v", fi.Imports)
	}
}

func TestSyntaxError(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	_, err := analyze("def broken(:\n    pass\n")
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
}

func TestEmptySource(t *testing.T) {
	t.Parallel()
	analyze := setup(t)

	fi, err := analyze("")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(fi.Imports) != 0 {
		t.Errorf("expected no imports, got %v", fi.Imports)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	py := lang.Languages["python"]

	if err := Validate(py, []byte("import sys\n\nprint(sys.argv)\n")); err != nil {
		t.Errorf("valid source: %v", err)
	}
	if err := Validate(py, []byte("from os import\n")); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}

func TestValidateEmptyBody(t *testing.T) {
	t.Parallel()
	py := lang.Languages["python"]

	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"def", "def f():\n", true},
		{"def comment only", "def f():\n    # nothing\n\nx = 1\n", true},
		{"if", "if True:\n\nx = 1\n", true},
		{"try", "try:\nexcept ImportError:\n    pass\n", true},
		{"except", "try:\n    pass\nexcept ImportError:\n", true},
		{"class", "class C:\n", true},
		{"def with pass", "def f():\n    pass\n", false},
		{"inline body", "if True: x = 1\n", false},
		{"try with pass", "try:\n    pass\nexcept ImportError:\n    pass\n", false},
		{"docstring body", "class C:\n    \"\"\"doc\"\"\"\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(py, []byte(tt.source))
			if tt.wantErr && !errors.Is(err, ErrSyntax) {
				t.Errorf("expected ErrSyntax, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("valid source: %v", err)
			}
		})
	}
}
