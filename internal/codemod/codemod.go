// Package codemod removes unused imports from Python source text and renders
// the change as a unified diff.
package codemod

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/parse"
)

var (
	// ErrNoTargets is returned when there is no candidate or nothing to remove.
	ErrNoTargets = errors.New("candidate and non-empty unused imports are required")
	// ErrNoChanges is returned when the rewrite leaves the source untouched.
	ErrNoChanges = errors.New("no changes produced; nothing to diff")
	// ErrInvalidResult is returned when the rewritten source no longer parses.
	ErrInvalidResult = errors.New("transformed source is invalid")
)

var fromLine = regexp.MustCompile(`^from\s+([A-Za-z0-9_.]+)\s+import\s+(.+)$`)

// Targets are the names to drop, split by import form.
type Targets struct {
	// Plain holds keys whose local name equals the key ("os::os").
	Plain map[string]struct{}
	// From maps a source key to the local names to drop from it.
	From map[string]map[string]struct{}
}

// ParseTargets splits "<key>::<local>" entries. Malformed entries are ignored.
func ParseTargets(unused []string) Targets {
	t := Targets{
		Plain: make(map[string]struct{}),
		From:  make(map[string]map[string]struct{}),
	}
	for _, item := range unused {
		key, name, ok := strings.Cut(item, "::")
		if !ok {
			continue
		}
		key, name = strings.TrimSpace(key), strings.TrimSpace(name)
		if key == "" || name == "" {
			continue
		}
		if key == name {
			t.Plain[key] = struct{}{}
			continue
		}
		if t.From[key] == nil {
			t.From[key] = make(map[string]struct{})
		}
		t.From[key][name] = struct{}{}
	}
	return t
}

// Empty reports whether there is nothing to remove.
func (t Targets) Empty() bool {
	return len(t.Plain) == 0 && len(t.From) == 0
}

func (t Targets) has(key, local string) bool {
	if _, ok := t.From[key][local]; ok {
		return true
	}
	if key == local {
		_, ok := t.Plain[key]
		return ok
	}
	return false
}

// Transform rewrites import lines, dropping every targeted name. Lines whose
// names are all dropped disappear; other lines pass through unchanged.
// Indentation, trailing comments and the final newline are preserved.
func Transform(source string, t Targets) string {
	trailing := strings.HasSuffix(source, "\n")
	lines := strings.Split(strings.TrimSuffix(source, "\n"), "\n")
	if source == "" {
		lines = nil
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		rewritten, keep := rewriteLine(line, t)
		if keep {
			out = append(out, rewritten)
		}
	}

	result := strings.Join(out, "\n")
	if trailing {
		result += "\n"
	}
	return result
}

func rewriteLine(line string, t Targets) (string, bool) {
	body, cr := strings.CutSuffix(line, "\r")
	indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]

	stmt, comment := body, ""
	if i := strings.Index(body, "#"); i >= 0 {
		stmt, comment = body[:i], body[i:]
	}
	stmt = strings.TrimSpace(stmt)

	var (
		head  string
		list  string
		match func(item string) bool
	)
	switch {
	case strings.HasPrefix(stmt, "from ") && strings.Contains(stmt, " import "):
		m := fromLine.FindStringSubmatch(stmt)
		if m == nil {
			return line, true
		}
		lib := m[1]
		head, list = "from "+lib+" import ", m[2]
		// Candidates may name a from-import item by its bound alias or by
		// the declared name.
		match = func(item string) bool {
			name, alias := splitAlias(item)
			if alias != "" && t.has(lib, alias) {
				return true
			}
			return t.has(lib, name)
		}
	case strings.HasPrefix(stmt, "import "):
		head, list = "import ", strings.TrimPrefix(stmt, "import ")
		match = func(item string) bool {
			name, alias := splitAlias(item)
			if alias == "" {
				alias, _, _ = strings.Cut(name, ".")
			}
			return t.has(name, alias)
		}
	default:
		return line, true
	}

	parens := false
	if strings.HasPrefix(list, "(") {
		if !strings.HasSuffix(list, ")") {
			// Multi-line import lists are left alone.
			return line, true
		}
		parens = true
		list = strings.TrimSuffix(strings.TrimPrefix(list, "("), ")")
	}

	items := strings.Split(list, ",")
	kept := make([]string, 0, len(items))
	dropped := false
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if match(item) {
			dropped = true
			continue
		}
		kept = append(kept, item)
	}
	if !dropped {
		return line, true
	}
	if len(kept) == 0 {
		return "", false
	}

	names := strings.Join(kept, ", ")
	if parens {
		names = "(" + names + ")"
	}
	rewritten := indent + head + names
	if comment != "" {
		rewritten += "  " + comment
	}
	if cr {
		rewritten += "\r"
	}
	return rewritten, true
}

// splitAlias splits "a.b as c" into ("a.b", "c"); alias is empty when absent.
func splitAlias(item string) (name, alias string) {
	fields := strings.Fields(item)
	if len(fields) >= 3 && fields[len(fields)-2] == "as" {
		return strings.Join(fields[:len(fields)-2], " "), fields[len(fields)-1]
	}
	return strings.TrimSpace(item), ""
}

// Diff returns a unified diff with three lines of context. Both headers name
// path. removed and added count changed lines, excluding the headers.
func Diff(path, original, modified string) (patch string, removed, added int, err error) {
	ud := difflib.UnifiedDiff{
		A:        splitLines(original),
		B:        splitLines(modified),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	patch, err = difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", 0, 0, fmt.Errorf("rendering diff: %w", err)
	}

	lines := strings.Split(patch, "\n")
	for i, l := range lines {
		if i < 2 {
			continue
		}
		switch {
		case strings.HasPrefix(l, "-"):
			removed++
		case strings.HasPrefix(l, "+"):
			added++
		}
	}
	return patch, removed, added, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

// Result is a validated rewrite of one file.
type Result struct {
	Modified string
	Patch    string
	Removed  int
	Added    int
}

// Rewrite removes the unused imports from source, checks that the result
// still parses with l, and diffs it against the original.
func Rewrite(l *lang.Language, path, source string, unused []string) (*Result, error) {
	t := ParseTargets(unused)
	if t.Empty() {
		return nil, ErrNoTargets
	}

	modified := Transform(source, t)
	if modified == source {
		return nil, ErrNoChanges
	}

	if err := parse.Validate(l, []byte(modified)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResult, path, err)
	}

	patch, removed, added, err := Diff(path, source, modified)
	if err != nil {
		return nil, err
	}
	return &Result{Modified: modified, Patch: patch, Removed: removed, Added: added}, nil
}
