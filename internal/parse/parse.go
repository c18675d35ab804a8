// Package parse extracts import records and identifier usages from source
// files using tree-sitter.
package parse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/model"
)

// ErrSyntax reports that the source does not parse cleanly.
var ErrSyntax = errors.New("syntax error")

// Analyze parses a module's source and returns its import records and the
// identifiers it references. The parser must be created for l.
// A source with syntax errors yields ErrSyntax and no records.
func Analyze(l *lang.Language, parser *sitter.Parser, query *sitter.Query, source []byte, mod model.Module) (model.FileImports, error) {
	fi := model.FileImports{Module: mod, Used: map[string]struct{}{}}
	if len(source) == 0 {
		return fi, nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return fi, fmt.Errorf("parsing %s: %w", mod.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return fi, fmt.Errorf("%s: %w", mod.Path, ErrSyntax)
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			kind, ok := strings.CutPrefix(cname, "import.")
			if !ok {
				continue
			}
			fi.Imports = append(fi.Imports, l.DecodeImport(c.Node, kind, source)...)
		}
	}

	fi.Used = l.CollectUsages(root, source)
	return fi, nil
}

// Validate reports whether source parses without syntax errors. A compound
// statement left without a body (for example after its only import was
// removed) is an error even though the grammar recovers from it silently.
func Validate(l *lang.Language, source []byte) error {
	parser := l.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	if root := tree.RootNode(); root.HasError() {
		line := firstErrorLine(root)
		return fmt.Errorf("line %d: %w", line, ErrSyntax)
	}
	if n := firstEmptyBody(tree.RootNode()); n != nil {
		return fmt.Errorf("line %d: empty %s body: %w", n.StartPoint().Row+1, n.Type(), ErrSyntax)
	}
	return nil
}

// compoundTypes are the statements and clauses that own an indented block.
var compoundTypes = map[string]bool{
	"function_definition": true,
	"class_definition":    true,
	"if_statement":        true,
	"elif_clause":         true,
	"else_clause":         true,
	"for_statement":       true,
	"while_statement":     true,
	"try_statement":       true,
	"except_clause":       true,
	"except_group_clause": true,
	"finally_clause":      true,
	"with_statement":      true,
	"case_clause":         true,
}

// firstEmptyBody returns the first compound node whose block is absent or
// holds nothing but comments.
func firstEmptyBody(n *sitter.Node) *sitter.Node {
	if compoundTypes[n.Type()] && !hasStatementBlock(n) {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstEmptyBody(n.NamedChild(i)); found != nil {
			return found
		}
	}
	return nil
}

func hasStatementBlock(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		block := n.NamedChild(i)
		if block.Type() != "block" {
			continue
		}
		for j := 0; j < int(block.NamedChildCount()); j++ {
			if block.NamedChild(j).Type() != "comment" {
				return true
			}
		}
	}
	return false
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstErrorLine(child)
		}
	}
	return int(n.StartPoint().Row) + 1
}
