// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/depprune/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a dependency result for the repository named repo into
// TOON format.
func Encode(repo string, res *model.DependencyResult) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(repo)))

	var moduleRows [][]string
	for _, id := range res.Nodes {
		moduleRows = append(moduleRows, []string{
			id,
			res.Files[id],
			fmt.Sprintf("%.4f", res.Rank[id]),
			strconv.Itoa(len(res.UnusedImports[id])),
		})
	}
	parts = append(parts, formatTabular("modules", []string{"module", "path", "rank", "unused"}, moduleRows))

	var depRows [][]string
	for _, e := range res.Edges {
		depRows = append(depRows, []string{e[0], e[1]})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target"}, depRows))

	parts = append(parts, formatList("topo_order", res.TopoOrder))
	if len(res.Warnings.CircularImports) > 0 {
		parts = append(parts, formatList("circular_imports", res.Warnings.CircularImports))
	}

	var unusedRows [][]string
	for _, id := range res.Impacted {
		for _, imp := range res.UnusedImports[id] {
			unusedRows = append(unusedRows, []string{id, imp})
		}
	}
	parts = append(parts, formatTabular("unused_imports", []string{"module", "import"}, unusedRows))

	return strings.Join(parts, "\n")
}

func formatList(name string, values []string) string {
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeValue(v)
	}
	if len(encoded) == 0 {
		return fmt.Sprintf("%s[0]:", name)
	}
	return fmt.Sprintf("%s[%d]: %s", name, len(values), strings.Join(encoded, ","))
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
