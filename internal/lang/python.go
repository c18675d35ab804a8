package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/depprune/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:          "python",
		Extensions:    []string{".py"},
		IndexFile:     "__init__.py",
		lang:          python.GetLanguage(),
		DecodeImport:  pythonDecodeImport,
		CollectUsages: pythonCollectUsages,
	}
}

// pythonDecodeImport handles "import a.b as c, d" and
// "from ..base import x as y, z" statements. __future__ imports are compiler
// directives and bind nothing worth tracking.
func pythonDecodeImport(node *sitter.Node, capture string, source []byte) []model.ImportRecord {
	line := int(node.StartPoint().Row) + 1

	switch capture {
	case "plain":
		var records []model.ImportRecord
		for i := 0; i < int(node.NamedChildCount()); i++ {
			path, alias := pythonImportedName(node.NamedChild(i), source)
			if path == "" {
				continue
			}
			local := alias
			if local == "" {
				local, _, _ = strings.Cut(path, ".")
			}
			records = append(records, model.ImportRecord{
				Key:   path,
				Name:  path,
				Local: local,
				Line:  line,
			})
		}
		return records

	case "from":
		moduleNode := node.ChildByFieldName("module_name")
		if moduleNode == nil {
			return nil
		}
		base, level := pythonModuleName(moduleNode, source)
		key := strings.Repeat(".", level) + base

		var records []model.ImportRecord
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
				continue
			}
			if child.Type() == "wildcard_import" {
				records = append(records, model.ImportRecord{
					Key: key, Name: "*", Local: "*", Line: line, Level: level, From: true, Star: true,
				})
				continue
			}
			name, alias := pythonImportedName(child, source)
			if name == "" {
				continue
			}
			local := alias
			if local == "" {
				local = name
			}
			records = append(records, model.ImportRecord{
				Key: key, Name: name, Local: local, Line: line, Level: level, From: true,
			})
		}
		return records
	}

	return nil
}

// pythonImportedName returns the dotted name and optional alias of a
// dotted_name or aliased_import node.
func pythonImportedName(node *sitter.Node, source []byte) (string, string) {
	switch node.Type() {
	case "dotted_name":
		return compact(NodeText(node, source)), ""
	case "aliased_import":
		nameNode := node.ChildByFieldName("name")
		aliasNode := node.ChildByFieldName("alias")
		if nameNode == nil {
			return "", ""
		}
		var alias string
		if aliasNode != nil {
			alias = NodeText(aliasNode, source)
		}
		return compact(NodeText(nameNode, source)), alias
	}
	return "", ""
}

// pythonModuleName returns the base path and relative level of the
// module_name of a from-import.
func pythonModuleName(node *sitter.Node, source []byte) (string, int) {
	if node.Type() != "relative_import" {
		return compact(NodeText(node, source)), 0
	}
	var base string
	var level int
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_prefix":
			level = strings.Count(NodeText(child, source), ".")
		case "dotted_name":
			base = compact(NodeText(child, source))
		}
	}
	return base, level
}

func pythonCollectUsages(root *sitter.Node, source []byte) map[string]struct{} {
	used := make(map[string]struct{})

	var walk func(n *sitter.Node)
	var walkParams func(n *sitter.Node)

	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "identifier":
			used[NodeText(n, source)] = struct{}{}
			return
		case "import_statement", "import_from_statement", "future_import_statement",
			"global_statement", "nonlocal_statement", "comment":
			return
		case "attribute":
			// Only the root of a.b.c is a name lookup.
			walk(n.ChildByFieldName("object"))
			return
		case "keyword_argument":
			walk(n.ChildByFieldName("value"))
			return
		case "function_definition":
			walkParams(n.ChildByFieldName("parameters"))
			walk(n.ChildByFieldName("return_type"))
			walk(n.ChildByFieldName("body"))
			return
		case "class_definition":
			walk(n.ChildByFieldName("superclasses"))
			walk(n.ChildByFieldName("body"))
			return
		case "lambda":
			walkParams(n.ChildByFieldName("parameters"))
			walk(n.ChildByFieldName("body"))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}

	// Parameter names are bindings; annotations and defaults are lookups.
	walkParams = func(n *sitter.Node) {
		if n == nil {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			p := n.NamedChild(i)
			switch p.Type() {
			case "typed_parameter":
				walk(p.ChildByFieldName("type"))
			case "default_parameter":
				walk(p.ChildByFieldName("value"))
			case "typed_default_parameter":
				walk(p.ChildByFieldName("type"))
				walk(p.ChildByFieldName("value"))
			}
		}
	}

	walk(root)
	return used
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
