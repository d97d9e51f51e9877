// Package pysource analyzes Python source with Tree-sitter: it finds the
// executable lines coverage.py measures and extracts function source.
package pysource

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"aiunit/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var (
	ErrSyntax              = errors.New("python source has syntax errors")
	ErrFunctionNotFound    = errors.New("function not found")
	ErrUnsupportedLanguage = errors.New("not a python source file")
)

// noCover matches coverage.py's default exclusion pragma.
var noCover = regexp.MustCompile(`#\s*(pragma|PRAGMA)[:\s]?\s*(no|NO)\s*(cover|COVER)`)

// Simple statements count at their first line. global and nonlocal
// compile to no bytecode, so they are never executable.
var simpleStatements = map[string]bool{
	"expression_statement":    true,
	"return_statement":        true,
	"pass_statement":          true,
	"import_statement":        true,
	"import_from_statement":   true,
	"future_import_statement": true,
	"assert_statement":        true,
	"delete_statement":        true,
	"raise_statement":         true,
	"break_statement":         true,
	"continue_statement":      true,
	"type_alias_statement":    true,
}

// Compound statements count at their header line.
var compoundStatements = map[string]bool{
	"if_statement":        true,
	"for_statement":       true,
	"while_statement":     true,
	"with_statement":      true,
	"match_statement":     true,
	"function_definition": true,
	"class_definition":    true,
}

// parse runs Tree-sitter over src. The caller must close the tree.
func parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, ErrSyntax
	}
	return tree, nil
}

// Statements returns the sorted executable lines of a Python module, the
// same set coverage.py reports as statements.
func Statements(src []byte) ([]int, error) {
	tree, err := parse(context.Background(), src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	w := &stmtWalker{
		lines: strings.Split(string(src), "\n"),
		found: make(map[int]bool),
	}
	w.block(tree.RootNode(), true)

	out := make([]int, 0, len(w.found))
	for line := range w.found {
		out = append(out, line)
	}
	sort.Ints(out)
	return out, nil
}

type stmtWalker struct {
	lines []string
	found map[int]bool
}

func (w *stmtWalker) add(n *sitter.Node) {
	w.found[int(n.StartPoint().Row)+1] = true
}

// excluded reports whether any line in [from, to] (0-based rows) carries
// the no-cover pragma.
func (w *stmtWalker) excluded(from, to uint32) bool {
	for row := from; row <= to && int(row) < len(w.lines); row++ {
		if noCover.MatchString(w.lines[row]) {
			return true
		}
	}
	return false
}

// headerEnd is the last row of a compound statement's header: the row
// before its first block starts, or the start row for one-liners.
func headerEnd(n *sitter.Node) uint32 {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "block" {
			if child.StartPoint().Row > n.StartPoint().Row {
				return child.StartPoint().Row - 1
			}
			return n.StartPoint().Row
		}
	}
	return n.StartPoint().Row
}

// block visits the statements of a module or block. docstrings is true
// for module, class and function bodies.
func (w *stmtWalker) block(n *sitter.Node, docstrings bool) {
	first := true
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if first && docstrings && isDocstring(child) {
			first = false
			continue
		}
		first = false
		w.statement(child)
	}
}

func isDocstring(n *sitter.Node) bool {
	if n.Type() != "expression_statement" || n.NamedChildCount() != 1 {
		return false
	}
	t := n.NamedChild(0).Type()
	return t == "string" || t == "concatenated_string"
}

func (w *stmtWalker) statement(n *sitter.Node) {
	typ := n.Type()
	switch {
	case simpleStatements[typ]:
		if !w.excluded(n.StartPoint().Row, n.EndPoint().Row) {
			w.add(n)
		}

	case typ == "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil || w.excluded(n.StartPoint().Row, headerEnd(def)) {
			return
		}
		w.add(n)
		w.children(def, true)

	case compoundStatements[typ]:
		if w.excluded(n.StartPoint().Row, headerEnd(n)) {
			return
		}
		w.add(n)
		w.children(n, typ == "function_definition" || typ == "class_definition")

	case typ == "try_statement":
		if w.excluded(n.StartPoint().Row, headerEnd(n)) {
			return
		}
		w.children(n, false)

	case typ == "case_clause", typ == "elif_clause", typ == "except_clause", typ == "except_group_clause":
		if w.excluded(n.StartPoint().Row, headerEnd(n)) {
			return
		}
		w.add(n)
		w.children(n, false)

	case typ == "else_clause", typ == "finally_clause":
		if w.excluded(n.StartPoint().Row, headerEnd(n)) {
			return
		}
		w.children(n, false)
	}
}

// children visits the blocks and clauses that hang off a compound
// statement.
func (w *stmtWalker) children(n *sitter.Node, docstrings bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "block":
			w.block(child, docstrings)
		case "elif_clause", "else_clause", "except_clause", "except_group_clause", "finally_clause":
			w.statement(child)
		}
	}
}

// Analyzer reports statements of Python files for the coverage parser.
type Analyzer struct{}

// Statements implements coverage.StatementAnalyzer.
func (Analyzer) Statements(path string, src []byte) ([]int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyw":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	start := time.Now()
	lines, err := Statements(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.CoverageDebug("Analyzer: %s has %d statements (%v)", filepath.Base(path), len(lines), time.Since(start))
	return lines, nil
}
