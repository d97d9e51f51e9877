package pysource

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ExtractFunction returns the source of the first function called name
// defined at module level or in a class body, from the def line to the
// end of its body. Decorators are not included.
func ExtractFunction(src []byte, name string) (string, error) {
	tree, err := parse(context.Background(), src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	node := findFunction(tree.RootNode(), src, name)
	if node == nil {
		return "", fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return string(src[node.StartByte():node.EndByte()]), nil
}

// findFunction searches module and class bodies in document order.
// Nested functions are not candidates.
func findFunction(body *sitter.Node, src []byte, name string) *sitter.Node {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				child = def
			}
		}
		switch child.Type() {
		case "function_definition":
			if n := child.ChildByFieldName("name"); n != nil && n.Content(src) == name {
				return child
			}
		case "class_definition":
			if b := child.ChildByFieldName("body"); b != nil {
				if found := findFunction(b, src, name); found != nil {
					return found
				}
			}
		}
	}
	return nil
}

// Functions lists the names of module-level and class-level functions in
// document order.
func Functions(src []byte) ([]string, error) {
	tree, err := parse(context.Background(), src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var names []string
	var walk func(body *sitter.Node)
	walk = func(body *sitter.Node) {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			if child.Type() == "decorated_definition" {
				if def := child.ChildByFieldName("definition"); def != nil {
					child = def
				}
			}
			switch child.Type() {
			case "function_definition":
				if n := child.ChildByFieldName("name"); n != nil {
					names = append(names, n.Content(src))
				}
			case "class_definition":
				if b := child.ChildByFieldName("body"); b != nil {
					walk(b)
				}
			}
		}
	}
	walk(tree.RootNode())
	return names, nil
}
