// Package pylang wraps the tree-sitter Python grammar shared by the cell
// analyzer and the embedded kernel.
package pylang

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ErrSyntax indicates the source text is not valid Python.
var ErrSyntax = errors.New("invalid python source")

var (
	langOnce sync.Once
	lang     *sitter.Language
)

// Language returns the tree-sitter Python language, loading it once.
func Language() *sitter.Language {
	langOnce.Do(func() {
		lang = sitter.NewLanguage(python.GetLanguage())
	})

	return lang
}

// Parse parses src and returns the syntax tree. The caller owns the tree
// and must Close it. Trees containing error nodes fail with ErrSyntax:
// cells are analyzed atomically, a partially parsed cell is useless.
func Parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(Language())

	tree, err := parser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python source: %w", err)
	}

	root := tree.RootNode()
	if root.IsNull() {
		tree.Close()

		return nil, ErrSyntax
	}

	// HasError covers both ERROR subtrees and zero-width MISSING tokens
	// the parser inserts to recover; either one makes the cell invalid.
	if root.HasError() {
		excerpt := errorExcerpt(root, src)
		tree.Close()

		if excerpt == "" {
			return nil, ErrSyntax
		}

		return nil, fmt.Errorf("%w: near %q", ErrSyntax, excerpt)
	}

	return tree, nil
}

// errorExcerpt walks the whole tree (named and anonymous nodes alike)
// looking for the first ERROR or MISSING node and returns a short excerpt
// of the offending source for the error message. A MISSING node spans no
// source, so its type (the expected token) is reported instead.
func errorExcerpt(root sitter.Node, src []byte) string {
	const excerptLen = 20

	stack := []sitter.Node{root}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsError() || n.IsMissing() {
			excerpt := n.Content(src)
			if excerpt == "" {
				excerpt = n.Type()
			}

			if len(excerpt) > excerptLen {
				excerpt = excerpt[:excerptLen]
			}

			return excerpt
		}

		for idx := range n.ChildCount() {
			stack = append(stack, n.Child(idx))
		}
	}

	return ""
}
