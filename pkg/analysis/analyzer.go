// Package analysis derives a cell's variable reads and writes from its
// Python source. The source is parsed with the real tree-sitter grammar;
// a scope tree is built from the syntax tree and resolved into the set of
// free variables (reads) and top-level bindings (writes).
package analysis

import (
	"context"
	"fmt"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/dataflock/dataflock/pkg/pylang"
)

// ErrSyntax indicates the cell source could not be parsed.
var ErrSyntax = pylang.ErrSyntax

// visitMode selects how a syntax node is interpreted during the walk.
type visitMode uint8

const (
	// modeExpr walks a node as an expression or statement, recording reads.
	modeExpr visitMode = iota
	// modeBind walks a node as an assignment target, recording bindings.
	modeBind
	// modeDelete walks a node as a del target.
	modeDelete
)

// frame is one unit of pending traversal work.
type frame struct {
	node sitter.Node
	// scope is the lexical scope the node's usages belong to.
	scope int
	// optional marks conditionally-executed blocks (if/while/for/try/except
	// bodies): del statements inside them are ignored because the block may
	// never run.
	optional bool
	mode     visitMode
}

// Analyze parses code and returns the Cell it denotes. It fails with an
// error wrapping ErrSyntax when the source is not valid Python.
func Analyze(ctx context.Context, code string) (Cell, error) {
	tree, scopes, err := buildScopeTree(ctx, code)
	if err != nil {
		return Cell{}, err
	}
	defer tree.Close()

	return Cell{
		Code:   code,
		Reads:  scopes.FreeVars(),
		Writes: scopes.ModuleSets(),
	}, nil
}

// buildScopeTree parses the source and walks the syntax tree iteratively,
// collecting ordered variable usages per lexical scope. The traversal is
// worklist-based rather than recursive so deeply nested source cannot
// overflow the stack.
func buildScopeTree(ctx context.Context, code string) (*sitter.Tree, *ScopeTree, error) {
	src := []byte(code)

	tree, err := pylang.Parse(ctx, src)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze cell: %w", err)
	}

	walker := &treeWalker{
		src:    src,
		scopes: newScopeTree(),
	}

	walker.push(frame{node: tree.RootNode(), scope: 0})

	for len(walker.work) > 0 {
		top := walker.work[len(walker.work)-1]
		walker.work = walker.work[:len(walker.work)-1]
		walker.visit(top)
	}

	return tree, walker.scopes, nil
}

type treeWalker struct {
	src    []byte
	scopes *ScopeTree
	work   []frame
}

func (w *treeWalker) push(f frame) {
	if f.node.IsNull() {
		return
	}

	w.work = append(w.work, f)
}

// pushChildren queues all named children of f.node for traversal in
// source order. The worklist is a stack, so children go on in reverse.
func (w *treeWalker) pushChildren(f frame) {
	count := f.node.NamedChildCount()
	for idx := count; idx > 0; idx-- {
		w.push(frame{node: f.node.NamedChild(idx - 1), scope: f.scope, optional: f.optional, mode: f.mode})
	}
}

func (w *treeWalker) text(n sitter.Node) string {
	return n.Content(w.src)
}

func (w *treeWalker) visit(f frame) {
	switch f.mode {
	case modeBind:
		w.visitBindTarget(f)
	case modeDelete:
		w.visitDelTarget(f)
	case modeExpr:
		w.visitExpr(f)
	}
}

//nolint:cyclop // one arm per statement form of the grammar
func (w *treeWalker) visitExpr(f frame) {
	n := f.node

	switch n.Type() {
	case "comment",
		"import_statement", "import_from_statement", "future_import_statement",
		"global_statement", "nonlocal_statement",
		"pass_statement", "break_statement", "continue_statement":
		// No variable usages. Imports bind module names, but those are not
		// assignments and do not participate in the dataflow namespace.

	case "identifier":
		w.scopes.record(f.scope, w.text(n), UsageRead)

	case "attribute":
		// x.y reads x only; the attribute name is not a variable.
		w.push(frame{node: n.ChildByFieldName("object"), scope: f.scope, optional: f.optional})

	case "keyword_argument":
		// f(name=value): the keyword is not a variable reference.
		w.push(frame{node: n.ChildByFieldName("value"), scope: f.scope, optional: f.optional})

	case "assignment":
		w.visitAssignment(f)

	case "augmented_assignment":
		// x += e reads x, reads e, then rebinds x.
		left := n.ChildByFieldName("left")
		w.push(frame{node: left, scope: f.scope, optional: f.optional, mode: modeBind})
		w.push(frame{node: n.ChildByFieldName("right"), scope: f.scope, optional: f.optional})
		w.push(frame{node: left, scope: f.scope, optional: f.optional})

	case "named_expression":
		// Walrus: (name := value) evaluates value, then binds name.
		w.push(frame{node: n.ChildByFieldName("name"), scope: f.scope, optional: f.optional, mode: modeBind})
		w.push(frame{node: n.ChildByFieldName("value"), scope: f.scope, optional: f.optional})

	case "function_definition":
		w.visitFunctionDef(f)

	case "class_definition":
		w.visitClassDef(f)

	case "lambda":
		w.visitLambda(f)

	case "for_statement":
		// The iterable is read first; the loop targets leak into the
		// enclosing scope; the body may never execute.
		w.push(frame{node: n.ChildByFieldName("alternative"), scope: f.scope, optional: true})
		w.push(frame{node: n.ChildByFieldName("body"), scope: f.scope, optional: true})
		w.push(frame{node: n.ChildByFieldName("left"), scope: f.scope, optional: f.optional, mode: modeBind})
		w.push(frame{node: n.ChildByFieldName("right"), scope: f.scope, optional: f.optional})

	case "while_statement":
		w.push(frame{node: n.ChildByFieldName("alternative"), scope: f.scope, optional: true})
		w.push(frame{node: n.ChildByFieldName("body"), scope: f.scope, optional: true})
		w.push(frame{node: n.ChildByFieldName("condition"), scope: f.scope, optional: f.optional})

	case "if_statement":
		// An if statement may carry several elif/else alternatives; every
		// branch body is optional while the condition itself is not.
		count := n.NamedChildCount()
		for idx := count; idx > 0; idx-- {
			child := n.NamedChild(idx - 1)

			optional := f.optional
			switch child.Type() {
			case "block", "elif_clause", "else_clause":
				optional = true
			}

			w.push(frame{node: child, scope: f.scope, optional: optional})
		}

	case "elif_clause":
		w.push(frame{node: n.ChildByFieldName("consequence"), scope: f.scope, optional: true})
		w.push(frame{node: n.ChildByFieldName("condition"), scope: f.scope, optional: f.optional})

	case "try_statement":
		w.visitTry(f)

	case "as_pattern":
		// value as alias: read the value, bind the alias in the enclosing
		// scope (context-manager and except targets leak).
		w.push(frame{node: n.ChildByFieldName("alias"), scope: f.scope, optional: f.optional, mode: modeBind})
		w.push(frame{node: n.NamedChild(0), scope: f.scope, optional: f.optional})

	case "delete_statement":
		count := n.NamedChildCount()
		for idx := count; idx > 0; idx-- {
			w.push(frame{node: n.NamedChild(idx - 1), scope: f.scope, optional: f.optional, mode: modeDelete})
		}

	default:
		// Blocks, calls, operators, literals, comprehension-free compound
		// statements: usages come from the named children.
		w.pushChildren(f)
	}
}

func (w *treeWalker) visitAssignment(f frame) {
	n := f.node
	right := n.ChildByFieldName("right")

	if right.IsNull() {
		// Bare annotation (x: int) binds nothing.
		w.push(frame{node: n.ChildByFieldName("type"), scope: f.scope, optional: f.optional})

		return
	}

	// The value is read before the targets bind.
	w.push(frame{node: n.ChildByFieldName("left"), scope: f.scope, optional: f.optional, mode: modeBind})
	w.push(frame{node: n.ChildByFieldName("type"), scope: f.scope, optional: f.optional})
	w.push(frame{node: right, scope: f.scope, optional: f.optional})
}

func (w *treeWalker) visitFunctionDef(f frame) {
	n := f.node

	name := n.ChildByFieldName("name")
	if !name.IsNull() {
		w.scopes.record(f.scope, w.text(name), UsageSet)
	}

	body := w.scopes.addScope(f.scope)

	// The body is a fresh scope and is never conditionally skipped from
	// its own point of view.
	w.push(frame{node: n.ChildByFieldName("body"), scope: body})
	w.bindParameters(n.ChildByFieldName("parameters"), body, f)
	w.push(frame{node: n.ChildByFieldName("return_type"), scope: f.scope, optional: f.optional})
}

func (w *treeWalker) visitClassDef(f frame) {
	n := f.node

	name := n.ChildByFieldName("name")
	if !name.IsNull() {
		w.scopes.record(f.scope, w.text(name), UsageSet)
	}

	body := w.scopes.addScope(f.scope)

	w.push(frame{node: n.ChildByFieldName("body"), scope: body})
	// Base classes are expressions in the enclosing scope.
	w.push(frame{node: n.ChildByFieldName("superclasses"), scope: f.scope, optional: f.optional})
}

func (w *treeWalker) visitLambda(f frame) {
	n := f.node
	body := w.scopes.addScope(f.scope)

	w.push(frame{node: n.ChildByFieldName("body"), scope: body})
	w.bindParameters(n.ChildByFieldName("parameters"), body, f)
}

// bindParameters records every parameter name as a binding inside the
// function scope. Default values and annotations are expressions of the
// enclosing scope.
func (w *treeWalker) bindParameters(params sitter.Node, bodyScope int, f frame) {
	if params.IsNull() {
		return
	}

	count := params.NamedChildCount()
	for idx := count; idx > 0; idx-- {
		p := params.NamedChild(idx - 1)

		switch p.Type() {
		case "identifier":
			w.scopes.record(bodyScope, w.text(p), UsageSet)

		case "default_parameter", "typed_default_parameter":
			w.push(frame{node: p.ChildByFieldName("name"), scope: bodyScope, mode: modeBind})
			w.push(frame{node: p.ChildByFieldName("type"), scope: f.scope, optional: f.optional})
			w.push(frame{node: p.ChildByFieldName("value"), scope: f.scope, optional: f.optional})

		case "typed_parameter":
			w.push(frame{node: p.NamedChild(0), scope: bodyScope, mode: modeBind})
			w.push(frame{node: p.ChildByFieldName("type"), scope: f.scope, optional: f.optional})

		case "list_splat_pattern", "dictionary_splat_pattern":
			w.push(frame{node: p, scope: bodyScope, mode: modeBind})

		default:
			// Positional / keyword separators carry no names.
		}
	}
}

func (w *treeWalker) visitTry(f frame) {
	n := f.node

	// Named children arrive in source order: body block, except clauses,
	// optional else, optional finally. All of them share the enclosing
	// scope; only the finally block is guaranteed to execute.
	count := n.NamedChildCount()
	for idx := count; idx > 0; idx-- {
		child := n.NamedChild(idx - 1)

		optional := true
		if child.Type() == "finally_clause" {
			optional = f.optional
		}

		w.push(frame{node: child, scope: f.scope, optional: optional})
	}
}

// visitBindTarget records bindings for an assignment-target node.
// Destructuring targets bind each name; attribute and subscript targets
// bind nothing and only read their base expression.
func (w *treeWalker) visitBindTarget(f frame) {
	n := f.node

	switch n.Type() {
	case "identifier":
		w.scopes.record(f.scope, w.text(n), UsageSet)

	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list",
		"parenthesized_expression", "as_pattern_target",
		"list_splat_pattern", "dictionary_splat_pattern":
		w.pushChildren(f)

	default:
		// x.y = v or x[i] = v: reads only.
		w.push(frame{node: n, scope: f.scope, optional: f.optional})
	}
}

// visitDelTarget records a DEL usage for each deleted name. Deletions
// inside optional blocks are dropped entirely: the block may never run,
// so the name may well survive.
func (w *treeWalker) visitDelTarget(f frame) {
	n := f.node

	switch n.Type() {
	case "identifier":
		if !f.optional {
			w.scopes.record(f.scope, w.text(n), UsageDel)
		}

	case "expression_list", "tuple", "pattern_list", "parenthesized_expression":
		w.pushChildren(f)

	default:
		// del x.y / del x[i]: the base expression is read either way.
		w.push(frame{node: n, scope: f.scope, optional: f.optional})
	}
}
