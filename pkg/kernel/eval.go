package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Loop control signals, propagated as errors and absorbed by the
// enclosing loop.
var (
	errBreakSignal    = errors.New("break outside loop")
	errContinueSignal = errors.New("continue outside loop")
)

// evaluator executes a parsed cell against a local frame.
type evaluator struct {
	ctx   context.Context
	src   []byte
	frame map[string]any
	out   io.Writer
}

func (ev *evaluator) text(n sitter.Node) string {
	return n.Content(ev.src)
}

// execBlock runs every statement of a module or block node.
func (ev *evaluator) execBlock(block sitter.Node) error {
	for idx := range block.NamedChildCount() {
		err := ev.execStatement(block.NamedChild(idx))
		if err != nil {
			return err
		}
	}

	return nil
}

//nolint:cyclop // one arm per supported statement form
func (ev *evaluator) execStatement(n sitter.Node) error {
	switch n.Type() {
	case "comment", "pass_statement":
		return nil

	case "expression_statement":
		for idx := range n.NamedChildCount() {
			_, err := ev.evalOrAssign(n.NamedChild(idx))
			if err != nil {
				return err
			}
		}

		return nil

	case "if_statement":
		return ev.execIf(n)

	case "while_statement":
		return ev.execWhile(n)

	case "for_statement":
		return ev.execFor(n)

	case "break_statement":
		return errBreakSignal

	case "continue_statement":
		return errContinueSignal

	case "delete_statement":
		return ev.execDelete(n)

	default:
		return execErrorf("unsupported statement %q", n.Type())
	}
}

// evalOrAssign handles the expression-statement children: assignments
// mutate the frame, everything else evaluates for effect or value.
func (ev *evaluator) evalOrAssign(n sitter.Node) (any, error) {
	switch n.Type() {
	case "assignment":
		return nil, ev.execAssignment(n)
	case "augmented_assignment":
		return nil, ev.execAugmented(n)
	default:
		return ev.eval(n)
	}
}

func (ev *evaluator) execAssignment(n sitter.Node) error {
	_, err := ev.assignChain(n)

	return err
}

// assignChain handles one assignment, recursing through chains like
// a = b = expr, where the grammar nests the next assignment in the right
// field. It returns the assigned value.
func (ev *evaluator) assignChain(n sitter.Node) (any, error) {
	right := n.ChildByFieldName("right")
	if right.IsNull() {
		// Bare annotation: nothing to do.
		return nil, nil
	}

	var (
		value any
		err   error
	)

	if right.Type() == "assignment" {
		value, err = ev.assignChain(right)
	} else {
		value, err = ev.eval(right)
	}

	if err != nil {
		return nil, err
	}

	return value, ev.assign(n.ChildByFieldName("left"), value)
}

func (ev *evaluator) execAugmented(n sitter.Node) error {
	left := n.ChildByFieldName("left")

	current, err := ev.eval(left)
	if err != nil {
		return err
	}

	operand, err := ev.eval(n.ChildByFieldName("right"))
	if err != nil {
		return err
	}

	op := strings.TrimSuffix(ev.text(n.ChildByFieldName("operator")), "=")

	value, err := applyBinary(op, current, operand)
	if err != nil {
		return err
	}

	return ev.assign(left, value)
}

// assign binds value to an assignment target: a name, a destructuring
// pattern, or a subscript.
func (ev *evaluator) assign(target sitter.Node, value any) error {
	switch target.Type() {
	case "identifier":
		ev.frame[ev.text(target)] = value

		return nil

	case "pattern_list", "tuple_pattern", "list_pattern":
		items, ok := value.([]any)
		if !ok {
			return execErrorf("cannot unpack %s", typeName(value))
		}

		count := target.NamedChildCount()
		if uint(count) != uint(len(items)) {
			return execErrorf("cannot unpack %d values into %d targets", len(items), count)
		}

		for idx := range count {
			err := ev.assign(target.NamedChild(idx), items[idx])
			if err != nil {
				return err
			}
		}

		return nil

	case "parenthesized_expression":
		return ev.assign(target.NamedChild(0), value)

	case "subscript":
		return ev.assignSubscript(target, value)

	default:
		return execErrorf("unsupported assignment target %q", target.Type())
	}
}

func (ev *evaluator) assignSubscript(target sitter.Node, value any) error {
	container, err := ev.eval(target.ChildByFieldName("value"))
	if err != nil {
		return err
	}

	key, err := ev.eval(target.ChildByFieldName("subscript"))
	if err != nil {
		return err
	}

	switch c := container.(type) {
	case []any:
		idx, idxErr := listIndex(key, len(c))
		if idxErr != nil {
			return idxErr
		}

		c[idx] = value

		return nil

	case map[string]any:
		name, ok := key.(string)
		if !ok {
			return execErrorf("dictionary keys must be strings, got %s", typeName(key))
		}

		c[name] = value

		return nil

	default:
		return execErrorf("%s does not support item assignment", typeName(container))
	}
}

func (ev *evaluator) execDelete(n sitter.Node) error {
	for idx := range n.NamedChildCount() {
		err := ev.deleteTarget(n.NamedChild(idx))
		if err != nil {
			return err
		}
	}

	return nil
}

func (ev *evaluator) deleteTarget(target sitter.Node) error {
	switch target.Type() {
	case "identifier":
		name := ev.text(target)
		if _, ok := ev.frame[name]; !ok {
			return execErrorf("name %q is not defined", name)
		}

		delete(ev.frame, name)

		return nil

	case "expression_list", "tuple", "parenthesized_expression":
		for idx := range target.NamedChildCount() {
			err := ev.deleteTarget(target.NamedChild(idx))
			if err != nil {
				return err
			}
		}

		return nil

	default:
		return execErrorf("unsupported del target %q", target.Type())
	}
}

func (ev *evaluator) execIf(n sitter.Node) error {
	condition, err := ev.eval(n.ChildByFieldName("condition"))
	if err != nil {
		return err
	}

	if truthy(condition) {
		return ev.execBlock(n.ChildByFieldName("consequence"))
	}

	// First matching elif wins; a trailing else is unconditional.
	for idx := range n.NamedChildCount() {
		clause := n.NamedChild(idx)

		switch clause.Type() {
		case "elif_clause":
			cond, evalErr := ev.eval(clause.ChildByFieldName("condition"))
			if evalErr != nil {
				return evalErr
			}

			if truthy(cond) {
				return ev.execBlock(clause.ChildByFieldName("consequence"))
			}

		case "else_clause":
			return ev.execBlock(clause.ChildByFieldName("body"))
		}
	}

	return nil
}

func (ev *evaluator) execWhile(n sitter.Node) error {
	for {
		if err := ev.ctx.Err(); err != nil {
			return execErrorf("interrupted: %v", err)
		}

		condition, err := ev.eval(n.ChildByFieldName("condition"))
		if err != nil {
			return err
		}

		if !truthy(condition) {
			return nil
		}

		bodyErr := ev.execBlock(n.ChildByFieldName("body"))

		switch {
		case errors.Is(bodyErr, errBreakSignal):
			return nil
		case errors.Is(bodyErr, errContinueSignal), bodyErr == nil:
			continue
		default:
			return bodyErr
		}
	}
}

func (ev *evaluator) execFor(n sitter.Node) error {
	iterable, err := ev.eval(n.ChildByFieldName("right"))
	if err != nil {
		return err
	}

	items, err := iterate(iterable)
	if err != nil {
		return err
	}

	target := n.ChildByFieldName("left")
	body := n.ChildByFieldName("body")

	for _, item := range items {
		if ctxErr := ev.ctx.Err(); ctxErr != nil {
			return execErrorf("interrupted: %v", ctxErr)
		}

		assignErr := ev.assign(target, item)
		if assignErr != nil {
			return assignErr
		}

		bodyErr := ev.execBlock(body)

		switch {
		case errors.Is(bodyErr, errBreakSignal):
			return nil
		case errors.Is(bodyErr, errContinueSignal), bodyErr == nil:
			continue
		default:
			return bodyErr
		}
	}

	return nil
}

//nolint:cyclop // one arm per supported expression form
func (ev *evaluator) eval(n sitter.Node) (any, error) {
	switch n.Type() {
	case "identifier":
		name := ev.text(n)

		value, ok := ev.frame[name]
		if !ok {
			return nil, execErrorf("name %q is not defined", name)
		}

		return value, nil

	case "integer":
		return parseInt(ev.text(n))

	case "float":
		value, err := strconv.ParseFloat(strings.ReplaceAll(ev.text(n), "_", ""), 64)
		if err != nil {
			return nil, execErrorf("bad float literal %q", ev.text(n))
		}

		return value, nil

	case "string":
		return ev.evalString(n)

	case "true":
		return true, nil

	case "false":
		return false, nil

	case "none":
		return nil, nil

	case "list", "tuple", "expression_list":
		items := make([]any, 0, n.NamedChildCount())

		for idx := range n.NamedChildCount() {
			item, err := ev.eval(n.NamedChild(idx))
			if err != nil {
				return nil, err
			}

			items = append(items, item)
		}

		return items, nil

	case "dictionary":
		return ev.evalDict(n)

	case "parenthesized_expression":
		return ev.eval(n.NamedChild(0))

	case "binary_operator":
		return ev.evalBinary(n)

	case "boolean_operator":
		return ev.evalBoolean(n)

	case "not_operator":
		value, err := ev.eval(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}

		return !truthy(value), nil

	case "unary_operator":
		return ev.evalUnary(n)

	case "comparison_operator":
		return ev.evalComparison(n)

	case "conditional_expression":
		return ev.evalConditional(n)

	case "subscript":
		return ev.evalSubscript(n)

	case "call":
		return ev.evalCall(n)

	case "named_expression":
		value, err := ev.eval(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}

		ev.frame[ev.text(n.ChildByFieldName("name"))] = value

		return value, nil

	default:
		return nil, execErrorf("unsupported expression %q", n.Type())
	}
}

// evalString concatenates the literal content parts. Interpolated
// (f-string) parts are not supported.
func (ev *evaluator) evalString(n sitter.Node) (any, error) {
	var sb strings.Builder

	for idx := range n.NamedChildCount() {
		part := n.NamedChild(idx)

		switch part.Type() {
		case "string_start", "string_end":
		case "string_content":
			sb.WriteString(unescape(ev.text(part)))
		case "escape_sequence":
			sb.WriteString(unescape(ev.text(part)))
		case "interpolation":
			return nil, execErrorf("f-string interpolation is not supported")
		default:
			return nil, execErrorf("unsupported string part %q", part.Type())
		}
	}

	return sb.String(), nil
}

func (ev *evaluator) evalDict(n sitter.Node) (any, error) {
	dict := map[string]any{}

	for idx := range n.NamedChildCount() {
		pair := n.NamedChild(idx)
		if pair.Type() != "pair" {
			return nil, execErrorf("unsupported dictionary entry %q", pair.Type())
		}

		key, err := ev.eval(pair.ChildByFieldName("key"))
		if err != nil {
			return nil, err
		}

		name, ok := key.(string)
		if !ok {
			return nil, execErrorf("dictionary keys must be strings, got %s", typeName(key))
		}

		value, err := ev.eval(pair.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}

		dict[name] = value
	}

	return dict, nil
}

func (ev *evaluator) evalBinary(n sitter.Node) (any, error) {
	left, err := ev.eval(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}

	right, err := ev.eval(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}

	return applyBinary(ev.text(n.ChildByFieldName("operator")), left, right)
}

func (ev *evaluator) evalBoolean(n sitter.Node) (any, error) {
	left, err := ev.eval(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}

	op := ev.text(n.ChildByFieldName("operator"))

	// Python returns the deciding operand, not a bool.
	if op == "and" {
		if !truthy(left) {
			return left, nil
		}
	} else if truthy(left) {
		return left, nil
	}

	return ev.eval(n.ChildByFieldName("right"))
}

func (ev *evaluator) evalUnary(n sitter.Node) (any, error) {
	value, err := ev.eval(n.ChildByFieldName("argument"))
	if err != nil {
		return nil, err
	}

	switch op := ev.text(n.ChildByFieldName("operator")); op {
	case "-":
		switch v := value.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		default:
			return nil, execErrorf("bad operand type for unary -: %s", typeName(value))
		}
	case "+":
		switch value.(type) {
		case int64, float64:
			return value, nil
		default:
			return nil, execErrorf("bad operand type for unary +: %s", typeName(value))
		}
	default:
		return nil, execErrorf("unsupported unary operator %q", op)
	}
}

// evalComparison handles chained comparisons (a < b <= c): operands are
// the named children, operator tokens sit between them.
func (ev *evaluator) evalComparison(n sitter.Node) (any, error) {
	var (
		operands  []any
		operators []string
	)

	for idx := range n.ChildCount() {
		child := n.Child(idx)

		if child.IsNamed() {
			value, err := ev.eval(child)
			if err != nil {
				return nil, err
			}

			operands = append(operands, value)
		} else {
			operators = append(operators, ev.text(child))
		}
	}

	if len(operands) != len(operators)+1 {
		return nil, execErrorf("malformed comparison")
	}

	for i, op := range operators {
		ok, err := compare(op, operands[i], operands[i+1])
		if err != nil {
			return nil, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func (ev *evaluator) evalConditional(n sitter.Node) (any, error) {
	// consequence if condition else alternative.
	condition, err := ev.eval(n.NamedChild(1))
	if err != nil {
		return nil, err
	}

	if truthy(condition) {
		return ev.eval(n.NamedChild(0))
	}

	return ev.eval(n.NamedChild(2))
}

func (ev *evaluator) evalSubscript(n sitter.Node) (any, error) {
	container, err := ev.eval(n.ChildByFieldName("value"))
	if err != nil {
		return nil, err
	}

	key, err := ev.eval(n.ChildByFieldName("subscript"))
	if err != nil {
		return nil, err
	}

	switch c := container.(type) {
	case []any:
		idx, idxErr := listIndex(key, len(c))
		if idxErr != nil {
			return nil, idxErr
		}

		return c[idx], nil

	case string:
		idx, idxErr := listIndex(key, len(c))
		if idxErr != nil {
			return nil, idxErr
		}

		return string(c[idx]), nil

	case map[string]any:
		name, ok := key.(string)
		if !ok {
			return nil, execErrorf("dictionary keys must be strings, got %s", typeName(key))
		}

		value, found := c[name]
		if !found {
			return nil, execErrorf("key %q not found", name)
		}

		return value, nil

	default:
		return nil, execErrorf("%s is not subscriptable", typeName(container))
	}
}

func (ev *evaluator) evalCall(n sitter.Node) (any, error) {
	function := n.ChildByFieldName("function")
	if function.Type() != "identifier" {
		return nil, execErrorf("only direct builtin calls are supported")
	}

	name := ev.text(function)
	if _, shadowed := ev.frame[name]; shadowed {
		return nil, execErrorf("%q is not callable", name)
	}

	builtin, ok := builtinFuncs[name]
	if !ok {
		return nil, execErrorf("name %q is not defined", name)
	}

	argList := n.ChildByFieldName("arguments")

	var args []any

	for idx := range argList.NamedChildCount() {
		arg := argList.NamedChild(idx)
		if arg.Type() == "keyword_argument" {
			return nil, execErrorf("keyword arguments are not supported")
		}

		value, err := ev.eval(arg)
		if err != nil {
			return nil, err
		}

		args = append(args, value)
	}

	return builtin(ev, args)
}

// -- value helpers ----------------------------------------------------

func parseInt(text string) (any, error) {
	value, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
	if err != nil {
		return nil, execErrorf("bad integer literal %q", text)
	}

	return value, nil
}

func unescape(text string) string {
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\r`, "\r",
		`\\`, `\`,
		`\'`, "'",
		`\"`, `"`,
	)

	return replacer.Replace(text)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// listIndex normalizes a (possibly negative) Python index.
func listIndex(key any, length int) (int, error) {
	idx, ok := key.(int64)
	if !ok {
		return 0, execErrorf("indices must be integers, got %s", typeName(key))
	}

	if idx < 0 {
		idx += int64(length)
	}

	if idx < 0 || idx >= int64(length) {
		return 0, execErrorf("index out of range")
	}

	return int(idx), nil
}

func iterate(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil

	case string:
		items := make([]any, 0, len(v))
		for _, r := range v {
			items = append(items, string(r))
		}

		return items, nil

	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		items := make([]any, 0, len(keys))
		for _, key := range keys {
			items = append(items, key)
		}

		return items, nil

	default:
		return nil, execErrorf("%s is not iterable", typeName(value))
	}
}

//nolint:cyclop // arithmetic dispatch table
func applyBinary(op string, left, right any) (any, error) {
	// String and list concatenation.
	if op == "+" {
		if ls, ok := left.(string); ok {
			rs, rok := right.(string)
			if !rok {
				return nil, execErrorf("cannot concatenate str and %s", typeName(right))
			}

			return ls + rs, nil
		}

		if ll, ok := left.([]any); ok {
			rl, rok := right.([]any)
			if !rok {
				return nil, execErrorf("cannot concatenate list and %s", typeName(right))
			}

			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)

			return out, nil
		}
	}

	lf, li, lInt, lOK := asNumber(left)
	rf, ri, rInt, rOK := asNumber(right)

	if !lOK || !rOK {
		return nil, execErrorf("unsupported operand types for %s: %s and %s",
			op, typeName(left), typeName(right))
	}

	bothInt := lInt && rInt

	switch op {
	case "+":
		if bothInt {
			return li + ri, nil
		}

		return lf + rf, nil

	case "-":
		if bothInt {
			return li - ri, nil
		}

		return lf - rf, nil

	case "*":
		if bothInt {
			return li * ri, nil
		}

		return lf * rf, nil

	case "/":
		if rf == 0 {
			return nil, execErrorf("division by zero")
		}

		// True division always yields a float.
		return lf / rf, nil

	case "//":
		if rf == 0 {
			return nil, execErrorf("division by zero")
		}

		if bothInt {
			return int64(math.Floor(lf / rf)), nil
		}

		return math.Floor(lf / rf), nil

	case "%":
		if rf == 0 {
			return nil, execErrorf("modulo by zero")
		}

		if bothInt {
			// Python modulo takes the divisor's sign.
			return ((li % ri) + ri) % ri, nil
		}

		return math.Mod(math.Mod(lf, rf)+rf, rf), nil

	case "**":
		if bothInt && ri >= 0 {
			return intPow(li, ri), nil
		}

		return math.Pow(lf, rf), nil

	default:
		return nil, execErrorf("unsupported operator %q", op)
	}
}

// asNumber widens a numeric value to float64 (and int64 where exact) and
// reports whether it was integral. Booleans count as 0 and 1, as in
// Python.
func asNumber(value any) (f float64, i int64, isInt, ok bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), v, true, true
	case float64:
		return v, 0, false, true
	case bool:
		if v {
			return 1, 1, true, true
		}

		return 0, 0, true, true
	default:
		return 0, 0, false, false
	}
}

func intPow(base, exp int64) int64 {
	result := int64(1)

	for range exp {
		result *= base
	}

	return result
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	}

	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return false, execErrorf("cannot compare str and %s", typeName(right))
		}

		return orderedCompare(op, strings.Compare(ls, rs))
	}

	lf, _, _, lok := asNumber(left)
	rf, _, _, rok := asNumber(right)

	if !lok || !rok {
		return false, execErrorf("cannot compare %s and %s", typeName(left), typeName(right))
	}

	switch {
	case lf < rf:
		return orderedCompare(op, -1)
	case lf > rf:
		return orderedCompare(op, 1)
	default:
		return orderedCompare(op, 0)
	}
}

func orderedCompare(op string, cmp int) (bool, error) {
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, execErrorf("unsupported comparison %q", op)
	}
}

func equalValues(left, right any) bool {
	lf, _, _, lok := asNumber(left)
	rf, _, _, rok := asNumber(right)

	if lok && rok {
		return lf == rf
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)

		return ok && l == r
	case nil:
		return right == nil
	case []any:
		r, ok := right.([]any)
		if !ok || len(l) != len(r) {
			return false
		}

		for i := range l {
			if !equalValues(l[i], r[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}
