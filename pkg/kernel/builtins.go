package kernel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// builtinFunc is one callable of the interpreter's builtin table.
type builtinFunc func(ev *evaluator, args []any) (any, error)

var builtinFuncs = map[string]builtinFunc{
	"len":    builtinLen,
	"sum":    builtinSum,
	"min":    builtinMin,
	"max":    builtinMax,
	"abs":    builtinAbs,
	"range":  builtinRange,
	"print":  builtinPrint,
	"sorted": builtinSorted,
	"round":  builtinRound,
	"str":    builtinStr,
	"int":    builtinInt,
	"float":  builtinFloat,
	"bool":   builtinBool,
	"list":   builtinList,
}

func wantArgs(name string, args []any, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		return execErrorf("%s: wrong number of arguments", name)
	}

	return nil
}

func builtinLen(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("len", args, 1, 1); err != nil {
		return nil, err
	}

	switch v := args[0].(type) {
	case string:
		return int64(len(v)), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	default:
		return nil, execErrorf("len: %s has no length", typeName(args[0]))
	}
}

func builtinSum(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("sum", args, 1, 1); err != nil {
		return nil, err
	}

	items, ok := args[0].([]any)
	if !ok {
		return nil, execErrorf("sum: %s is not iterable", typeName(args[0]))
	}

	var total any = int64(0)

	for _, item := range items {
		next, err := applyBinary("+", total, item)
		if err != nil {
			return nil, err
		}

		total = next
	}

	return total, nil
}

// extremum implements min and max over either varargs or one iterable.
func extremum(name, op string, args []any) (any, error) {
	items := args
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, execErrorf("%s: %s is not iterable", name, typeName(args[0]))
		}

		items = list
	}

	if len(items) == 0 {
		return nil, execErrorf("%s: empty sequence", name)
	}

	best := items[0]

	for _, item := range items[1:] {
		better, err := compare(op, item, best)
		if err != nil {
			return nil, err
		}

		if better {
			best = item
		}
	}

	return best, nil
}

func builtinMin(_ *evaluator, args []any) (any, error) {
	return extremum("min", "<", args)
}

func builtinMax(_ *evaluator, args []any) (any, error) {
	return extremum("max", ">", args)
}

func builtinAbs(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("abs", args, 1, 1); err != nil {
		return nil, err
	}

	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}

		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, execErrorf("abs: bad operand type %s", typeName(args[0]))
	}
}

//nolint:mnd // range takes one, two or three arguments
func builtinRange(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("range", args, 1, 3); err != nil {
		return nil, err
	}

	bounds := make([]int64, len(args))

	for i, arg := range args {
		n, ok := arg.(int64)
		if !ok {
			return nil, execErrorf("range: arguments must be ints, got %s", typeName(arg))
		}

		bounds[i] = n
	}

	start, stop, step := int64(0), bounds[0], int64(1)

	if len(bounds) >= 2 {
		start, stop = bounds[0], bounds[1]
	}

	if len(bounds) == 3 {
		step = bounds[2]
	}

	if step == 0 {
		return nil, execErrorf("range: step must not be zero")
	}

	var items []any

	if step > 0 {
		for v := start; v < stop; v += step {
			items = append(items, v)
		}
	} else {
		for v := start; v > stop; v += step {
			items = append(items, v)
		}
	}

	return items, nil
}

func builtinPrint(ev *evaluator, args []any) (any, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg, false)
	}

	fmt.Fprintln(ev.out, strings.Join(parts, " "))

	return nil, nil
}

func builtinSorted(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("sorted", args, 1, 1); err != nil {
		return nil, err
	}

	items, iterErr := iterate(args[0])
	if iterErr != nil {
		return nil, iterErr
	}

	out := append([]any(nil), items...)

	var sortErr error

	sort.SliceStable(out, func(i, j int) bool {
		less, err := compare("<", out[i], out[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}

		return less
	})

	if sortErr != nil {
		return nil, sortErr
	}

	return out, nil
}

func builtinRound(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("round", args, 1, 1); err != nil {
		return nil, err
	}

	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		// Ties round to even, as in Python.
		return int64(math.RoundToEven(v)), nil
	default:
		return nil, execErrorf("round: bad operand type %s", typeName(args[0]))
	}
}

func builtinStr(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("str", args, 0, 1); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return "", nil
	}

	return formatValue(args[0], false), nil
}

func builtinInt(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("int", args, 0, 1); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return int64(0), nil
	}

	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(math.Trunc(v)), nil
	case bool:
		if v {
			return int64(1), nil
		}

		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, execErrorf("int: invalid literal %q", v)
		}

		return n, nil
	default:
		return nil, execErrorf("int: cannot convert %s", typeName(args[0]))
	}
}

func builtinFloat(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("float", args, 0, 1); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return 0.0, nil
	}

	switch v := args[0].(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1.0, nil
		}

		return 0.0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, execErrorf("float: invalid literal %q", v)
		}

		return f, nil
	default:
		return nil, execErrorf("float: cannot convert %s", typeName(args[0]))
	}
}

func builtinBool(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("bool", args, 0, 1); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return false, nil
	}

	return truthy(args[0]), nil
}

func builtinList(_ *evaluator, args []any) (any, error) {
	if err := wantArgs("list", args, 0, 1); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return []any{}, nil
	}

	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}

	return append([]any(nil), items...), nil
}

// formatValue renders a value the way Python's str or repr would, as far
// as the supported types go.
func formatValue(value any, asRepr bool) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}

		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', 1, 64)
		}

		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		if asRepr {
			return "'" + v + "'"
		}

		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item, true)
		}

		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = "'" + key + "': " + formatValue(v[key], true)
		}

		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", value)
	}
}
