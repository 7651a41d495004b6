package kernel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dataflock/dataflock/pkg/pylang"
)

// Interp is the embedded kernel: an in-process interpreter for the small
// Python subset notebook cells typically use. It supports assignments
// (including tuple targets), arithmetic, comparison and boolean
// expressions, lists, tuples, dictionaries, subscripts, if/while/for
// statements and calls to a handful of builtins. Function and class
// definitions, imports and attribute access are rejected with ExecError.
//
// Values live in a flat namespace as Go values (int64, float64, string,
// bool, nil, []any, map[string]any), which keeps them JSON-encodable for
// the variable read-back API.
type Interp struct {
	mu     sync.Mutex
	vars   map[string]any
	stdout io.Writer
}

// InterpOption configures an Interp.
type InterpOption func(*Interp)

// WithStdout redirects the interpreter's print output.
func WithStdout(w io.Writer) InterpOption {
	return func(in *Interp) {
		in.stdout = w
	}
}

// NewInterp returns an empty embedded kernel.
func NewInterp(opts ...InterpOption) *Interp {
	in := &Interp{
		vars:   map[string]any{},
		stdout: os.Stdout,
	}

	for _, opt := range opts {
		opt(in)
	}

	return in
}

// Run implements Kernel. Execution is serialized by the interpreter's
// lock; the namespace is only touched under it.
func (in *Interp) Run(ctx context.Context, code string, reads, writes []string) error {
	tree, err := pylang.Parse(ctx, []byte(code))
	if err != nil {
		return execErrorf("%v", err)
	}
	defer tree.Close()

	in.mu.Lock()
	defer in.mu.Unlock()

	// Project the declared reads into a fresh local frame.
	frame := make(map[string]any, len(reads))

	for _, name := range reads {
		value, ok := in.vars[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNameNotFound, name)
		}

		frame[name] = value
	}

	ev := &evaluator{
		ctx:   ctx,
		src:   []byte(code),
		frame: frame,
		out:   in.stdout,
	}

	execErr := ev.execBlock(tree.RootNode())
	if execErr != nil {
		return execErr
	}

	// Merge the declared writes back into the namespace. A cell whose
	// declared binding never executed (deleted, or unreachable) is a
	// failure, matching a NameError at merge time.
	merged := make(map[string]any, len(writes))

	for _, name := range writes {
		value, ok := frame[name]
		if !ok {
			return execErrorf("cell did not produce variable %q", name)
		}

		merged[name] = value
	}

	for name, value := range merged {
		in.vars[name] = value
	}

	return nil
}

// Get implements Kernel.
func (in *Interp) Get(name string) (any, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	value, ok := in.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}

	return value, nil
}

// Restart implements Kernel: the namespace is dropped wholesale.
func (in *Interp) Restart() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.vars = map[string]any{}
}
