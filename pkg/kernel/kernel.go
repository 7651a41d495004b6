// Package kernel defines the execution sink a runner drives, plus an
// embedded implementation. The runner is oblivious to how cells actually
// execute: a kernel may be an in-process interpreter, a subprocess behind
// an RPC pipe, or a remote service, as long as it honors this contract.
package kernel

import (
	"context"
	"errors"
	"fmt"
)

// ErrNameNotFound indicates a variable is absent from the kernel
// namespace.
var ErrNameNotFound = errors.New("kernel: name is not defined")

// ExecError reports that cell code failed while executing. The payload
// is the kernel's own description of the failure.
type ExecError struct {
	Detail string
}

func (e *ExecError) Error() string {
	return "kernel: execution failed: " + e.Detail
}

func execErrorf(format string, args ...any) *ExecError {
	return &ExecError{Detail: fmt.Sprintf(format, args...)}
}

// Kernel owns the shared variable namespace and executes cell code
// against it.
//
// Run projects the current values of reads into a fresh local frame,
// executes code inside that frame, then merges the post-execution values
// of writes back into the namespace. It fails with ErrNameNotFound when a
// read is undefined and with *ExecError when the code itself fails. Run
// blocks until execution finishes; callers wanting asynchrony dispatch it
// on a goroutine. Implementations may serialize concurrent Run calls.
//
// Restart drops every value and any in-flight execution's effects;
// subsequent reads fail until the namespace is repopulated.
type Kernel interface {
	Run(ctx context.Context, code string, reads, writes []string) error
	Get(name string) (any, error)
	Restart()
}
