package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dataflock/dataflock/pkg/kernel"
)

// Registry errors.
var (
	ErrDuplicateEnvironment = errors.New("environment already exists")
	ErrUnknownEnvironment   = errors.New("unknown environment")
)

// KernelFactory builds a fresh kernel for a new environment.
type KernelFactory func() kernel.Kernel

// Registry is the named collection of runners, one per environment. Safe
// for concurrent use.
type Registry struct {
	mu           sync.Mutex
	environments map[string]*Runner
	newKernel    KernelFactory
	log          *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to every runner.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(reg *Registry) {
		reg.log = log
	}
}

// NewRegistry returns an empty registry whose environments execute on
// kernels built by newKernel.
func NewRegistry(newKernel KernelFactory, opts ...RegistryOption) *Registry {
	reg := &Registry{
		environments: map[string]*Runner{},
		newKernel:    newKernel,
		log:          slog.Default(),
	}

	for _, opt := range opts {
		opt(reg)
	}

	return reg
}

// Create adds an environment. It fails with ErrDuplicateEnvironment when
// the name is taken.
func (reg *Registry) Create(name string) (*Runner, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, taken := reg.environments[name]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEnvironment, name)
	}

	r := New(reg.newKernel(), WithLogger(reg.log.With("environment", name)))
	reg.environments[name] = r

	reg.log.Info("environment created", "environment", name)

	return r, nil
}

// Get returns the named environment's runner.
func (reg *Registry) Get(name string) (*Runner, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.environments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}

	return r, nil
}

// Ready reports whether the registry can host environments. It backs the
// server's readiness endpoint: taking the lock proves the registry is not
// wedged, and a registry without a kernel factory cannot create anything.
func (reg *Registry) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.newKernel == nil {
		return errors.New("registry has no kernel factory")
	}

	return nil
}

// Delete removes the named environment and closes its runner.
func (reg *Registry) Delete(name string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.environments[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}

	delete(reg.environments, name)
	r.Close()

	reg.log.Info("environment deleted", "environment", name)

	return nil
}

// List returns the environment names in lexicographic order.
func (reg *Registry) List() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	names := make([]string, 0, len(reg.environments))
	for name := range reg.environments {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Close deletes every environment.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for name, r := range reg.environments {
		r.Close()
		delete(reg.environments, name)
	}
}
