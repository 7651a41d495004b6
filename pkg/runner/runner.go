// Package runner implements the reactive state machine that owns a cell
// graph. It links analyzed cells into a variable index, keeps dirty and
// running sets, and drives a kernel so that a cell re-executes only once
// every transitive upstream producer is clean again.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dataflock/dataflock/pkg/analysis"
	"github.com/dataflock/dataflock/pkg/graph"
	"github.com/dataflock/dataflock/pkg/kernel"
)

// Validation errors surfaced synchronously by runner operations. None of
// them leaves the runner's state modified.
var (
	ErrDuplicateName = errors.New("variable already has a producer")
	ErrLoop          = errors.New("cell would make the graph cyclic")
	ErrUnknownCell   = errors.New("unknown cell")
)

// cellRecord is the runner's bookkeeping for one cell. gen tags the
// in-flight execution so completions of a replaced or deleted cell are
// discarded.
type cellRecord struct {
	cell analysis.Cell
	live bool
	gen  uint64
}

// Info is a read-only snapshot of one cell.
type Info struct {
	ID      string
	Cell    analysis.Cell
	Live    bool
	Dirty   bool
	Running bool
}

// Runner owns the cells of one environment. The mutex is the
// serialization point for all graph state; kernel executions run on their
// own goroutines and re-enter under the lock when they complete.
type Runner struct {
	mu       sync.Mutex
	cells    map[string]*cellRecord
	index    *graph.Index
	dirty    map[string]struct{}
	running  map[string]struct{}
	kernel   kernel.Kernel
	callback Callback
	dryrun   bool
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// New returns a runner driving the given kernel.
func New(kern kernel.Kernel, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cells:   map[string]*cellRecord{},
		index:   graph.New(),
		dirty:   map[string]struct{}{},
		running: map[string]struct{}{},
		kernel:  kern,
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Close cancels in-flight kernel executions and restarts the kernel.
// Completions arriving afterwards are discarded.
func (r *Runner) Close() {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cells = map[string]*cellRecord{}
	r.dirty = map[string]struct{}{}
	r.running = map[string]struct{}{}
	r.kernel.Restart()
}

// SetCallback installs the event sink. Pass nil to silence events.
func (r *Runner) SetCallback(fn Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callback = fn
}

// SetDryrun stops the runner from dispatching to the kernel: cells still
// move to running and the dirty walk still happens, but completion must
// be driven explicitly through OnFinished. Used by tests and by clients
// that want to inspect propagation without executing code.
func (r *Runner) SetDryrun() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dryrun = true
}

// Create links cell into the graph under a fresh identifier and, when
// live, schedules its first run. It fails with ErrDuplicateName when a
// write-name already has a producer and with ErrLoop when the graph would
// become cyclic.
func (r *Runner) Create(cell analysis.Cell, live bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conflicts := r.index.Conflicts(cell.Writes); len(conflicts) > 0 {
		return "", fmt.Errorf("%w: %v", ErrDuplicateName, conflicts)
	}

	if r.index.WouldCycle(cell) {
		return "", fmt.Errorf("%w: reads %v, writes %v",
			ErrLoop, cell.Reads.Sorted(), cell.Writes.Sorted())
	}

	cellID := uuid.NewString()

	if err := r.index.Link(cellID, cell); err != nil {
		return "", err
	}

	r.cells[cellID] = &cellRecord{cell: cell, live: live}

	r.log.Debug("cell created",
		"cell_id", cellID,
		"live", live,
		"reads", cell.Reads.Sorted(),
		"writes", cell.Writes.Sorted())

	r.emit(Event{Kind: EventCreated, CellID: cellID, Live: live, Code: cell.Code})

	if live {
		r.scheduleRun(cellID)
	}

	return cellID, nil
}

// Update replaces the cell's code. The old cell is unlinked before the
// duplicate and cycle checks run, so an update may legally hand a
// variable over to the new cell or break a cycle the old cell was part
// of. On failure the old cell is relinked and the error returned.
func (r *Runner) Update(cellID string, cell analysis.Cell, live bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.cells[cellID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	old := rec.cell
	r.index.Unlink(cellID)

	err := func() error {
		if conflicts := r.index.Conflicts(cell.Writes); len(conflicts) > 0 {
			return fmt.Errorf("%w: %v", ErrDuplicateName, conflicts)
		}

		if r.index.WouldCycle(cell) {
			return fmt.Errorf("%w: reads %v, writes %v",
				ErrLoop, cell.Reads.Sorted(), cell.Writes.Sorted())
		}

		return r.index.Link(cellID, cell)
	}()
	if err != nil {
		// Restore; the old cell cannot conflict with itself removed.
		_ = r.index.Link(cellID, old)

		return err
	}

	rec.cell = cell
	rec.live = live
	rec.gen++ // an in-flight run of the old code is now stale

	r.log.Debug("cell updated", "cell_id", cellID, "live", live)
	r.emit(Event{Kind: EventUpdated, CellID: cellID, Live: live, Code: cell.Code})

	if live {
		r.scheduleRun(cellID)
	} else {
		// The stale run's completion is discarded in finish, so its
		// running and dirty marks must be dropped here or they would
		// stick forever and barrier-block every downstream cell.
		delete(r.running, cellID)
		delete(r.dirty, cellID)
	}

	return nil
}

// Delete unlinks and removes the cell. Consumers of its variables are not
// dirtied; they keep whatever value the kernel last saw and fail at their
// next execution.
func (r *Runner) Delete(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cells[cellID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	r.index.Unlink(cellID)
	delete(r.cells, cellID)
	delete(r.dirty, cellID)
	delete(r.running, cellID)

	r.log.Debug("cell deleted", "cell_id", cellID)

	return nil
}

// Get returns a snapshot of the cell.
func (r *Runner) Get(cellID string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.cells[cellID]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	return r.info(cellID, rec), nil
}

// List returns a snapshot of every cell, ordered by identifier.
func (r *Runner) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.cells))
	for cellID, rec := range r.cells {
		infos = append(infos, r.info(cellID, rec))
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

func (r *Runner) info(cellID string, rec *cellRecord) Info {
	_, dirty := r.dirty[cellID]
	_, running := r.running[cellID]

	return Info{
		ID:      cellID,
		Cell:    rec.cell,
		Live:    rec.live,
		Dirty:   dirty,
		Running: running,
	}
}

// Run schedules a user-initiated execution of one cell, regardless of its
// live flag.
func (r *Runner) Run(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cells[cellID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	r.scheduleRun(cellID)

	return nil
}

// GetVariable reads a variable straight from the kernel.
func (r *Runner) GetVariable(name string) (any, error) {
	return r.kernel.Get(name)
}

// Exposes returns the cell producing name, if any.
func (r *Runner) Exposes(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.index.Producer(name)
}

// Depends returns the cells reading name, sorted by identifier.
func (r *Runner) Depends(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumers := r.index.Consumers(name)

	cellIDs := make([]string, 0, len(consumers))
	for cellID := range consumers {
		cellIDs = append(cellIDs, cellID)
	}

	sort.Strings(cellIDs)

	return cellIDs
}

// Walk returns cellID and its transitive dependents in depth-first order.
func (r *Runner) Walk(cellID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cells[cellID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	return r.index.Walk(cellID), nil
}

// IsDirty reports whether the cell's outputs may be stale.
func (r *Runner) IsDirty(cellID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.dirty[cellID]

	return ok
}

// IsRunning reports whether the cell is currently executing.
func (r *Runner) IsRunning(cellID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.running[cellID]

	return ok
}

// OnFinished marks the cell's execution complete and advances the dirty
// frontier. In normal operation the kernel dispatch calls this itself; in
// dryrun mode the caller drives completions explicitly.
func (r *Runner) OnFinished(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.cells[cellID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, cellID)
	}

	r.finish(cellID, rec.gen, nil)

	return nil
}

// scheduleRun dispatches one cell: mark it running, dirty the downstream
// cone, and hand the code to the kernel. Caller holds the lock.
func (r *Runner) scheduleRun(cellID string) {
	rec := r.cells[cellID]
	rec.gen++
	gen := rec.gen

	r.emit(Event{Kind: EventRunning, CellID: cellID, Live: rec.live})

	r.running[cellID] = struct{}{}

	for _, descendant := range r.index.Walk(cellID) {
		r.dirty[descendant] = struct{}{}
		r.emit(Event{Kind: EventDirtied, CellID: descendant})
	}

	if r.dryrun {
		return
	}

	code := rec.cell.Code
	reads := rec.cell.Reads.Sorted()
	writes := rec.cell.Writes.Sorted()

	go func() {
		err := r.kernel.Run(r.ctx, code, reads, writes)

		r.mu.Lock()
		defer r.mu.Unlock()

		r.finish(cellID, gen, err)
	}()
}

// finish is the completion path. Stale completions, where the cell was
// deleted or replaced since dispatch, are dropped. Caller holds the lock.
func (r *Runner) finish(cellID string, gen uint64, runErr error) {
	rec, ok := r.cells[cellID]
	if !ok || rec.gen != gen {
		r.log.Debug("stale completion discarded", "cell_id", cellID)

		return
	}

	delete(r.running, cellID)
	delete(r.dirty, cellID)

	r.emit(Event{Kind: EventFinished, CellID: cellID, Err: runErr})

	if runErr != nil {
		// Downstream cells stay dirty until the user fixes and re-runs.
		r.log.Warn("cell failed", "cell_id", cellID, "error", runErr)

		return
	}

	writes := rec.cell.Writes.Sorted()
	for _, name := range writes {
		r.emit(Event{Kind: EventVarUpdated, Var: name})
	}

	dependents := make([]string, 0, 4)
	for dep := range r.index.Dependents(cellID) {
		dependents = append(dependents, dep)
	}

	sort.Strings(dependents)

	for _, dep := range dependents {
		depRec, found := r.cells[dep]
		if !found || !depRec.live {
			continue
		}

		if r.upstreamClean(dep) {
			r.scheduleRun(dep)
		}
	}
}

// upstreamClean reports whether every producer of the cell's reads is
// clean. A read with no producer does not block; the cell will simply
// fail at the kernel. Caller holds the lock.
func (r *Runner) upstreamClean(cellID string) bool {
	for name := range r.cells[cellID].cell.Reads {
		producer, ok := r.index.Producer(name)
		if !ok {
			continue
		}

		if _, isDirty := r.dirty[producer]; isDirty {
			return false
		}
	}

	return true
}

func (r *Runner) emit(event Event) {
	if r.callback != nil {
		r.callback(event)
	}
}
