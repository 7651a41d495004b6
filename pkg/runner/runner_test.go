package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflock/dataflock/pkg/analysis"
	"github.com/dataflock/dataflock/pkg/kernel"
	"github.com/dataflock/dataflock/pkg/runner"
)

var errBoom = errors.New("boom")

func cell(code string, reads, writes []string) analysis.Cell {
	return analysis.Cell{
		Code:   code,
		Reads:  analysis.NewNameSet(reads...),
		Writes: analysis.NewNameSet(writes...),
	}
}

// fakeKernel records Run calls and fails for cells listed in failCodes.
type fakeKernel struct {
	mu        sync.Mutex
	runs      []string
	failCodes map[string]error
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{failCodes: map[string]error{}}
}

func (k *fakeKernel) Run(_ context.Context, code string, _, _ []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.runs = append(k.runs, code)

	return k.failCodes[code]
}

func (k *fakeKernel) Get(string) (any, error) { return nil, kernel.ErrNameNotFound }
func (k *fakeKernel) Restart()                {}

func (k *fakeKernel) ranCodes() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	return append([]string(nil), k.runs...)
}

// parkKernel blocks every Run until released, so tests can hold a cell
// in the running state.
type parkKernel struct {
	started chan struct{}
	release chan struct{}
}

func newParkKernel() *parkKernel {
	return &parkKernel{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (k *parkKernel) Run(ctx context.Context, _ string, _, _ []string) error {
	k.started <- struct{}{}

	select {
	case <-k.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *parkKernel) Get(string) (any, error) { return nil, kernel.ErrNameNotFound }
func (k *parkKernel) Restart()                {}

// newDryRunner builds a runner that never dispatches to a kernel.
func newDryRunner(t *testing.T) *runner.Runner {
	t.Helper()

	r := runner.New(newFakeKernel())
	t.Cleanup(r.Close)
	r.SetDryrun()

	return r
}

func TestCreateExposesAndDepends(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)

	producer, ok := r.Exposes("a")
	require.True(t, ok)
	assert.Equal(t, cid1, producer)

	_, ok = r.Exposes("zzz")
	assert.False(t, ok)

	assert.Equal(t, []string{cid2}, r.Depends("a"))
	assert.Empty(t, r.Depends("b"))
}

func TestWalkChain(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)
	cid3, err := r.Create(cell("c = b", []string{"b"}, []string{"c"}), true)
	require.NoError(t, err)

	walk, err := r.Walk(cid1)
	require.NoError(t, err)
	assert.Equal(t, []string{cid1, cid2, cid3}, walk)
}

func TestWalkFanOut(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)
	cid3, err := r.Create(cell("c = b", []string{"b"}, []string{"c"}), true)
	require.NoError(t, err)
	cid4, err := r.Create(cell("d = b", []string{"b"}, []string{"d"}), true)
	require.NoError(t, err)

	walk, err := r.Walk(cid1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{cid1, cid2, cid3, cid4}, walk)
}

func TestCreateDuplicateName(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	_, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	_, err = r.Create(cell("a = 2", nil, []string{"a"}), true)
	require.ErrorIs(t, err, runner.ErrDuplicateName)
}

func TestCreateLoop(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	_, err := r.Create(cell("a = c", []string{"c"}, []string{"a"}), true)
	require.NoError(t, err)
	_, err = r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)

	_, err = r.Create(cell("c = b", []string{"b"}, []string{"c"}), true)
	require.ErrorIs(t, err, runner.ErrLoop)
}

func TestCreateSelfLoop(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	_, err := r.Create(cell("a = a + 1", []string{"a"}, []string{"a"}), true)
	require.ErrorIs(t, err, runner.ErrLoop)
}

func TestUpdateRejectsLoop(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	_, err = r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)

	// a = b while b = a + 1 exists is a two-cell cycle.
	err = r.Update(cid1, cell("a = b", []string{"b"}, []string{"a"}), true)
	require.ErrorIs(t, err, runner.ErrLoop)
}

func TestUpdateLoopCheckedAfterUnlink(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	// q = p + 1 reversed to p = q + 1: the only would-be cycle runs
	// through the old cell, which is gone once unlinked, so the update
	// must be accepted.
	cid1, err := r.Create(cell("q = p + 1", []string{"p"}, []string{"q"}), true)
	require.NoError(t, err)

	err = r.Update(cid1, cell("p = q + 1", []string{"q"}, []string{"p"}), true)
	require.NoError(t, err)

	producer, ok := r.Exposes("p")
	require.True(t, ok)
	assert.Equal(t, cid1, producer)
}

func TestUpdateRestoresOnFailure(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	_, err = r.Create(cell("z = 1", nil, []string{"z"}), true)
	require.NoError(t, err)

	// Claiming z must fail and leave the old link intact.
	err = r.Update(cid1, cell("z = 2", nil, []string{"z"}), true)
	require.ErrorIs(t, err, runner.ErrDuplicateName)

	producer, ok := r.Exposes("a")
	require.True(t, ok)
	assert.Equal(t, cid1, producer)
}

func TestUpdateUnknownCell(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	err := r.Update("nope", cell("a = 1", nil, []string{"a"}), true)
	require.ErrorIs(t, err, runner.ErrUnknownCell)
}

func TestDeleteReleasesNames(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	require.NoError(t, r.Delete(cid1))
	require.ErrorIs(t, r.Delete(cid1), runner.ErrUnknownCell)

	_, ok := r.Exposes("a")
	assert.False(t, ok)

	_, err = r.Create(cell("a = 2", nil, []string{"a"}), true)
	require.NoError(t, err)
}

func TestBarrier(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), false)
	require.NoError(t, err)

	// A live create schedules a first run; complete each one so the
	// scenario starts from a clean graph.
	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid2))

	cid3, err := r.Create(cell("c = b + 1", []string{"b"}, []string{"c"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid3))

	require.NoError(t, r.Run(cid1))

	assert.True(t, r.IsRunning(cid1))
	assert.True(t, r.IsDirty(cid1))
	assert.True(t, r.IsDirty(cid2))
	assert.True(t, r.IsDirty(cid3))
	assert.False(t, r.IsRunning(cid2))
	assert.False(t, r.IsRunning(cid3))

	// Finishing c1 schedules c2 but not c3: c3's upstream is still dirty.
	require.NoError(t, r.OnFinished(cid1))

	assert.False(t, r.IsDirty(cid1))
	assert.True(t, r.IsRunning(cid2))
	assert.True(t, r.IsDirty(cid3))
	assert.False(t, r.IsRunning(cid3))

	require.NoError(t, r.OnFinished(cid2))

	assert.False(t, r.IsDirty(cid2))
	assert.True(t, r.IsRunning(cid3))

	require.NoError(t, r.OnFinished(cid3))

	for _, cid := range []string{cid1, cid2, cid3} {
		assert.False(t, r.IsDirty(cid))
		assert.False(t, r.IsRunning(cid))
	}
}

func TestBarrierDiamond(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), false)
	require.NoError(t, err)

	// Complete the creation run of every live cell before the scenario.
	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid2))

	cid3, err := r.Create(cell("c = a + 2", []string{"a"}, []string{"c"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid3))

	cid4, err := r.Create(cell("d = b + c", []string{"b", "c"}, []string{"d"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid4))

	require.NoError(t, r.Run(cid1))
	require.NoError(t, r.OnFinished(cid1))

	// Both branches run in parallel; the join waits for both.
	assert.True(t, r.IsRunning(cid2))
	assert.True(t, r.IsRunning(cid3))
	assert.False(t, r.IsRunning(cid4))

	require.NoError(t, r.OnFinished(cid2))
	assert.False(t, r.IsRunning(cid4), "join must wait for the second branch")

	require.NoError(t, r.OnFinished(cid3))
	assert.True(t, r.IsRunning(cid4))

	require.NoError(t, r.OnFinished(cid4))
	assert.False(t, r.IsDirty(cid4))
}

func TestLiveFalseNotScheduled(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), false)
	require.NoError(t, err)
	cid2, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), false)
	require.NoError(t, err)
	cid3, err := r.Create(cell("c = b + 1", []string{"b"}, []string{"c"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid3)) // complete the creation run

	require.NoError(t, r.Run(cid1))
	require.NoError(t, r.OnFinished(cid1))

	// A non-live cell stays dirty instead of running.
	assert.False(t, r.IsRunning(cid2))
	assert.True(t, r.IsDirty(cid2))

	// A manual run overrides the live flag.
	require.NoError(t, r.Run(cid2))
	assert.True(t, r.IsRunning(cid2))

	require.NoError(t, r.OnFinished(cid2))
	assert.True(t, r.IsRunning(cid3))
}

func TestCreateLiveSchedulesImmediately(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	assert.True(t, r.IsRunning(cid1))
	assert.True(t, r.IsDirty(cid1))

	cid2, err := r.Create(cell("x = 1", nil, []string{"x"}), false)
	require.NoError(t, err)

	assert.False(t, r.IsRunning(cid2))
	assert.False(t, r.IsDirty(cid2))
}

func TestEvents(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	var events []runner.Event

	r.SetCallback(func(event runner.Event) {
		events = append(events, event)
	})

	cid, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	require.NoError(t, r.OnFinished(cid))

	kinds := make([]runner.EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}

	assert.Equal(t, []runner.EventKind{
		runner.EventCreated,
		runner.EventRunning,
		runner.EventDirtied,
		runner.EventFinished,
		runner.EventVarUpdated,
	}, kinds)

	assert.Equal(t, cid, events[0].CellID)
	assert.Equal(t, "a = 1", events[0].Code)
	assert.Equal(t, "a", events[4].Var)
}

func TestKernelExecution(t *testing.T) {
	t.Parallel()

	kern := newFakeKernel()
	r := runner.New(kern)
	t.Cleanup(r.Close)

	cid1, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)
	_, err = r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		codes := kern.ranCodes()

		return len(codes) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return !r.IsDirty(cid1)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestKernelFailureLeavesDownstreamDirty(t *testing.T) {
	t.Parallel()

	kern := newFakeKernel()
	kern.failCodes["a = boom()"] = errBoom

	r := runner.New(kern)
	t.Cleanup(r.Close)

	var (
		mu       sync.Mutex
		finished []error
	)

	r.SetCallback(func(event runner.Event) {
		if event.Kind == runner.EventFinished {
			mu.Lock()
			finished = append(finished, event.Err)
			mu.Unlock()
		}
	})

	cid2pre, err := r.Create(cell("b = a + 1", []string{"a"}, []string{"b"}), false)
	require.NoError(t, err)

	cid1, err := r.Create(cell("a = boom()", nil, []string{"a"}), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(finished) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.ErrorIs(t, finished[0], errBoom)
	mu.Unlock()

	// The failed cell is clean again, its consumer stays dirty.
	assert.False(t, r.IsDirty(cid1))
	assert.True(t, r.IsDirty(cid2pre))
	assert.False(t, r.IsRunning(cid2pre))
}

func TestUpdateWhileRunningClearsState(t *testing.T) {
	t.Parallel()

	kern := newParkKernel()
	r := runner.New(kern)
	t.Cleanup(r.Close)

	cid, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	<-kern.started
	require.True(t, r.IsRunning(cid))
	require.True(t, r.IsDirty(cid))

	// Replacing the cell without rescheduling disowns the in-flight run.
	require.NoError(t, r.Update(cid, cell("a = 2", nil, []string{"a"}), false))

	assert.False(t, r.IsRunning(cid))
	assert.False(t, r.IsDirty(cid))

	// The disowned run's completion must not resurrect the marks.
	close(kern.release)

	require.Never(t, func() bool {
		return r.IsRunning(cid) || r.IsDirty(cid)
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestGetAndList(t *testing.T) {
	t.Parallel()

	r := newDryRunner(t)

	cid, err := r.Create(cell("a = 1", nil, []string{"a"}), true)
	require.NoError(t, err)

	info, err := r.Get(cid)
	require.NoError(t, err)
	assert.Equal(t, "a = 1", info.Cell.Code)
	assert.True(t, info.Live)
	assert.True(t, info.Dirty)
	assert.True(t, info.Running)

	_, err = r.Get("nope")
	require.ErrorIs(t, err, runner.ErrUnknownCell)

	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, cid, infos[0].ID)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := runner.NewRegistry(func() kernel.Kernel { return newFakeKernel() })
	t.Cleanup(registry.Close)

	first, err := registry.Create("default")
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = registry.Create("default")
	require.ErrorIs(t, err, runner.ErrDuplicateEnvironment)

	got, err := registry.Get("default")
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = registry.Get("missing")
	require.ErrorIs(t, err, runner.ErrUnknownEnvironment)

	_, err = registry.Create("other")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "other"}, registry.List())

	require.NoError(t, registry.Delete("other"))
	require.ErrorIs(t, registry.Delete("other"), runner.ErrUnknownEnvironment)
	assert.Equal(t, []string{"default"}, registry.List())
}

func TestRegistryReady(t *testing.T) {
	t.Parallel()

	registry := runner.NewRegistry(func() kernel.Kernel { return newFakeKernel() })
	t.Cleanup(registry.Close)

	require.NoError(t, registry.Ready(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, registry.Ready(cancelled), context.Canceled)

	require.Error(t, runner.NewRegistry(nil).Ready(context.Background()))
}
