package runner

// EventKind discriminates runner notifications.
type EventKind string

// Runner event kinds, in rough lifecycle order.
const (
	// EventCreated fires when a cell is added to the runner.
	EventCreated EventKind = "created"
	// EventUpdated fires when a cell's code is replaced.
	EventUpdated EventKind = "updated"
	// EventRunning fires when a cell is dispatched to the kernel.
	EventRunning EventKind = "running"
	// EventDirtied fires for every cell invalidated by a dispatch,
	// including the dispatched cell itself.
	EventDirtied EventKind = "dirtied"
	// EventFinished fires when a cell's execution completes, successfully
	// or not.
	EventFinished EventKind = "finished"
	// EventVarUpdated fires for each variable a finished cell wrote.
	EventVarUpdated EventKind = "var_updated"
)

// Event is a tagged notification emitted by the runner. Which fields are
// populated depends on Kind: cell events carry CellID (plus Live and Code
// where noted), EventFinished additionally carries Err on failure, and
// EventVarUpdated carries Var only.
type Event struct {
	Kind   EventKind
	CellID string
	Live   bool
	Code   string
	Var    string
	Err    error
}

// Callback receives runner events. It is invoked synchronously while the
// runner holds its lock, so it must not call back into the runner.
type Callback func(Event)
