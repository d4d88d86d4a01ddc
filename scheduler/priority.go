package scheduler

// CellID names a state cell owned by a Scheduler.
type CellID string

// Priority classifies an update request.
type Priority int

const (
	// PriorityHigh requests are applied synchronously and are never superseded.
	PriorityHigh Priority = iota + 1
	// PriorityLow requests are deferred until the next flush and may be
	// replaced by a newer low-priority request for the same cell.
	PriorityLow
)

// String returns the lower-case priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the declared priority classes.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityLow
}

// CellState enumerates the deferred-update lifecycle of a cell.
type CellState string

const (
	StateIdle       CellState = "idle"
	StatePendingLow CellState = "pending-low"
	StateFlushed    CellState = "flushed"
)

// Request is a single mutation. Compute receives the current value and returns
// the next one. Compute may run while the scheduler holds its lock, so it must not
// call back into the Scheduler.
type Request struct {
	Cell     CellID
	Priority Priority
	Compute  func(any) (any, error)
}

// Snapshot is a point-in-time copy of a cell.
type Snapshot struct {
	Cell    CellID
	Value   any
	Version uint64
	State   CellState
}
