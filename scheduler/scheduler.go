package scheduler

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kingrea/fiberlab/scheduler"

// Scheduler owns a set of state cells and the pending low-priority batch.
// Submit, CancelPending and Flush are mutually exclusive on the batch; it is
// safe to call them from multiple goroutines.
type Scheduler struct {
	mu        sync.Mutex
	cells     map[CellID]*stateCell
	pending   map[CellID]Request
	order     []CellID
	scheduled bool
	// epoch counts high-priority submissions; inFlight counts the ones that
	// have not committed yet.
	epoch    uint64
	inFlight int

	wake     chan struct{}
	notifier *notifier

	logger             Logger
	tracer             trace.Tracer
	idleDelay          time.Duration
	subscriberCapacity int
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithLogger routes scheduler diagnostics to l.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the tracer used for submit and flush spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithIdleDelay makes Run wait d at each idle point instead of just yielding.
func WithIdleDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleDelay = d
		}
	}
}

// WithSubscriberCapacity overrides the buffer size of each Subscription.
func WithSubscriberCapacity(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.subscriberCapacity = n
		}
	}
}

// New returns an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		cells:              map[CellID]*stateCell{},
		pending:            map[CellID]Request{},
		wake:               make(chan struct{}, 1),
		logger:             nopLogger{},
		tracer:             otel.Tracer(tracerName),
		subscriberCapacity: defaultSubscriberCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.notifier = newNotifier(s.subscriberCapacity, s.logger)
	return s
}

// Submit applies a high-priority request immediately or queues a low-priority
// one for the next flush.
func (s *Scheduler) Submit(req Request) error {
	if req.Compute == nil {
		return ErrNilCompute
	}
	switch req.Priority {
	case PriorityHigh:
		return s.submitHigh(req)
	case PriorityLow:
		return s.submitLow(req)
	default:
		return ErrInvalidPriority
	}
}

func (s *Scheduler) submitHigh(req Request) error {
	_, span := s.tracer.Start(context.Background(), "scheduler.submit_high",
		trace.WithAttributes(attribute.String("scheduler.cell", string(req.Cell))))
	defer span.End()

	s.mu.Lock()
	cell, ok := s.cells[req.Cell]
	if !ok {
		s.mu.Unlock()
		err := &UnknownCellError{Cell: req.Cell}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.epoch++
	s.inFlight++
	cell.highInFlight++
	s.mu.Unlock()

	cell.writeMu.Lock()
	defer cell.writeMu.Unlock()

	// Flush skips cells with a high-priority write in flight, so the value
	// read here cannot change before commit.
	s.mu.Lock()
	current := cell.value
	s.mu.Unlock()

	next, err := runCompute(req.Cell, req.Compute, current)

	s.mu.Lock()
	cell.highInFlight--
	s.inFlight--
	if err == nil && !cell.accepts(next) {
		err = cell.typeError(next)
	}
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	cell.value = next
	cell.version++
	if s.dropPendingLocked(cell.id) {
		cell.state = StateIdle
		s.logger.Printf("scheduler: high-priority write to %s superseded its pending low-priority update", cell.id)
	}
	change := Change{Cell: cell.id, Version: cell.version}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int64("scheduler.version", int64(change.Version)))
	s.notifier.notify(Notification{Kind: NotifyHigh, Changes: []Change{change}})
	return nil
}

func (s *Scheduler) submitLow(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[req.Cell]
	if !ok {
		return &UnknownCellError{Cell: req.Cell}
	}
	if _, queued := s.pending[req.Cell]; !queued {
		s.order = append(s.order, req.Cell)
	}
	s.pending[req.Cell] = req
	cell.state = StatePendingLow
	if !s.scheduled {
		s.scheduled = true
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// CancelPending removes the cell's unflushed low-priority request and reports
// whether there was one.
func (s *Scheduler) CancelPending(id CellID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropPendingLocked(id) {
		return false
	}
	if cell, ok := s.cells[id]; ok {
		cell.state = StateIdle
	}
	return true
}

func (s *Scheduler) dropPendingLocked(id CellID) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if len(s.order) == 0 {
		s.scheduled = false
	}
	return true
}

// Flush applies the pending batch now, without waiting for an idle point.
// Entries for cells with a high-priority write in flight stay queued.
func (s *Scheduler) Flush() error {
	_, err := s.flush(context.Background(), nil)
	return err
}

// flush applies the pending batch if guard, evaluated under the lock, allows
// it. It reports whether any entry was applied or failed. Entries for cells
// with a high-priority write in flight stay queued.
func (s *Scheduler) flush(ctx context.Context, guard func() bool) (bool, error) {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return false, nil
	}
	batch := make([]Request, 0, len(s.order))
	for _, id := range s.order {
		batch = append(batch, s.pending[id])
	}
	s.pending = map[CellID]Request{}
	s.order = nil
	s.scheduled = false
	if len(batch) == 0 {
		s.mu.Unlock()
		return false, nil
	}

	_, span := s.tracer.Start(ctx, "scheduler.flush",
		trace.WithAttributes(attribute.Int("scheduler.batch_size", len(batch))))
	defer span.End()

	var (
		changes  []Change
		failures []CellFailure
		flushed  []*stateCell
	)
	for _, req := range batch {
		cell := s.cells[req.Cell]
		if cell.highInFlight > 0 {
			// Left queued: the high-priority commit drops it, a failure keeps it.
			s.pending[cell.id] = req
			s.order = append(s.order, cell.id)
			s.logger.Printf("scheduler: deferred low-priority update to %s (high-priority write in flight)", cell.id)
			continue
		}
		next, err := runCompute(cell.id, req.Compute, cell.value)
		if err == nil && !cell.accepts(next) {
			err = cell.typeError(next)
		}
		if err != nil {
			cell.state = StateIdle
			failures = append(failures, CellFailure{Cell: cell.id, Err: err})
			continue
		}
		cell.value = next
		cell.version++
		cell.state = StateFlushed
		changes = append(changes, Change{Cell: cell.id, Version: cell.version})
		flushed = append(flushed, cell)
	}
	if len(s.order) > 0 {
		s.scheduled = true
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	if len(changes) == 0 && len(failures) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	note := Notification{Kind: NotifyFlush, Changes: changes}
	for _, f := range failures {
		note.Failed = append(note.Failed, f.Cell)
	}
	s.notifier.notify(note)

	s.mu.Lock()
	for _, cell := range flushed {
		if cell.state == StateFlushed {
			cell.state = StateIdle
		}
	}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("scheduler.applied", len(changes)))
	if len(failures) == 0 {
		return true, nil
	}
	err := &BatchFailure{Failures: failures}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Printf("%v", err)
	return true, err
}

// Snapshot returns a copy of the cell's value, version and state.
func (s *Scheduler) Snapshot(id CellID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[id]
	if !ok {
		return Snapshot{}, &UnknownCellError{Cell: id}
	}
	return Snapshot{Cell: id, Value: cell.value, Version: cell.version, State: cell.state}, nil
}

// CellState returns the deferred-update state of a cell.
func (s *Scheduler) CellState(id CellID) (CellState, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return "", err
	}
	return snap.State, nil
}

// Pending lists the cells with a queued low-priority request, in flush order.
func (s *Scheduler) Pending() []CellID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	out := make([]CellID, len(s.order))
	copy(out, s.order)
	return out
}

// Observe registers fn for every notification. The returned function removes
// it.
func (s *Scheduler) Observe(fn Observer) (cancel func()) {
	return s.notifier.observe(fn)
}

// Subscribe returns a buffered notification feed. Slow readers lose older
// notifications rather than blocking the scheduler.
func (s *Scheduler) Subscribe() Subscription {
	return s.notifier.subscribe()
}

func runCompute(id CellID, compute func(any) (any, error), current any) (next any, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = &ComputeError{Cell: id, Panic: r}
		}
	}()
	return compute(current)
}
