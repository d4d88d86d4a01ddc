package scheduler

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// stateCell is guarded by Scheduler.mu, except writeMu which serializes
// high-priority applies on the cell. Lock order is writeMu before mu.
type stateCell struct {
	id      CellID
	typ     reflect.Type
	value   any
	version uint64
	state   CellState

	writeMu      sync.Mutex
	highInFlight int
}

func (c *stateCell) accepts(v any) bool {
	if c.typ == nil {
		return true
	}
	if v == nil {
		switch c.typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(c.typ)
}

func (c *stateCell) typeError(v any) error {
	got := "<nil>"
	if v != nil {
		got = reflect.TypeOf(v).String()
	}
	return &CellTypeError{Cell: c.id, Want: c.typ.String(), Got: got}
}

// Cell is a typed handle on a cell owned by a Scheduler. The zero value is not
// usable; obtain one from Register or Lookup.
type Cell[T any] struct {
	id CellID
	s  *Scheduler
}

// Register creates a cell holding initial at version 0.
func Register[T any](s *Scheduler, id CellID, initial T) (Cell[T], error) {
	if s == nil {
		return Cell[T]{}, fmt.Errorf("scheduler: register %q: nil scheduler", string(id))
	}
	id = CellID(strings.TrimSpace(string(id)))
	if id == "" {
		return Cell[T]{}, ErrEmptyCellID
	}
	cell := &stateCell{
		id:    id,
		typ:   reflect.TypeOf((*T)(nil)).Elem(),
		value: initial,
		state: StateIdle,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cells[id]; exists {
		return Cell[T]{}, fmt.Errorf("%w: %s", ErrDuplicateCell, id)
	}
	s.cells[id] = cell
	return Cell[T]{id: id, s: s}, nil
}

// Lookup returns a typed handle for an existing cell.
func Lookup[T any](s *Scheduler, id CellID) (Cell[T], error) {
	if s == nil {
		return Cell[T]{}, &UnknownCellError{Cell: id}
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[id]
	if !ok {
		return Cell[T]{}, &UnknownCellError{Cell: id}
	}
	if cell.typ != want {
		return Cell[T]{}, &CellTypeError{Cell: id, Want: cell.typ.String(), Got: want.String()}
	}
	return Cell[T]{id: id, s: s}, nil
}

// ID returns the cell id.
func (c Cell[T]) ID() CellID { return c.id }

// Get returns the current value and version.
func (c Cell[T]) Get() (T, uint64) {
	var zero T
	snap, err := c.s.Snapshot(c.id)
	if err != nil {
		return zero, 0
	}
	value, ok := snap.Value.(T)
	if !ok {
		return zero, snap.Version
	}
	return value, snap.Version
}

// Submit schedules fn at the given priority.
func (c Cell[T]) Submit(p Priority, fn func(T) (T, error)) error {
	if fn == nil {
		return ErrNilCompute
	}
	return c.s.Submit(Request{
		Cell:     c.id,
		Priority: p,
		Compute: func(current any) (any, error) {
			var value T
			if current != nil {
				typed, ok := current.(T)
				if !ok {
					return nil, &CellTypeError{Cell: c.id, Want: fmt.Sprintf("%T", value), Got: fmt.Sprintf("%T", current)}
				}
				value = typed
			}
			return fn(value)
		},
	})
}

// Update is Submit for compute functions that cannot fail.
func (c Cell[T]) Update(p Priority, fn func(T) T) error {
	if fn == nil {
		return ErrNilCompute
	}
	return c.Submit(p, func(v T) (T, error) { return fn(v), nil })
}

// Set replaces the value at the given priority.
func (c Cell[T]) Set(p Priority, v T) error {
	return c.Submit(p, func(T) (T, error) { return v, nil })
}

// Cancel drops the cell's pending low-priority request, if any.
func (c Cell[T]) Cancel() bool {
	return c.s.CancelPending(c.id)
}
