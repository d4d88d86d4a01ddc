package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateCell is returned when registering an id that already exists.
	ErrDuplicateCell = errors.New("scheduler: cell already registered")
	// ErrEmptyCellID is returned when a cell id is blank.
	ErrEmptyCellID = errors.New("scheduler: cell id is required")
	// ErrNilCompute is returned for requests without a compute function.
	ErrNilCompute = errors.New("scheduler: request has no compute function")
	// ErrInvalidPriority is returned for requests with an undeclared priority.
	ErrInvalidPriority = errors.New("scheduler: invalid priority")
)

// UnknownCellError reports a request that targets a cell the scheduler does
// not own.
type UnknownCellError struct {
	Cell CellID
}

func (e *UnknownCellError) Error() string {
	return fmt.Sprintf("scheduler: unknown cell %q", string(e.Cell))
}

// CellTypeError reports a value whose type does not match the type the cell
// was registered with.
type CellTypeError struct {
	Cell CellID
	Want string
	Got  string
}

func (e *CellTypeError) Error() string {
	return fmt.Sprintf("scheduler: cell %q holds %s, got %s", string(e.Cell), e.Want, e.Got)
}

// ComputeError wraps a panic raised by a compute function.
type ComputeError struct {
	Cell  CellID
	Panic any
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("scheduler: compute for %q panicked: %v", string(e.Cell), e.Panic)
}

// Unwrap returns the panic value when it is an error.
func (e *ComputeError) Unwrap() error {
	err, _ := e.Panic.(error)
	return err
}

// CellFailure pairs a cell with the error its compute function produced
// during a flush.
type CellFailure struct {
	Cell CellID
	Err  error
}

// BatchFailure is returned by Flush when one or more entries failed. Every
// other entry in the batch was still attempted.
type BatchFailure struct {
	Failures []CellFailure
}

func (b *BatchFailure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scheduler: flush failed for %d cell(s): ", len(b.Failures))
	for i, f := range b.Failures {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s: %v", f.Cell, f.Err)
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (b *BatchFailure) Unwrap() []error {
	errs := make([]error, 0, len(b.Failures))
	for _, f := range b.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Cells lists the failed cells in flush order.
func (b *BatchFailure) Cells() []CellID {
	ids := make([]CellID, 0, len(b.Failures))
	for _, f := range b.Failures {
		ids = append(ids, f.Cell)
	}
	return ids
}
