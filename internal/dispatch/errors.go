package dispatch

import (
	"errors"
	"fmt"

	"milkrun/internal/model"
	"milkrun/internal/store"
)

var ErrDriverNotFound = errors.New("driver not found")

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// CapacityError means the batch would push the driver past the vehicle's limit.
// Nothing was written.
type CapacityError struct {
	DriverID  string
	Current   int
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("driver %s at capacity: %d active + %d requested exceeds %d", e.DriverID, e.Current, e.Requested, e.Max)
}

// TransitionError is an event the assignment's current state does not accept.
type TransitionError struct {
	From  model.AssignmentStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an assignment that is %s", e.Event, e.From)
}

// OrderError is the failure of one order inside a commit; the rest of the batch proceeds.
type OrderError struct {
	OrderID string
	Err     error
}

func (e OrderError) Error() string { return e.OrderID + ": " + e.Reason() }
func (e OrderError) Unwrap() error { return e.Err }

// Reason is the client-facing description.
func (e OrderError) Reason() string {
	switch {
	case errors.Is(e.Err, store.ErrNotFound):
		return "order not found"
	case errors.Is(e.Err, store.ErrOrderNotDispatchable):
		return "order is not dispatchable"
	case e.Err == nil:
		return "unknown error"
	}
	return e.Err.Error()
}

func (e OrderError) failure() model.OrderFailure {
	return model.OrderFailure{OrderID: e.OrderID, Reason: e.Reason()}
}
