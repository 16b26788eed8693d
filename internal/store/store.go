package store

import (
	"context"
	"errors"

	"milkrun/internal/model"
)

// Store is the persistence interface used by the API server and the dispatch engine.
type Store interface {
	// Orders
	ListOrders(ctx context.Context, statuses []string) ([]model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)

	// Drivers
	GetDriver(ctx context.Context, id string) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)

	// Assignments
	GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error)
	ListAssignmentsForDriver(ctx context.Context, driverID string) ([]model.DispatchAssignment, error)

	// WithDriverTx runs fn while holding the exclusive lock on driverID. Writes made through
	// the DriverTx commit together when fn returns nil and are discarded otherwise.
	// An unknown driver yields ErrNotFound without calling fn.
	WithDriverTx(ctx context.Context, driverID string, fn func(DriverTx) error) error

	Ping(ctx context.Context) error
}

// DriverTx is the unit of work scoped to one locked driver.
type DriverTx interface {
	// Driver is the row as read when the lock was taken.
	Driver() model.Driver
	// ActiveCount recounts the driver's non-terminal assignments.
	ActiveCount(ctx context.Context) (int, error)
	// Attempt runs fn so that a failure undoes only the writes fn made.
	Attempt(ctx context.Context, fn func() error) error

	DispatchOrder(ctx context.Context, orderID string, d model.OrderDispatch) (model.Order, error)
	// ReleaseOrder moves an order back to status. Returning to pending clears its dispatch fields.
	ReleaseOrder(ctx context.Context, orderID, status string) error
	InsertAssignment(ctx context.Context, a model.DispatchAssignment) (model.DispatchAssignment, error)
	GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error)
	// UpdateAssignmentStatus is a compare-and-set; ErrStaleAssignment when the row is not in from.
	UpdateAssignmentStatus(ctx context.Context, id string, from, to model.AssignmentStatus) error
	SetDriverLoad(ctx context.Context, status model.DriverStatus, active int) error
}

// Seeder loads directory data. Used by `serve --seed` and tests.
type Seeder interface {
	UpsertDriver(ctx context.Context, d model.Driver) error
	UpsertOrder(ctx context.Context, o model.Order) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrOrderNotDispatchable: the order has no coordinates or is already out for delivery, delivered or cancelled.
	ErrOrderNotDispatchable = errors.New("order not dispatchable")
	ErrStaleAssignment      = errors.New("assignment changed concurrently")
)

func statusSet(statuses []string) map[string]bool {
	if len(statuses) == 0 {
		return nil
	}
	set := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}
