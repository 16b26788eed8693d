package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"milkrun/internal/model"
)

// Memory is an in-memory store used when no database URL is configured.
// Driver transactions serialise on a per-driver mutex and undo their writes
// from a journal on failure.
type Memory struct {
	mu          sync.Mutex
	orders      map[string]model.Order
	orderIDs    []string // insertion order
	drivers     map[string]model.Driver
	assignments map[string]model.DispatchAssignment
	assignIDs   []string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // driverId -> lock
}

func NewMemory() *Memory {
	return &Memory{
		orders:      map[string]model.Order{},
		drivers:     map[string]model.Driver{},
		assignments: map[string]model.DispatchAssignment{},
		locks:       map[string]*sync.Mutex{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) UpsertDriver(ctx context.Context, d model.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Status == "" {
		d.Status = model.DriverAvailable
	}
	d.MaxCapacity = 0
	m.drivers[d.ID] = d
	return nil
}

func (m *Memory) UpsertOrder(ctx context.Context, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		m.orderIDs = append(m.orderIDs, o.ID)
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) ListOrders(ctx context.Context, statuses []string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := statusSet(statuses)
	out := []model.Order{}
	for _, id := range m.orderIDs {
		o := m.orders[id]
		if want == nil || want[o.Status] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return model.DispatchAssignment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAssignmentsForDriver(ctx context.Context, driverID string) ([]model.DispatchAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.DispatchAssignment{}
	for _, id := range m.assignIDs {
		if a := m.assignments[id]; a.DriverID == driverID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) driverLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Memory) WithDriverTx(ctx context.Context, driverID string, fn func(DriverTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := m.driverLock(driverID)
	l.Lock()
	defer l.Unlock()

	d, err := m.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	tx := &memTx{m: m, driver: d}
	committed := false
	defer func() {
		// also covers a panic inside fn
		if !committed {
			tx.undo(0)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// memTx journals an inverse operation for every write.
type memTx struct {
	m       *Memory
	driver  model.Driver
	journal []func()
}

func (t *memTx) Driver() model.Driver { return t.driver }

// undo reverts journal entries past mark, newest first.
func (t *memTx) undo(mark int) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i := len(t.journal) - 1; i >= mark; i-- {
		t.journal[i]()
	}
	t.journal = t.journal[:mark]
}

func (t *memTx) Attempt(ctx context.Context, fn func() error) error {
	mark := len(t.journal)
	if err := fn(); err != nil {
		t.undo(mark)
		return err
	}
	return nil
}

func (t *memTx) ActiveCount(ctx context.Context) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	n := 0
	for _, a := range t.m.assignments {
		if a.DriverID == t.driver.ID && !a.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DispatchOrder(ctx context.Context, orderID string, d model.OrderDispatch) (model.Order, error) {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.orders[orderID]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	if !prev.Dispatchable() {
		return model.Order{}, ErrOrderNotDispatchable
	}
	o := prev
	at := d.DispatchedAt
	o.Status = d.Status
	o.TrackingNumber = d.TrackingNumber
	o.ShopID = d.ShopID
	o.DispatchedAt = &at
	m.orders[orderID] = o
	t.journal = append(t.journal, func() { m.orders[orderID] = prev })
	return o, nil
}

func (t *memTx) ReleaseOrder(ctx context.Context, orderID, status string) error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o := prev
	o.Status = status
	if status == model.OrderPending {
		o.TrackingNumber, o.ShopID, o.DispatchedAt = "", "", nil
	}
	m.orders[orderID] = o
	t.journal = append(t.journal, func() { m.orders[orderID] = prev })
	return nil
}

func (t *memTx) InsertAssignment(ctx context.Context, a model.DispatchAssignment) (model.DispatchAssignment, error) {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	m.assignments[a.ID] = a
	m.assignIDs = append(m.assignIDs, a.ID)
	id := a.ID
	t.journal = append(t.journal, func() {
		delete(m.assignments, id)
		// other drivers may have appended since
		for i := len(m.assignIDs) - 1; i >= 0; i-- {
			if m.assignIDs[i] == id {
				m.assignIDs = append(m.assignIDs[:i], m.assignIDs[i+1:]...)
				break
			}
		}
	})
	return a, nil
}

func (t *memTx) GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error) {
	return t.m.GetAssignment(ctx, id)
}

func (t *memTx) UpdateAssignmentStatus(ctx context.Context, id string, from, to model.AssignmentStatus) error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	if prev.Status != from {
		return ErrStaleAssignment
	}
	a := prev
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	m.assignments[id] = a
	t.journal = append(t.journal, func() { m.assignments[id] = prev })
	return nil
}

func (t *memTx) SetDriverLoad(ctx context.Context, status model.DriverStatus, active int) error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.drivers[t.driver.ID]
	if !ok {
		return ErrNotFound
	}
	d := prev
	d.Status = status
	d.ActiveOrderCount = active
	m.drivers[d.ID] = d
	t.journal = append(t.journal, func() { m.drivers[d.ID] = prev })
	return nil
}
