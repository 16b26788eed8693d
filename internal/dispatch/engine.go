// Package dispatch commits optimized clusters to drivers and runs the assignment lifecycle.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"milkrun/internal/events"
	"milkrun/internal/geo"
	"milkrun/internal/logger"
	"milkrun/internal/metrics"
	"milkrun/internal/model"
	"milkrun/internal/store"
)

// Config is the dispatch policy.
type Config struct {
	Capacities     model.CapacityTable
	Depot          geo.Point
	TrackingPrefix string
	// CommitTimeout bounds the writes of one commit. The caller's context
	// cannot cancel them once the capacity check has passed.
	CommitTimeout  time.Duration
}

// Engine owns every write that changes a driver's load.
type Engine struct {
	store store.Store
	cfg   Config
	seq   Sequence
	pub   events.Publisher
	log   logger.Logger
	now   func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

func WithSequence(s Sequence) Option          { return func(e *Engine) { e.seq = s } }
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.pub = p } }
func WithLogger(l logger.Logger) Option       { return func(e *Engine) { e.log = l } }
func WithClock(now func() time.Time) Option   { return func(e *Engine) { e.now = now } }

func NewEngine(st store.Store, cfg Config, opts ...Option) *Engine {
	if cfg.Capacities == nil {
		cfg.Capacities = model.DefaultCapacities()
	}
	if cfg.TrackingPrefix == "" {
		cfg.TrackingPrefix = "MR"
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 30 * time.Second
	}
	e := &Engine{store: st, cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	if e.seq == nil {
		e.seq = &CounterSequence{}
	}
	if e.pub == nil {
		e.pub = events.Nop{}
	}
	if e.log == nil {
		e.log = logger.Nop{}
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// errNothingAssigned rolls back a commit in which every order failed.
var errNothingAssigned = errors.New("no order could be assigned")

func (e *Engine) validate(req model.CommitRequest) (model.CommitRequest, error) {
	req.DriverID = strings.TrimSpace(req.DriverID)
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.TrackingPrefix = strings.TrimSpace(req.TrackingPrefix)
	if req.DriverID == "" {
		return req, &ValidationError{Field: "driverId", Reason: "required"}
	}
	if req.ShopID == "" {
		return req, &ValidationError{Field: "shopId", Reason: "required"}
	}
	if len(req.OrderIDs) == 0 {
		return req, &ValidationError{Field: "orderIds", Reason: "at least one order is required"}
	}
	seen := make(map[string]bool, len(req.OrderIDs))
	ids := make([]string, len(req.OrderIDs))
	for i, id := range req.OrderIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return req, &ValidationError{Field: "orderIds", Reason: "blank order id"}
		}
		if seen[id] {
			return req, &ValidationError{Field: "orderIds", Reason: "duplicate order id " + id}
		}
		seen[id] = true
		ids[i] = id
	}
	req.OrderIDs = ids
	if req.TrackingPrefix == "" {
		req.TrackingPrefix = e.cfg.TrackingPrefix
	}
	if !validPrefix(req.TrackingPrefix) {
		return req, &ValidationError{Field: "trackingPrefix", Reason: "must be 1-12 alphanumeric characters"}
	}
	return req, nil
}

// CommitDispatch assigns req.OrderIDs to one driver. The capacity check is all or nothing;
// after it passes each order succeeds or fails on its own. A commit in which no order
// succeeds is rolled back and reported with Success=false and a nil error.
func (e *Engine) CommitDispatch(ctx context.Context, req model.CommitRequest) (model.CommitResult, error) {
	req, err := e.validate(req)
	if err != nil {
		metrics.DispatchCommits.WithLabelValues("invalid").Inc()
		return model.CommitResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return model.CommitResult{}, err
	}
	// In-flight batches run to completion, so the transaction lives on a
	// context detached from the caller and bounded by CommitTimeout.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
	defer cancel()

	var (
		entered  bool
		res      model.CommitResult
		failures []model.OrderFailure
	)
	err = e.store.WithDriverTx(wctx, req.DriverID, func(tx store.DriverTx) error {
		entered = true
		failures = nil
		// nothing is written yet, so a caller that gave up can still back out
		if err := ctx.Err(); err != nil {
			return err
		}
		d := tx.Driver()
		if d.Status == model.DriverOffline {
			return &ValidationError{Field: "driverId", Reason: "driver is offline"}
		}
		limit, ok := e.cfg.Capacities.Capacity(d.VehicleType)
		if !ok {
			return &ValidationError{Field: "driverId", Reason: "unknown vehicle type " + string(d.VehicleType)}
		}
		active, err := tx.ActiveCount(wctx)
		if err != nil {
			return err
		}
		if active+len(req.OrderIDs) > limit {
			return &CapacityError{DriverID: d.ID, Current: active, Requested: len(req.OrderIDs), Max: limit}
		}

		assigned := make([]model.DispatchAssignment, 0, len(req.OrderIDs))
		for _, id := range req.OrderIDs {
			var a model.DispatchAssignment
			err := tx.Attempt(wctx, func() error {
				var err error
				a, err = e.assignOne(wctx, tx, req, id)
				return err
			})
			if err != nil {
				oe := OrderError{OrderID: id, Err: err}
				e.log.Warnf("dispatch order %s to driver %s: %v", id, d.ID, err)
				failures = append(failures, oe.failure())
				continue
			}
			assigned = append(assigned, a)
		}

		res = model.CommitResult{DriverStatus: d.Status, ActiveOrders: active}
		if len(assigned) == 0 {
			return errNothingAssigned
		}
		load, err := tx.ActiveCount(wctx)
		if err != nil {
			return err
		}
		status := driverStatusFor(d.Status, load, limit)
		if err := tx.SetDriverLoad(wctx, status, load); err != nil {
			return err
		}
		res = model.CommitResult{
			Success:        true,
			OrdersAssigned: len(assigned),
			Assignments:    assigned,
			DriverStatus:   status,
			ActiveOrders:   load,
		}
		return nil
	})

	res.Errors = failures
	if res.Errors == nil {
		res.Errors = []model.OrderFailure{}
	}
	res.TrackingNumbers = make([]string, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		res.TrackingNumbers = append(res.TrackingNumbers, a.TrackingNumber)
	}

	switch {
	case errors.Is(err, errNothingAssigned):
		metrics.DispatchCommits.WithLabelValues("failed").Inc()
		metrics.DispatchOrders.WithLabelValues("failed").Add(float64(len(failures)))
		return res, nil
	case !entered && errors.Is(err, store.ErrNotFound):
		metrics.DispatchCommits.WithLabelValues("invalid").Inc()
		return model.CommitResult{}, ErrDriverNotFound
	case err != nil:
		var ce *CapacityError
		var ve *ValidationError
		switch {
		case errors.As(err, &ce):
			metrics.DispatchCommits.WithLabelValues("capacity").Inc()
		case errors.As(err, &ve):
			metrics.DispatchCommits.WithLabelValues("invalid").Inc()
		default:
			metrics.DispatchCommits.WithLabelValues("error").Inc()
		}
		return model.CommitResult{}, err
	}

	outcome := "success"
	if len(failures) > 0 {
		outcome = "partial"
	}
	metrics.DispatchCommits.WithLabelValues(outcome).Inc()
	metrics.DispatchOrders.WithLabelValues("assigned").Add(float64(res.OrdersAssigned))
	metrics.DispatchOrders.WithLabelValues("failed").Add(float64(len(failures)))
	e.log.Infof("dispatched %d/%d orders to driver %s (%s, %d active)", res.OrdersAssigned, len(req.OrderIDs), req.DriverID, res.DriverStatus, res.ActiveOrders)
	e.publishCommit(wctx, req, res)
	return res, nil
}

func (e *Engine) assignOne(ctx context.Context, tx store.DriverTx, req model.CommitRequest, orderID string) (model.DispatchAssignment, error) {
	seq, err := e.seq.Next(ctx)
	if err != nil {
		return model.DispatchAssignment{}, err
	}
	now := e.now()
	tracking := FormatTracking(req.TrackingPrefix, now, seq)
	o, err := tx.DispatchOrder(ctx, orderID, model.OrderDispatch{
		Status:         model.OrderInTransit,
		TrackingNumber: tracking,
		ShopID:         req.ShopID,
		DispatchedAt:   now,
	})
	if err != nil {
		return model.DispatchAssignment{}, err
	}
	return tx.InsertAssignment(ctx, model.DispatchAssignment{
		OrderID:        orderID,
		DriverID:       req.DriverID,
		ShopID:         req.ShopID,
		ClusterID:      req.ClusterID,
		TrackingNumber: tracking,
		Status:         model.AssignmentAssigned,
		Pickup:         e.cfg.Depot,
		Dropoff:        o.Location(),
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
	})
}

func (e *Engine) publishCommit(ctx context.Context, req model.CommitRequest, res model.CommitResult) {
	ts := e.now()
	_ = e.pub.Publish(ctx, events.Event{
		Type:     events.TypeDispatchCommitted,
		DriverID: req.DriverID,
		Data: map[string]any{
			"clusterId":        req.ClusterID,
			"shopId":           req.ShopID,
			"ordersAssigned":   res.OrdersAssigned,
			"trackingNumbers":  res.TrackingNumbers,
			"driverStatus":     res.DriverStatus,
			"activeOrderCount": res.ActiveOrders,
		},
		TS: ts,
	})
	for _, a := range res.Assignments {
		e.publishAssignment(ctx, a, ts)
	}
}

func (e *Engine) publishAssignment(ctx context.Context, a model.DispatchAssignment, ts time.Time) {
	_ = e.pub.Publish(ctx, events.Event{
		Type:         events.TypeAssignmentPrefix + string(a.Status),
		DriverID:     a.DriverID,
		AssignmentID: a.ID,
		OrderID:      a.OrderID,
		Data: map[string]any{
			"trackingNumber": a.TrackingNumber,
			"status":         a.Status,
			"pickup":         a.Pickup,
			"dropoff":        a.Dropoff,
		},
		TS: ts,
	})
}

// Advance applies ev to an assignment under its driver's lock. Terminal steps write the
// order status back and reassess the driver's availability from a fresh count.
func (e *Engine) Advance(ctx context.Context, assignmentID string, ev Event) (model.DispatchAssignment, error) {
	cur, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return model.DispatchAssignment{}, err
	}
	var out model.DispatchAssignment
	err = e.store.WithDriverTx(ctx, cur.DriverID, func(tx store.DriverTx) error {
		a, err := tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		to, err := Next(a.Status, ev)
		if err != nil {
			return err
		}
		if err := tx.UpdateAssignmentStatus(ctx, a.ID, a.Status, to); err != nil {
			return err
		}
		if st, ok := orderStatusAfter(ev); ok {
			if err := tx.ReleaseOrder(ctx, a.OrderID, st); err != nil {
				return err
			}
		}
		if to.Terminal() {
			d := tx.Driver()
			load, err := tx.ActiveCount(ctx)
			if err != nil {
				return err
			}
			limit, ok := e.cfg.Capacities.Capacity(d.VehicleType)
			if !ok {
				// unknown vehicle: never mark busy from here
				limit = load + 1
			}
			if err := tx.SetDriverLoad(ctx, driverStatusFor(d.Status, load, limit), load); err != nil {
				return err
			}
		}
		a.Status = to
		a.UpdatedAt = e.now()
		out = a
		return nil
	})
	if err != nil {
		return model.DispatchAssignment{}, err
	}
	metrics.AssignmentTransitions.WithLabelValues(string(ev), string(out.Status)).Inc()
	e.log.Debugw("assignment advanced", map[string]any{"assignmentId": out.ID, "event": string(ev), "status": string(out.Status), "driverId": out.DriverID})
	e.publishAssignment(ctx, out, out.UpdatedAt)
	return out, nil
}
