package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"milkrun/internal/auth"
	"milkrun/internal/config"
	"milkrun/internal/dispatch"
	"milkrun/internal/model"
	"milkrun/internal/opt"
	"milkrun/internal/store"
)

// OptimizeParams builds the optimizer parameters for one run from the service configuration.
func OptimizeParams(cfg config.Config, capacity int, radiusKm float64) opt.Params {
	o := cfg.Optimizer
	return opt.Params{
		Capacity:              capacity,
		RadiusKm:              cfg.ClampRadius(radiusKm),
		Depot:                 cfg.Depot(),
		AverageSpeedKmH:       o.AverageSpeedKmH,
		ServiceMinutesPerStop: o.ServiceMinutesPerStop,
		TwoOptPasses:          o.TwoOptPasses,
	}
}

// GeoPoints keeps the orders with usable coordinates.
func GeoPoints(orders []model.Order) []model.GeoPoint {
	pts := make([]model.GeoPoint, 0, len(orders))
	for _, o := range orders {
		if p, ok := model.GeoPointFromOrder(o); ok {
			pts = append(pts, p)
		}
	}
	return pts
}

// OptimizeHandler handles POST /v1/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin role required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	capacity, err := validateOptimizeRequest(&req, s.Cfg.Capacities())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	orders, err := s.Store.ListOrders(r.Context(), req.StatusFilter)
	if err != nil {
		s.Log.Errorf("list orders for optimization: %v", err)
		writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
		return
	}
	params := OptimizeParams(s.Cfg, capacity, req.ClusteringRadiusKm)
	res := s.Optimizer.Optimize(GeoPoints(orders), params)
	writeJSON(w, http.StatusOK, res)
}

// CommitHandler handles POST /v1/dispatch/commit.
func (s *Server) CommitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin role required", r.URL.Path)
		return
	}
	var req model.CommitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.CreatedBy = pr.UserID
	res, err := s.Engine.CommitDispatch(r.Context(), req)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AssignmentByIDHandler handles GET /v1/assignments/{id} and POST /v1/assignments/{id}/{action}.
func (s *Server) AssignmentByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assignments/"), "/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	pr, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	a, err := s.Store.GetAssignment(r.Context(), parts[0])
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !canSeeDriver(pr, a.DriverID) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for assignment", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ev, ok := dispatch.ParseEvent(parts[1])
	if !ok {
		writeProblem(w, http.StatusNotFound, "Unknown action", parts[1], r.URL.Path)
		return
	}
	// only the assigned driver or an admin may move an assignment
	if !pr.IsAdmin() && (pr.Role != auth.RoleDriver || pr.DriverID == "" || pr.DriverID != a.DriverID) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not the assigned driver", r.URL.Path)
		return
	}
	out, err := s.Engine.Advance(r.Context(), a.ID, ev)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// OrdersHandler handles GET /v1/orders?status=a,b.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin role required", r.URL.Path)
		return
	}
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid status filter", err.Error(), r.URL.Path)
		return
	}
	orders, err := s.Store.ListOrders(r.Context(), statuses)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders})
}

// DriversHandler serves /v1/drivers/ and everything below a driver id.
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/drivers/"), "/")
	pr, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if rest == "" {
		s.listDrivers(w, r, pr)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if !canSeeDriver(pr, id) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for driver", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d, err := s.Store.GetDriver(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = dispatch.ErrDriverNotFound
		}
		s.writeDispatchError(w, r, err)
		return
	}

	switch sub := strings.Join(parts[1:], "/"); sub {
	case "":
		writeJSON(w, http.StatusOK, s.withCapacity(d))
	case "assignments":
		items, err := s.Store.ListAssignmentsForDriver(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "events/stream":
		s.driverEventsSSE(w, r, d.ID)
	case "events/ws":
		s.driverEventsWS(w, r, d.ID)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) listDrivers(w http.ResponseWriter, r *http.Request, pr auth.Principal) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin role required", r.URL.Path)
		return
	}
	items, err := s.Store.ListDrivers(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i] = s.withCapacity(items[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// withCapacity fills MaxCapacity from the configured capacity table.
func (s *Server) withCapacity(d model.Driver) model.Driver {
	d.MaxCapacity, _ = s.Cfg.Capacities().Capacity(d.VehicleType)
	return d
}

// writeDispatchError maps engine and store errors onto problem responses.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *dispatch.ValidationError
		ce *dispatch.CapacityError
		te *dispatch.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		writeProblem(w, http.StatusBadRequest, "Invalid request", ve.Error(), r.URL.Path)
	case errors.As(err, &ce):
		writeProblemBody(w, http.StatusConflict, capacityProblem{
			Problem: Problem{
				Type:     "about:blank",
				Title:    "Driver capacity exceeded",
				Status:   http.StatusConflict,
				Detail:   ce.Error(),
				Instance: r.URL.Path,
			},
			DriverID:          ce.DriverID,
			CurrentOrders:     ce.Current,
			RequestedOrders:   ce.Requested,
			MaxCapacity:       ce.Max,
			AvailableCapacity: max(0, ce.Max-ce.Current),
		})
	case errors.As(err, &te):
		writeProblem(w, http.StatusConflict, "Invalid transition", te.Error(), r.URL.Path)
	case errors.Is(err, store.ErrStaleAssignment):
		writeProblem(w, http.StatusConflict, "Assignment changed", err.Error(), r.URL.Path)
	case errors.Is(err, dispatch.ErrDriverNotFound):
		writeProblem(w, http.StatusNotFound, "Driver not found", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusServiceUnavailable, "Request cancelled", err.Error(), r.URL.Path)
	default:
		s.Log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler checks store connectivity.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
