package model

import (
	"strings"
	"time"

	"milkrun/internal/geo"
)

// Order statuses as stored by the order store.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderInTransit = "in_transit"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// DefaultDispatchableStatuses is used when an optimize request carries no status filter.
var DefaultDispatchableStatuses = []string{OrderPending, OrderConfirmed}

// Order is the read model exposed by the order store.
type Order struct {
	ID              string     `json:"id"`
	CustomerName    string     `json:"customerName"`
	DeliveryAddress string     `json:"deliveryAddress"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	City            string     `json:"city,omitempty"`
	Status          string     `json:"status"`
	TotalAmount     float64    `json:"totalAmount"`
	CreatedAt       time.Time  `json:"createdAt"`
	TrackingNumber  string     `json:"trackingNumber,omitempty"`
	ShopID          string     `json:"shopId,omitempty"`
	DispatchedAt    *time.Time `json:"dispatchedAt,omitempty"`
}

// Location returns the delivery coordinate of the order.
func (o Order) Location() geo.Point { return geo.Point{Lat: o.Latitude, Lng: o.Longitude} }

// Dispatchable reports whether the order may still be handed to a driver.
func (o Order) Dispatchable() bool {
	switch o.Status {
	case OrderInTransit, OrderDelivered, OrderCancelled:
		return false
	}
	return geo.Valid(o.Location())
}

// OrderDispatch is the write applied to an order when it joins a dispatch batch.
type OrderDispatch struct {
	Status         string
	TrackingNumber string
	ShopID         string
	DispatchedAt   time.Time
}

// GeoPoint is an order projected onto the map for clustering.
type GeoPoint struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	OrderID      string  `json:"orderId"`
	CustomerName string  `json:"customerName,omitempty"`
	Address      string  `json:"address,omitempty"`
}

// Point drops the order metadata.
func (g GeoPoint) Point() geo.Point { return geo.Point{Lat: g.Lat, Lng: g.Lng} }

// GeoPointFromOrder projects an order. ok is false when the order has no usable coordinate.
func GeoPointFromOrder(o Order) (GeoPoint, bool) {
	if !geo.Valid(o.Location()) {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: o.Latitude, Lng: o.Longitude, OrderID: o.ID, CustomerName: o.CustomerName, Address: o.DeliveryAddress}, true
}

// OrderCluster is one milk run: a vehicle-sized group of nearby orders in visiting order.
type OrderCluster struct {
	ClusterID            string     `json:"clusterId"`
	Orders               []GeoPoint `json:"orders"`
	Centroid             GeoPoint   `json:"centroid"`
	TotalDistance        float64    `json:"totalDistance"`
	EstimatedDuration    float64    `json:"estimatedDuration"`
	DriverCapacity       int        `json:"driverCapacity"`
	MaxDistanceFromDepot float64    `json:"maxDistanceFromDepot"`
	Sequenced            bool       `json:"sequenced"`
}

// OrderIDs lists member ids in visiting order.
func (c OrderCluster) OrderIDs() []string {
	ids := make([]string, len(c.Orders))
	for i, o := range c.Orders {
		ids[i] = o.OrderID
	}
	return ids
}

// EfficiencyMetrics are percentages in [0,100].
type EfficiencyMetrics struct {
	ClusteringEfficiency float64 `json:"clusteringEfficiency"`
	DistanceEfficiency   float64 `json:"distanceEfficiency"`
	TimeEfficiency       float64 `json:"timeEfficiency"`
	OverallScore         float64 `json:"overallScore"`
}

// OptimizationResult is produced per optimize request and never persisted.
type OptimizationResult struct {
	Clusters           []OrderCluster    `json:"clusters"`
	UnclusteredOrders  []GeoPoint        `json:"unclusteredOrders"`
	TotalDistanceSaved float64           `json:"totalDistanceSaved"`
	EstimatedTimeSaved float64           `json:"estimatedTimeSaved"`
	EfficiencyScore    float64           `json:"efficiencyScore"`
	Metrics            EfficiencyMetrics `json:"metrics"`
}

// OptimizeRequest is the body of POST /v1/optimize.
type OptimizeRequest struct {
	VehicleType        string   `json:"vehicleType"`
	ClusteringRadiusKm float64  `json:"clusteringRadiusKm,omitempty"`
	StatusFilter       []string `json:"statusFilter,omitempty"`
}

// VehicleType determines driver capacity.
type VehicleType string

const (
	VehicleMotorbike VehicleType = "motorbike"
	VehicleCar       VehicleType = "car"
	VehicleVan       VehicleType = "van"
	VehicleTruck     VehicleType = "truck"
)

// ParseVehicleType normalises user input.
func ParseVehicleType(s string) VehicleType {
	return VehicleType(strings.ToLower(strings.TrimSpace(s)))
}

// DriverStatus is the availability of a driver.
type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
	DriverOffline   DriverStatus = "offline"
)

// Driver is the driver directory entry. MaxCapacity is not stored; the API fills it
// from the capacity table for the driver's VehicleType.
type Driver struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	VehicleType      VehicleType  `json:"vehicleType"`
	Status           DriverStatus `json:"status"`
	ActiveOrderCount int          `json:"activeOrderCount"`
	MaxCapacity      int          `json:"maxCapacity,omitempty"`
}

// AssignmentStatus is a state of the assignment lifecycle.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentPickedUp  AssignmentStatus = "picked_up"
	AssignmentInTransit AssignmentStatus = "in_transit"
	AssignmentDelivered AssignmentStatus = "delivered"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentDelivered || s == AssignmentCancelled
}

// DispatchAssignment links one order to one driver through delivery.
type DispatchAssignment struct {
	ID             string           `json:"id"`
	OrderID        string           `json:"orderId"`
	DriverID       string           `json:"driverId"`
	ShopID         string           `json:"shopId"`
	ClusterID      string           `json:"clusterId,omitempty"`
	TrackingNumber string           `json:"trackingNumber"`
	Status         AssignmentStatus `json:"status"`
	Pickup         geo.Point        `json:"pickup"`
	Dropoff        geo.Point        `json:"dropoff"`
	CreatedBy      string           `json:"createdBy,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// CommitRequest is the body of POST /v1/dispatch/commit.
type CommitRequest struct {
	ClusterID      string   `json:"clusterId,omitempty"`
	DriverID       string   `json:"driverId"`
	ShopID         string   `json:"shopId"`
	OrderIDs       []string `json:"orderIds"`
	TrackingPrefix string   `json:"trackingPrefix,omitempty"`
	CreatedBy      string   `json:"-"`
}

// OrderFailure reports one order that could not be committed.
type OrderFailure struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// CommitResult is returned by a dispatch commit.
type CommitResult struct {
	Success         bool                 `json:"success"`
	OrdersAssigned  int                  `json:"ordersAssigned"`
	TrackingNumbers []string             `json:"trackingNumbers"`
	Assignments     []DispatchAssignment `json:"assignments,omitempty"`
	Errors          []OrderFailure       `json:"errors"`
	DriverStatus    DriverStatus         `json:"driverStatus,omitempty"`
	ActiveOrders    int                  `json:"activeOrderCount"`
}
