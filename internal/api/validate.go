package api

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"milkrun/internal/model"
)

var errTrailingData = errors.New("unexpected data after JSON body")

var knownOrderStatuses = map[string]bool{
	model.OrderPending:   true,
	model.OrderConfirmed: true,
	model.OrderInTransit: true,
	model.OrderDelivered: true,
	model.OrderCancelled: true,
}

// validateOptimizeRequest normalises req in place. Capacity comes from caps, so the
// vehicle type must be one the table knows.
func validateOptimizeRequest(req *model.OptimizeRequest, caps model.CapacityTable) (int, error) {
	vt := model.ParseVehicleType(req.VehicleType)
	if vt == "" {
		return 0, fmt.Errorf("vehicleType is required")
	}
	capacity, ok := caps.Capacity(vt)
	if !ok {
		return 0, fmt.Errorf("unknown vehicleType: %s", req.VehicleType)
	}
	req.VehicleType = string(vt)
	if req.ClusteringRadiusKm < 0 || math.IsInf(req.ClusteringRadiusKm, 0) {
		return 0, fmt.Errorf("clusteringRadiusKm must be >= 0")
	}
	statuses, err := parseStatuses(req.StatusFilter)
	if err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		statuses = model.DefaultDispatchableStatuses
	}
	req.StatusFilter = statuses
	return capacity, nil
}

// parseStatuses lowercases, trims and dedupes; it accepts comma separated entries.
func parseStatuses(in []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, raw := range in {
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			if !knownOrderStatuses[s] {
				return nil, fmt.Errorf("unknown order status: %s", s)
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
