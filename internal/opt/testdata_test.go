package opt

import (
	"fmt"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

var testDepot = geo.Point{Lat: 13.7563, Lng: 100.5018}

// tightOrders returns n orders spaced ~110 m apart around a point ~7 km from testDepot.
func tightOrders(n int) []model.GeoPoint {
	out := make([]model.GeoPoint, n)
	for i := range out {
		out[i] = model.GeoPoint{
			Lat:     13.80 + float64(i%3)*0.001,
			Lng:     100.53 + float64(i/3)*0.001,
			OrderID: fmt.Sprintf("o%d", i+1),
		}
	}
	return out
}

func testParams(capacity int) Params {
	return Params{
		Capacity:              capacity,
		RadiusKm:              3,
		Depot:                 testDepot,
		AverageSpeedKmH:       30,
		ServiceMinutesPerStop: 5,
	}
}

func ids(pts []model.GeoPoint) []string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = p.OrderID
	}
	return out
}
