package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Paris -> London is roughly 344 km
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	london := Point{Lat: 51.5074, Lng: -0.1278}
	assert.InDelta(t, 343.5, Haversine(paris, london), 1.0)
	assert.Equal(t, 0.0, Haversine(paris, paris))
}

func TestHaversineSymmetric(t *testing.T) {
	pts := []Point{
		{Lat: 13.7563, Lng: 100.5018},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: 89.9, Lng: 179.9},
		{Lat: -89.9, Lng: -179.9},
		{Lat: 0.0001, Lng: 0.0001},
	}
	for _, a := range pts {
		for _, b := range pts {
			assert.Equal(t, Haversine(a, b), Haversine(b, a), "%v <-> %v", a, b)
		}
	}
}

func TestHaversineAntipodalIsFinite(t *testing.T) {
	d := Haversine(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 180})
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusKm, d, 1e-6)
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, Point{}, Centroid(nil))
	c := Centroid([]Point{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}})
	assert.Equal(t, Point{Lat: 2, Lng: 3}, c)
}

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		want bool
	}{
		{"ok", Point{Lat: 13.7, Lng: 100.5}, true},
		{"zero lat", Point{Lat: 0, Lng: 100.5}, false},
		{"zero lng", Point{Lat: 13.7, Lng: 0}, false},
		{"nan", Point{Lat: math.NaN(), Lng: 1}, false},
		{"inf", Point{Lat: 1, Lng: math.Inf(1)}, false},
		{"out of range", Point{Lat: 91, Lng: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Valid(tc.p))
		})
	}
}
