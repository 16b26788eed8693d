package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

func TestClusterEmptyInput(t *testing.T) {
	clusters, rest := Cluster(nil, 3, 5)
	assert.Empty(t, clusters)
	assert.Empty(t, rest)
}

func TestClusterFiveNearbyOrdersFormOneCluster(t *testing.T) {
	clusters, rest := Cluster(tightOrders(5), 3, 5)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 5)
	assert.Empty(t, rest)
}

func TestClusterRespectsCapacity(t *testing.T) {
	clusters, rest := Cluster(tightOrders(6), 3, 5)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 5)
	require.Len(t, rest, 1)
	assert.NotContains(t, ids(clusters[0]), rest[0].OrderID)

	for capacity := 1; capacity <= 7; capacity++ {
		cs, _ := Cluster(tightOrders(20), 3, capacity)
		for _, c := range cs {
			assert.LessOrEqual(t, len(c), capacity)
		}
	}
}

func TestClusterCapacityOneSendsEverythingToUnclustered(t *testing.T) {
	pts := tightOrders(4)
	clusters, rest := Cluster(pts, 3, 1)
	assert.Empty(t, clusters)
	assert.Equal(t, ids(pts), ids(rest))
}

func TestClusterIncludesPointExactlyOnRadius(t *testing.T) {
	a := model.GeoPoint{Lat: 10, Lng: 10, OrderID: "a"}
	b := model.GeoPoint{Lat: 10.02, Lng: 10.01, OrderID: "b"}
	radius := geo.Haversine(a.Point(), b.Point())

	clusters, rest := Cluster([]model.GeoPoint{a, b}, radius, 5)
	require.Len(t, clusters, 1)
	assert.Empty(t, rest)

	clusters, rest = Cluster([]model.GeoPoint{a, b}, radius*0.999, 5)
	assert.Empty(t, clusters)
	assert.Len(t, rest, 2)
}

func TestClusterTieBreakPrefersEarliestInput(t *testing.T) {
	seed := model.GeoPoint{Lat: 10, Lng: 10, OrderID: "seed"}
	east := model.GeoPoint{Lat: 10, Lng: 10.01, OrderID: "east"}
	west := model.GeoPoint{Lat: 10, Lng: 9.99, OrderID: "west"}

	clusters, rest := Cluster([]model.GeoPoint{seed, west, east}, 5, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"seed", "west"}, ids(clusters[0]))
	assert.Equal(t, []string{"east"}, ids(rest))
}

func TestClusterFarPointsStayUnclustered(t *testing.T) {
	pts := append(tightOrders(3), model.GeoPoint{Lat: 14.5, Lng: 101.5, OrderID: "far"})
	clusters, rest := Cluster(pts, 3, 5)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 3)
	assert.Equal(t, []string{"far"}, ids(rest))
}

func TestClusterSingletonSeedCanBeAbsorbedLater(t *testing.T) {
	// "lonely" has no neighbour within 3 km, but the centroid of the later a/b pair does.
	lonely := model.GeoPoint{Lat: 10, Lng: 10, OrderID: "lonely"}
	a := model.GeoPoint{Lat: 10.026, Lng: 9.987, OrderID: "a"}
	b := model.GeoPoint{Lat: 10.026, Lng: 10.013, OrderID: "b"}
	far := model.GeoPoint{Lat: 11, Lng: 11, OrderID: "far"}
	require.Greater(t, geo.Haversine(lonely.Point(), a.Point()), 3.0)
	require.Greater(t, geo.Haversine(lonely.Point(), b.Point()), 3.0)

	clusters, rest := Cluster([]model.GeoPoint{lonely, a, b, far}, 3, 5)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"a", "b", "lonely"}, ids(clusters[0]))
	assert.Equal(t, []string{"far"}, ids(rest))
}

func TestClusterDeterministic(t *testing.T) {
	pts := append(tightOrders(12), model.GeoPoint{Lat: 13.9, Lng: 100.6, OrderID: "x"})
	first, firstRest := Cluster(pts, 0.2, 4)
	for i := 0; i < 20; i++ {
		again, againRest := Cluster(pts, 0.2, 4)
		assert.Equal(t, first, again)
		assert.Equal(t, firstRest, againRest)
	}
}
