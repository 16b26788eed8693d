package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/geo"
	"milkrun/internal/logger"
	"milkrun/internal/model"
)

func TestFitMeasuresCluster(t *testing.T) {
	pts := tightOrders(5)
	p := testParams(5)
	raw, rest := Cluster(pts, p.RadiusKm, p.Capacity)
	clusters, rest := Fitter{Params: p, Log: logger.Nop{}}.Fit(raw, rest)
	require.Len(t, clusters, 1)
	assert.Empty(t, rest)

	c := clusters[0]
	assert.Len(t, c.Orders, 5)
	assert.Equal(t, 5, c.DriverCapacity)
	assert.True(t, c.Sequenced)
	assert.NotEmpty(t, c.ClusterID)

	maxD := 0.0
	for _, o := range pts {
		maxD = math.Max(maxD, geo.Haversine(testDepot, o.Point()))
	}
	assert.InDelta(t, maxD, c.MaxDistanceFromDepot, 1e-12)
	assert.InDelta(t, PathLength(c.Orders), c.TotalDistance, 1e-12)
	assert.InDelta(t, c.TotalDistance/30*60+5*5, c.EstimatedDuration, 1e-9)

	seq, err := Sequence(testDepot, pts)
	require.NoError(t, err)
	assert.Equal(t, ids(seq), c.OrderIDs())
}

func TestFitSixOrdersCarCapacity(t *testing.T) {
	p := testParams(5)
	raw, rest := Cluster(tightOrders(6), p.RadiusKm, p.Capacity)
	clusters, rest := Fitter{Params: p}.Fit(raw, rest)
	total := len(rest)
	for _, c := range clusters {
		assert.LessOrEqual(t, len(c.Orders), 5)
		total += len(c.Orders)
	}
	assert.Equal(t, 6, total)
	require.Len(t, clusters, 1)
	assert.Len(t, rest, 1)
}

func TestSplitOversizedPeelsUntilCompliant(t *testing.T) {
	pts := tightOrders(6)
	pts = append(pts, model.GeoPoint{Lat: 13.81, Lng: 100.54, OrderID: "drift"})
	groups := splitOversized(pts, 3)
	seen := map[string]bool{}
	for _, g := range groups {
		assert.LessOrEqual(t, len(g), 3)
		for _, m := range g {
			assert.False(t, seen[m.OrderID], "duplicate %s", m.OrderID)
			seen[m.OrderID] = true
		}
	}
	assert.Len(t, seen, 7)
	// the farthest member is peeled first
	assert.NotContains(t, ids(groups[0]), "drift")
}

func TestFitSplitsOversizedRawCluster(t *testing.T) {
	p := testParams(3)
	clusters, rest := Fitter{Params: p}.Fit([][]model.GeoPoint{tightOrders(7)}, nil)
	total := len(rest)
	idsSeen := map[string]bool{}
	for _, c := range clusters {
		assert.LessOrEqual(t, len(c.Orders), 3)
		assert.False(t, idsSeen[c.ClusterID])
		idsSeen[c.ClusterID] = true
		total += len(c.Orders)
	}
	assert.Equal(t, 7, total)
}

func TestFitMergesSmallNeighbours(t *testing.T) {
	p := testParams(5)
	all := tightOrders(4)
	clusters, rest := Fitter{Params: p}.Fit([][]model.GeoPoint{all[:2], all[2:]}, nil)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Orders, 4)
	assert.Empty(t, rest)
}

func TestFitDoesNotMergePastCapacity(t *testing.T) {
	p := testParams(3)
	all := tightOrders(4)
	clusters, _ := Fitter{Params: p}.Fit([][]model.GeoPoint{all[:2], all[2:]}, nil)
	assert.Len(t, clusters, 2)
}

func TestFitFallsBackOnUnsequenceableCluster(t *testing.T) {
	p := testParams(5)
	pts := tightOrders(3)
	pts[2].Lng = math.Inf(1)
	clusters, _ := Fitter{Params: p}.Fit([][]model.GeoPoint{pts}, nil)
	require.Len(t, clusters, 1)
	assert.False(t, clusters[0].Sequenced)
	assert.Equal(t, ids(pts), clusters[0].OrderIDs())
}

func TestClusterIDIsContentHash(t *testing.T) {
	a := tightOrders(3)
	assert.Equal(t, clusterID(a), clusterID(tightOrders(3)))
	assert.NotEqual(t, clusterID(a), clusterID(a[:2]))
}
