package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

func TestSequenceStartsNearestDepot(t *testing.T) {
	pts := tightOrders(5)
	seq, err := Sequence(testDepot, pts)
	require.NoError(t, err)
	require.Len(t, seq, 5)
	assert.ElementsMatch(t, ids(pts), ids(seq))

	nearest := pts[0]
	for _, p := range pts[1:] {
		if geo.Haversine(testDepot, p.Point()) < geo.Haversine(testDepot, nearest.Point()) {
			nearest = p
		}
	}
	assert.Equal(t, nearest.OrderID, seq[0].OrderID)
}

func TestSequenceGreedyOrder(t *testing.T) {
	depot := geo.Point{Lat: 10, Lng: 10}
	pts := []model.GeoPoint{
		{Lat: 10, Lng: 10.03, OrderID: "c"},
		{Lat: 10, Lng: 10.01, OrderID: "a"},
		{Lat: 10, Lng: 10.02, OrderID: "b"},
	}
	seq, err := Sequence(depot, pts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(seq))
}

func TestSequenceTieBreakIsStable(t *testing.T) {
	depot := geo.Point{Lat: 10, Lng: 10}
	pts := []model.GeoPoint{
		{Lat: 10, Lng: 9.99, OrderID: "west"},
		{Lat: 10, Lng: 10.01, OrderID: "east"},
	}
	for i := 0; i < 10; i++ {
		seq, err := Sequence(depot, pts)
		require.NoError(t, err)
		assert.Equal(t, "west", seq[0].OrderID)
	}
}

func TestSequenceEmpty(t *testing.T) {
	seq, err := Sequence(testDepot, nil)
	require.NoError(t, err)
	assert.Empty(t, seq)
}

func TestSequenceOrFallbackKeepsInputOnBadPoint(t *testing.T) {
	pts := tightOrders(3)
	pts[1].Lat = math.NaN()
	res := SequenceOrFallback(testDepot, pts, 0)
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, ErrInvalidPoint)
	assert.Equal(t, ids(pts), ids(res.Points))
}

func TestImproveOrder2OptNeverLonger(t *testing.T) {
	pts := []model.GeoPoint{
		{Lat: 13.80, Lng: 100.53, OrderID: "1"},
		{Lat: 13.83, Lng: 100.56, OrderID: "2"},
		{Lat: 13.80, Lng: 100.56, OrderID: "3"},
		{Lat: 13.83, Lng: 100.53, OrderID: "4"},
		{Lat: 13.815, Lng: 100.545, OrderID: "5"},
	}
	seq, err := Sequence(testDepot, pts)
	require.NoError(t, err)
	improved := ImproveOrder2Opt(testDepot, seq, 5)
	assert.ElementsMatch(t, ids(seq), ids(improved))

	withDepot := func(r []model.GeoPoint) float64 {
		return geo.Haversine(testDepot, r[0].Point()) + PathLength(r)
	}
	assert.LessOrEqual(t, withDepot(improved), withDepot(seq)+1e-9)
}

func TestPathLength(t *testing.T) {
	assert.Zero(t, PathLength(nil))
	pts := tightOrders(2)
	assert.InDelta(t, geo.Haversine(pts[0].Point(), pts[1].Point()), PathLength(pts), 1e-12)
}
