package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"milkrun/internal/model"
)

func TestEvaluateEmptyIsZero(t *testing.T) {
	s := Evaluate(nil, nil, nil, testParams(5))
	assert.Equal(t, Score{}, s)
}

func TestEvaluateAllUnclusteredScoresZeroSavings(t *testing.T) {
	pts := tightOrders(3)
	s := Evaluate(pts, nil, pts, testParams(5))
	assert.Zero(t, s.Metrics.ClusteringEfficiency)
	assert.Zero(t, s.Metrics.DistanceEfficiency)
	assert.Zero(t, s.Metrics.TimeEfficiency)
	assert.Zero(t, s.Metrics.OverallScore)
	assert.Zero(t, s.DistanceSaved)
}

func TestEvaluateConsolidationSaves(t *testing.T) {
	p := testParams(5)
	pts := tightOrders(5)
	raw, rest := Cluster(pts, p.RadiusKm, p.Capacity)
	clusters, rest := Fitter{Params: p}.Fit(raw, rest)
	s := Evaluate(pts, clusters, rest, p)

	assert.Equal(t, 100.0, s.Metrics.ClusteringEfficiency)
	assert.Greater(t, s.Metrics.DistanceEfficiency, 90.0)
	assert.Greater(t, s.Metrics.TimeEfficiency, 0.0)
	assert.LessOrEqual(t, s.Metrics.TimeEfficiency, 100.0)
	mean := (s.Metrics.ClusteringEfficiency + s.Metrics.DistanceEfficiency + s.Metrics.TimeEfficiency) / 3
	assert.InDelta(t, mean, s.Metrics.OverallScore, 1e-9)
	assert.Greater(t, s.DistanceSaved, 0.0)
	assert.Greater(t, s.TimeSaved, 0.0)
}

func TestEvaluateOrdersAtDepotDoNotDivideByZero(t *testing.T) {
	p := testParams(5)
	p.AverageSpeedKmH = 0
	p.ServiceMinutesPerStop = 0
	pts := []model.GeoPoint{
		{Lat: testDepot.Lat, Lng: testDepot.Lng, OrderID: "a"},
		{Lat: testDepot.Lat, Lng: testDepot.Lng, OrderID: "b"},
	}
	c := model.OrderCluster{Orders: pts}
	s := Evaluate(pts, []model.OrderCluster{c}, nil, p)
	for _, v := range []float64{s.Metrics.DistanceEfficiency, s.Metrics.TimeEfficiency, s.Metrics.OverallScore} {
		assert.False(t, math.IsNaN(v))
	}
	assert.Zero(t, s.Metrics.DistanceEfficiency)
	assert.Equal(t, 100.0, s.Metrics.ClusteringEfficiency)
}

func TestOptimizerPipeline(t *testing.T) {
	o := NewOptimizer(nil)
	res := o.Optimize(tightOrders(6), testParams(5))
	assert.Len(t, res.Clusters, 1)
	assert.Len(t, res.UnclusteredOrders, 1)
	assert.Equal(t, res.Metrics.OverallScore, res.EfficiencyScore)

	empty := o.Optimize(nil, testParams(5))
	assert.NotNil(t, empty.Clusters)
	assert.NotNil(t, empty.UnclusteredOrders)
	assert.Zero(t, empty.EfficiencyScore)
}
