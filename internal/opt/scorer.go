package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

// Score is the efficiency of a clustering against dispatching every order on its own.
type Score struct {
	Metrics       model.EfficiencyMetrics
	DistanceSaved float64 // km
	TimeSaved     float64 // minutes
}

// Evaluate scores clusters over the full point set. Unclustered points count at their
// individual round-trip cost. Every metric degrades to 0 instead of NaN.
func Evaluate(points []model.GeoPoint, clusters []model.OrderCluster, unclustered []model.GeoPoint, p Params) Score {
	if len(points) == 0 {
		return Score{}
	}
	indivDist, indivTime := individualCosts(points, p)

	clustered := 0
	consDist := make([]float64, 0, len(clusters)+1)
	consTime := make([]float64, 0, len(clusters)+1)
	for _, c := range clusters {
		if len(c.Orders) >= 2 {
			clustered += len(c.Orders)
		}
		consDist = append(consDist, c.TotalDistance)
		consTime = append(consTime, c.EstimatedDuration)
	}
	restDist, restTime := individualCosts(unclustered, p)
	consDist = append(consDist, restDist)
	consTime = append(consTime, restTime)

	m := model.EfficiencyMetrics{
		ClusteringEfficiency: percent(float64(clustered) / float64(len(points))),
		DistanceEfficiency:   savingRatio(floats.Sum(consDist), indivDist),
		TimeEfficiency:       savingRatio(floats.Sum(consTime), indivTime),
	}
	m.OverallScore = sanitize(stat.Mean([]float64{m.ClusteringEfficiency, m.DistanceEfficiency, m.TimeEfficiency}, nil))
	return Score{
		Metrics:       m,
		DistanceSaved: math.Max(0, sanitize(indivDist-floats.Sum(consDist))),
		TimeSaved:     math.Max(0, sanitize(indivTime-floats.Sum(consTime))),
	}
}

// individualCosts is the depot round trip distance and duration for each point, summed.
func individualCosts(points []model.GeoPoint, p Params) (float64, float64) {
	if len(points) == 0 {
		return 0, 0
	}
	dist := make([]float64, len(points))
	dur := make([]float64, len(points))
	for i, pt := range points {
		dist[i] = 2 * geo.Haversine(p.Depot, pt.Point())
		dur[i] = EstimateMinutes(dist[i], 1, p)
	}
	return floats.Sum(dist), floats.Sum(dur)
}

func savingRatio(consolidated, individual float64) float64 {
	if individual <= 0 {
		return 0
	}
	return percent(math.Max(0, 1-consolidated/individual))
}

func percent(ratio float64) float64 {
	return math.Min(100, math.Max(0, sanitize(ratio*100)))
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
