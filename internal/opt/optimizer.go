package opt

import (
	"time"

	"milkrun/internal/logger"
	"milkrun/internal/metrics"
	"milkrun/internal/model"
)

// Optimizer runs the clustering pipeline: proximity clustering, capacity fitting with route
// sequencing, then efficiency scoring. It holds no state between runs.
type Optimizer struct {
	log logger.Logger
}

// NewOptimizer returns an Optimizer logging through log (nil discards).
func NewOptimizer(log logger.Logger) *Optimizer {
	if log == nil {
		log = logger.Nop{}
	}
	return &Optimizer{log: log}
}

// Optimize builds the OptimizationResult for points under p.
func (o *Optimizer) Optimize(points []model.GeoPoint, p Params) model.OptimizationResult {
	start := time.Now()
	raw, unclustered := Cluster(points, p.RadiusKm, p.Capacity)
	clusters, unclustered := Fitter{Params: p, Log: o.log}.Fit(raw, unclustered)
	for _, c := range clusters {
		if !c.Sequenced {
			metrics.SequencingFallbacks.Inc()
		}
	}
	score := Evaluate(points, clusters, unclustered, p)

	if clusters == nil {
		clusters = []model.OrderCluster{}
	}
	if unclustered == nil {
		unclustered = []model.GeoPoint{}
	}
	res := model.OptimizationResult{
		Clusters:           clusters,
		UnclusteredOrders:  unclustered,
		TotalDistanceSaved: score.DistanceSaved,
		EstimatedTimeSaved: score.TimeSaved,
		EfficiencyScore:    score.Metrics.OverallScore,
		Metrics:            score.Metrics,
	}
	metrics.OptimizationDuration.Observe(time.Since(start).Seconds())
	metrics.EfficiencyScore.Set(res.EfficiencyScore)
	o.log.Debugw("optimization finished", map[string]any{
		"points":      len(points),
		"clusters":    len(clusters),
		"unclustered": len(unclustered),
		"score":       res.EfficiencyScore,
	})
	return res
}
