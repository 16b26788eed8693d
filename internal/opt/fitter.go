package opt

import (
	"strings"

	"github.com/google/uuid"

	"milkrun/internal/geo"
	"milkrun/internal/logger"
	"milkrun/internal/model"
)

// clusterNamespace seeds the content-hash cluster ids.
var clusterNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("milkrun.cluster"))

// Params configures one optimization run.
type Params struct {
	Capacity              int
	RadiusKm              float64
	Depot                 geo.Point
	AverageSpeedKmH       float64
	ServiceMinutesPerStop float64
	TwoOptPasses          int
}

// Fitter turns raw proximity groups into capacity-compliant, measured clusters.
type Fitter struct {
	Params Params
	Log    logger.Logger
}

// Fit splits oversized groups, merges small neighbouring ones, sends singletons to
// unclustered and measures every resulting cluster. It never fails.
func (f Fitter) Fit(raw [][]model.GeoPoint, unclustered []model.GeoPoint) ([]model.OrderCluster, []model.GeoPoint) {
	capacity := f.Params.Capacity
	if capacity < 1 {
		capacity = 1
	}
	var groups [][]model.GeoPoint
	for _, g := range raw {
		groups = append(groups, splitOversized(g, capacity)...)
	}
	groups = mergeNeighbours(groups, capacity, f.Params.RadiusKm)

	rest := append([]model.GeoPoint(nil), unclustered...)
	out := make([]model.OrderCluster, 0, len(groups))
	for _, g := range groups {
		if len(g) < 2 {
			rest = append(rest, g...)
			continue
		}
		out = append(out, f.finalize(g, capacity))
	}
	return out, rest
}

// splitOversized peels the member farthest from the centroid until the group fits. Peeled
// members form an overflow group that is split in turn.
func splitOversized(members []model.GeoPoint, capacity int) [][]model.GeoPoint {
	if len(members) <= capacity {
		return [][]model.GeoPoint{members}
	}
	keep := append([]model.GeoPoint(nil), members...)
	var overflow []model.GeoPoint
	for len(keep) > capacity {
		c := centroidOf(keep)
		far, farD := 0, -1.0
		for i, m := range keep {
			if d := geo.Haversine(c, m.Point()); d > farD {
				far, farD = i, d
			}
		}
		overflow = append(overflow, keep[far])
		keep = append(keep[:far], keep[far+1:]...)
	}
	return append([][]model.GeoPoint{keep}, splitOversized(overflow, capacity)...)
}

// mergeNeighbours joins pairs whose combined size fits and whose centroids lie within radiusKm.
// Pairs are scanned in list order and the scan restarts after each merge.
func mergeNeighbours(groups [][]model.GeoPoint, capacity int, radiusKm float64) [][]model.GeoPoint {
	for {
		i, j := findMergePair(groups, capacity, radiusKm)
		if i < 0 {
			return groups
		}
		merged := append(append([]model.GeoPoint(nil), groups[i]...), groups[j]...)
		groups[i] = merged
		groups = append(groups[:j], groups[j+1:]...)
	}
}

func findMergePair(groups [][]model.GeoPoint, capacity int, radiusKm float64) (int, int) {
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			if len(groups[i])+len(groups[j]) > capacity {
				continue
			}
			if geo.Haversine(centroidOf(groups[i]), centroidOf(groups[j])) <= radiusKm+radiusSlack {
				return i, j
			}
		}
	}
	return -1, -1
}

func (f Fitter) finalize(members []model.GeoPoint, capacity int) model.OrderCluster {
	seq := SequenceOrFallback(f.Params.Depot, members, f.Params.TwoOptPasses)
	if seq.Fallback && f.Log != nil {
		f.Log.Warnf("sequencing fell back to input order for %d orders: %v", len(members), seq.Err)
	}
	dist := PathLength(seq.Points)
	maxDepot := 0.0
	for _, m := range seq.Points {
		if d := geo.Haversine(f.Params.Depot, m.Point()); d > maxDepot {
			maxDepot = d
		}
	}
	c := centroidOf(seq.Points)
	return model.OrderCluster{
		ClusterID:            clusterID(seq.Points),
		Orders:               seq.Points,
		Centroid:             model.GeoPoint{Lat: c.Lat, Lng: c.Lng},
		TotalDistance:        dist,
		EstimatedDuration:    EstimateMinutes(dist, len(seq.Points), f.Params),
		DriverCapacity:       capacity,
		MaxDistanceFromDepot: maxDepot,
		Sequenced:            !seq.Fallback,
	}
}

// EstimateMinutes is travel time at the configured average speed plus per-stop service time.
func EstimateMinutes(distanceKm float64, stops int, p Params) float64 {
	travel := 0.0
	if p.AverageSpeedKmH > 0 {
		travel = distanceKm / p.AverageSpeedKmH * 60
	}
	return travel + p.ServiceMinutesPerStop*float64(stops)
}

// clusterID hashes the ordered member ids, so identical content always yields the same id
// and any restructuring yields a new one.
func clusterID(members []model.GeoPoint) string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.OrderID
	}
	return uuid.NewSHA1(clusterNamespace, []byte(strings.Join(ids, ","))).String()
}
