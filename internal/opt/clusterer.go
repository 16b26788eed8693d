package opt

import (
	"milkrun/internal/geo"
	"milkrun/internal/model"
)

// radiusSlack absorbs float noise so that a point exactly on the radius is included.
const radiusSlack = 1e-9

type pointState uint8

const (
	unvisited pointState = iota
	deferred             // seeded a cluster that stayed a singleton; may still be absorbed
	taken
)

// Cluster groups points greedily by proximity. Each unvisited point, in input order, seeds a
// cluster that repeatedly absorbs the nearest remaining point within radiusKm of the running
// centroid, until nothing qualifies or capacity is reached. Ties go to the earliest input
// index. Seeds that never gain a second member go to unclustered, in input order, unless a
// later cluster absorbs them.
func Cluster(points []model.GeoPoint, radiusKm float64, capacity int) (clusters [][]model.GeoPoint, unclustered []model.GeoPoint) {
	if capacity < 1 {
		capacity = 1
	}
	state := make([]pointState, len(points))
	for seed := range points {
		if state[seed] != unvisited {
			continue
		}
		state[seed] = taken
		members := []model.GeoPoint{points[seed]}
		centroid := points[seed].Point()
		for len(members) < capacity {
			next := nearestWithin(points, state, centroid, radiusKm)
			if next < 0 {
				break
			}
			state[next] = taken
			members = append(members, points[next])
			centroid = centroidOf(members)
		}
		if len(members) < 2 {
			state[seed] = deferred
			continue
		}
		clusters = append(clusters, members)
	}
	for i, st := range state {
		if st == deferred {
			unclustered = append(unclustered, points[i])
		}
	}
	return clusters, unclustered
}

// nearestWithin returns the index of the closest non-taken point to c within radiusKm, or -1.
func nearestWithin(points []model.GeoPoint, state []pointState, c geo.Point, radiusKm float64) int {
	best, bestD := -1, 0.0
	for i, p := range points {
		if state[i] == taken {
			continue
		}
		d := geo.Haversine(c, p.Point())
		if d > radiusKm+radiusSlack {
			continue
		}
		if best == -1 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func centroidOf(members []model.GeoPoint) geo.Point {
	pts := make([]geo.Point, len(members))
	for i, m := range members {
		pts[i] = m.Point()
	}
	return geo.Centroid(pts)
}
