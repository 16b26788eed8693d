package opt

import (
	"errors"
	"fmt"
	"math"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

// ErrInvalidPoint is returned when a route contains a coordinate that cannot be measured.
var ErrInvalidPoint = errors.New("opt: non-finite coordinate")

// Sequenced is the outcome of sequencing a cluster. When Fallback is set, Points keeps the
// caller's original order and Err says why.
type Sequenced struct {
	Points   []model.GeoPoint
	Fallback bool
	Err      error
}

// Sequence orders pts by the nearest-neighbour heuristic starting at depot. Ties go to the
// point that came first in pts.
func Sequence(depot geo.Point, pts []model.GeoPoint) (out []model.GeoPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("opt: sequencing panicked: %v", r)
		}
	}()
	if !depot.Finite() {
		return nil, fmt.Errorf("%w: depot", ErrInvalidPoint)
	}
	for _, p := range pts {
		if !p.Point().Finite() {
			return nil, fmt.Errorf("%w: order %s", ErrInvalidPoint, p.OrderID)
		}
	}
	n := len(pts)
	out = make([]model.GeoPoint, 0, n)
	visited := make([]bool, n)
	cur := depot
	for len(out) < n {
		best, bestD := -1, math.Inf(1)
		for i := range pts {
			if visited[i] {
				continue
			}
			if d := geo.Haversine(cur, pts[i].Point()); best == -1 || d < bestD {
				best, bestD = i, d
			}
		}
		visited[best] = true
		out = append(out, pts[best])
		cur = pts[best].Point()
	}
	return out, nil
}

// SequenceOrFallback never fails: on error the original order is returned with Fallback set.
// twoOptPasses > 0 refines the nearest-neighbour order with ImproveOrder2Opt.
func SequenceOrFallback(depot geo.Point, pts []model.GeoPoint, twoOptPasses int) Sequenced {
	seq, err := Sequence(depot, pts)
	if err != nil {
		return Sequenced{Points: append([]model.GeoPoint(nil), pts...), Fallback: true, Err: err}
	}
	if twoOptPasses > 0 && len(seq) > 2 {
		seq = ImproveOrder2Opt(depot, seq, twoOptPasses)
	}
	return Sequenced{Points: seq}
}

// PathLength sums consecutive distances between pts in km. The depot leg is not included.
func PathLength(pts []model.GeoPoint) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += geo.Haversine(pts[i-1].Point(), pts[i].Point())
	}
	return total
}
