package opt

import (
	"milkrun/internal/geo"
	"milkrun/internal/model"
)

// ImproveOrder2Opt applies 2-opt segment reversals to an open route that starts at depot.
// The depot stays first; a reversal is kept only when it shortens the route.
func ImproveOrder2Opt(depot geo.Point, route []model.GeoPoint, iterations int) []model.GeoPoint {
	if iterations <= 0 {
		iterations = 1
	}
	nodes := make([]geo.Point, len(route)+1)
	nodes[0] = depot
	order := make([]int, len(route)+1)
	for i, p := range route {
		nodes[i+1] = p.Point()
		order[i+1] = i + 1
	}
	best := order
	bestDist := pathDistance(nodes, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				candidate := twoOptSwap(best, i, k)
				if d := pathDistance(nodes, candidate); d+1e-9 < bestDist {
					best = candidate
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	out := make([]model.GeoPoint, 0, len(route))
	for _, idx := range best[1:] {
		out = append(out, route[idx-1])
	}
	return out
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathDistance(nodes []geo.Point, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += geo.Haversine(nodes[order[i]], nodes[order[i+1]])
	}
	return total
}
