package geo

import (
	"math"

	"github.com/wroge/wgs84"

	"github.com/biomapp/derive/internal/model"
)

// Simplification uses perpendicular distance in a locally-flat plane rather
// than true geodesic distance. Points are projected 4326 -> 3857 so the
// tolerance can be expressed in meters; the approximation holds for the
// short walks this engine records.

// planar is a projected point paired with its original index.
type planar struct {
	x, y float64
}

func project(points []model.LatLng) []planar {
	f := wgs84.EPSG().Transform(4326, 3857)
	out := make([]planar, len(points))
	for i, p := range points {
		x, y, _ := f(p.Lng, p.Lat, 0)
		out[i] = planar{x: x, y: y}
	}
	return out
}

// perpendicularDistance is the distance from p to the segment [a,b] in the
// projected plane, in meters.
func perpendicularDistance(p, a, b planar) float64 {
	cx := b.x - a.x
	cy := b.y - a.y
	lenSq := cx*cx + cy*cy
	if lenSq == 0 {
		return math.Hypot(p.x-a.x, p.y-a.y)
	}
	t := ((p.x-a.x)*cx + (p.y-a.y)*cy) / lenSq
	switch {
	case t < 0:
		return math.Hypot(p.x-a.x, p.y-a.y)
	case t > 1:
		return math.Hypot(p.x-b.x, p.y-b.y)
	default:
		return math.Hypot(p.x-(a.x+t*cx), p.y-(a.y+t*cy))
	}
}

// douglasPeucker marks the indices kept by the algorithm in keep.
func douglasPeucker(pts []planar, first, last int, toleranceMeters float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDist := 0.0
	maxIdx := first
	for i := first + 1; i < last; i++ {
		d := perpendicularDistance(pts[i], pts[first], pts[last])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > toleranceMeters {
		keep[maxIdx] = true
		douglasPeucker(pts, first, maxIdx, toleranceMeters, keep)
		douglasPeucker(pts, maxIdx, last, toleranceMeters, keep)
	}
}

// simplifyMask returns the keep-mask for a point sequence. Sequences of
// length <= 2 keep everything; endpoints are always kept.
func simplifyMask(points []model.LatLng, toleranceMeters float64) []bool {
	keep := make([]bool, len(points))
	if len(points) == 0 {
		return keep
	}
	keep[0] = true
	keep[len(points)-1] = true
	if len(points) <= 2 {
		return keep
	}

	pts := project(points)
	douglasPeucker(pts, 0, len(pts)-1, toleranceMeters, keep)
	return keep
}

// Simplify reduces a polyline with the Douglas-Peucker algorithm. The
// tolerance is in meters and caller-supplied: the registry uses a looser
// tolerance for periodic persistence and a tighter one at session end.
func Simplify(points []model.LatLng, toleranceMeters float64) []model.LatLng {
	if len(points) <= 2 {
		return points
	}
	keep := simplifyMask(points, toleranceMeters)
	out := make([]model.LatLng, 0, len(points))
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

// SimplifyBreadcrumbs reduces a breadcrumb trail, preserving the full
// metadata of every kept breadcrumb.
func SimplifyBreadcrumbs(crumbs []model.Breadcrumb, toleranceMeters float64) []model.Breadcrumb {
	if len(crumbs) <= 2 {
		return crumbs
	}
	points := make([]model.LatLng, len(crumbs))
	for i, c := range crumbs {
		points[i] = c.LatLng()
	}
	keep := simplifyMask(points, toleranceMeters)
	out := make([]model.Breadcrumb, 0, len(crumbs))
	for i, k := range keep {
		if k {
			out = append(out, crumbs[i])
		}
	}
	return out
}
