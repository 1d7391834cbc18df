package tracker

import (
	"math"

	"github.com/biomapp/derive/internal/geo"
	"github.com/biomapp/derive/internal/model"
)

// Summarize computes the walk statistics for a breadcrumb trail. Time split
// between stationary and moving is apportioned by breadcrumb counts, and a
// trail is classified as moving or stationary when more than 80% of its
// points fall on that side.
func Summarize(crumbs []model.Breadcrumb) *model.SessionSummary {
	if len(crumbs) < 2 {
		return &model.SessionSummary{
			Pattern:         model.PatternStationary,
			BreadcrumbCount: len(crumbs),
		}
	}

	var (
		totalDistance   float64
		totalSpeed      float64
		maxSpeed        float64
		stationaryCount int
		movingCount     int
	)

	for i := 1; i < len(crumbs); i++ {
		prev, curr := crumbs[i-1], crumbs[i]

		dist := geo.DistanceMeters(
			model.LatLng{Lat: prev.Lat, Lng: prev.Lng},
			model.LatLng{Lat: curr.Lat, Lng: curr.Lng},
		)
		totalDistance += dist

		if dt := curr.Timestamp - prev.Timestamp; dt > 0 {
			speed := dist / (float64(dt) / 1000)
			totalSpeed += speed
			maxSpeed = math.Max(maxSpeed, speed)
		}

		if curr.IsMoving {
			movingCount++
		} else {
			stationaryCount++
		}
	}

	var avgSpeed float64
	if len(crumbs) > 1 {
		avgSpeed = totalSpeed / float64(len(crumbs)-1)
	}

	totalTime := crumbs[len(crumbs)-1].Timestamp - crumbs[0].Timestamp
	stationaryTime := float64(stationaryCount) / float64(len(crumbs)) * float64(totalTime)
	movingTime := float64(totalTime) - stationaryTime

	pattern := model.PatternMixed
	switch {
	case float64(movingCount)/float64(len(crumbs)) > 0.8:
		pattern = model.PatternMoving
	case float64(stationaryCount)/float64(len(crumbs)) > 0.8:
		pattern = model.PatternStationary
	}

	return &model.SessionSummary{
		TotalDistanceMeters:   math.Round(totalDistance),
		AverageSpeedMps:       math.Round(avgSpeed*100) / 100,
		MaxSpeedMps:           math.Round(maxSpeed*100) / 100,
		StationaryTimeSeconds: math.Round(stationaryTime / 1000),
		MovingTimeSeconds:     math.Round(movingTime / 1000),
		Pattern:               pattern,
		BreadcrumbCount:       len(crumbs),
	}
}
