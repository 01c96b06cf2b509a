package geo

import (
	"math"

	"visitorgate/models"
)

// Detection is the nearest registered site for a fix.
type Detection struct {
	Fix          models.Fix      `json:"fix"`
	Location     models.Location `json:"location"`
	Category     models.Category `json:"category"`
	DistanceKm   float64         `json:"distanceKm"`
	WithinRadius bool            `json:"withinRadius"`
}

// Detect picks the registered location nearest to fix. Ties go to the location
// that appears first. The nearest location is returned even when the fix lies
// outside its radius; WithinRadius tells the two cases apart. Returns nil only
// for an empty registry. A NaN fix yields the first location with a NaN
// distance, outside its radius.
func Detect(fix models.Fix, locations []models.Location) *Detection {
	if len(locations) == 0 {
		return nil
	}
	best := 0
	bestDist := DistanceKm(fix.Lat, fix.Lng, locations[0].Lat, locations[0].Lng)
	for i := 1; i < len(locations); i++ {
		loc := locations[i]
		d := DistanceKm(fix.Lat, fix.Lng, loc.Lat, loc.Lng)
		if d < bestDist || (math.IsNaN(bestDist) && !math.IsNaN(d)) {
			best, bestDist = i, d
		}
	}
	loc := locations[best]
	return &Detection{
		Fix:          fix,
		Location:     loc,
		Category:     loc.Category,
		DistanceKm:   bestDist,
		WithinRadius: bestDist <= loc.RadiusKm,
	}
}

// Admits reports whether a check-in for category may proceed on this detection.
func (d *Detection) Admits(category models.Category) bool {
	return d != nil && d.Category == category
}
