// Package corridor derives the sampled geographic path along which a flight's
// weather is checked. Pure geometry, no I/O.
package corridor

import "github.com/skysched/flightwx/internal/types"

// SamplePoints is the number of corridor sample points: departure, three
// interpolated waypoints, arrival.
const SamplePoints = 5

// Points returns the 5-point sampling path between departure and arrival.
// Waypoints are linearly interpolated; adequate for the short legs training
// flights cover.
func Points(dep, arr types.Coordinate) []types.Coordinate {
	pts := make([]types.Coordinate, 0, SamplePoints)
	for i := 0; i < SamplePoints; i++ {
		f := float64(i) / float64(SamplePoints-1)
		pts = append(pts, types.Coordinate{
			Lat: dep.Lat + (arr.Lat-dep.Lat)*f,
			Lon: dep.Lon + (arr.Lon-dep.Lon)*f,
		})
	}
	return pts
}
