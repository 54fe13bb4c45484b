// Package geo provides the distance and flight-time primitives shared
// by mission validation, route estimation and compatibility scoring.
package geo

import (
	"math"

	"github.com/skymesh/fleetcore/fleet"
)

// EarthRadius is the mean Earth radius in meters used by the
// haversine calculation
const EarthRadius = 6371000.0

// DefaultCruiseSpeed is the assumed cruise speed in m/s for flight
// time estimation
const DefaultCruiseSpeed = 10.0

// Distance returns the 3D straight-line distance in meters between
// two positions: great-circle distance over the surface via the
// haversine formula, combined with the altitude difference.
func Distance(a, b fleet.Position) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	planar := 2 * EarthRadius * math.Asin(math.Sqrt(h))

	dAlt := b.Altitude - a.Altitude
	return math.Sqrt(planar*planar + dAlt*dAlt)
}

// EstimateFlightTime returns the estimated seconds for a drone at
// start to fly the mission's waypoints in order at the given cruise
// speed, including hover times. A non-positive speed falls back to
// DefaultCruiseSpeed.
func EstimateFlightTime(start fleet.Position, waypoints []fleet.Waypoint, speed float64) float64 {
	if speed <= 0 {
		speed = DefaultCruiseSpeed
	}
	if len(waypoints) == 0 {
		return 0
	}

	total := Distance(start, waypoints[0].Position) / speed
	total += waypoints[0].HoverTime
	for i := 1; i < len(waypoints); i++ {
		total += Distance(waypoints[i-1].Position, waypoints[i].Position) / speed
		total += waypoints[i].HoverTime
	}
	return total
}
