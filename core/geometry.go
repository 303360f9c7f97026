package core

import (
	"math"

	"github.com/signalsfoundry/allocation-engine/model"
)

// EarthRadiusKm is the mean Earth radius used for site positions (kilometres).
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// LocationToECEF places a surface location on a spherical Earth.
func LocationToECEF(loc model.Location) Vec3 {
	lat := loc.Lat * math.Pi / 180
	lon := loc.Lon * math.Pi / 180
	return Vec3{
		X: EarthRadiusKm * math.Cos(lat) * math.Cos(lon),
		Y: EarthRadiusKm * math.Cos(lat) * math.Sin(lon),
		Z: EarthRadiusKm * math.Sin(lat),
	}
}

// planarDistance is the Euclidean distance between two locations treated as
// points on a flat lat/lon grid, in degrees.
func planarDistance(a, b model.Location) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
