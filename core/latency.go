package core

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/allocation-engine/model"
)

// speedOfLightKmPerMs is c expressed in kilometres per millisecond.
const speedOfLightKmPerMs = 299.792458

// tleLineLength is the fixed width of a two-line element line.
const tleLineLength = 69

// LatencyModel estimates the latency in milliseconds between a satellite and
// a ground site. The optimization advisor only compares values produced by
// the same model, so units need only be consistent.
type LatencyModel interface {
	SiteLatency(sat model.Satellite, site model.Site) float64
}

// PlanarLatency is a placeholder proxy: distance in degrees on a flat lat/lon
// grid from a fixed origin, scaled to milliseconds. It is not physics.
type PlanarLatency struct {
	Origin      model.Location
	MsPerDegree float64
}

// DefaultPlanarLatency measures from (0, 0) at one millisecond per degree.
func DefaultPlanarLatency() PlanarLatency {
	return PlanarLatency{MsPerDegree: 1}
}

// SiteLatency implements LatencyModel.
func (p PlanarLatency) SiteLatency(_ model.Satellite, site model.Site) float64 {
	scale := p.MsPerDegree
	if scale <= 0 {
		scale = 1
	}
	return planarDistance(p.Origin, site.Location) * scale
}

// OrbitalLatency propagates the satellite's TLE with SGP4 and returns the
// one-way light time over the slant range to the site. Satellites without a
// TLE are scored by Fallback.
type OrbitalLatency struct {
	Now      func() time.Time
	Fallback LatencyModel
}

// NewOrbitalLatency returns an orbital model evaluated at wall-clock time with
// the planar proxy as fallback.
func NewOrbitalLatency() *OrbitalLatency {
	return &OrbitalLatency{
		Now:      func() time.Time { return time.Now().UTC() },
		Fallback: DefaultPlanarLatency(),
	}
}

// SiteLatency implements LatencyModel.
func (o *OrbitalLatency) SiteLatency(sat model.Satellite, site model.Site) float64 {
	if !sat.HasTLE() || len(sat.TLE1) < tleLineLength || len(sat.TLE2) < tleLineLength {
		return o.fallback().SiteLatency(sat, site)
	}
	pos, ok := o.satellitePosition(sat)
	if !ok {
		return o.fallback().SiteLatency(sat, site)
	}
	return pos.DistanceTo(LocationToECEF(site.Location)) / speedOfLightKmPerMs
}

// satellitePosition returns the ECEF position in kilometres at o.Now().
func (o *OrbitalLatency) satellitePosition(sat model.Satellite) (Vec3, bool) {
	now := time.Now().UTC()
	if o.Now != nil {
		now = o.Now().UTC()
	}
	year, month, day := now.Date()
	hour, min, sec := now.Clock()

	elements := satellite.TLEToSat(sat.TLE1, sat.TLE2, satellite.GravityWGS72)
	posECI, _ := satellite.Propagate(elements, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))

	v := Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	if v.Norm() < EarthRadiusKm {
		// Propagation failures surface as a zero or sub-surface vector.
		return Vec3{}, false
	}
	return v, true
}

func (o *OrbitalLatency) fallback() LatencyModel {
	if o.Fallback != nil {
		return o.Fallback
	}
	return DefaultPlanarLatency()
}
