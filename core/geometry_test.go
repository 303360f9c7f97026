package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/allocation-engine/model"
)

func TestLocationToECEFOnSurface(t *testing.T) {
	for _, loc := range []model.Location{
		{Lat: 0, Lon: 0},
		{Lat: 78.23, Lon: 15.41},
		{Lat: -33.9, Lon: 151.2},
	} {
		if got := LocationToECEF(loc).Norm(); math.Abs(got-EarthRadiusKm) > 1e-6 {
			t.Fatalf("|ECEF(%v)| = %v, want %v", loc, got, EarthRadiusKm)
		}
	}

	equator := LocationToECEF(model.Location{})
	if math.Abs(equator.X-EarthRadiusKm) > 1e-9 || math.Abs(equator.Y) > 1e-9 || math.Abs(equator.Z) > 1e-9 {
		t.Fatalf("ECEF(0,0) = %+v, want (R,0,0)", equator)
	}
}

func TestVec3DistanceTo(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}
	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("DistanceTo = %v, want 5", got)
	}
	if got := b.DistanceTo(a); got != 5 {
		t.Fatalf("DistanceTo not symmetric: %v", got)
	}
}

func TestPlanarDistance(t *testing.T) {
	got := planarDistance(model.Location{Lat: 3, Lon: 0}, model.Location{Lat: 0, Lon: 4})
	if got != 5 {
		t.Fatalf("planarDistance = %v, want 5", got)
	}
}
