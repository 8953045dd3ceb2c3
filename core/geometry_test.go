package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/route-simulator/model"
)

const floatTolerance = 1e-9

func TestGreatCircleDistanceZeroForSamePoint(t *testing.T) {
	points := []model.Coordinate{
		{Lat: 37.873760, Lon: -122.320580},
		{Lat: 0, Lon: 0, Alt: 100},
		{Lat: -89.9, Lon: 179.9},
		{Lat: 51.5, Lon: -0.12, Alt: -4},
	}
	for _, p := range points {
		if d := GreatCircleDistanceKm(p, p); d != 0 {
			t.Fatalf("GreatCircleDistanceKm(%v, %v) = %v, want 0", p, p, d)
		}
	}
}

func TestGreatCircleDistanceSymmetric(t *testing.T) {
	pairs := [][2]model.Coordinate{
		{{Lat: 37.873760, Lon: -122.320580}, {Lat: 37.8, Lon: -122.3}},
		{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 180}},
		{{Lat: -33.86, Lon: 151.2}, {Lat: 40.71, Lon: -74.0}},
	}
	for _, p := range pairs {
		ab := GreatCircleDistanceKm(p[0], p[1])
		ba := GreatCircleDistanceKm(p[1], p[0])
		if math.Abs(ab-ba) > floatTolerance {
			t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestGreatCircleDistanceKnownValues(t *testing.T) {
	// One degree of longitude on the equator.
	got := GreatCircleDistanceKm(model.Coordinate{}, model.Coordinate{Lon: 1})
	want := EarthRadiusKm * math.Pi / 180
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("1 degree at equator = %v km, want %v", got, want)
	}

	// Antipodal points exercise the clamp before the arcsine.
	got = GreatCircleDistanceKm(model.Coordinate{Lat: 0, Lon: 0}, model.Coordinate{Lat: 0, Lon: 180})
	want = EarthRadiusKm * math.Pi
	if math.IsNaN(got) || math.Abs(got-want) > 1e-6 {
		t.Fatalf("antipodal distance = %v, want %v", got, want)
	}
}

func TestDegreesToRadians(t *testing.T) {
	if got := DegreesToRadians(180); math.Abs(got-math.Pi) > floatTolerance {
		t.Fatalf("DegreesToRadians(180) = %v", got)
	}
	if got := DegreesToRadians(-90); math.Abs(got+math.Pi/2) > floatTolerance {
		t.Fatalf("DegreesToRadians(-90) = %v", got)
	}
}

func TestTravelTimeSeconds(t *testing.T) {
	if got := TravelTimeSeconds(3); got != 0.3 {
		t.Fatalf("TravelTimeSeconds(3) = %v, want 0.3", got)
	}
	if got := TravelTimeSeconds(0); got != 0 {
		t.Fatalf("TravelTimeSeconds(0) = %v, want 0", got)
	}
}

func TestLegDistanceMetersTakesLargerComponent(t *testing.T) {
	base := model.Coordinate{Lat: 37.873760, Lon: -122.320580, Alt: 0}

	// Pure climb: horizontal distance is zero so altitude dominates.
	if got := LegDistanceMeters(base, base.WithAlt(120)); got != 120 {
		t.Fatalf("vertical leg = %v, want 120", got)
	}

	// Long horizontal leg with a small climb.
	target := model.Coordinate{Lat: 37.8, Lon: -122.3, Alt: 50}
	horizontal := GreatCircleDistanceKm(base, target) * 1000
	if got := LegDistanceMeters(base, target); got != horizontal {
		t.Fatalf("horizontal leg = %v, want %v", got, horizontal)
	}
}

func TestSecondsToDuration(t *testing.T) {
	if got := secondsToDuration(1.5); got != 1500*time.Millisecond {
		t.Fatalf("secondsToDuration(1.5) = %v", got)
	}
	if got := secondsToDuration(-2); got != 0 {
		t.Fatalf("secondsToDuration(-2) = %v, want 0", got)
	}
	if got := secondsToDuration(math.NaN()); got != 0 {
		t.Fatalf("secondsToDuration(NaN) = %v, want 0", got)
	}
}
