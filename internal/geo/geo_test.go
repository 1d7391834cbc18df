package geo

import (
	"math"
	"testing"

	"github.com/biomapp/derive/internal/model"
)

var (
	reserva = model.LatLng{Lat: 6.1905, Lng: -75.5584}
	medell  = model.LatLng{Lat: 6.2442, Lng: -75.5812}
)

func TestDistanceMeters_Symmetry(t *testing.T) {
	ab := DistanceMeters(reserva, medell)
	ba := DistanceMeters(medell, reserva)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceMeters_Identity(t *testing.T) {
	if d := DistanceMeters(reserva, reserva); d != 0 {
		t.Errorf("expected zero distance to self, got %f", d)
	}
}

func TestDistanceMeters_KnownDistance(t *testing.T) {
	// ~6.5 km between the two reference points
	d := DistanceMeters(reserva, medell)
	if d < 6000 || d > 7000 {
		t.Errorf("unexpected distance: %f", d)
	}
}

func TestDistanceMeters_ShortRange(t *testing.T) {
	// 10 m due east should come back within centimeters
	b := DestinationPoint(reserva, 90, 10)
	d := DistanceMeters(reserva, b)
	if math.Abs(d-10) > 0.05 {
		t.Errorf("expected ~10m, got %f", d)
	}
}

func TestBearingDegrees_Cardinal(t *testing.T) {
	cases := []struct {
		name    string
		bearing float64
	}{
		{"north", 0},
		{"east", 90},
		{"south", 180},
		{"west", 270},
	}
	for _, tc := range cases {
		to := DestinationPoint(reserva, tc.bearing, 100)
		got := BearingDegrees(reserva, to)
		diff := math.Abs(got - tc.bearing)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > 0.5 {
			t.Errorf("%s: expected bearing ~%f, got %f", tc.name, tc.bearing, got)
		}
	}
}

func TestBearingDegrees_Range(t *testing.T) {
	for deg := 0.0; deg < 360; deg += 15 {
		to := DestinationPoint(reserva, deg, 50)
		got := BearingDegrees(reserva, to)
		if got < 0 || got >= 360 {
			t.Fatalf("bearing out of range for %f: %f", deg, got)
		}
	}
}

func TestBearingToStereoPan(t *testing.T) {
	cases := []struct {
		bearing float64
		pan     float64
	}{
		{0, 0},
		{90, 1},
		{180, 0},
		{270, -1},
	}
	for _, tc := range cases {
		got := BearingToStereoPan(tc.bearing)
		if math.Abs(got-tc.pan) > 1e-9 {
			t.Errorf("pan(%f): expected %f, got %f", tc.bearing, tc.pan, got)
		}
	}
}

func TestBearingToStereoPan_Range(t *testing.T) {
	for deg := 0.0; deg < 360; deg += 5 {
		pan := BearingToStereoPan(deg)
		if pan < -1 || pan > 1 {
			t.Fatalf("pan out of range at %f: %f", deg, pan)
		}
	}
}
