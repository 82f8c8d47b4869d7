package utils

import (
	"math"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	// Montreal city hall to the Olympic stadium, about 5.5 km
	d := HaversineMeters(45.5088, -73.5540, 45.5579, -73.5515)
	if math.Abs(d-5460) > 150 {
		t.Fatalf("unexpected distance %f", d)
	}
	if HaversineMeters(45.5, -73.5, 45.5, -73.5) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestWithin(t *testing.T) {
	lat1, lon1 := 45.5000, -73.5000
	lat2, lon2 := 45.5005, -73.5000 // ~55 m north
	if !Within(&lat1, &lon1, &lat2, &lon2, 100) {
		t.Fatalf("expected points to be within 100 m")
	}
	if Within(&lat1, &lon1, &lat2, &lon2, 10) {
		t.Fatalf("expected points to be farther than 10 m")
	}
	if Within(&lat1, nil, &lat2, &lon2, 1e6) {
		t.Fatalf("missing coordinates never match")
	}
}

func TestHash64Stable(t *testing.T) {
	if Hash64("a", "b") != Hash64("a", "b") {
		t.Fatalf("hash must be deterministic")
	}
	if Hash64("ab") == Hash64("a", "b") {
		t.Fatalf("part boundaries must affect the hash")
	}
}
