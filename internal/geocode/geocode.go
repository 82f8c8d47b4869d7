package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/citypulse/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Confidence  float64
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

func BuildGeocodeQuery(address string, city string) string {
	address = strings.TrimSpace(address)
	city = strings.TrimSpace(city)
	parts := []string{}
	if address != "" {
		parts = append(parts, address)
	}
	if city != "" {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

// ShouldGeocode is true when the report is missing either coordinate but has
// something to look up.
func ShouldGeocode(r models.Report) bool {
	if r.Latitude != nil && r.Longitude != nil {
		return false
	}
	return BuildGeocodeQuery(r.Address, r.City) != ""
}
