// Package geo validates delivery addresses against the shop's delivery
// radius using an external geocoding service.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/plateful/api/internal/services"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// RadiusRangeCheckerDeps enumerates collaborators for the range checker.
type RadiusRangeCheckerDeps struct {
	Geocoder Geocoder
	// ShopAddress is geocoded once per check and compared against the
	// delivery address.
	ShopAddress string
	// MaxDistanceMeters caps the straight-line delivery distance.
	MaxDistanceMeters float64
}

// RadiusRangeChecker rejects addresses farther than the configured radius
// from the shop.
type RadiusRangeChecker struct {
	geocoder    Geocoder
	shopAddress string
	maxDistance float64
}

// NewRadiusRangeChecker wires dependencies into a RadiusRangeChecker.
func NewRadiusRangeChecker(deps RadiusRangeCheckerDeps) (*RadiusRangeChecker, error) {
	if deps.Geocoder == nil {
		return nil, errors.New("range checker: geocoder is required")
	}
	if deps.ShopAddress == "" {
		return nil, errors.New("range checker: shop address is required")
	}
	maxDistance := deps.MaxDistanceMeters
	if maxDistance <= 0 {
		maxDistance = 5000
	}
	return &RadiusRangeChecker{
		geocoder:    deps.Geocoder,
		shopAddress: deps.ShopAddress,
		maxDistance: maxDistance,
	}, nil
}

// CheckRange geocodes both endpoints and compares the great-circle distance
// against the delivery radius.
func (c *RadiusRangeChecker) CheckRange(ctx context.Context, address string) error {
	shop, err := c.geocoder.Geocode(ctx, c.shopAddress)
	if err != nil {
		return fmt.Errorf("geocode shop address: %w", err)
	}
	target, err := c.geocoder.Geocode(ctx, address)
	if err != nil {
		return fmt.Errorf("geocode delivery address: %w", err)
	}
	if haversineMeters(shop, target) > c.maxDistance {
		return services.ErrOutOfRange
	}
	return nil
}

const earthRadiusMeters = 6371000

func haversineMeters(a, b Coordinates) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := latB - latA
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// HTTPGeocoder calls a JSON geocoding endpoint:
// GET {baseURL}?address=...&key=... -> {"lat": .., "lng": ..}
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGeocoder builds a geocoder against the given endpoint.
func NewHTTPGeocoder(baseURL, apiKey string, client *http.Client) (*HTTPGeocoder, error) {
	if baseURL == "" {
		return nil, errors.New("geocoder: base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPGeocoder{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

// Geocode resolves the address via the remote service.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	query := url.Values{}
	query.Set("address", address)
	if g.apiKey != "" {
		query.Set("key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Coordinates{}, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}
	var coords Coordinates
	if err := json.NewDecoder(resp.Body).Decode(&coords); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocoder response: %w", err)
	}
	return coords, nil
}
