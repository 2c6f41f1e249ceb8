package geo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plateful/api/internal/services"
)

type stubGeocoder struct {
	points map[string]Coordinates
	err    error
}

func (s *stubGeocoder) Geocode(_ context.Context, address string) (Coordinates, error) {
	if s.err != nil {
		return Coordinates{}, s.err
	}
	point, ok := s.points[address]
	if !ok {
		return Coordinates{}, errors.New("no match for address")
	}
	return point, nil
}

func TestCheckRangeAcceptsNearbyAddress(t *testing.T) {
	checker, err := NewRadiusRangeChecker(RadiusRangeCheckerDeps{
		Geocoder: &stubGeocoder{points: map[string]Coordinates{
			"shop":   {Lat: 35.6812, Lng: 139.7671},
			"nearby": {Lat: 35.6815, Lng: 139.7680},
		}},
		ShopAddress:       "shop",
		MaxDistanceMeters: 5000,
	})
	if err != nil {
		t.Fatalf("NewRadiusRangeChecker: %v", err)
	}

	if err := checker.CheckRange(context.Background(), "nearby"); err != nil {
		t.Fatalf("CheckRange: %v", err)
	}
}

func TestCheckRangeRejectsDistantAddress(t *testing.T) {
	checker, err := NewRadiusRangeChecker(RadiusRangeCheckerDeps{
		Geocoder: &stubGeocoder{points: map[string]Coordinates{
			"shop": {Lat: 35.6812, Lng: 139.7671},
			// Osaka, roughly 400km from the Tokyo shop.
			"far": {Lat: 34.6937, Lng: 135.5023},
		}},
		ShopAddress:       "shop",
		MaxDistanceMeters: 5000,
	})
	if err != nil {
		t.Fatalf("NewRadiusRangeChecker: %v", err)
	}

	if err := checker.CheckRange(context.Background(), "far"); !errors.Is(err, services.ErrOutOfRange) {
		t.Fatalf("CheckRange error = %v, want ErrOutOfRange", err)
	}
}

func TestCheckRangeSurfacesGeocoderFailure(t *testing.T) {
	checker, err := NewRadiusRangeChecker(RadiusRangeCheckerDeps{
		Geocoder:    &stubGeocoder{err: errors.New("upstream down")},
		ShopAddress: "shop",
	})
	if err != nil {
		t.Fatalf("NewRadiusRangeChecker: %v", err)
	}

	if err := checker.CheckRange(context.Background(), "anywhere"); err == nil {
		t.Fatal("CheckRange returned nil, want error")
	}
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	tokyo := Coordinates{Lat: 35.6812, Lng: 139.7671}
	osaka := Coordinates{Lat: 34.6937, Lng: 135.5023}

	got := haversineMeters(tokyo, osaka)
	if got < 390000 || got > 410000 {
		t.Fatalf("haversineMeters = %.0f, want roughly 400km", got)
	}
	if zero := haversineMeters(tokyo, tokyo); zero != 0 {
		t.Fatalf("haversineMeters same point = %f, want 0", zero)
	}
}

func TestHTTPGeocoderSendsAddressAndKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "1 Demo Street" {
			t.Errorf("address = %q, want %q", got, "1 Demo Street")
		}
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("key = %q, want %q", got, "secret")
		}
		json.NewEncoder(w).Encode(Coordinates{Lat: 1.5, Lng: 2.5})
	}))
	defer server.Close()

	geocoder, err := NewHTTPGeocoder(server.URL, "secret", server.Client())
	if err != nil {
		t.Fatalf("NewHTTPGeocoder: %v", err)
	}

	coords, err := geocoder.Geocode(context.Background(), "1 Demo Street")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if coords.Lat != 1.5 || coords.Lng != 2.5 {
		t.Fatalf("coords = %+v, want {1.5 2.5}", coords)
	}
}

func TestHTTPGeocoderRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	geocoder, err := NewHTTPGeocoder(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("NewHTTPGeocoder: %v", err)
	}

	if _, err := geocoder.Geocode(context.Background(), "anywhere"); err == nil {
		t.Fatal("Geocode returned nil, want error")
	}
}
