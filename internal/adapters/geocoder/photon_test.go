package geocoder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
)

const bilbaoResponse = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "geometry": {"type": "Point", "coordinates": [-2.935, 43.263]},
    "properties": {
      "name": "Hospital Universitario",
      "street": "Avenida Montevideo",
      "housenumber": "18",
      "postcode": "48013",
      "city": "Bilbao",
      "country": "Spain"
    }
  }]
}`

func TestPhoton_Reverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("lat") != "43.263000" || r.URL.Query().Get("lon") != "-2.935000" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bilbaoResponse))
	}))
	defer srv.Close()

	addr, err := NewPhoton(srv.URL+"/", time.Second).Reverse(context.Background(), domain.GeoPoint{Lat: 43.263, Lon: -2.935})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Hospital Universitario, Avenida Montevideo 18, 48013 Bilbao, Spain"
	if addr.DisplayName != want {
		t.Errorf("got %q, want %q", addr.DisplayName, want)
	}
	if addr.City != "Bilbao" || addr.Fallback {
		t.Errorf("unexpected address %+v", addr)
	}
}

func TestPhoton_Errors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   error
	}{
		"server error": {status: 503, body: "busy"},
		"empty":        {status: 200, body: `{"type":"FeatureCollection","features":[]}`, want: ErrNoResult},
		"garbage":      {status: 200, body: `<html>`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewPhoton(srv.URL, time.Second).Reverse(context.Background(), domain.GeoPoint{Lat: 1, Lon: 1})
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPhoton_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewPhoton(url, 200*time.Millisecond).Reverse(context.Background(), domain.GeoPoint{}); err == nil {
		t.Fatal("expected error for a closed server")
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("Calle Mayor", "Calle Mayor", "3", "", "Bilbao", ""); got != "Calle Mayor 3, Bilbao" {
		t.Errorf("unexpected %q", got)
	}
	if got := displayName("", "", "", "", "", ""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
