// Package geocoder resolves coordinates to display addresses through a
// Photon-compatible reverse geocoding endpoint.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// ErrNoResult is returned when the service knows nothing about the point.
var ErrNoResult = errors.New("geocoder: no result")

type featureCollection struct {
	Features []struct {
		Properties struct {
			Name        string `json:"name"`
			Street      string `json:"street"`
			HouseNumber string `json:"housenumber"`
			Postcode    string `json:"postcode"`
			City        string `json:"city"`
			Country     string `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

// Photon implements ports.ReverseGeocoder.
type Photon struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	client    *fasthttp.Client
}

// NewPhoton creates a client for the service at baseURL (for example
// https://photon.komoot.io).
func NewPhoton(baseURL string, timeout time.Duration) *Photon {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Photon{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		userAgent: "classroom/1.0",
		client: &fasthttp.Client{
			Name:                "classroom",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// Reverse looks up the address of p.
func (g *Photon) Reverse(ctx context.Context, p domain.GeoPoint) (domain.Address, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.baseURL + "/reverse")
	args := req.URI().QueryArgs()
	args.Set("lon", strconv.FormatFloat(p.Lon, 'f', 6, 64))
	args.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	args.Set("limit", "1")
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(g.userAgent)

	timeout := g.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	if timeout <= 0 {
		return domain.Address{}, context.DeadlineExceeded
	}

	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return domain.Address{}, fmt.Errorf("geocoder request: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return domain.Address{}, fmt.Errorf("geocoder: unexpected status %d", code)
	}

	var fc featureCollection
	if err := json.Unmarshal(resp.Body(), &fc); err != nil {
		return domain.Address{}, fmt.Errorf("geocoder decode: %w", err)
	}
	if len(fc.Features) == 0 {
		return domain.Address{}, ErrNoResult
	}

	props := fc.Features[0].Properties
	addr := domain.Address{
		Point:       p,
		Street:      props.Street,
		HouseNumber: props.HouseNumber,
		City:        props.City,
		Country:     props.Country,
	}
	addr.DisplayName = displayName(props.Name, props.Street, props.HouseNumber, props.Postcode, props.City, props.Country)
	if addr.DisplayName == "" {
		return domain.Address{}, ErrNoResult
	}
	return addr, nil
}

// displayName joins the non-empty parts as "Name, Street 12, 48001 City, Country".
func displayName(name, street, number, postcode, city, country string) string {
	var parts []string
	if name != "" && name != street {
		parts = append(parts, name)
	}
	if street != "" {
		parts = append(parts, strings.TrimSpace(street+" "+number))
	}
	if locality := strings.TrimSpace(postcode + " " + city); locality != "" {
		parts = append(parts, locality)
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}
