// Package routing adapts the external GIS (geographic information system)
// service that computes flight corridors and durations between pads.
//
// No HTTP client library (resty, retryablehttp, or similar) appears anywhere
// in the retrieved example corpus, so this adapter is built directly on
// net/http and encoding/json — see DESIGN.md for the justification.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// ErrRouteUnavailable indicates the GIS found no valid corridor at the
// requested time.
var ErrRouteUnavailable = errors.New("routing: no corridor available at requested time")

// ErrGISUnavailable indicates a transport-level failure talking to the GIS;
// callers should treat it as retryable.
var ErrGISUnavailable = errors.New("routing: gis service unavailable")

// Path is the result of a best-path query.
type Path struct {
	Waypoints []domain.GeoPoint
	Duration  time.Duration
	Altitudes []float64
}

// Client is the routing adapter's public surface.
type Client interface {
	// BestPath returns the fastest corridor between two pads departing at
	// (or after) depart. Fails with ErrRouteUnavailable if no corridor
	// exists, ErrGISUnavailable on transport failure.
	BestPath(ctx context.Context, origin, destination domain.Pad, depart time.Time) (Path, error)
	// CheckIntersection reports whether the given path crosses an active
	// no-fly zone during window. Called at commit time by search.Revalidate,
	// after a search-time pairing has been found, since no-fly zones can
	// change between search and commit.
	CheckIntersection(ctx context.Context, path []domain.GeoPoint, window domain.Timeslot) (bool, error)
}

// HTTPClient is a JSON-over-HTTP implementation of Client.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a routing client against a GIS base URL, with a
// bounded per-call timeout set on the underlying http.Client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

type bestPathRequest struct {
	OriginLat float64   `json:"origin_lat"`
	OriginLng float64   `json:"origin_lng"`
	DestLat   float64   `json:"dest_lat"`
	DestLng   float64   `json:"dest_lng"`
	Depart    time.Time `json:"depart"`
}

type bestPathResponse struct {
	Waypoints  []domain.GeoPoint `json:"waypoints"`
	DurationMs int64             `json:"duration_ms"`
	Altitudes  []float64         `json:"altitudes"`
	Available  bool              `json:"available"`
}

func (c *HTTPClient) BestPath(ctx context.Context, origin, destination domain.Pad, depart time.Time) (Path, error) {
	body, err := json.Marshal(bestPathRequest{
		OriginLat: origin.Latitude,
		OriginLng: origin.Longitude,
		DestLat:   destination.Latitude,
		DestLng:   destination.Longitude,
		Depart:    depart,
	})
	if err != nil {
		return Path{}, fmt.Errorf("routing: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/best-path", bytes.NewReader(body))
	if err != nil {
		return Path{}, fmt.Errorf("routing: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %v", ErrGISUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Path{}, ErrGISUnavailable
	}
	if resp.StatusCode >= 400 {
		return Path{}, ErrRouteUnavailable
	}

	var out bestPathResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Path{}, fmt.Errorf("routing: decode response: %w", err)
	}
	if !out.Available {
		return Path{}, ErrRouteUnavailable
	}

	return Path{
		Waypoints: out.Waypoints,
		Duration:  time.Duration(out.DurationMs) * time.Millisecond,
		Altitudes: out.Altitudes,
	}, nil
}

type intersectionRequest struct {
	Path        []domain.GeoPoint `json:"path"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
}

type intersectionResponse struct {
	Intersects bool `json:"intersects"`
}

func (c *HTTPClient) CheckIntersection(ctx context.Context, path []domain.GeoPoint, window domain.Timeslot) (bool, error) {
	body, err := json.Marshal(intersectionRequest{Path: path, WindowStart: window.Start, WindowEnd: window.End})
	if err != nil {
		return false, fmt.Errorf("routing: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/check-intersection", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("routing: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGISUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, ErrGISUnavailable
	}

	var out intersectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("routing: decode response: %w", err)
	}
	return out.Intersects, nil
}
