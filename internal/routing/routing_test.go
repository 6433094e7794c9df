package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

func TestBestPathHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/best-path", r.URL.Path)
		json.NewEncoder(w).Encode(bestPathResponse{
			Available:  true,
			DurationMs: 900000,
			Altitudes:  []float64{400},
			Waypoints:  []domain.GeoPoint{{Latitude: 1, Longitude: 2}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	path, err := c.BestPath(context.Background(), domain.Pad{}, domain.Pad{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, path.Duration)
	assert.Len(t, path.Waypoints, 1)
}

func TestBestPathUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bestPathResponse{Available: false})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.BestPath(context.Background(), domain.Pad{}, domain.Pad{}, time.Now())
	assert.ErrorIs(t, err, ErrRouteUnavailable)
}

func TestBestPathServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.BestPath(context.Background(), domain.Pad{}, domain.Pad{}, time.Now())
	assert.ErrorIs(t, err, ErrGISUnavailable)
}

func TestCheckIntersection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/check-intersection", r.URL.Path)
		json.NewEncoder(w).Encode(intersectionResponse{Intersects: true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	hit, err := c.CheckIntersection(context.Background(), nil, domain.Timeslot{})
	require.NoError(t, err)
	assert.True(t, hit)
}
