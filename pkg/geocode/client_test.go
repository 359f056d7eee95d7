package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/resilience"
)

const nominatimMadrid = `[
	{"lat": "40.4155", "lon": "-3.7074", "importance": 0.72, "display_name": "Plaza Mayor, Madrid"},
	{"lat": "40.0", "lon": "-3.0", "importance": 0.1, "display_name": "low confidence"}
]`

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache, err := OpenCache(tempCachePath(t))
	require.NoError(t, err)

	provider := NewNominatimProvider(srv.URL, 0.2)
	client := NewClient(provider, cache,
		WithMinInterval(time.Millisecond),
		WithRetryConfig(fastRetry()),
	)
	return client, cache
}

func TestClient_ResolveAndCache(t *testing.T) {
	var calls atomic.Int32
	client, cache := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "plaza mayor madrid", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, nominatimMadrid)
	})

	coord, err := client.Resolve(context.Background(), "Plaza Mayor, Madrid")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinate{Lat: 40.4155, Lon: -3.7074}, coord)
	assert.Equal(t, 1, cache.Len())

	// Warm lookup issues no provider request and is bit-identical.
	again, err := client.Resolve(context.Background(), "  PLAZA MAYOR,   MADRID ")
	require.NoError(t, err)
	assert.Equal(t, coord, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ConfidenceThresholdRejects(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "40.0", "lon": "-3.0", "importance": 0.05}]`)
	})

	_, err := client.Resolve(context.Background(), "Nowhere")
	var pe *model.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindGeocodeNotFound, pe.Kind)
}

func TestClient_NotFoundNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := client.Resolve(context.Background(), "Nowhere At All")
	var pe *model.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindGeocodeNotFound, pe.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Transient429ThenSuccess(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, nominatimMadrid)
	})

	coord, err := client.Resolve(context.Background(), "Plaza Mayor, Madrid")
	require.NoError(t, err)
	assert.InDelta(t, 40.4155, coord.Lat, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitedAfterExhaustion(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Resolve(context.Background(), "Plaza Mayor, Madrid")
	var pe *model.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindGeocodeRateLimited, pe.Kind)
}

func TestClient_UnavailableOnPersistent5xx(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Resolve(context.Background(), "Plaza Mayor, Madrid")
	var pe *model.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindGeocodeUnavailable, pe.Kind)
}

func TestClient_MinIntervalPacing(t *testing.T) {
	cache, err := OpenCache(tempCachePath(t))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, nominatimMadrid)
	}))
	t.Cleanup(srv.Close)

	interval := 50 * time.Millisecond
	client := NewClient(NewNominatimProvider(srv.URL, 0.2), cache,
		WithMinInterval(interval), WithRetryConfig(fastRetry()))

	start := time.Now()
	_, err = client.Resolve(context.Background(), "address one")
	require.NoError(t, err)
	_, err = client.Resolve(context.Background(), "address two")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), interval)
}

func TestGoogleProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		wantLat float64
	}{
		{
			name:    "ok",
			body:    `{"status":"OK","results":[{"geometry":{"location":{"lat":40.4169,"lng":-3.7033}}}]}`,
			wantLat: 40.4169,
		},
		{
			name:    "zero results",
			body:    `{"status":"ZERO_RESULTS","results":[]}`,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := NewGoogleProvider("test-key", WithGoogleBaseURL(srv.URL))
			coord, err := p.Geocode(context.Background(), "puerta del sol madrid")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLat, coord.Lat, 1e-9)
		})
	}
}

func TestGoogleProvider_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OVER_QUERY_LIMIT","results":[]}`)
	}))
	defer srv.Close()

	p := NewGoogleProvider("test-key", WithGoogleBaseURL(srv.URL))
	_, err := p.Geocode(context.Background(), "anywhere")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, http.StatusTooManyRequests, resilience.StatusOf(err))
}
