package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/routelab/routeplan-cli/internal/pipeline"
	"github.com/routelab/routeplan-cli/internal/resilience"
	"github.com/routelab/routeplan-cli/internal/store"
	"github.com/routelab/routeplan-cli/pkg/geocode"
	"github.com/routelab/routeplan-cli/pkg/osrm"
)

// planEnv bundles everything a planning run needs.
type planEnv struct {
	Store   store.Store
	Cache   *geocode.Cache
	Planner *pipeline.Planner
	events  chan pipeline.Event
}

func (e *planEnv) Close() {
	_ = e.Store.Close()
}

// initPlanEnv opens the store and cache and builds the provider
// clients from configuration.
func initPlanEnv(ctx context.Context, events chan pipeline.Event) (*planEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cache, err := geocode.OpenCache(cfg.Cache.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	geocoder, err := buildGeocoder(cache)
	if err != nil {
		st.Close()
		return nil, err
	}
	router := buildRouter()

	opts := []pipeline.Option{pipeline.WithCache(cache)}
	if events != nil {
		opts = append(opts, pipeline.WithEvents(events))
	}

	return &planEnv{
		Store:   st,
		Cache:   cache,
		Planner: pipeline.New(cfg, st, geocoder, router, opts...),
		events:  events,
	}, nil
}

func buildGeocoder(cache *geocode.Cache) (*geocode.Client, error) {
	provider, err := buildGeocodeProvider(cfg.Geocoder.Provider, cfg.Geocoder.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Geocoder.FallbackProvider != "" {
		// The fallback provider ignores the primary's base URL override.
		fallback, err := buildGeocodeProvider(cfg.Geocoder.FallbackProvider, "")
		if err != nil {
			return nil, err
		}
		provider = geocode.NewFallbackProvider(provider, fallback)
	}

	return geocode.NewClient(provider, cache,
		geocode.WithMinInterval(cfg.HTTP.MinRequestInterval()),
		geocode.WithRetryConfig(retryConfig("geocode")),
	), nil
}

func buildGeocodeProvider(name, baseURL string) (geocode.Provider, error) {
	hc := &http.Client{Timeout: cfg.HTTP.Timeout()}
	switch name {
	case "", "nominatim":
		if baseURL == "" {
			baseURL = "https://nominatim.openstreetmap.org"
		}
		return geocode.NewNominatimProvider(baseURL, cfg.Geocoder.ConfidenceThreshold,
			geocode.WithNominatimHTTPClient(hc)), nil
	case "google":
		opts := []geocode.GoogleOption{geocode.WithGoogleHTTPClient(hc)}
		if baseURL != "" {
			opts = append(opts, geocode.WithGoogleBaseURL(baseURL))
		}
		return geocode.NewGoogleProvider(cfg.Geocoder.APIKey, opts...), nil
	default:
		return nil, eris.Errorf("unknown geocoder provider %q", name)
	}
}

func buildRouter() *osrm.Client {
	return osrm.NewClient(cfg.Routing.BaseURL,
		osrm.WithProfile(cfg.Routing.Profile),
		osrm.WithPrecision(cfg.PolylinePrecision),
		osrm.WithPerLegRequests(cfg.Routing.PerLeg),
		osrm.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout()}),
		osrm.WithMinInterval(cfg.HTTP.MinRequestInterval()),
		osrm.WithRetryConfig(retryConfig("osrm")),
	)
}

func retryConfig(service string) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.HTTP.RetryMax > 0 {
		rc.MaxAttempts = cfg.HTTP.RetryMax
	}
	rc.OnRetry = resilience.RetryLogger(service, "request")
	return rc
}
