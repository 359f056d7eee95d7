package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/resilience"
)

const defaultGoogleBaseURL = "https://maps.googleapis.com/maps/api/geocode"

// GoogleProvider geocodes via the Google Geocoding API.
type GoogleProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// GoogleOption configures the GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL overrides the API base URL (used by tests).
func WithGoogleBaseURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.baseURL = u }
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.httpClient = hc }
}

// NewGoogleProvider creates a provider using the given API key.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		baseURL:    defaultGoogleBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, address string) (model.Coordinate, error) {
	if p.apiKey == "" {
		return model.Coordinate{}, eris.New("google: api key not configured")
	}

	params := url.Values{
		"address": {address},
		"key":     {p.apiKey},
	}

	reqURL := p.baseURL + "/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "google: build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "google: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return model.Coordinate{}, resilience.NewTransientError(
			eris.Errorf("google: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Coordinate{}, eris.Errorf("google: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "google: read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "google: parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return model.Coordinate{}, ErrNotFound
	case "OVER_QUERY_LIMIT":
		return model.Coordinate{}, resilience.NewTransientError(
			eris.New("google: over query limit"), http.StatusTooManyRequests)
	default:
		return model.Coordinate{}, eris.Errorf("google: status %s", googleResp.Status)
	}

	for _, r := range googleResp.Results {
		c := model.Coordinate{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng}
		if c.Valid() {
			return c, nil
		}
	}
	return model.Coordinate{}, ErrNotFound
}
