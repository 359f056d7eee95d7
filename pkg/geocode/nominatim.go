package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/resilience"
)

// NominatimProvider geocodes via a Nominatim-compatible search endpoint.
type NominatimProvider struct {
	baseURL             string
	confidenceThreshold float64
	httpClient          *http.Client
	userAgent           string
}

// NominatimOption configures the NominatimProvider.
type NominatimOption func(*NominatimProvider)

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(p *NominatimProvider) { p.httpClient = hc }
}

// WithNominatimUserAgent sets the User-Agent header. Public Nominatim
// instances reject requests without one.
func WithNominatimUserAgent(ua string) NominatimOption {
	return func(p *NominatimProvider) { p.userAgent = ua }
}

// NewNominatimProvider creates a provider against the given base URL. Results
// below the confidence threshold (Nominatim "importance") are rejected.
func NewNominatimProvider(baseURL string, confidenceThreshold float64, opts ...NominatimOption) *NominatimProvider {
	p := &NominatimProvider{
		baseURL:             baseURL,
		confidenceThreshold: confidenceThreshold,
		httpClient:          &http.Client{Timeout: 15 * time.Second},
		userAgent:           "routeplan-cli/1.0",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// nominatimResult is one entry of the jsonv2 search response.
type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
}

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, address string) (model.Coordinate, error) {
	params := url.Values{
		"q":      {address},
		"format": {"jsonv2"},
		"limit":  {"5"},
	}

	reqURL := p.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "nominatim: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return model.Coordinate{}, resilience.NewTransientError(
			eris.Errorf("nominatim: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Coordinate{}, eris.Errorf("nominatim: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "nominatim: read body")
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "nominatim: parse response")
	}

	// First acceptable result wins.
	for _, r := range results {
		if r.Importance < p.confidenceThreshold {
			continue
		}
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		c := model.Coordinate{Lat: lat, Lon: lon}
		if !c.Valid() {
			continue
		}
		zap.L().Debug("nominatim: resolved",
			zap.String("address", address),
			zap.String("match", r.DisplayName),
			zap.Float64("importance", r.Importance),
		)
		return c, nil
	}

	return model.Coordinate{}, ErrNotFound
}
