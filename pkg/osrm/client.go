// Package osrm requests multi-leg routes from an OSRM-compatible routing
// service and validates the returned legs against the submitted coordinates.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/polyline"
	"github.com/routelab/routeplan-cli/internal/resilience"
)

// endpointTolerance is the maximum divergence, in degrees, between a leg's
// decoded endpoints and the submitted coordinates (~110 m at the equator).
const endpointTolerance = 1e-3

// Client requests routes from an OSRM-compatible HTTP service.
type Client struct {
	baseURL    string
	profile    string
	precision  int
	perLeg     bool
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures the Client.
type Option func(*Client)

// WithProfile sets the routing profile (driving, walking, cycling).
func WithProfile(profile string) Option {
	return func(c *Client) { c.profile = profile }
}

// WithPrecision sets the provider's polyline precision (5 or 6).
func WithPrecision(p int) Option {
	return func(c *Client) { c.precision = p }
}

// WithPerLegRequests issues one request per consecutive pair instead of a
// single multi-point request.
func WithPerLegRequests(perLeg bool) Option {
	return func(c *Client) { c.perLeg = perLeg }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMinInterval sets the minimum spacing between provider requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a routing client against the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("osrm", "route")

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    "driving",
		precision:  5,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		retry:      retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// osrmResponse is the subset of the OSRM route response the client reads.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string `json:"geometry"`
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Steps    []struct {
				Geometry string `json:"geometry"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route computes the legs for an ordered coordinate sequence (length >= 2).
// Each returned leg carries distance, duration, the encoded geometry, and the
// decoded point sequence; leg endpoints are validated against the submitted
// coordinates.
func (c *Client) Route(ctx context.Context, coords []model.Coordinate) ([]model.Leg, error) {
	if len(coords) < 2 {
		return nil, eris.Errorf("osrm: need at least 2 coordinates, got %d", len(coords))
	}

	if c.perLeg {
		return c.routePerLeg(ctx, coords)
	}
	return c.routeMultiPoint(ctx, coords)
}

// routeMultiPoint issues a single request for the whole sequence and extracts
// the per-leg breakdown from the response.
func (c *Client) routeMultiPoint(ctx context.Context, coords []model.Coordinate) ([]model.Leg, error) {
	resp, err := c.request(ctx, coords, true)
	if err != nil {
		return nil, err
	}

	route := resp.Routes[0]
	if len(route.Legs) != len(coords)-1 {
		return nil, model.NewError(model.KindRoutingInconsistent, "",
			eris.Errorf("osrm: %d legs for %d coordinates", len(route.Legs), len(coords)))
	}

	legs := make([]model.Leg, 0, len(route.Legs))
	for i, rawLeg := range route.Legs {
		// Per-leg geometry is the concatenation of the step geometries.
		var points []model.Coordinate
		for _, step := range rawLeg.Steps {
			stepPoints, decErr := polyline.Decode(step.Geometry, c.precision)
			if decErr != nil {
				return nil, model.NewError(model.KindPolylineMalformed, legItem(i), decErr)
			}
			points = appendPoints(points, stepPoints)
		}

		leg := model.Leg{
			DistanceMeters:  rawLeg.Distance,
			DurationSeconds: rawLeg.Duration,
			Geometry:        polyline.Encode(points, c.precision),
			Points:          points,
		}
		if err := validateLeg(leg, coords[i], coords[i+1], i); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}

	return legs, nil
}

// routePerLeg issues one request per consecutive pair.
func (c *Client) routePerLeg(ctx context.Context, coords []model.Coordinate) ([]model.Leg, error) {
	legs := make([]model.Leg, 0, len(coords)-1)
	for i := 0; i < len(coords)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.request(ctx, coords[i:i+2], false)
		if err != nil {
			return nil, itemize(err, i)
		}

		route := resp.Routes[0]
		if len(route.Legs) != 1 {
			return nil, model.NewError(model.KindRoutingInconsistent, legItem(i),
				eris.Errorf("osrm: %d legs for a single pair", len(route.Legs)))
		}

		points, decErr := polyline.Decode(route.Geometry, c.precision)
		if decErr != nil {
			return nil, model.NewError(model.KindPolylineMalformed, legItem(i), decErr)
		}

		leg := model.Leg{
			DistanceMeters:  route.Legs[0].Distance,
			DurationSeconds: route.Legs[0].Duration,
			Geometry:        route.Geometry,
			Points:          points,
		}
		if err := validateLeg(leg, coords[i], coords[i+1], i); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}

	return legs, nil
}

// request performs one paced, retried OSRM route call and surfaces typed
// routing errors.
func (c *Client) request(ctx context.Context, coords []model.Coordinate, steps bool) (*osrmResponse, error) {
	reqURL := c.routeURL(coords, steps)

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*osrmResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, reqURL)
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Routes) == 0 {
		return nil, model.NewError(model.KindRoutingNoRoute, "", eris.New("osrm: empty routes"))
	}
	return resp, nil
}

func (c *Client) routeURL(coords []model.Coordinate, steps bool) string {
	parts := make([]string, len(coords))
	for i, coord := range coords {
		// OSRM takes lon,lat order.
		parts[i] = fmt.Sprintf("%f,%f", coord.Lon, coord.Lat)
	}

	geometries := "polyline"
	if c.precision == 6 {
		geometries = "polyline6"
	}

	overview := "full"
	stepsParam := "false"
	if steps {
		// Per-leg geometry comes from the steps; the overview is redundant.
		overview = "false"
		stepsParam = "true"
	}

	return fmt.Sprintf("%s/route/v1/%s/%s?overview=%s&steps=%s&alternatives=false&geometries=%s",
		c.baseURL, c.profile, strings.Join(parts, ";"), overview, stepsParam, geometries)
}

func (c *Client) do(ctx context.Context, reqURL string) (*osrmResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: build request")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: request")
	}
	defer httpResp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: read body")
	}

	// OSRM reports NoRoute with a non-200 status on some deployments; the
	// body code is authoritative when it parses.
	var resp osrmResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil && resp.Code != "" {
		switch resp.Code {
		case "Ok":
			return &resp, nil
		case "NoRoute", "NoSegment":
			return nil, errNoRoute
		default:
			if resilience.IsTransientHTTPStatus(httpResp.StatusCode) {
				return nil, resilience.NewTransientError(
					eris.Errorf("osrm: code %s (status %d)", resp.Code, httpResp.StatusCode), httpResp.StatusCode)
			}
			return nil, eris.Errorf("osrm: code %s", resp.Code)
		}
	}

	if resilience.IsTransientHTTPStatus(httpResp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("osrm: status %d", httpResp.StatusCode), httpResp.StatusCode)
	}
	return nil, eris.Errorf("osrm: status %d, unparseable body", httpResp.StatusCode)
}

// errNoRoute flows through the retry loop untouched (not transient) and is
// classified afterwards.
var errNoRoute = eris.New("osrm: no route")

func classify(err error) error {
	switch {
	case errors.Is(err, errNoRoute):
		return model.NewError(model.KindRoutingNoRoute, "", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return model.NewError(model.KindRoutingUnavailable, "", err)
	}
}

// validateLeg checks that the decoded geometry starts and ends at the
// submitted coordinates.
func validateLeg(leg model.Leg, origin, dest model.Coordinate, i int) error {
	if len(leg.Points) < 2 {
		return model.NewError(model.KindRoutingInconsistent, legItem(i),
			eris.Errorf("osrm: leg geometry has %d points", len(leg.Points)))
	}
	first, last := leg.Points[0], leg.Points[len(leg.Points)-1]
	if !first.CloseTo(origin, endpointTolerance) || !last.CloseTo(dest, endpointTolerance) {
		zap.L().Warn("osrm: leg endpoints diverge from submitted coordinates",
			zap.Int("leg", i+1),
			zap.Float64("origin_lat", origin.Lat),
			zap.Float64("first_lat", first.Lat),
		)
		return model.NewError(model.KindRoutingInconsistent, legItem(i),
			eris.New("osrm: leg endpoints do not match submitted coordinates"))
	}
	return nil
}

// appendPoints concatenates step geometries, dropping the duplicated joint
// point between consecutive steps.
func appendPoints(points, step []model.Coordinate) []model.Coordinate {
	if len(step) == 0 {
		return points
	}
	if len(points) > 0 && points[len(points)-1] == step[0] {
		step = step[1:]
	}
	return append(points, step...)
}

func legItem(i int) string {
	return fmt.Sprintf("leg %d", i+1)
}

// itemize attaches the leg reference to typed errors that lack one.
func itemize(err error, i int) error {
	var pe *model.PipelineError
	if errors.As(err, &pe) && pe.Item == "" {
		pe.Item = legItem(i)
	}
	return err
}
