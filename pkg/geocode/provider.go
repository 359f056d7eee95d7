// Package geocode resolves free-form addresses to coordinates through an
// external provider, fronted by a persistent file cache and rate pacing.
package geocode

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/routelab/routeplan-cli/internal/model"
)

// ErrNotFound is returned when the provider yields zero acceptable results.
// It is never retried.
var ErrNotFound = eris.New("geocode: no acceptable result")

// Provider is a single geocoding backend.
type Provider interface {
	Name() string

	// Geocode resolves one address. Transient failures (429, 5xx, network)
	// are reported as resilience.TransientError; zero acceptable results as
	// ErrNotFound.
	Geocode(ctx context.Context, address string) (model.Coordinate, error)
}
