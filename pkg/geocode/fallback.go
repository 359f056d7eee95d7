package geocode

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/model"
)

// FallbackProvider cascades through providers in order. A provider's
// NotFound or outage moves on to the next; only when every provider
// has been tried does the last error surface.
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider builds a cascade. At least one provider is required.
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

func (f *FallbackProvider) Geocode(ctx context.Context, address string) (model.Coordinate, error) {
	var lastErr error
	for i, p := range f.providers {
		coord, err := p.Geocode(ctx, address)
		if err == nil {
			return coord, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Coordinate{}, err
		}
		lastErr = err
		if i < len(f.providers)-1 {
			zap.L().Debug("geocode: provider fallback",
				zap.String("provider", p.Name()),
				zap.String("next", f.providers[i+1].Name()),
				zap.Error(err))
		}
	}
	return model.Coordinate{}, lastErr
}
