package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routelab/routeplan-cli/internal/model"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"malformed input", model.NewError(model.KindMalformedInput, "stops.csv", nil), 2},
		{"geocode not found", model.NewError(model.KindGeocodeNotFound, "stop 2 (B)", nil), 3},
		{"no route", model.NewError(model.KindRoutingNoRoute, "leg 1", nil), 4},
		{"geocode unavailable", model.NewError(model.KindGeocodeUnavailable, "", nil), 5},
		{"rate limited", model.NewError(model.KindGeocodeRateLimited, "", nil), 5},
		{"routing unavailable", model.NewError(model.KindRoutingUnavailable, "", nil), 5},
		{"inconsistent leg", model.NewError(model.KindRoutingInconsistent, "leg 1", nil), 5},
		{"bad geometry", model.NewError(model.KindPolylineMalformed, "leg 1", nil), 5},
		{"cache unavailable", model.NewError(model.KindCacheUnavailable, "geocache.jsonl", nil), 5},
		{"cancelled", model.NewError(model.KindCancelled, "", nil), 6},
		{"context cancellation", context.Canceled, 6},
		{"uncategorized", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
