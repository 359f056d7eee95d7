package imagecompose

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/routeplan-cli/internal/mapcompose"
	"github.com/routelab/routeplan-cli/internal/model"
)

func coordPtr(lat, lon float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lon: lon}
}

func testRoute() *model.Route {
	stops := []model.Stop{
		{ID: 1, Label: "A", Group: "west", Coord: coordPtr(40.4155, -3.7074)},
		{ID: 2, Label: "B", Group: "east", Coord: coordPtr(40.4169, -3.7033)},
	}
	legs := []model.Leg{
		{
			Origin:          &stops[0],
			Destination:     &stops[1],
			DistanceMeters:  520,
			DurationSeconds: 180,
			Points: []model.Coordinate{
				{Lat: 40.4155, Lon: -3.7074},
				{Lat: 40.4169, Lon: -3.7033},
			},
		},
	}
	return &model.Route{Stops: stops, Legs: legs, DistanceMeters: 520, DurationSeconds: 180}
}

func TestCompose_ProducesPNGOfRequestedSize(t *testing.T) {
	c := New(mapcompose.DefaultStyle(), 0, 0)
	out, err := c.Compose(testRoute(), "Madrid run", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}

func TestCompose_CustomDimensions(t *testing.T) {
	c := New(mapcompose.DefaultStyle(), 400, 300)
	out, err := c.Compose(testRoute(), "t", time.Now())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestCompose_Deterministic(t *testing.T) {
	c := New(mapcompose.DefaultStyle(), 0, 0)
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	out1, err := c.Compose(testRoute(), "Madrid run", at)
	require.NoError(t, err)
	out2, err := c.Compose(testRoute(), "Madrid run", at)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestCompose_SingleStop(t *testing.T) {
	route := &model.Route{
		Stops: []model.Stop{{ID: 1, Label: "only", Coord: coordPtr(40.0, -3.0)}},
	}
	_, err := New(mapcompose.DefaultStyle(), 0, 0).Compose(route, "solo", time.Now())
	assert.NoError(t, err)
}

func TestCompose_UnresolvedStopFails(t *testing.T) {
	route := testRoute()
	route.Stops[1].Coord = nil

	_, err := New(mapcompose.DefaultStyle(), 0, 0).Compose(route, "x", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no coordinate")
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "520 m", FormatDistance(520))
	assert.Equal(t, "999 m", FormatDistance(999.4))
	assert.Equal(t, "1.0 km", FormatDistance(1000))
	assert.Equal(t, "12.3 km", FormatDistance(12345))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:03", FormatDuration(180))
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "01:01", FormatDuration(3660))
	assert.Equal(t, "25:30", FormatDuration(91800))
	assert.Equal(t, "00:01", FormatDuration(45))
}

func TestColorFor_MatchesInteractiveMap(t *testing.T) {
	style := mapcompose.DefaultStyle()
	ic := New(style, 0, 0)
	mc := mapcompose.New(style)
	for _, g := range []string{"", "west", "east"} {
		assert.Equal(t, mc.ColorFor(g), ic.ColorFor(g))
	}
}
