package mapcompose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/routeplan-cli/internal/model"
)

func coordPtr(lat, lon float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lon: lon}
}

func testRoute() *model.Route {
	stops := []model.Stop{
		{ID: 1, Label: "A", NormalizedAddress: "plaza mayor madrid", Group: "west", Coord: coordPtr(40.4155, -3.7074)},
		{ID: 2, Label: "B", NormalizedAddress: "puerta del sol madrid", Group: "east", Coord: coordPtr(40.4169, -3.7033)},
	}
	legs := []model.Leg{
		{
			Origin:          &stops[0],
			Destination:     &stops[1],
			DistanceMeters:  520,
			DurationSeconds: 180,
			Points: []model.Coordinate{
				{Lat: 40.4155, Lon: -3.7074},
				{Lat: 40.4160, Lon: -3.7050},
				{Lat: 40.4169, Lon: -3.7033},
			},
		},
	}
	return &model.Route{Stops: stops, Legs: legs, DistanceMeters: 520, DurationSeconds: 180}
}

func TestCompose_ContainsMarkersAndOverlay(t *testing.T) {
	c := New(DefaultStyle())
	out, err := c.Compose(testRoute(), "Madrid run", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "Madrid run")
	assert.Contains(t, html, "plaza mayor madrid")
	assert.Contains(t, html, "puerta del sol madrid")
	assert.Contains(t, html, "fitBounds")
	assert.Contains(t, html, `id="generated-at"`)
}

func TestCompose_ViewportContainsEveryStop(t *testing.T) {
	route := testRoute()
	c := New(DefaultStyle())

	vp, err := c.boundingBox(route)
	require.NoError(t, err)

	for i := range route.Stops {
		s := route.Stops[i]
		assert.LessOrEqual(t, vp.MinLat, s.Coord.Lat, "stop %d below viewport", s.ID)
		assert.GreaterOrEqual(t, vp.MaxLat, s.Coord.Lat, "stop %d above viewport", s.ID)
		assert.LessOrEqual(t, vp.MinLon, s.Coord.Lon, "stop %d left of viewport", s.ID)
		assert.GreaterOrEqual(t, vp.MaxLon, s.Coord.Lon, "stop %d right of viewport", s.ID)
	}

	// Leg geometry is inside the viewport too.
	for _, p := range route.Legs[0].Points {
		assert.LessOrEqual(t, vp.MinLat, p.Lat)
		assert.GreaterOrEqual(t, vp.MaxLat, p.Lat)
	}
}

func TestCompose_DeterministicModuloTimestamp(t *testing.T) {
	c := New(DefaultStyle())
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	out1, err := c.Compose(testRoute(), "Madrid run", at)
	require.NoError(t, err)
	out2, err := c.Compose(testRoute(), "Madrid run", at)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)

	// A different timestamp changes only the isolated element.
	out3, err := c.Compose(testRoute(), "Madrid run", at.Add(time.Hour))
	require.NoError(t, err)
	diff := 0
	lines1 := strings.Split(string(out1), "\n")
	lines3 := strings.Split(string(out3), "\n")
	require.Len(t, lines3, len(lines1))
	for i := range lines1 {
		if lines1[i] != lines3[i] {
			diff++
			assert.Contains(t, lines1[i], "generated-at")
		}
	}
	assert.Equal(t, 1, diff)
}

func TestColorFor_StableAcrossRuns(t *testing.T) {
	c1 := New(DefaultStyle())
	c2 := New(DefaultStyle())
	for _, g := range []string{"", "west", "east", "route-12"} {
		assert.Equal(t, c1.ColorFor(g), c2.ColorFor(g))
	}
}

func TestLegend_SortedWithCounts(t *testing.T) {
	c := New(DefaultStyle())
	stops := []model.Stop{
		{Group: "west"}, {Group: "east"}, {Group: "west"}, {Group: ""},
	}

	legend := c.Legend(stops)
	require.Len(t, legend, 3)
	assert.Equal(t, "ungrouped", legend[0].Group)
	assert.Equal(t, "east", legend[1].Group)
	assert.Equal(t, "west", legend[2].Group)
	assert.Equal(t, 2, legend[2].Count)
}

func TestCompose_UnresolvedStopFails(t *testing.T) {
	route := testRoute()
	route.Stops[1].Coord = nil
	route.Legs = nil

	_, err := New(DefaultStyle()).Compose(route, "x", time.Now())
	assert.Error(t, err)
}

func TestLoadStyle_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	content := "tile_url: https://tiles.example.com/{z}/{x}/{y}.png\nline_weight: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	style, err := LoadStyle(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.example.com/{z}/{x}/{y}.png", style.TileURL)
	assert.Equal(t, 7, style.LineWeight)
	assert.Equal(t, DefaultStyle().Palette, style.Palette)
	assert.Equal(t, DefaultStyle().LineColor, style.LineColor)
}

func TestLoadStyle_MissingFile(t *testing.T) {
	_, err := LoadStyle(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestColorFor_AllGroupsInPalette(t *testing.T) {
	c := New(DefaultStyle())
	palette := map[string]bool{}
	for _, col := range DefaultStyle().Palette {
		palette[col] = true
	}
	for i := 0; i < 50; i++ {
		assert.True(t, palette[c.ColorFor(fmt.Sprintf("group-%d", i))])
	}
}
