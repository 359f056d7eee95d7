// Package mapcompose renders the interactive Leaflet map for a computed
// route: one marker per stop, one path overlay per leg, and a group legend.
package mapcompose

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"html/template"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/routelab/routeplan-cli/internal/model"
)

// Composer builds the self-contained map document.
type Composer struct {
	style Style
}

// New creates a Composer with the given style.
func New(style Style) *Composer {
	return &Composer{style: style}
}

// viewport is the fitted bounding box in Leaflet corner order.
type viewport struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// marker is the per-stop payload embedded in the document.
type marker struct {
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Label       string            `json:"label"`
	Address     string            `json:"address"`
	Color       string            `json:"color"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// overlay is the per-leg path payload.
type overlay struct {
	Points         [][2]float64 `json:"points"` // [lat, lon]
	DistanceMeters float64      `json:"distance_meters"`
}

// legendEntry is one group swatch in the legend.
type legendEntry struct {
	Group string `json:"group"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// Compose renders the map for a route. The generatedAt timestamp is the only
// run-dependent value and is isolated in a single element, so output is
// otherwise byte-identical across runs for identical input.
func (c *Composer) Compose(route *model.Route, title string, generatedAt time.Time) ([]byte, error) {
	if len(route.Stops) == 0 {
		return nil, eris.New("mapcompose: route has no stops")
	}

	vp, err := c.boundingBox(route)
	if err != nil {
		return nil, err
	}

	markers := make([]marker, 0, len(route.Stops))
	for i := range route.Stops {
		s := &route.Stops[i]
		if !s.Resolved() {
			return nil, eris.Errorf("mapcompose: %s has no coordinate", s.Ref())
		}
		markers = append(markers, marker{
			Lat:         s.Coord.Lat,
			Lon:         s.Coord.Lon,
			Label:       s.Label,
			Address:     s.NormalizedAddress,
			Color:       c.ColorFor(s.Group),
			Annotations: s.Annotations,
		})
	}

	overlays := make([]overlay, 0, len(route.Legs))
	for i := range route.Legs {
		leg := &route.Legs[i]
		points := make([][2]float64, len(leg.Points))
		for j, p := range leg.Points {
			points[j] = [2]float64{p.Lat, p.Lon}
		}
		overlays = append(overlays, overlay{Points: points, DistanceMeters: leg.DistanceMeters})
	}

	payload, err := json.Marshal(struct {
		Markers  []marker      `json:"markers"`
		Overlays []overlay     `json:"overlays"`
		Legend   []legendEntry `json:"legend"`
	}{markers, overlays, c.Legend(route.Stops)})
	if err != nil {
		return nil, eris.Wrap(err, "mapcompose: marshal payload")
	}

	var buf bytes.Buffer
	err = mapTemplate.Execute(&buf, map[string]any{
		"Title":       title,
		"GeneratedAt": generatedAt.UTC().Format(time.RFC3339),
		"Style":       c.style,
		"Viewport":    vp,
		"Payload":     template.JS(payload), //nolint:gosec // payload is marshalled above, not user HTML
	})
	if err != nil {
		return nil, eris.Wrap(err, "mapcompose: execute template")
	}

	return buf.Bytes(), nil
}

// boundingBox computes the axis-aligned extent of all stop coordinates and
// leg geometry, expanded by the style margin.
func (c *Composer) boundingBox(route *model.Route) (viewport, error) {
	coords := make([]geom.Coord, 0, len(route.Stops))
	for i := range route.Stops {
		s := &route.Stops[i]
		if s.Coord == nil {
			continue
		}
		coords = append(coords, geom.Coord{s.Coord.Lon, s.Coord.Lat})
	}
	for i := range route.Legs {
		for _, p := range route.Legs[i].Points {
			coords = append(coords, geom.Coord{p.Lon, p.Lat})
		}
	}
	if len(coords) == 0 {
		return viewport{}, eris.New("mapcompose: no resolved coordinates")
	}

	mp := geom.NewMultiPoint(geom.XY)
	if _, err := mp.SetCoords(coords); err != nil {
		return viewport{}, eris.Wrap(err, "mapcompose: build extent")
	}
	b := mp.Bounds()

	lonMargin := (b.Max(0) - b.Min(0)) * c.style.MarginFraction
	latMargin := (b.Max(1) - b.Min(1)) * c.style.MarginFraction

	return viewport{
		MinLat: b.Min(1) - latMargin,
		MinLon: b.Min(0) - lonMargin,
		MaxLat: b.Max(1) + latMargin,
		MaxLon: b.Max(0) + lonMargin,
	}, nil
}

// ColorFor assigns a palette color to a grouping label. The assignment is a
// stable hash of the label, so the same groups get the same colors on every
// run.
func (c *Composer) ColorFor(group string) string {
	h := sha256.Sum256([]byte(group))
	idx := binary.BigEndian.Uint32(h[:4]) % uint32(len(c.style.Palette))
	return c.style.Palette[idx]
}

// Legend builds the per-group legend entries, sorted by group label.
func (c *Composer) Legend(stops []model.Stop) []legendEntry {
	counts := map[string]int{}
	for i := range stops {
		counts[stops[i].Group]++
	}

	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	entries := make([]legendEntry, 0, len(groups))
	for _, g := range groups {
		label := g
		if label == "" {
			label = "ungrouped"
		}
		entries = append(entries, legendEntry{Group: label, Color: c.ColorFor(g), Count: counts[g]})
	}
	return entries
}
