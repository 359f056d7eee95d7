// Package imagecompose renders a static PNG summary of a planned route:
// headline figures, a schematic trace of the leg geometry, and a group
// legend. The raster is meant for chat previews and archive thumbnails
// where an interactive map cannot be embedded.
package imagecompose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/routelab/routeplan-cli/internal/mapcompose"
	"github.com/routelab/routeplan-cli/internal/model"
)

const (
	// DefaultWidth and DefaultHeight give a 1.91:1 frame, the aspect
	// ratio most link-preview cards crop to.
	DefaultWidth  = 800
	DefaultHeight = 418

	headerHeight = 72
	padding      = 16
	swatchSize   = 10
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	headerFill = color.RGBA{R: 0x26, G: 0x32, B: 0x38, A: 0xff}
	textDark   = color.RGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff}
	textLight  = color.RGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}
	textMuted  = color.RGBA{R: 0x75, G: 0x75, B: 0x75, A: 0xff}
)

type Composer struct {
	style  mapcompose.Style
	width  int
	height int
}

func New(style mapcompose.Style, width, height int) *Composer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Composer{style: style, width: width, height: height}
}

// Compose renders the summary raster and returns it PNG-encoded. Every
// stop on the route must already carry a coordinate.
func (c *Composer) Compose(route *model.Route, title string, generatedAt time.Time) ([]byte, error) {
	if route == nil || len(route.Stops) == 0 {
		return nil, eris.New("imagecompose: route has no stops")
	}
	for i := range route.Stops {
		if !route.Stops[i].Resolved() {
			return nil, eris.Errorf("imagecompose: stop %q has no coordinate", route.Stops[i].Ref())
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, c.width, headerHeight), image.NewUniform(headerFill), image.Point{}, draw.Src)

	c.drawText(img, padding, 28, title, textLight)
	c.drawText(img, padding, 50, generatedAt.UTC().Format("2006-01-02 15:04 UTC"), textLight)

	dist, dur := route.Totals()
	figures := fmt.Sprintf("%d stops  |  %d legs  |  %s  |  %s",
		len(route.Stops), len(route.Legs), FormatDistance(dist), FormatDuration(dur))
	c.drawText(img, padding, headerHeight+24, figures, textDark)

	plot := image.Rect(padding, headerHeight+40, c.width-200, c.height-padding)
	c.drawTrace(img, plot, route)
	c.drawLegend(img, route.Stops)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "imagecompose: encode png")
	}
	return buf.Bytes(), nil
}

// FormatDistance renders metres under a kilometre as whole metres and
// everything longer with one decimal of kilometres.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds as zero-padded HH:MM, rounding to the
// nearest minute.
func FormatDuration(seconds float64) string {
	minutes := int(math.Round(seconds / 60))
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (c *Composer) drawText(img *image.RGBA, x, y int, s string, col color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawTrace projects the leg geometry equirectangularly into the plot
// rectangle and strokes it, marking each stop with a filled square in
// its group colour.
func (c *Composer) drawTrace(img *image.RGBA, plot image.Rectangle, route *model.Route) {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	expand := func(p model.Coordinate) {
		minLat, maxLat = math.Min(minLat, p.Lat), math.Max(maxLat, p.Lat)
		minLon, maxLon = math.Min(minLon, p.Lon), math.Max(maxLon, p.Lon)
	}
	for i := range route.Stops {
		expand(*route.Stops[i].Coord)
	}
	for i := range route.Legs {
		for _, p := range route.Legs[i].Points {
			expand(p)
		}
	}
	if maxLat-minLat < 1e-9 {
		minLat, maxLat = minLat-1e-4, maxLat+1e-4
	}
	if maxLon-minLon < 1e-9 {
		minLon, maxLon = minLon-1e-4, maxLon+1e-4
	}

	project := func(p model.Coordinate) image.Point {
		fx := (p.Lon - minLon) / (maxLon - minLon)
		fy := (maxLat - p.Lat) / (maxLat - minLat)
		return image.Point{
			X: plot.Min.X + int(fx*float64(plot.Dx()-1)),
			Y: plot.Min.Y + int(fy*float64(plot.Dy()-1)),
		}
	}

	line := parseHex(c.style.LineColor, textDark)
	for i := range route.Legs {
		pts := route.Legs[i].Points
		for j := 1; j < len(pts); j++ {
			drawSegment(img, project(pts[j-1]), project(pts[j]), line)
		}
	}
	for i := range route.Stops {
		s := &route.Stops[i]
		pt := project(*s.Coord)
		fill := parseHex(c.ColorFor(s.Group), textDark)
		r := image.Rect(pt.X-3, pt.Y-3, pt.X+4, pt.Y+4).Intersect(img.Bounds())
		draw.Draw(img, r, image.NewUniform(fill), image.Point{}, draw.Src)
	}
}

func (c *Composer) drawLegend(img *image.RGBA, stops []model.Stop) {
	entries := mapcompose.New(c.style).Legend(stops)
	x := c.width - 180
	y := headerHeight + 40
	for _, e := range entries {
		if y+swatchSize > c.height-padding {
			break
		}
		fill := parseHex(e.Color, textDark)
		r := image.Rect(x, y, x+swatchSize, y+swatchSize)
		draw.Draw(img, r, image.NewUniform(fill), image.Point{}, draw.Src)
		c.drawText(img, x+swatchSize+6, y+swatchSize, fmt.Sprintf("%s (%d)", e.Group, e.Count), textMuted)
		y += 20
	}
}

// ColorFor mirrors the interactive map's group colouring so the raster
// and the HTML agree on swatches.
func (c *Composer) ColorFor(group string) string {
	return mapcompose.New(c.style).ColorFor(group)
}

// drawSegment strokes a two-pixel line between a and b by stepping the
// longer axis one pixel at a time.
func drawSegment(img *image.RGBA, a, b image.Point, col color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		x := a.X + dx*i/steps
		y := a.Y + dy*i/steps
		r := image.Rect(x, y, x+2, y+2).Intersect(img.Bounds())
		draw.Draw(img, r, image.NewUniform(col), image.Point{}, draw.Src)
	}
}

// parseHex decodes a "#rrggbb" colour, falling back when the string is
// not in that form.
func parseHex(s string, fallback color.RGBA) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return fallback
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
