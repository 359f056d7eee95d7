package mapcompose

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Style controls the visual parameters of the composed map.
type Style struct {
	TileURL     string   `yaml:"tile_url"`
	Attribution string   `yaml:"attribution"`
	Palette     []string `yaml:"palette"`
	LineColor   string   `yaml:"line_color"`
	LineWeight  int      `yaml:"line_weight"`

	// MarginFraction expands the fitted bounding box on each side.
	MarginFraction float64 `yaml:"margin_fraction"`
}

// DefaultStyle returns the built-in map style.
func DefaultStyle() Style {
	return Style{
		TileURL:     "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
		Palette: []string{
			"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
			"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
		},
		LineColor:      "#2c3e50",
		LineWeight:     4,
		MarginFraction: 0.05,
	}
}

// LoadStyle reads a YAML style sheet and overlays it on the default style.
// Unset fields keep their defaults.
func LoadStyle(path string) (Style, error) {
	style := DefaultStyle()

	data, err := os.ReadFile(path)
	if err != nil {
		return style, eris.Wrap(err, "mapcompose: read style sheet")
	}

	var overlay Style
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return style, eris.Wrap(err, "mapcompose: parse style sheet")
	}

	if overlay.TileURL != "" {
		style.TileURL = overlay.TileURL
	}
	if overlay.Attribution != "" {
		style.Attribution = overlay.Attribution
	}
	if len(overlay.Palette) > 0 {
		style.Palette = overlay.Palette
	}
	if overlay.LineColor != "" {
		style.LineColor = overlay.LineColor
	}
	if overlay.LineWeight > 0 {
		style.LineWeight = overlay.LineWeight
	}
	if overlay.MarginFraction > 0 {
		style.MarginFraction = overlay.MarginFraction
	}

	return style, nil
}
