package polyline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/routeplan-cli/internal/model"
)

func TestDecode_KnownVector(t *testing.T) {
	// Reference vector from the Google polyline algorithm documentation.
	coords, err := Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@", 5)
	require.NoError(t, err)
	require.Len(t, coords, 3)

	assert.InDelta(t, 38.5, coords[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, coords[0].Lon, 1e-5)
	assert.InDelta(t, 40.7, coords[1].Lat, 1e-5)
	assert.InDelta(t, -120.95, coords[1].Lon, 1e-5)
	assert.InDelta(t, 43.252, coords[2].Lat, 1e-5)
	assert.InDelta(t, -126.453, coords[2].Lon, 1e-5)
}

func TestEncode_KnownVector(t *testing.T) {
	coords := []model.Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", Encode(coords, 5))
}

func TestDecode_Empty(t *testing.T) {
	coords, err := Decode("", 5)
	require.NoError(t, err)
	assert.Empty(t, coords)
}

func TestDecode_Truncated(t *testing.T) {
	full := Encode([]model.Coordinate{
		{Lat: 40.4155, Lon: -3.7074},
		{Lat: 40.4169, Lon: -3.7033},
	}, 5)

	_, err := Decode(full[:len(full)-1], 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_OutOfRangeByte(t *testing.T) {
	_, err := Decode("_p~iF\x1b~ps|U", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_UnsupportedPrecision(t *testing.T) {
	_, err := Decode("_p~iF~ps|U", 4)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		precision int
		coords    []model.Coordinate
	}{
		{
			name:      "madrid pair precision 5",
			precision: 5,
			coords: []model.Coordinate{
				{Lat: 40.4155, Lon: -3.7074},
				{Lat: 40.4169, Lon: -3.7033},
			},
		},
		{
			name:      "precision 6",
			precision: 6,
			coords: []model.Coordinate{
				{Lat: 48.208174, Lon: 16.373819},
				{Lat: 48.210033, Lon: 16.363449},
				{Lat: 48.198674, Lon: 16.367569},
			},
		},
		{
			name:      "crosses equator and meridian",
			precision: 5,
			coords: []model.Coordinate{
				{Lat: -0.00012, Lon: 0.00034},
				{Lat: 0.00078, Lon: -0.00091},
			},
		},
		{
			name:      "single point",
			precision: 5,
			coords:    []model.Coordinate{{Lat: 89.99999, Lon: 179.99999}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tt.coords, tt.precision), tt.precision)
			require.NoError(t, err)
			require.Len(t, decoded, len(tt.coords))

			tol := math.Pow10(-tt.precision)
			for i := range tt.coords {
				assert.InDelta(t, tt.coords[i].Lat, decoded[i].Lat, tol)
				assert.InDelta(t, tt.coords[i].Lon, decoded[i].Lon, tol)
			}
		})
	}
}
