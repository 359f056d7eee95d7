// Package polyline implements the encoded-polyline scheme used by routing
// providers: variable-length base64-style encoding of signed coordinate
// deltas at a fixed decimal precision (5 for OSRM/Google, 6 for polyline6).
package polyline

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/routelab/routeplan-cli/internal/model"
)

// ErrMalformed is returned when the input ends mid-value, contains an
// out-of-range byte, or decodes to an out-of-range coordinate.
var ErrMalformed = eris.New("polyline: malformed input")

func factor(precision int) float64 {
	return math.Pow10(precision)
}

// Decode expands an encoded polyline into an ordered coordinate sequence.
// Precision must be 5 or 6. The empty string decodes to an empty sequence.
func Decode(encoded string, precision int) ([]model.Coordinate, error) {
	if precision != 5 && precision != 6 {
		return nil, eris.Errorf("polyline: unsupported precision %d", precision)
	}

	f := factor(precision)
	var coords []model.Coordinate
	var lat, lon int64

	i := 0
	for i < len(encoded) {
		dLat, n, err := decodeValue(encoded[i:])
		if err != nil {
			return nil, err
		}
		i += n

		if i >= len(encoded) {
			return nil, eris.Wrap(ErrMalformed, "longitude missing for final point")
		}
		dLon, n, err := decodeValue(encoded[i:])
		if err != nil {
			return nil, err
		}
		i += n

		lat += dLat
		lon += dLon

		c := model.Coordinate{
			Lat: float64(lat) / f,
			Lon: float64(lon) / f,
		}
		if !c.Valid() {
			return nil, eris.Wrapf(ErrMalformed, "point %d out of range (%f, %f)", len(coords), c.Lat, c.Lon)
		}
		coords = append(coords, c)
	}

	return coords, nil
}

// decodeValue reads one zigzag-encoded signed value and returns it with the
// number of bytes consumed.
func decodeValue(s string) (int64, int, error) {
	var result int64
	var shift uint
	for i := 0; i < len(s); i++ {
		b := int64(s[i]) - 63
		if b < 0 || b > 63 {
			return 0, 0, eris.Wrapf(ErrMalformed, "byte %q at offset %d", s[i], i)
		}
		result |= (b & 0x1f) << shift
		if b < 0x20 {
			// Lowest bit of the zigzag value carries the sign.
			if result&1 != 0 {
				return ^(result >> 1), i + 1, nil
			}
			return result >> 1, i + 1, nil
		}
		shift += 5
	}
	return 0, 0, eris.Wrap(ErrMalformed, "premature end of input")
}

// Encode produces the encoded polyline for a coordinate sequence at the
// given precision. Inverse of Decode up to rounding at 10^-precision.
func Encode(coords []model.Coordinate, precision int) string {
	f := factor(precision)
	var sb strings.Builder
	var prevLat, prevLon int64

	for _, c := range coords {
		lat := int64(math.Round(c.Lat * f))
		lon := int64(math.Round(c.Lon * f))
		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lon-prevLon)
		prevLat, prevLon = lat, lon
	}

	return sb.String()
}

func encodeValue(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}
