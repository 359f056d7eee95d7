// Package archive assembles a run's deliverables into a single ZIP.
// Member order and timestamps are fixed so two runs over the same
// inputs produce byte-identical archives.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/imagecompose"
	"github.com/routelab/routeplan-cli/internal/model"
)

// Member names in the order they are written.
const (
	MemberMap     = "map.html"
	MemberSummary = "summary.png"
	MemberStops   = "stops.xlsx"
	MemberLegs    = "legs.xlsx"
)

// Artifacts carries the pre-rendered members that the packager does
// not build itself.
type Artifacts struct {
	MapHTML    []byte
	SummaryPNG []byte
}

// Write packages the route and artifacts into a ZIP at path. The file
// appears atomically: content is staged in a temporary sibling and
// renamed into place only after a clean close.
func Write(path string, route *model.Route, art Artifacts, generatedAt time.Time) error {
	var buf bytes.Buffer
	if err := writeArchive(&buf, route, art, generatedAt); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.NewError(model.KindPackagingFailed, path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return model.NewError(model.KindPackagingFailed, path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return model.NewError(model.KindPackagingFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return model.NewError(model.KindPackagingFailed, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return model.NewError(model.KindPackagingFailed, path, err)
	}
	zap.L().Info("archive written",
		zap.String("path", path),
		zap.Int("bytes", buf.Len()))
	return nil
}

func writeArchive(buf *bytes.Buffer, route *model.Route, art Artifacts, generatedAt time.Time) error {
	stopsBook, err := stopsWorkbook(route.Stops)
	if err != nil {
		return model.NewError(model.KindPackagingFailed, MemberStops, err)
	}
	legsBook, err := legsWorkbook(route.Legs)
	if err != nil {
		return model.NewError(model.KindPackagingFailed, MemberLegs, err)
	}

	zw := zip.NewWriter(buf)
	members := []struct {
		name string
		body []byte
	}{
		{MemberMap, art.MapHTML},
		{MemberSummary, art.SummaryPNG},
		{MemberStops, stopsBook},
		{MemberLegs, legsBook},
	}
	for _, m := range members {
		hdr := &zip.FileHeader{
			Name:     m.name,
			Method:   zip.Deflate,
			Modified: generatedAt.UTC().Truncate(time.Second),
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return model.NewError(model.KindPackagingFailed, m.name, err)
		}
		if _, err := w.Write(m.body); err != nil {
			return model.NewError(model.KindPackagingFailed, m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return model.NewError(model.KindPackagingFailed, "archive", err)
	}
	return nil
}

// stopsWorkbook writes one row per stop. Annotation columns follow the
// fixed columns in sorted key order so the sheet layout is stable.
func stopsWorkbook(stops []model.Stop) ([]byte, error) {
	keys := annotationKeys(stops)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Stops")
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Label", "Address", "Normalized Address", "Group", "Latitude", "Longitude"} {
		header.AddCell().SetString(h)
	}
	for _, k := range keys {
		header.AddCell().SetString(k)
	}

	for i := range stops {
		s := &stops[i]
		row := sheet.AddRow()
		row.AddCell().SetInt(s.ID)
		row.AddCell().SetString(s.Label)
		row.AddCell().SetString(s.Address)
		row.AddCell().SetString(s.NormalizedAddress)
		row.AddCell().SetString(s.Group)
		if s.Resolved() {
			row.AddCell().SetFloatWithFormat(s.Coord.Lat, "0.000000")
			row.AddCell().SetFloatWithFormat(s.Coord.Lon, "0.000000")
		} else {
			row.AddCell().SetString("")
			row.AddCell().SetString("")
		}
		for _, k := range keys {
			row.AddCell().SetString(s.Annotations[k])
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func legsWorkbook(legs []model.Leg) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Legs")
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	for _, h := range []string{"Leg", "Origin", "Destination", "Distance (m)", "Duration (s)", "Distance", "Duration", "Geometry"} {
		header.AddCell().SetString(h)
	}

	for i := range legs {
		l := &legs[i]
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(l.Origin.Label)
		row.AddCell().SetString(l.Destination.Label)
		row.AddCell().SetFloatWithFormat(l.DistanceMeters, "0")
		row.AddCell().SetFloatWithFormat(l.DurationSeconds, "0")
		row.AddCell().SetString(imagecompose.FormatDistance(l.DistanceMeters))
		row.AddCell().SetString(imagecompose.FormatDuration(l.DurationSeconds))
		row.AddCell().SetString(l.Geometry)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func annotationKeys(stops []model.Stop) []string {
	seen := map[string]bool{}
	var keys []string
	for i := range stops {
		for k := range stops[i].Annotations {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// DefaultPath derives the archive name from a run title, falling back
// to the run ID when the title is empty.
func DefaultPath(dir, title, runID string) string {
	base := title
	if base == "" {
		base = runID
	}
	return filepath.Join(dir, fmt.Sprintf("%s.zip", sanitize(base)))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "route"
	}
	return string(out)
}
