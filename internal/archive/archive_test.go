package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/routelab/routeplan-cli/internal/model"
)

func coordPtr(lat, lon float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lon: lon}
}

func testRoute() *model.Route {
	stops := []model.Stop{
		{ID: 1, Label: "A", Address: "Plaza Mayor, Madrid", NormalizedAddress: "plaza mayor madrid", Group: "west",
			Annotations: map[string]string{"window": "morning"},
			Coord:       coordPtr(40.4155, -3.7074)},
		{ID: 2, Label: "B", Address: "Puerta del Sol, Madrid", NormalizedAddress: "puerta del sol madrid", Group: "east",
			Coord: coordPtr(40.4169, -3.7033)},
	}
	legs := []model.Leg{
		{Origin: &stops[0], Destination: &stops[1], DistanceMeters: 520, DurationSeconds: 180,
			Geometry: "kxxuFln_Ra@qA"},
	}
	return &model.Route{Stops: stops, Legs: legs, DistanceMeters: 520, DurationSeconds: 180}
}

func testArtifacts() Artifacts {
	return Artifacts{
		MapHTML:    []byte("<html>map</html>"),
		SummaryPNG: []byte{0x89, 'P', 'N', 'G'},
	}
}

func readZip(t *testing.T, path string) *zip.Reader {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

func TestWrite_MemberOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.zip")
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Write(path, testRoute(), testArtifacts(), at))

	zr := readZip(t, path)
	require.Len(t, zr.File, 4)
	assert.Equal(t, MemberMap, zr.File[0].Name)
	assert.Equal(t, MemberSummary, zr.File[1].Name)
	assert.Equal(t, MemberStops, zr.File[2].Name)
	assert.Equal(t, MemberLegs, zr.File[3].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "<html>map</html>", string(body))
}

func TestWrite_Deterministic(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	p1 := filepath.Join(dir, "a.zip")
	p2 := filepath.Join(dir, "b.zip")
	require.NoError(t, Write(p1, testRoute(), testArtifacts(), at))
	require.NoError(t, Write(p2, testRoute(), testArtifacts(), at))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "same inputs must produce byte-identical archives")
}

func TestWrite_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "route.zip")
	require.NoError(t, Write(path, testRoute(), testArtifacts(), time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "route.zip", entries[0].Name())
}

func TestWrite_StopsSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.zip")
	require.NoError(t, Write(path, testRoute(), testArtifacts(), time.Now()))

	zr := readZip(t, path)
	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	book, err := xlsx.OpenBinary(body)
	require.NoError(t, err)
	sheet := book.Sheets[0]
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Normalized Address", sheet.Rows[0].Cells[3].String())
	assert.Equal(t, "window", sheet.Rows[0].Cells[7].String())
	assert.Equal(t, "A", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "Plaza Mayor, Madrid", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "plaza mayor madrid", sheet.Rows[1].Cells[3].String())
	assert.Equal(t, "morning", sheet.Rows[1].Cells[7].String())
	assert.Equal(t, "", sheet.Rows[2].Cells[7].String())
}

func TestWrite_LegsSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.zip")
	require.NoError(t, Write(path, testRoute(), testArtifacts(), time.Now()))

	zr := readZip(t, path)
	rc, err := zr.File[3].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	book, err := xlsx.OpenBinary(body)
	require.NoError(t, err)
	sheet := book.Sheets[0]
	require.Len(t, sheet.Rows, 2)

	assert.Equal(t, "A", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "B", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "520 m", sheet.Rows[1].Cells[5].String())
	assert.Equal(t, "00:03", sheet.Rows[1].Cells[6].String())
	assert.Equal(t, "kxxuFln_Ra@qA", sheet.Rows[1].Cells[7].String())
}

func TestWrite_UnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not bind for root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) }) //nolint:errcheck

	err := Write(filepath.Join(dir, "route.zip"), testRoute(), testArtifacts(), time.Now())
	require.Error(t, err)
	assert.Equal(t, model.KindPackagingFailed, model.KindOf(err))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/out/Madrid-run.zip", DefaultPath("/out", "Madrid run", "ignored"))
	assert.Equal(t, "/out/run-42.zip", DefaultPath("/out", "", "run-42"))
	assert.Equal(t, "/out/route.zip", DefaultPath("/out", "///", "also-ignored"))
}
