// Package ingest reads the stop spreadsheet into the normalized in-memory
// table the pipeline runs on.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/model"
)

// Recognized header names, matched case- and whitespace-insensitively.
var (
	labelHeaders   = []string{"name", "label", "stop", "title"}
	addressHeaders = []string{"address", "addr", "location", "destination"}
	groupHeaders   = []string{"group", "category", "tag", "route"}
	notesHeaders   = []string{"note", "notes", "comment", "remarks"}
)

// columnMap records which input column feeds which stop field.
type columnMap struct {
	label   int
	address int
	group   int
	notes   int
	extra   map[int]string // unrecognized columns carried as annotations
}

// ReadStops reads the spreadsheet at path and returns stops in input order
// with 1-based sequential IDs. The format is dispatched on the file
// extension: .csv, or .xlsx/.xls via the xlsx reader.
func ReadStops(path string) ([]model.Stop, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xls":
		rows, err = readXLSX(path)
	default:
		return nil, model.NewError(model.KindMalformedInput, path,
			eris.Errorf("unsupported input format %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, model.NewError(model.KindMalformedInput, path, err)
	}

	if len(rows) == 0 {
		return nil, model.NewError(model.KindMalformedInput, path, eris.New("input has no header row"))
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, model.NewError(model.KindMalformedInput, path, err)
	}

	var stops []model.Stop
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		stop := model.Stop{
			ID:      len(stops) + 1,
			Label:   cell(row, cols.label),
			Address: strings.TrimSpace(cell(row, cols.address)),
			Group:   strings.TrimSpace(cell(row, cols.group)),
		}
		if notes := strings.TrimSpace(cell(row, cols.notes)); notes != "" {
			stop.Annotations = map[string]string{"notes": notes}
		}
		for idx, header := range cols.extra {
			if v := strings.TrimSpace(cell(row, idx)); v != "" {
				if stop.Annotations == nil {
					stop.Annotations = map[string]string{}
				}
				stop.Annotations[header] = v
			}
		}
		if stop.Label == "" {
			stop.Label = stop.Address
		}
		stops = append(stops, stop)
	}

	zap.L().Info("ingest: read stops",
		zap.String("path", path),
		zap.Int("stops", len(stops)),
	)
	return stops, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are padded per-cell later

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv")
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// mapColumns resolves the header row. An input with neither a label nor an
// address column is malformed.
func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{label: -1, address: -1, group: -1, notes: -1, extra: map[int]string{}}

	for i, raw := range header {
		h := canonical(raw)
		switch {
		case cols.label < 0 && matches(h, labelHeaders):
			cols.label = i
		case cols.address < 0 && matches(h, addressHeaders):
			cols.address = i
		case cols.group < 0 && matches(h, groupHeaders):
			cols.group = i
		case cols.notes < 0 && matches(h, notesHeaders):
			cols.notes = i
		case h != "":
			cols.extra[i] = strings.TrimSpace(raw)
		}
	}

	if cols.label < 0 && cols.address < 0 {
		return cols, eris.New("ingest: no label or address column in header")
	}
	return cols, nil
}

func canonical(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func matches(h string, candidates []string) bool {
	for _, c := range candidates {
		if h == c {
			return true
		}
	}
	return false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
