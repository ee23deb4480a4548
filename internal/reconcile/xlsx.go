package reconcile

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXArtifact stores the validation table as a single sheet in an XLSX
// workbook. Column order follows the header row, so validators can
// reorder columns without breaking absorption.
type XLSXArtifact struct {
	SheetName string
}

func (a *XLSXArtifact) sheetName() string {
	if a.SheetName != "" {
		return a.SheetName
	}
	return "Opportunities"
}

func (a *XLSXArtifact) Read(path string) ([]Row, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[a.sheetName()]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", a.sheetName())
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols, err := headerIndex(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range sheet.Rows[1:] {
		cells := rowToStrings(r)
		row, err := rowFromCells(cells, cols)
		if err != nil {
			return nil, err
		}
		if row.OpportunityID == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *XLSXArtifact) Write(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(a.sheetName())
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range artifactHeader {
		hr.AddCell().SetString(h)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range rowToCells(row) {
			r.AddCell().SetString(v)
		}
	}

	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func rowToCells(r Row) []string {
	return []string{
		r.OpportunityID, r.Title, r.VenueName, r.City, r.Country, r.Segment,
		r.Phase, strconv.Itoa(r.Score), r.Reason, r.URL,
		r.DupClass, r.SuspectedOf,
		r.Decision, r.Validator, r.DecidedAt, r.Comment, r.Notified,
	}
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"opportunity_id", "decision"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("xlsx: header column %q missing", required)
		}
	}
	return cols, nil
}

func rowFromCells(cells []string, cols map[string]int) (Row, error) {
	at := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	var row Row
	row.OpportunityID = at("opportunity_id")
	row.Title = at("title")
	row.VenueName = at("venue_name")
	row.City = at("city")
	row.Country = at("country")
	row.Segment = at("segment")
	row.Phase = at("phase")
	row.Reason = at("reason")
	row.URL = at("url")
	row.DupClass = at("dup_class")
	row.SuspectedOf = at("suspected_of")
	row.Decision = at("decision")
	row.Validator = at("validator")
	row.DecidedAt = at("decided_at")
	row.Comment = at("comment")
	row.Notified = at("notified")

	if s := at("score"); s != "" {
		// xlsx numeric cells sometimes render as floats
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Row{}, eris.Wrapf(err, "xlsx: score %q for %s", s, row.OpportunityID)
		}
		row.Score = int(f)
	}
	return row, nil
}
