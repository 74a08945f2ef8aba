// Package export flattens claims into a single-sheet spreadsheet.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	clockport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/clock"
)

const (
	DefaultSheetName = "Claim Canva Pro"
	FilePrefix       = "claim-canva-"
	ContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Header is the column order of the exported sheet.
var Header = []string{"No", "Divisi", "Email", "Tanggal"}

// ErrNothingToExport is returned for an empty row set; callers treat it as a no-op.
var ErrNothingToExport = errors.New("nothing to export")

// Record is one flattened spreadsheet row.
type Record struct {
	No      int
	Divisi  string
	Email   string
	Tanggal string
}

// Records maps rows to spreadsheet records in list order. No is 1-based and contiguous.
func Records(rows []domain.Claim, loc *time.Location) []Record {
	out := make([]Record, 0, len(rows))
	for i, r := range rows {
		out = append(out, Record{
			No:      i + 1,
			Divisi:  r.Organization,
			Email:   r.Email,
			Tanggal: FormatTimestamp(r.CreatedAt, loc),
		})
	}
	return out
}

// FileName is the download name for an export made at now. The date is the UTC calendar
// date, independent of the location used for the Tanggal column.
func FileName(now time.Time) string {
	return FilePrefix + now.UTC().Format("2006-01-02") + ".xlsx"
}

// Exporter writes claim exports.
type Exporter struct {
	SheetName string
	Location  *time.Location
	Clock     clockport.Clock
}

func NewExporter(sheetName string, loc *time.Location, clk clockport.Clock) *Exporter {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	if loc == nil {
		loc = DefaultLocation()
	}
	return &Exporter{SheetName: sheetName, Location: loc, Clock: clk}
}

// Write encodes rows as an .xlsx workbook to w and returns the file name to offer.
// An empty row set writes nothing and returns ErrNothingToExport.
func (e *Exporter) Write(w io.Writer, rows []domain.Claim) (string, error) {
	if len(rows) == 0 {
		return "", ErrNothingToExport
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// A new workbook starts with "Sheet1"; rename instead of adding a second sheet.
	if err := f.SetSheetName("Sheet1", e.SheetName); err != nil {
		return "", fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(e.SheetName, "A1", &header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for i, rec := range Records(rows, e.Location) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []any{rec.No, rec.Divisi, rec.Email, rec.Tanggal}
		if err := f.SetSheetRow(e.SheetName, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", rec.No, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return "", fmt.Errorf("encode workbook: %w", err)
	}
	return FileName(e.now()), nil
}

func (e *Exporter) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}
