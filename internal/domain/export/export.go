package export

import (
	"errors"
	"strings"
	"time"
)

// Format is the file format of a fine export.
type Format string

// Format constants for export file format.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx.
var ErrUnknownFormat = errors.New("export format must be csv or xlsx")

// Columns is the header row of every fine export, in order.
var Columns = []string{"Reason", "Amount", "Receiver", "Paid", "Expiration", "Creator"}

// ParseFormat maps user input to a Format; empty input means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", ErrUnknownFormat
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names the download after the export date, e.g. fines-2026-03-01.csv.
func (f Format) Filename(on time.Time) string {
	return "fines-" + on.Format(time.DateOnly) + "." + string(f)
}

// YesNo renders a boolean export cell.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
