package projections

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/export"
	domain "clubhouse/internal/domain/fine"
)

// SheetName is the worksheet holding XLSX exports.
const SheetName = "Fines"

// ExportQuery carries query parameters.
type ExportQuery struct {
	Format export.Format
	Filter FineFilter
}

// ExportResult is a ready-to-serve file.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportFinesDeps holds dependencies for QueryExportFines.
type ExportFinesDeps struct {
	FineStore       FineStore
	AccountStore    AccountStore
	Now             func() time.Time
	StaffDateLayout string // expiration layout for managers and staff
	AdminDateLayout string // expiration layout for admins
}

// QueryExportFines serialises the actor's visible, filtered fines.
// PRE: actor passed CanExport
// POST: One row per fine in store order after the header; identical input yields identical CSV bytes
func QueryExportFines(ctx context.Context, actor account.Actor, query ExportQuery, deps ExportFinesDeps) (ExportResult, error) {
	if err := domain.CanExport(actor); err != nil {
		return ExportResult{}, err
	}
	at := now(deps.Now)
	rows, err := visibleRows(ctx, actor, deps.FineStore, deps.AccountStore, at)
	if err != nil {
		return ExportResult{}, err
	}
	rows = ApplyFineFilter(rows, query.Filter)
	records := ExportRecords(rows, dateLayoutFor(actor.Role, deps))

	format := query.Format
	if format == "" {
		format = export.FormatCSV
	}
	var body []byte
	switch format {
	case export.FormatCSV:
		body, err = writeCSV(records)
	case export.FormatXLSX:
		body, err = writeXLSX(records)
	default:
		return ExportResult{}, export.ErrUnknownFormat
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("export fines as %s: %w", format, err)
	}
	return ExportResult{
		Filename:    format.Filename(at),
		ContentType: format.ContentType(),
		Body:        body,
		Rows:        len(rows),
	}, nil
}

// ExportRecords builds the header and one record per row.
func ExportRecords(rows []FineRow, dateLayout string) [][]string {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, export.Columns)
	for _, r := range rows {
		expiration := ""
		if !r.ExpirationDate.IsZero() {
			expiration = r.ExpirationDate.UTC().Format(dateLayout)
		}
		records = append(records, []string{
			r.Reason,
			r.Amount.StringFixed(domain.MaxAmountScale),
			r.ReceiverName,
			export.YesNo(r.IsPaid),
			expiration,
			r.CreatorName,
		})
	}
	return records
}

func dateLayoutFor(role account.Role, deps ExportFinesDeps) string {
	switch role {
	case account.RoleAdmin:
		if deps.AdminDateLayout != "" {
			return deps.AdminDateLayout
		}
		return "2006-01-02 15:04"
	case account.RoleManager, account.RoleStaff, account.RolePlayer:
		if deps.StaffDateLayout != "" {
			return deps.StaffDateLayout
		}
		return "02/01/2006"
	default:
		return time.DateOnly
	}
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
