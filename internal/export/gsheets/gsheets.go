// Package gsheets exports the record snapshot to a Google Sheets tab.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"adquisiciones/internal/core"
	"adquisiciones/internal/ports"
)

// Header is the first row written to the sheet.
var Header = []any{
	"ID", "Presupuesto", "Unidad administrativa", "Tipo de bien o servicio",
	"Cantidad", "Valor unitario", "Valor total", "Fecha de adquisición",
	"Proveedor", "Documentación", "Activo",
}

// lastColumn is the column letter of the last Header cell.
const lastColumn = "K"

// Config selects the destination sheet and the service account.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Exporter replaces the content of a sheet with the current records.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.Exporter = (*Exporter)(nil)

// New creates an Exporter authenticated with a service account key or the
// authorized_user file written by adquisiciones-oauth-init, reading
// inline JSON first, then the file, then GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets exporter ready", "sheet", cfg.SheetName)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Exporter {
	if sheetName == "" {
		sheetName = "Adquisiciones"
	}
	return &Exporter{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Export clears the sheet and writes the header plus one row per record.
func (e *Exporter) Export(ctx context.Context, records []core.Record) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:%s", e.sheetName, lastColumn)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := Rows(records)
	dataRange := fmt.Sprintf("%s!A1:%s%d", e.sheetName, lastColumn, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", dataRange, err)
	}

	slog.InfoContext(ctx, "Exported records to Google Sheets",
		"sheet", e.sheetName,
		"record_count", len(records))
	return nil
}

// Rows renders the header and the records as sheet values.
func Rows(records []core.Record) [][]any {
	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, Header)
	for _, r := range records {
		active := "No"
		if r.Active {
			active = "Sí"
		}
		rows = append(rows, []any{
			r.ID,
			r.Budget.String(),
			r.AdministrativeUnit,
			r.Category,
			r.Quantity,
			r.UnitValue.String(),
			r.TotalValue.String(),
			r.AcquisitionDate.String(),
			r.Supplier,
			r.Documentation,
			active,
		})
	}
	return rows
}
