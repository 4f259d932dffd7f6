// Package sheets copies the ledger into a Google spreadsheet.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
)

const (
	TransactionsSheet = "Transactions"
	MonthlySheet      = "Monthly"

	valueInputOption = "USER_ENTERED"
)

var (
	ErrMissingCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	ErrMissingSpreadsheet = errors.New("missing spreadsheet id")
)

// ValueWriter is the slice of the Sheets values API the exporter needs.
type ValueWriter interface {
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
	UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

// LoadCredentials returns the service account key, preferring inline JSON
// over a file path.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	var data []byte
	switch {
	case strings.TrimSpace(inlineJSON) != "":
		data = []byte(strings.TrimSpace(inlineJSON))
	case strings.TrimSpace(file) != "":
		b, err := os.ReadFile(strings.TrimSpace(file))
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		data = b
	default:
		return nil, ErrMissingCredentials
	}

	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if key.Type != "service_account" || key.ClientEmail == "" {
		return nil, fmt.Errorf("credentials are not a service account key (type %q)", key.Type)
	}
	return data, nil
}

// Service adapts the generated Sheets client to ValueWriter.
type Service struct {
	svc *gsheet.Service
}

var _ ValueWriter = (*Service)(nil)

// NewService creates a Sheets client authenticated with a service account key.
func NewService(ctx context.Context, credentialsJSON []byte) (*Service, error) {
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Service{svc: svc}, nil
}

func (s *Service) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *Service) UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	return err
}

// Exporter writes ledger snapshots into one spreadsheet.
type Exporter struct {
	writer        ValueWriter
	spreadsheetID string
	logger        *slog.Logger
}

// NewExporter returns an exporter targeting spreadsheetID.
func NewExporter(writer ValueWriter, spreadsheetID string, logger *slog.Logger) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, ErrMissingSpreadsheet
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{writer: writer, spreadsheetID: strings.TrimSpace(spreadsheetID), logger: logger}, nil
}

// Result counts the data rows written per tab.
type Result struct {
	Transactions int
	Months       int
}

// Export replaces both tabs with the given snapshot.
func (e *Exporter) Export(ctx context.Context, txs []core.Transaction, monthly []core.MonthlyExpense) (Result, error) {
	if err := e.replace(ctx, TransactionsSheet, "E", TransactionRows(txs)); err != nil {
		return Result{}, err
	}
	if err := e.replace(ctx, MonthlySheet, "B", MonthlyRows(monthly)); err != nil {
		return Result{}, err
	}
	res := Result{Transactions: len(txs), Months: len(monthly)}
	e.logger.InfoContext(ctx, "Ledger exported",
		"spreadsheet_id", e.spreadsheetID,
		"transactions", res.Transactions,
		"months", res.Months)
	return res, nil
}

func (e *Exporter) replace(ctx context.Context, sheet, lastCol string, rows [][]any) error {
	if err := e.writer.ClearValues(ctx, e.spreadsheetID, sheet); err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}
	rng := fmt.Sprintf("%s!A1:%s%d", sheet, lastCol, len(rows))
	if err := e.writer.UpdateValues(ctx, e.spreadsheetID, rng, rows); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// TransactionRows renders a header and one row per transaction.
func TransactionRows(txs []core.Transaction) [][]any {
	rows := make([][]any, 0, len(txs)+1)
	rows = append(rows, []any{"Date", "Type", "Category", "Description", "Amount"})
	for _, t := range txs {
		rows = append(rows, []any{t.Date.String(), string(t.Type), t.Category, t.Description, t.Amount.StringFixed(2)})
	}
	return rows
}

// MonthlyRows renders a header and one row per month.
func MonthlyRows(monthly []core.MonthlyExpense) [][]any {
	rows := make([][]any, 0, len(monthly)+1)
	rows = append(rows, []any{"Month", "Expenses"})
	for _, m := range monthly {
		rows = append(rows, []any{m.Month, m.Amount.StringFixed(2)})
	}
	return rows
}
