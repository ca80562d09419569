package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"mython/internal/core"
	"mython/internal/log"
)

const defaultSheetName = "Transactions"

var sheetHeader = []any{"ID", "Date", "Type", "Amount", "Particulars", "Mode"}

// Sheets mirrors the ledger into one tab of a spreadsheet, rewriting the
// whole tab on every export.
type Sheets struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// NewSheets wraps an existing service; tests point it at a fake endpoint.
func NewSheets(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) (*Sheets, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = defaultSheetName
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, logger: logger}, nil
}

// NewSheetsFromEnv authenticates with a service account taken from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS. Without one it falls back to the user
// token written by "mython sheets-auth".
func NewSheetsFromEnv(ctx context.Context, spreadsheetID, sheetName string, logger *log.Logger) (*Sheets, error) {
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewSheets(svc, spreadsheetID, sheetName, logger)
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return newUserSheetsService(ctx)
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func newUserSheetsService(ctx context.Context) (*gsheet.Service, error) {
	cfg, err := OAuthConfigFromEnv()
	if errors.Is(err, errNoOAuthClient) {
		return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client plus token)")
	}
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(TokenFile())
	if err != nil {
		return nil, fmt.Errorf("load oauth token (run mython sheets-auth): %w", err)
	}
	service, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (s *Sheets) Name() string { return "sheets:" + s.sheetName }

func (s *Sheets) Write(ctx context.Context, txs []core.Transaction) error {
	clearRange := fmt.Sprintf("%s!A:F", s.sheetName)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := make([][]any, 0, len(txs)+1)
	rows = append(rows, sheetHeader)
	for _, t := range txs {
		rows = append(rows, []any{
			t.ID,
			t.Date.String(),
			t.Kind.String(),
			core.FormatAmount(t.Amount),
			t.Label,
			t.Mode.String(),
		})
	}

	dataRange := fmt.Sprintf("%s!A1", s.sheetName)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", dataRange, err)
	}

	s.logger.InfoContext(ctx, "Wrote ledger to spreadsheet",
		log.FieldSink, s.Name(),
		log.FieldLen, len(txs))
	return nil
}
