// Package google exports aggregated views to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"koin/internal/aggregate"
	"koin/internal/log"
)

// Exporter writes one tab per period named "<year>-<month> <sheet>".
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger
}

// New creates an exporter. Without options it authenticates with the OAuth
// user token named by GOOGLE_OAUTH_TOKEN_FILE when set, and with service
// account credentials from credentialsFile or the environment otherwise.
func New(ctx context.Context, spreadsheetID, sheet, credentialsFile string, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheet) == "" {
		sheet = "Summary"
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	if len(opts) == 0 {
		ts, ok, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth token: %w", err)
		}
		if ok {
			logger.DebugContext(ctx, "Using OAuth user token", "path", TokenFile())
			opts = []goption.ClientOption{goption.WithTokenSource(ts)}
		} else {
			creds, err := loadCredentials(ctx, credentialsFile, logger)
			if err != nil {
				return nil, err
			}
			opts = []goption.ClientOption{
				goption.WithCredentialsJSON(creds),
				goption.WithScopes(gsheet.SpreadsheetsScope),
			}
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         strings.TrimSpace(sheet),
		logger:        logger,
	}, nil
}

// loadCredentials reads service account credentials from, in order,
// credentialsFile, GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// and GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(ctx context.Context, credentialsFile string, logger *log.Logger) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(credentialsFile)
	if serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	}
	if serviceAccountFile == "" && serviceAccountJSON == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// TabName returns the tab a view of the given period is written to.
func (e *Exporter) TabName(v aggregate.View) string {
	return fmt.Sprintf("%s %s", v.Period.String(), e.sheet)
}

// ExportView replaces the contents of the period's tab with the view.
func (e *Exporter) ExportView(ctx context.Context, userID string, v aggregate.View) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := e.TabName(v)
	if err := e.ensureTab(ctx, tab); err != nil {
		return err
	}

	clearRange := fmt.Sprintf("'%s'!A:D", tab)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := reportRows(userID, v)
	rng := fmt.Sprintf("'%s'!A1:D%d", tab, len(rows))
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	e.logger.InfoContext(ctx, "View exported",
		log.FieldUserID, userID, log.FieldPeriod, v.Period.String(),
		log.FieldSpreadsheet, e.spreadsheetID, log.FieldCount, len(rows))
	return nil
}

// ensureTab adds the tab when the spreadsheet does not have it yet.
func (e *Exporter) ensureTab(ctx context.Context, tab string) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	e.logger.InfoContext(ctx, "Created report tab", "tab", tab)
	return nil
}

// reportRows lays out the totals followed by the expense distribution.
func reportRows(userID string, v aggregate.View) [][]any {
	rows := [][]any{
		{"Period", v.Period.String()},
		{"User", userID},
		{},
		{"Metric", "Value"},
		{"Total income", v.TotalIncome.Float64()},
		{"Total expense", v.TotalExpense.Float64()},
		{"Monthly balance", v.MonthlyBalance.Float64()},
		{"Total savings", v.TotalSavings.Float64()},
		{"Total investment", v.TotalInvestment.Float64()},
		{"Total receivables", v.TotalReceivables.Float64()},
		{"Total debt", v.TotalDebt.Float64()},
		{"Total assets", v.TotalAssets.Float64()},
		{"Net worth", v.NetWorth.Float64()},
		{"Uncategorized", v.Uncategorized.Float64()},
		{},
		{"Category", "Amount", "Share %", "Color"},
	}
	for _, s := range v.Distribution {
		rows = append(rows, []any{s.Name, s.Value.Float64(), s.Share, s.Color})
	}
	return rows
}
