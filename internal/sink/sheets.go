package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/sheetsync/sheetsync/internal/unit"
	"github.com/sheetsync/sheetsync/internal/upsert"
)

const valueInputOption = "USER_ENTERED"

// ErrUnsupportedMode is returned for write modes the loader does not know.
var ErrUnsupportedMode = errors.New("unsupported sheets upload mode")

type valuesClient interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
}

// SheetsLoader writes to Google Sheets.
type SheetsLoader struct {
	values valuesClient
	logger *slog.Logger
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewSheets builds a loader authenticated with the service account key at
// keyFile. Extra client options are appended, which tests use to point the
// client at a local endpoint.
func NewSheets(ctx context.Context, keyFile string, logger *slog.Logger, opts ...option.ClientOption) (*SheetsLoader, error) {
	if keyFile == "" {
		return nil, errors.New("SHEETS_SERVICE_ACCOUNT_JSON is required for service-account mode")
	}
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	var key serviceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account key %s: %w", keyFile, err)
	}
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("service account JSON at %s is missing client_email", keyFile)
	}
	if key.PrivateKey == "" {
		return nil, fmt.Errorf("service account JSON at %s is missing private_key", keyFile)
	}

	clientOpts := append([]option.ClientOption{
		option.WithCredentialsJSON(raw),
		option.WithScopes(sheets.SpreadsheetsScope),
	}, opts...)
	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return newSheetsLoader(&serviceClient{svc: svc}, logger), nil
}

func newSheetsLoader(values valuesClient, logger *slog.Logger) *SheetsLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsLoader{values: values, logger: logger.With("component", "sink")}
}

func (l *SheetsLoader) Load(ctx context.Context, req Request) error {
	l.logger.Info("Uploading data to google sheets",
		"unit_id", req.UnitID,
		"spreadsheet_id", req.Target.SpreadsheetID,
		"tab", req.Target.Tab,
		"mode", req.Mode,
		"row_count", len(req.Rows))

	switch req.Mode {
	case unit.ModeReplace:
		return l.replace(ctx, req)
	case unit.ModeAppend:
		return l.values.Append(ctx, req.Target.SpreadsheetID, req.Target.WriteRange(), req.Rows)
	case unit.ModeUpsert:
		return l.upsert(ctx, req)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, req.Mode)
	}
}

func (l *SheetsLoader) replace(ctx context.Context, req Request) error {
	if err := l.values.Clear(ctx, req.Target.SpreadsheetID, req.Target.ClearTarget()); err != nil {
		return fmt.Errorf("failed to clear range: %w", err)
	}
	values := req.Rows
	if len(req.Header) > 0 {
		values = append([][]any{headerRow(req.Header)}, req.Rows...)
	}
	return l.values.Update(ctx, req.Target.SpreadsheetID, req.Target.WriteRange(), values)
}

func (l *SheetsLoader) upsert(ctx context.Context, req Request) error {
	if len(req.KeyColumns) == 0 {
		return upsert.ErrMissingKeyColumns
	}
	existing, err := l.ReadCurrentGrid(ctx, req.Target)
	if err != nil {
		l.logger.Warn("Failed to read existing sheet values, assuming empty sheet",
			"unit_id", req.UnitID, "error", err)
		existing = nil
	}
	values, err := upsert.Apply(existing, req.Header, req.Rows, req.KeyColumns)
	if err != nil {
		return err
	}
	return l.values.Update(ctx, req.Target.SpreadsheetID, req.Target.WriteRange(), values)
}

func (l *SheetsLoader) ReadCurrentGrid(ctx context.Context, target unit.Target) ([][]any, error) {
	return l.values.Get(ctx, target.SpreadsheetID, target.WriteRange())
}

type serviceClient struct {
	svc *sheets.Service
}

func (c *serviceClient) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (c *serviceClient) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	return err
}

func (c *serviceClient) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *serviceClient) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
