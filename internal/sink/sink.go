// Package sink writes transformed rows to spreadsheets.
package sink

import (
	"context"
	"log/slog"

	"github.com/sheetsync/sheetsync/internal/unit"
)

// Request is one write of a unit's transformed output.
type Request struct {
	UnitID     string
	Mode       unit.WriteMode
	Target     unit.Target
	Header     []string
	Rows       [][]any
	KeyColumns []string
}

// Loader writes rows to a sink. ReadCurrentGrid returns the values currently
// stored at the target's write range, header row included.
type Loader interface {
	Load(ctx context.Context, req Request) error
	ReadCurrentGrid(ctx context.Context, target unit.Target) ([][]any, error)
}

type disabledLoader struct {
	logger *slog.Logger
}

// NewDisabled returns a Loader that skips every write.
func NewDisabled(logger *slog.Logger) Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &disabledLoader{logger: logger.With("component", "sink")}
}

func (l *disabledLoader) Load(_ context.Context, req Request) error {
	l.logger.Info("Spreadsheet sink disabled; skipping upload", "unit_id", req.UnitID, "row_count", len(req.Rows))
	return nil
}

func (l *disabledLoader) ReadCurrentGrid(context.Context, unit.Target) ([][]any, error) {
	return nil, nil
}

func headerRow(header []string) []any {
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}
