package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sheetsync/sheetsync/internal/transform/expr"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// API is the subset of the ledger REST API used by the extractors.
type API interface {
	Accounts(ctx context.Context, syncID string) ([]Account, error)
	AccountBalance(ctx context.Context, syncID, accountID string) (float64, error)
	Transactions(ctx context.Context, syncID, accountID, sinceDate string) ([]Transaction, error)
}

// ExtractFunc produces records for one source type.
type ExtractFunc func(ctx context.Context, target SyncTarget, options map[string]any) ([]unit.Record, error)

// Extractor dispatches a unit's source to the registered extract function.
type Extractor struct {
	api        API
	targets    *Targets
	extractors map[string]ExtractFunc
	logger     *slog.Logger
	now        func() time.Time
}

// NewExtractor returns an extractor with the built-in "balances" and
// "transactions" sources registered.
func NewExtractor(api API, targets *Targets, logger *slog.Logger) *Extractor {
	e := &Extractor{
		api:        api,
		targets:    targets,
		extractors: make(map[string]ExtractFunc),
		logger:     logger.With("component", "ledger"),
		now:        time.Now,
	}
	e.Register("balances", e.balances)
	e.Register("transactions", e.transactions)
	return e
}

// Register adds or replaces the extract function for a source type.
func (e *Extractor) Register(sourceType string, fn ExtractFunc) {
	e.extractors[strings.ToLower(sourceType)] = fn
}

// Supports reports whether sourceType has a registered extractor.
func (e *Extractor) Supports(sourceType string) bool {
	_, ok := e.extractors[strings.ToLower(sourceType)]
	return ok
}

// Extract reads the records for u from its resolved sync target.
func (e *Extractor) Extract(ctx context.Context, u *unit.SyncUnit) ([]unit.Record, error) {
	fn, ok := e.extractors[strings.ToLower(u.Source.Type)]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s", u.Source.Type)
	}
	target, found := e.targets.Resolve(u.SyncTarget)
	if !found {
		e.logger.Warn("Unknown sync target, using default", "unit_id", u.ID, "sync_target", u.SyncTarget)
	}
	return fn(ctx, target, u.Source.Options)
}

func (e *Extractor) balances(ctx context.Context, target SyncTarget, _ map[string]any) ([]unit.Record, error) {
	accounts, err := e.api.Accounts(ctx, target.SyncID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("Failed to list accounts", "sync_id", target.SyncID, "error", err)
		return []unit.Record{}, nil
	}

	records := make([]unit.Record, 0, len(accounts))
	for _, acct := range accounts {
		var balance float64
		if acct.Balance != nil {
			balance = *acct.Balance
		} else {
			balance, err = e.api.AccountBalance(ctx, target.SyncID, acct.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.logger.Warn("Failed to fetch account balance", "account_id", acct.ID, "error", err)
				balance = 0
			}
		}
		records = append(records, unit.Record{
			"accountId":   acct.ID,
			"accountName": acct.Name,
			"type":        acct.Type,
			"balance":     balance,
			"offBudget":   acct.OffBudget,
			"closed":      acct.Closed,
		})
	}
	return records, nil
}

func (e *Extractor) transactions(ctx context.Context, target SyncTarget, options map[string]any) ([]unit.Record, error) {
	var sinceDate string
	if days := expr.ToNumber(options["days"]); days > 0 {
		sinceDate = e.now().UTC().AddDate(0, 0, -int(days)).Format("2006-01-02")
	}

	accountIDs, err := e.accountIDs(ctx, target, options)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("Failed to list accounts", "sync_id", target.SyncID, "error", err)
		return []unit.Record{}, nil
	}

	records := []unit.Record{}
	for _, accountID := range accountIDs {
		txns, err := e.api.Transactions(ctx, target.SyncID, accountID, sinceDate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Failed to fetch transactions", "account_id", accountID, "error", err)
			continue
		}
		for _, txn := range txns {
			records = append(records, transactionRecord(txn, accountID))
		}
	}
	return records, nil
}

// accountIDs returns the configured accountId option, or every account.
func (e *Extractor) accountIDs(ctx context.Context, target SyncTarget, options map[string]any) ([]string, error) {
	if id, ok := options["accountId"].(string); ok && strings.TrimSpace(id) != "" {
		return []string{strings.TrimSpace(id)}, nil
	}
	accounts, err := e.api.Accounts(ctx, target.SyncID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		ids = append(ids, acct.ID)
	}
	return ids, nil
}

func transactionRecord(txn Transaction, accountID string) unit.Record {
	return unit.Record{
		"transactionId": txn.ID,
		"date":          txn.Date,
		"amount":        txn.Amount,
		"payee":         firstNonEmpty(txn.PayeeName, txn.Payee),
		"category":      firstNonEmpty(txn.CategoryName, txn.Category),
		"memo":          firstNonEmpty(txn.Memo, txn.Notes),
		"accountId":     firstNonEmpty(txn.AccountID, txn.Account, accountID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
