package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/unit"
)

type fakeAPI struct {
	accounts    []Account
	accountsErr error
	balances    map[string]float64
	balanceErr  error
	txns        map[string][]Transaction
	txnErr      map[string]error

	syncIDs   []string
	sinceDate string
}

func (f *fakeAPI) Accounts(_ context.Context, syncID string) ([]Account, error) {
	f.syncIDs = append(f.syncIDs, syncID)
	return f.accounts, f.accountsErr
}

func (f *fakeAPI) AccountBalance(_ context.Context, _ string, accountID string) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[accountID], nil
}

func (f *fakeAPI) Transactions(_ context.Context, syncID, accountID, sinceDate string) ([]Transaction, error) {
	f.syncIDs = append(f.syncIDs, syncID)
	f.sinceDate = sinceDate
	if err := f.txnErr[accountID]; err != nil {
		return nil, err
	}
	return f.txns[accountID], nil
}

func newTestExtractor(t *testing.T, api API, targets ...SyncTarget) *Extractor {
	t.Helper()
	if len(targets) == 0 {
		targets = []SyncTarget{{SyncID: "primary"}}
	}
	resolved, err := NewTargets(targets)
	require.NoError(t, err)
	return NewExtractor(api, resolved, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(f float64) *float64 { return &f }

func TestExtract_Balances(t *testing.T) {
	api := &fakeAPI{
		accounts: []Account{
			{ID: "a1", Name: "Checking", Type: "checking", Balance: ptr(12345)},
			{ID: "a2", Name: "Brokerage", OffBudget: true, Closed: true},
		},
		balances: map[string]float64{"a2": 900},
	}
	e := newTestExtractor(t, api)

	records, err := e.Extract(context.Background(), &unit.SyncUnit{ID: "u", Source: unit.SourceSpec{Type: "balances"}, SyncTarget: "default"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, unit.Record{
		"accountId": "a1", "accountName": "Checking", "type": "checking",
		"balance": 12345.0, "offBudget": false, "closed": false,
	}, records[0])
	assert.Equal(t, 900.0, records[1]["balance"])
	assert.Equal(t, true, records[1]["offBudget"])
	assert.Equal(t, true, records[1]["closed"])
}

func TestExtract_BalanceFailureDefaultsToZero(t *testing.T) {
	api := &fakeAPI{
		accounts:   []Account{{ID: "a1", Name: "Checking"}},
		balanceErr: errors.New("timeout"),
	}
	e := newTestExtractor(t, api)

	records, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "balances"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.0, records[0]["balance"])
}

func TestExtract_ListingFailureYieldsEmptySet(t *testing.T) {
	api := &fakeAPI{accountsErr: errors.New("down")}
	e := newTestExtractor(t, api)

	for _, source := range []string{"balances", "transactions"} {
		records, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: source}})
		require.NoError(t, err, source)
		assert.Empty(t, records, source)
		assert.NotNil(t, records, source)
	}
}

func TestExtract_Transactions(t *testing.T) {
	api := &fakeAPI{
		accounts: []Account{{ID: "a1"}, {ID: "a2"}},
		txns: map[string][]Transaction{
			"a1": {{ID: "t1", Date: "2024-03-01", Amount: -500, PayeeName: "Grocer", Payee: "p-id", Category: "c-id", AccountID: "a1"}},
			"a2": {{ID: "t2", Date: "2024-03-02", Amount: 1000, Payee: "p-2", CategoryName: "Income", Memo: "salary"}},
		},
	}
	e := newTestExtractor(t, api)
	e.now = func() time.Time { return time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC) }

	records, err := e.Extract(context.Background(), &unit.SyncUnit{
		Source: unit.SourceSpec{Type: "transactions", Options: map[string]any{"days": 30}},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", api.sinceDate)
	require.Len(t, records, 2)
	assert.Equal(t, unit.Record{
		"transactionId": "t1", "date": "2024-03-01", "amount": -500.0,
		"payee": "Grocer", "category": "c-id", "memo": "", "accountId": "a1",
	}, records[0])
	assert.Equal(t, "p-2", records[1]["payee"])
	assert.Equal(t, "Income", records[1]["category"])
	assert.Equal(t, "salary", records[1]["memo"])
	assert.Equal(t, "a2", records[1]["accountId"])
}

func TestExtract_TransactionsSingleAccount(t *testing.T) {
	api := &fakeAPI{
		accountsErr: errors.New("must not list"),
		txns:        map[string][]Transaction{"a9": {{ID: "t9"}}},
	}
	e := newTestExtractor(t, api)

	records, err := e.Extract(context.Background(), &unit.SyncUnit{
		Source: unit.SourceSpec{Type: "transactions", Options: map[string]any{"accountId": "a9"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t9", records[0]["transactionId"])
	assert.Empty(t, api.sinceDate)
}

func TestExtract_TransactionsSkipsFailingAccount(t *testing.T) {
	api := &fakeAPI{
		accounts: []Account{{ID: "a1"}, {ID: "a2"}},
		txns:     map[string][]Transaction{"a2": {{ID: "t2"}}},
		txnErr:   map[string]error{"a1": errors.New("boom")},
	}
	e := newTestExtractor(t, api)

	records, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "transactions"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t2", records[0]["transactionId"])
}

func TestExtract_UnsupportedSource(t *testing.T) {
	e := newTestExtractor(t, &fakeAPI{})

	_, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "budgets"}})
	assert.EqualError(t, err, "unsupported source type: budgets")
	assert.False(t, e.Supports("budgets"))
	assert.True(t, e.Supports("Balances"))
}

func TestExtract_ResolvesSyncTarget(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExtractor(t, api, SyncTarget{SyncID: "first"}, SyncTarget{BudgetID: "b", SyncID: "second"})

	_, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "balances"}, SyncTarget: "second"})
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "balances"}, SyncTarget: "missing"})
	require.NoError(t, err)

	assert.Equal(t, []string{"second", "first"}, api.syncIDs)
}

func TestExtract_CustomSource(t *testing.T) {
	e := newTestExtractor(t, &fakeAPI{})
	e.Register("static", func(_ context.Context, target SyncTarget, _ map[string]any) ([]unit.Record, error) {
		return []unit.Record{{"sync": target.SyncID}}, nil
	})

	records, err := e.Extract(context.Background(), &unit.SyncUnit{Source: unit.SourceSpec{Type: "static"}})
	require.NoError(t, err)
	assert.Equal(t, []unit.Record{{"sync": "primary"}}, records)
}
