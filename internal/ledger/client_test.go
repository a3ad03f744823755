package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	retryBaseDelay = time.Millisecond
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		BaseURL:            srv.URL,
		APIKey:             "secret",
		EncryptionPassword: "pw",
		RateLimit:          1000,
		RateBurst:          100,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientConfig{BaseURL: "http://localhost:5007"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.config.Timeout)
	assert.Equal(t, 3, c.config.MaxRetries)
	assert.Equal(t, 10.0, c.config.RateLimit)
	assert.Equal(t, 5, c.config.RateBurst)
}

func TestClient_Accounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/budgets/sync-1/accounts", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "pw", r.Header.Get("budget-encryption-password"))
		w.Write([]byte(`{"data":[{"id":"a1","name":"Checking","offbudget":false,"closed":false,"balance":1500},{"id":"a2","name":"Savings","offbudget":true,"closed":true}]}`))
	})

	accounts, err := c.Accounts(context.Background(), "sync-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Checking", accounts[0].Name)
	require.NotNil(t, accounts[0].Balance)
	assert.Equal(t, 1500.0, *accounts[0].Balance)
	assert.Nil(t, accounts[1].Balance)
	assert.True(t, accounts[1].OffBudget)
	assert.True(t, accounts[1].Closed)
}

func TestClient_BalanceAndTransactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/budgets/s/accounts/a1/balance":
			w.Write([]byte(`{"data":-2500}`))
		case "/v1/budgets/s/accounts/a1/transactions":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("since_date"))
			w.Write([]byte(`{"data":[{"id":"t1","date":"2024-01-02","amount":-1200,"payee_name":"Cafe","notes":"latte"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	balance, err := c.AccountBalance(context.Background(), "s", "a1")
	require.NoError(t, err)
	assert.Equal(t, -2500.0, balance)

	txns, err := c.Transactions(context.Background(), "s", "a1", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Cafe", txns[0].PayeeName)
	assert.Equal(t, "latte", txns[0].Notes)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	})

	accounts, err := c.Accounts(context.Background(), "s")
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	})

	_, err := c.Accounts(context.Background(), "s")
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "bad key", httpErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Accounts(context.Background(), "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_MissingEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[]}`))
	})

	_, err := c.Accounts(context.Background(), "s")
	assert.ErrorContains(t, err, "missing data field")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &HTTPError{StatusCode: 429}, true},
		{"server error", &HTTPError{StatusCode: 503}, true},
		{"not found", &HTTPError{StatusCode: 404}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
