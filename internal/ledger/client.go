package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sheetsync/sheetsync/internal/metrics"
)

// retryBaseDelay is the first backoff step; attempt n waits 2^n times this.
var retryBaseDelay = 100 * time.Millisecond

// ClientConfig configures the ledger REST client.
type ClientConfig struct {
	// BaseURL of the ledger HTTP API, e.g. http://actual-http-api:5007.
	BaseURL string

	// APIKey is sent in the x-api-key header.
	APIKey string

	// EncryptionPassword unlocks end-to-end encrypted budgets.
	EncryptionPassword string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for 429 and 5xx responses (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	UserAgent string

	// Transport allows injecting a custom HTTP transport.
	Transport http.RoundTripper
}

// Client is a rate-limited, retrying client for the ledger REST API.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a ledger client. Zero values in config take defaults.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("ledger base url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid ledger base url: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "sheetsync/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}, nil
}

// Account is a ledger account as listed by the API.
type Account struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	OffBudget bool     `json:"offbudget"`
	Closed    bool     `json:"closed"`
	Balance   *float64 `json:"balance,omitempty"`
}

// Transaction is a ledger transaction. The API returns either resolved names
// (payee_name, category_name) or bare ids depending on the endpoint version.
type Transaction struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Amount       float64 `json:"amount"`
	Payee        string  `json:"payee"`
	PayeeName    string  `json:"payee_name"`
	Category     string  `json:"category"`
	CategoryName string  `json:"category_name"`
	Memo         string  `json:"memo"`
	Notes        string  `json:"notes"`
	AccountID    string  `json:"account_id"`
	Account      string  `json:"account"`
}

// Accounts lists every account of a budget.
func (c *Client) Accounts(ctx context.Context, syncID string) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, budgetPath(syncID, "accounts"), nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// AccountBalance returns the current balance of one account.
func (c *Client) AccountBalance(ctx context.Context, syncID, accountID string) (float64, error) {
	var balance float64
	if err := c.get(ctx, budgetPath(syncID, "accounts", accountID, "balance"), nil, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Transactions lists the transactions of one account, optionally starting at
// sinceDate (YYYY-MM-DD).
func (c *Client) Transactions(ctx context.Context, syncID, accountID, sinceDate string) ([]Transaction, error) {
	var query url.Values
	if sinceDate != "" {
		query = url.Values{"since_date": []string{sinceDate}}
	}
	var txns []Transaction
	if err := c.get(ctx, budgetPath(syncID, "accounts", accountID, "transactions"), query, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func budgetPath(syncID string, segments ...string) string {
	parts := []string{"v1", "budgets", url.PathEscape(syncID)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// get performs a GET and decodes the {"data": ...} envelope into target.
func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	body, err := c.do(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("decode response: missing data field")
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// do executes a request with rate limiting and retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.doOnce(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		backoff := time.Duration(1<<uint(attempt)) * retryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}
	if c.config.EncryptionPassword != "" {
		req.Header.Set("budget-encryption-password", c.config.EncryptionPassword)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LedgerRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	metrics.LedgerRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// HTTPError is a non-2xx response from the ledger API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for 429 responses.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for 5xx responses.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

// isRetryable reports whether err is worth another attempt. Client errors
// other than 429 are final.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRateLimited() || httpErr.IsServerError()
	}
	return false
}
