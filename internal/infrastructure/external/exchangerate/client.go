package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL  = "https://api.exchangerate-api.com/v4/latest"
	defaultCacheTTL = time.Hour
	maxBodyBytes    = 1 << 20
)

// ErrUnsupportedCurrency is returned when the rate table has no entry for the target
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// HTTPClient interface for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds exchange-rate client settings
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type rateTable struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Client fetches "latest" rate tables per base currency. Tables are cached for
// CacheTTL and concurrent fetches of the same base share one request.
type Client struct {
	baseURL    string
	ttl        time.Duration
	httpClient HTTPClient
	logger     *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]rateTable
	now   func() time.Time
}

// NewClient creates a new exchange-rate client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ttl:        cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		cache:      make(map[string]rateTable),
		now:        time.Now,
	}
}

// Rate implements port.CurrencyConverter. One unit of from equals Rate units of to.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	table, err := c.table(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := table.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s to %s: %w", from, to, ErrUnsupportedCurrency)
	}
	return rate, nil
}

func (c *Client) cached(base string) (rateTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.cache[base]
	if !ok || c.now().Sub(t.fetchedAt) >= c.ttl {
		return rateTable{}, false
	}
	return t, true
}

func (c *Client) table(ctx context.Context, base string) (rateTable, error) {
	if t, ok := c.cached(base); ok {
		return t, nil
	}

	v, err, shared := c.group.Do(base, func() (interface{}, error) {
		if t, ok := c.cached(base); ok {
			return t, nil
		}
		return c.fetch(ctx, base)
	})
	if err != nil {
		return rateTable{}, err
	}
	if shared {
		c.logger.Debug("Shared exchange rate fetch", zap.String("base", base))
	}
	return v.(rateTable), nil
}

func (c *Client) fetch(ctx context.Context, base string) (rateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return rateTable{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Exchange rate request failed", zap.String("base", base), zap.Error(err))
		return rateTable{}, fmt.Errorf("failed to fetch rates for %s: %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return rateTable{}, fmt.Errorf("failed to read rates response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Exchange rate API returned error status",
			zap.String("base", base), zap.Int("status", resp.StatusCode))
		return rateTable{}, fmt.Errorf("rates for %s: unexpected status %d", base, resp.StatusCode)
	}

	var parsed latestResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return rateTable{}, fmt.Errorf("failed to decode rates for %s: %w", base, err)
	}
	if len(parsed.Rates) == 0 {
		return rateTable{}, fmt.Errorf("rates for %s: empty table", base)
	}

	t := rateTable{rates: parsed.Rates, fetchedAt: c.now()}
	c.mu.Lock()
	c.cache[base] = t
	c.mu.Unlock()

	c.logger.Info("Exchange rates refreshed", zap.String("base", base), zap.Int("currencies", len(parsed.Rates)))
	return t, nil
}

var _ port.CurrencyConverter = (*Client)(nil)
