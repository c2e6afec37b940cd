// Package universe keeps the token universe in sync with CoinGecko market data.
package universe

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	marketsPath  = "/coins/markets"
	coinListPath = "/coins/list"

	maxPerPage = 250
)

// CoinGeckoOptions parameterise the market client.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	PerPage   int
	MaxPages  int
	Timeout   time.Duration
	UserAgent string

	// MaxRetryElapsed bounds the backoff of a single request.
	MaxRetryElapsed time.Duration
	// InitialRetryInterval is the first backoff delay.
	InitialRetryInterval time.Duration
}

// MarketCoin is one row of the /coins/markets listing.
type MarketCoin struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	Image                    string  `json:"image"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

type listedCoin struct {
	ID        string            `json:"id"`
	Platforms map[string]string `json:"platforms"`
}

// CoinGecko fetches market listings from the CoinGecko public API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko client.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PerPage <= 0 || opts.PerPage > maxPerPage {
		opts.PerPage = maxPerPage
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 4
	}
	if opts.MaxRetryElapsed <= 0 {
		opts.MaxRetryElapsed = time.Minute
	}
	if opts.InitialRetryInterval <= 0 {
		opts.InitialRetryInterval = 2 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
	}
}

// Markets pages through /coins/markets ordered by market cap until an empty page or MaxPages.
func (c *CoinGecko) Markets(ctx context.Context) ([]MarketCoin, error) {
	var out []MarketCoin
	for page := 1; page <= c.opts.MaxPages; page++ {
		q := url.Values{}
		q.Set("vs_currency", "usd")
		q.Set("order", "market_cap_desc")
		q.Set("per_page", strconv.Itoa(c.opts.PerPage))
		q.Set("page", strconv.Itoa(page))
		q.Set("sparkline", "false")
		q.Set("price_change_percentage", "24h")

		var rows []MarketCoin
		if err := c.getJSON(ctx, marketsPath, q, &rows); err != nil {
			return nil, fmt.Errorf("markets page %d: %w", page, err)
		}
		c.logger.Debug().Int("page", page).Int("rows", len(rows)).Msg("fetched markets page")
		if len(rows) == 0 {
			break
		}
		out = append(out, rows...)
		if len(rows) < c.opts.PerPage {
			break
		}
	}
	return out, nil
}

// Platforms returns contract addresses keyed by coin id and then platform id.
func (c *CoinGecko) Platforms(ctx context.Context) (map[string]map[string]string, error) {
	q := url.Values{}
	q.Set("include_platform", "true")

	var rows []listedCoin
	if err := c.getJSON(ctx, coinListPath, q, &rows); err != nil {
		return nil, fmt.Errorf("coin list: %w", err)
	}

	out := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		if len(row.Platforms) == 0 {
			continue
		}
		out[row.ID] = row.Platforms
	}
	return out, nil
}

func (c *CoinGecko) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
			req.Header.Set("User-Agent", ua)
		} else {
			req.Header.Set("User-Agent", "onchain-intel/1.0")
		}
		if c.opts.APIKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("perform request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			payload = body
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return parseHTTPError(resp.StatusCode, body)
		default:
			return backoff.Permanent(parseHTTPError(resp.StatusCode, body))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialRetryInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = c.opts.MaxRetryElapsed

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Msg("coingecko request failed, retrying")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// APIError is a non-OK CoinGecko response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coingecko api error (%d)", e.Status)
	}
	return fmt.Sprintf("coingecko api error (%d): %s", e.Status, e.Message)
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	apiErr := &APIError{Status: status}
	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Status.ErrorMessage != "":
			apiErr.Message = body.Status.ErrorMessage
		}
	}
	if apiErr.Message == "" && len(payload) > 0 {
		apiErr.Message = strings.TrimSpace(string(payload))
	}
	return apiErr
}

// IsRateLimited reports whether err came from an exhausted 429 response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}
