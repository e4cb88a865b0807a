package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fleet-core/pkg/logger"
)

const (
	// One exchange account shares one request budget, so issuance is spaced
	// globally rather than per caller.
	minRequestInterval = 100 * time.Millisecond

	maxAttempts = 3
	serverRetry = 500 * time.Millisecond
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client issues signed, throttled, retried requests against Binance futures.
// All methods are safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	throttle   *rate.Limiter

	sleep func(time.Duration) // replaced in tests
}

// NewClient creates a futures REST client.
func NewClient(cfg Config) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		throttle:   rate.NewLimiter(rate.Every(minRequestInterval), 1),
		sleep:      time.Sleep,
	}
}

// ExchangeInfo returns the futures exchange metadata.
func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}
	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	return &info, nil
}

// Account returns the futures account snapshot (assets and margin totals).
func (c *Client) Account(ctx context.Context) (*Account, error) {
	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/account", url.Values{}, true)
	if err != nil {
		return nil, err
	}
	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &acct, nil
}

// PositionRisk returns the position risk view; symbol optional.
func (c *Client) PositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}
	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}
	var positions []PositionRisk
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

// PlaceMarketOrder submits a market order. The ack is validated for its
// orderId marker; callers must still re-query position state before treating
// the fill as real.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*OrderAck, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("binance: non-positive quantity %v", qty)
	}
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("binance: unknown side %q", side)
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(qty))

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}
	var ack OrderAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}
	if ack.OrderID == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadAck, string(body))
	}
	return &ack, nil
}

// CancelAllOrders cancels every open order for a symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	body, err := c.do(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true)
	if err != nil {
		return err
	}
	var ack struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(body, &ack); err != nil || ack.Code != 200 {
		return fmt.Errorf("%w: %s", ErrBadAck, string(body))
	}
	return nil
}

// SetLeverage sets leverage for a symbol, validating the echoed marker.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("leverage", strconv.Itoa(leverage))
	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/leverage", params, true)
	if err != nil {
		return err
	}
	var ack struct {
		Leverage int `json:"leverage"`
	}
	if err := json.Unmarshal(body, &ack); err != nil || ack.Leverage == 0 {
		return fmt.Errorf("%w: %s", ErrBadAck, string(body))
	}
	return nil
}

// TickerPrice returns the last price for a symbol via REST.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("binance: bad price %q for %s", out.Price, symbol)
	}
	return price, nil
}

// Klines fetches recent candles for a symbol.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}
	return parseKlines(body)
}

// Ticker24h returns the 24h rolling stats for all symbols.
func (c *Client) Ticker24h(ctx context.Context) ([]Ticker24h, error) {
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/ticker/24hr", nil, false)
	if err != nil {
		return nil, err
	}
	var tickers []Ticker24h
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("decode 24h tickers: %w", err)
	}
	return tickers, nil
}

// MarginSafety reports account-wide margin balance versus maintenance margin.
// RatioValid is false when no position requires maintenance margin.
func (c *Client) MarginSafety(ctx context.Context) (MarginSafety, error) {
	acct, err := c.Account(ctx)
	if err != nil {
		return MarginSafety{}, err
	}
	ms := MarginSafety{
		MarginBalance: parseFloat(acct.TotalMarginBalance),
		MaintMargin:   parseFloat(acct.TotalMaintMargin),
	}
	if ms.MaintMargin > 0 {
		ms.Ratio = ms.MarginBalance / ms.MaintMargin
		ms.RatioValid = true
	}
	return ms, nil
}

// TotalAndAvailableBalance sums wallet and available balance across the
// stable assets (USDT and USDC) the account trades against. Sizing uses the
// combined wallet balance; availability gates on the combined available
// balance, matching the exchange's cross-margin view.
func (c *Client) TotalAndAvailableBalance(ctx context.Context) (total, available float64, err error) {
	acct, err := c.Account(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, a := range acct.Assets {
		if a.Asset == "USDT" || a.Asset == "USDC" {
			total += parseFloat(a.WalletBalance)
			available += parseFloat(a.AvailableBalance)
		}
	}
	return total, available, nil
}

// do issues one request with throttling, signing, and the retry policy:
// 429 backs off 2^n seconds, 5xx and network faults retry after a short
// sleep, 401/451 abort immediately. Errors are returned, never panicked.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		body, retry, err := c.doOnce(ctx, method, path, params, signed, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("binance: %s %s failed after %d attempts: %w", method, path, maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, signed bool, attempt int) (body []byte, retry bool, err error) {
	// Timestamp and signature are rebuilt per attempt so retries stay fresh.
	encoded := ""
	if params != nil {
		q := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		if signed {
			q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
			q.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
			q.Set("signature", sign(q.Encode(), c.cfg.APISecret))
		}
		encoded = q.Encode()
	}

	endpoint := c.baseURL + path
	var req *http.Request
	switch method {
	case http.MethodGet, http.MethodDelete:
		if encoded != "" {
			endpoint += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, false, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.sleep(serverRetry)
		return nil, true, fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)

	switch {
	case res.StatusCode == http.StatusOK:
		return raw, false, nil
	case res.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("%w: %s", ErrAuth, string(raw))
	case res.StatusCode == http.StatusUnavailableForLegalReasons:
		return nil, false, fmt.Errorf("%w: %s", ErrBlocked, string(raw))
	case res.StatusCode == http.StatusTooManyRequests:
		wait := time.Duration(1<<(attempt+1)) * time.Second
		logger.Warnf("binance: 429 on %s %s, backing off %s", method, path, wait)
		c.sleep(wait)
		return nil, true, fmt.Errorf("%w: %s", ErrRateLimited, string(raw))
	case res.StatusCode >= 500:
		c.sleep(serverRetry)
		return nil, true, &APIError{Status: res.StatusCode, Body: string(raw)}
	default:
		// Remaining 4xx are exchange-side validation; retrying cannot help.
		return nil, false, &APIError{Status: res.StatusCode, Body: string(raw)}
	}
}

func sign(query, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
