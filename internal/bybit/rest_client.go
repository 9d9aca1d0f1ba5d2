package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rayvtoll/scalp-assist/internal/config"
	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"
	recvWindow     = "5000" // How long a request is valid in milliseconds

	categoryLinear = "linear"
	accountUnified = "UNIFIED"

	triggerDirectionRise = 1
	triggerDirectionFall = 2
)

// Client is a venue.Venue implementation on the Bybit v5 REST API.
type Client struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	retryBase time.Duration
}

// ensure Client implements the venue contract
var _ venue.Venue = (*Client)(nil)

// NewClient creates a new Bybit v5 REST API client.
func NewClient(cfg *config.Bybit, logger *zap.Logger) *Client {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Bybit Testnet")
	} else {
		url = baseURL
		logger.Info("Using Bybit Production API")
	}

	client := resty.New().SetBaseURL(url)

	// Client-side limiter; rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
		retryBase: time.Second,
	}
}

// sign creates the HMAC-SHA256 signature over timestamp+key+window+payload.
func (c *Client) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) signedRequest(payload string) *resty.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return c.client.R().
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", ts).
		SetHeader("X-BAPI-RECV-WINDOW", recvWindow).
		SetHeader("X-BAPI-SIGN", c.sign(ts+c.apiKey+recvWindow+payload))
}

// baseResponse is the envelope every v5 endpoint returns.
type baseResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// retCodeError maps a non-zero retCode onto the transient/rejection split.
// 10006 is rate limiting, 10016 an internal server error; everything else
// is a definitive refusal of the request.
func retCodeError(op string, resp *baseResponse) error {
	if resp.RetCode == 0 {
		return nil
	}
	err := fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg)
	if resp.RetCode == 10006 || resp.RetCode == 10016 {
		return venue.NewTransient(op, err)
	}
	return venue.NewRejection(op, err)
}

// doRequest executes the request with rate limiting and bounded retries for
// throttling, 5xx and network failures.
func (c *Client) doRequest(ctx context.Context, op, method, path string, req *resty.Request) (*baseResponse, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	req.SetResult(&baseResponse{})

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, venue.NewTransient(op, fmt.Errorf("rate limiter wait failed: %w", err))
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			result := resp.Result().(*baseResponse)
			if rcErr := retCodeError(op, result); rcErr != nil {
				return nil, rcErr
			}
			return result, nil
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, aerr := strconv.Atoi(resp.Header().Get("Retry-After")); aerr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, venue.NewRejection(op,
				fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String()))
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryBase
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, venue.NewTransient(op, ctx.Err())
		}
	}

	return nil, venue.NewTransient(op, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err))
}

// tickerInfo is one entry of the market tickers response.
type tickerInfo struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

// Ticker holds the parsed top of book for an instrument.
type Ticker struct {
	Last float64
	Bid  float64
	Ask  float64
}

// GetTicker fetches the latest top of book for the instrument. Public
// endpoint, no signature required.
func (c *Client) GetTicker(ctx context.Context, instrument string) (*Ticker, error) {
	const op = "tickers"
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", instrument)

	req := c.client.R().SetQueryParamsFromValues(params)
	resp, err := c.doRequest(ctx, op, "GET", "/v5/market/tickers", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	var result struct {
		List []tickerInfo `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}
	if len(result.List) == 0 {
		return nil, venue.NewRejection(op, fmt.Errorf("no ticker for %s", instrument))
	}

	t := result.List[0]
	return &Ticker{
		Last: c.parseFloat("lastPrice", t.LastPrice),
		Bid:  c.parseFloat("bid1Price", t.Bid1Price),
		Ask:  c.parseFloat("ask1Price", t.Ask1Price),
	}, nil
}

// FetchBalance returns the unified-account balance per currency.
func (c *Client) FetchBalance(ctx context.Context) (map[string]venue.Balance, error) {
	const op = "balance"
	params := url.Values{}
	params.Set("accountType", accountUnified)
	query := params.Encode()

	req := c.signedRequest(query).SetQueryParamsFromValues(params)
	resp, err := c.doRequest(ctx, op, "GET", "/v5/account/wallet-balance", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode wallet balance: %w", err)
	}

	balances := make(map[string]venue.Balance)
	for _, acct := range result.List {
		for _, coin := range acct.Coin {
			balances[coin.Coin] = venue.Balance{
				Free:  c.parseFloat("availableToWithdraw", coin.AvailableToWithdraw),
				Total: c.parseFloat("walletBalance", coin.WalletBalance),
			}
		}
	}
	return balances, nil
}

// parseFloat tolerates an empty field but flags a malformed one; either
// way the value reads as zero.
func (c *Client) parseFloat(field, v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.logger.Warn("Malformed number from venue",
			zap.String("field", field),
			zap.String("value", v))
		return 0
	}
	return f
}

// CreateOrder places a contingent market order with attached stop-loss and
// take-profit trigger prices.
func (c *Client) CreateOrder(ctx context.Context, order venue.OrderRequest) (string, error) {
	const op = "create"

	side := "Buy"
	triggerDirection := triggerDirectionRise
	positionIdx := 1
	if order.Direction == venue.DirectionShort {
		side = "Sell"
		triggerDirection = triggerDirectionFall
		positionIdx = 2
	}

	body := map[string]any{
		"category":         categoryLinear,
		"symbol":           order.Instrument,
		"side":             side,
		"orderType":        "Market",
		"qty":              formatSize(order.Size),
		"triggerPrice":     formatPrice(order.TriggerPrice),
		"triggerDirection": triggerDirection,
		"triggerBy":        "LastPrice",
		"stopLoss":         formatPrice(order.StopLoss),
		"takeProfit":       formatPrice(order.TakeProfit),
		"slTriggerBy":      "LastPrice",
		"tpTriggerBy":      "LastPrice",
		"positionIdx":      positionIdx,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}

	req := c.signedRequest(string(payload)).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	resp, err := c.doRequest(ctx, op, "POST", "/v5/order/create", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", order.Instrument),
		)
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	c.logger.Info("Successfully created order", zap.String("order_id", result.OrderID))
	return result.OrderID, nil
}

// EditOrder amends size, stop-loss and take-profit of a live order.
func (c *Client) EditOrder(ctx context.Context, upd venue.OrderUpdate) error {
	const op = "amend"

	body := map[string]any{
		"category":   categoryLinear,
		"symbol":     upd.Instrument,
		"orderId":    upd.OrderID,
		"qty":        formatSize(upd.Size),
		"stopLoss":   formatPrice(upd.StopLoss),
		"takeProfit": formatPrice(upd.TakeProfit),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode amend: %w", err)
	}

	req := c.signedRequest(string(payload)).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	if _, err := c.doRequest(ctx, op, "POST", "/v5/order/amend", req); err != nil {
		return fmt.Errorf("failed to amend order %s: %w", upd.OrderID, err)
	}
	return nil
}

// orderStatusMap translates Bybit v5 order states onto the venue statuses.
var orderStatusMap = map[string]venue.OrderStatus{
	"Untriggered":             venue.StatusPending,
	"New":                     venue.StatusOpen,
	"Triggered":               venue.StatusOpen,
	"PartiallyFilled":         venue.StatusOpen,
	"Filled":                  venue.StatusFilled,
	"Cancelled":               venue.StatusCanceled,
	"PartiallyFilledCanceled": venue.StatusCanceled,
	"Deactivated":             venue.StatusCanceled,
	"Rejected":                venue.StatusRejected,
}

// FetchOrderStatus reports the venue-side status of the order. An order the
// realtime endpoint no longer lists is StatusNone, not an error.
func (c *Client) FetchOrderStatus(ctx context.Context, instrument, orderID string) (venue.OrderStatus, error) {
	const op = "status"
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", instrument)
	params.Set("orderId", orderID)
	query := params.Encode()

	req := c.signedRequest(query).SetQueryParamsFromValues(params)
	resp, err := c.doRequest(ctx, op, "GET", "/v5/order/realtime", req)
	if err != nil {
		return venue.StatusNone, fmt.Errorf("failed to get order status: %w", err)
	}

	var result struct {
		List []struct {
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return venue.StatusNone, fmt.Errorf("failed to decode order status: %w", err)
	}
	if len(result.List) == 0 {
		return venue.StatusNone, nil
	}

	status, ok := orderStatusMap[result.List[0].OrderStatus]
	if !ok {
		c.logger.Warn("Unknown order status from venue",
			zap.String("status", result.List[0].OrderStatus))
		return venue.StatusNone, nil
	}
	return status, nil
}

// CancelAllOrders cancels every open order on the instrument.
func (c *Client) CancelAllOrders(ctx context.Context, instrument string) error {
	const op = "cancel-all"

	body := map[string]any{
		"category": categoryLinear,
		"symbol":   instrument,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode cancel-all: %w", err)
	}

	req := c.signedRequest(string(payload)).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	if _, err := c.doRequest(ctx, op, "POST", "/v5/order/cancel-all", req); err != nil {
		return fmt.Errorf("failed to cancel orders for %s: %w", instrument, err)
	}
	c.logger.Info("Cancelled all orders", zap.String("symbol", instrument))
	return nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
