package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rayvtoll/scalp-assist/internal/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:    resty.New().SetBaseURL(server.URL),
		apiKey:    "test_api_key",
		secretKey: "test_secret_key",
		logger:    zap.NewNop(),
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		retryBase: time.Millisecond,
	}
	return c, server
}

func TestGetTicker(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","lastPrice":"42191","bid1Price":"42190.5","ask1Price":"42191.5"}
		]}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	ticker, err := c.GetTicker(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.Equal(t, 42191.0, ticker.Last)
	assert.Equal(t, 42190.5, ticker.Bid)
	assert.Equal(t, 42191.5, ticker.Ask)
}

func TestCreateOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v5/order/create", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BTCUSDT", body["symbol"])
		assert.Equal(t, "Sell", body["side"])
		assert.Equal(t, "Market", body["orderType"])
		assert.Equal(t, "0.006", body["qty"])
		assert.Equal(t, "42180.0", body["triggerPrice"])
		assert.Equal(t, float64(triggerDirectionFall), body["triggerDirection"])
		assert.Equal(t, "42285.5", body["stopLoss"])
		assert.Equal(t, "41969.0", body["takeProfit"])
		assert.Equal(t, float64(2), body["positionIdx"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"orderId":"abc-123"}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	id, err := c.CreateOrder(context.Background(), venue.OrderRequest{
		Instrument:   "BTCUSDT",
		Direction:    venue.DirectionShort,
		Size:         0.006,
		TriggerPrice: 42180,
		StopLoss:     42285.5,
		TakeProfit:   41969,
	})

	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestCreateOrder_Rejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":110007,"retMsg":"insufficient available balance","result":{}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	_, err := c.CreateOrder(context.Background(), venue.OrderRequest{
		Instrument: "BTCUSDT",
		Direction:  venue.DirectionLong,
		Size:       0.002,
	})

	require.Error(t, err)
	assert.False(t, venue.IsTransient(err))
	assert.Contains(t, err.Error(), "110007")
}

func TestRetCodeRateLimitIsTransient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":10006,"retMsg":"too many visits","result":{}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	err := c.EditOrder(context.Background(), venue.OrderUpdate{
		Instrument: "BTCUSDT",
		OrderID:    "abc-123",
	})

	require.Error(t, err)
	assert.True(t, venue.IsTransient(err))
}

func TestFetchOrderStatus(t *testing.T) {
	testCases := []struct {
		name     string
		venueRaw string
		expected venue.OrderStatus
	}{
		{"Untriggered maps to pending", "Untriggered", venue.StatusPending},
		{"New maps to open", "New", venue.StatusOpen},
		{"Triggered maps to open", "Triggered", venue.StatusOpen},
		{"Filled maps to filled", "Filled", venue.StatusFilled},
		{"Cancelled maps to canceled", "Cancelled", venue.StatusCanceled},
		{"Deactivated maps to canceled", "Deactivated", venue.StatusCanceled},
		{"Rejected maps to rejected", "Rejected", venue.StatusRejected},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v5/order/realtime", r.URL.Path)
				assert.Equal(t, "abc-123", r.URL.Query().Get("orderId"))
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"orderStatus":%q}]}}`, tc.venueRaw)
			})

			c, server := setupTestServer(handler)
			defer server.Close()

			status, err := c.FetchOrderStatus(context.Background(), "BTCUSDT", "abc-123")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status)
		})
	}
}

func TestFetchOrderStatus_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	// An order the venue no longer lists is a legitimate status, not an error.
	status, err := c.FetchOrderStatus(context.Background(), "BTCUSDT", "gone")
	require.NoError(t, err)
	assert.Equal(t, venue.StatusNone, status)
}

func TestServerErrorRetriesThenTransient(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"retCode":10016,"retMsg":"server error"}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	err := c.CancelAllOrders(context.Background(), "BTCUSDT")

	require.Error(t, err)
	assert.True(t, venue.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestCancelAllOrders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/order/cancel-all", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BTCUSDT", body["symbol"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	assert.NoError(t, c.CancelAllOrders(context.Background(), "BTCUSDT"))
}

func TestFetchBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/account/wallet-balance", r.URL.Path)
		assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"coin":[
			{"coin":"USDT","walletBalance":"1000.5","availableToWithdraw":"950.25"}
		]}]}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	balances, err := c.FetchBalance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, venue.Balance{Free: 950.25, Total: 1000.5}, balances["USDT"])
}

func TestFetchBalance_MalformedNumber(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"coin":[
			{"coin":"USDT","walletBalance":"not-a-number","availableToWithdraw":"950.25"}
		]}]}}`)
	})

	c, server := setupTestServer(handler)
	defer server.Close()
	core, logs := observer.New(zap.WarnLevel)
	c.logger = zap.New(core)

	balances, err := c.FetchBalance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, venue.Balance{Free: 950.25, Total: 0}, balances["USDT"])
	assert.Equal(t, 1, logs.FilterMessage("Malformed number from venue").Len())
}
