package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-orderbot/internal/config"
	"futures-orderbot/internal/strategy"
)

type fakeFuturesAPI struct {
	mu       sync.Mutex
	received []map[string]string
}

func (f *fakeFuturesAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		params := map[string]string{}
		for key := range r.Form {
			params[key] = r.Form.Get(key)
		}
		f.mu.Lock()
		f.received = append(f.received, params)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			switch params["symbol"] {
			case "BADUSDT":
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			case "GARBLEDUSDT":
				fmt.Fprint(w, `{"orderId":`)
			default:
				fmt.Fprintf(w, `{"orderId":4242,"symbol":%q,"status":"NEW","clientOrderId":%q}`, params["symbol"], params["newClientOrderId"])
			}
		case http.MethodGet:
			fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":4242,"side":"SELL","type":"LIMIT","status":"PARTIALLY_FILLED","origQty":"1","executedQty":"0.4","avgPrice":"110.5","price":"110","reduceOnly":true,"updateTime":1700000000000}`)
		case http.MethodDelete:
			fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":4242,"status":"CANCELED"}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/fapi/v1/allOrders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","orderId":3,"side":"BUY","type":"MARKET","status":"FILLED","time":3000,"updateTime":3000},
			{"symbol":"BTCUSDT","orderId":1,"side":"BUY","type":"MARKET","status":"FILLED","time":1000,"updateTime":1000},
			{"symbol":"BTCUSDT","orderId":2,"side":"SELL","type":"LIMIT","status":"NEW","time":2000,"updateTime":2000}
		]`)
	})
	return mux
}

func (f *fakeFuturesAPI) last() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
}

func newTestBinanceGateway(t *testing.T) (*BinanceGateway, *fakeFuturesAPI) {
	api := &fakeFuturesAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	gw, err := NewBinanceGateway(config.ExchangeConfig{
		APIKey:      "key",
		APISecret:   "secret",
		BaseURL:     srv.URL,
		HTTPTimeout: 2 * time.Second,
	}, nil)
	require.NoError(t, err)
	return gw, api
}

func TestBinanceGateway_PlaceOrderMapsKinds(t *testing.T) {
	gw, api := newTestBinanceGateway(t)
	ctx := context.Background()

	limit := strategy.OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        strategy.SideSell,
		Kind:        strategy.KindLimit,
		Quantity:    decimal.RequireFromString("1"),
		Price:       decimal.RequireFromString("110"),
		TimeInForce: strategy.TimeInForceGTC,
	}
	res, err := gw.PlaceOrder(ctx, limit, "leg-1")
	require.NoError(t, err)
	assert.Equal(t, "4242", res.OrderID)
	assert.Equal(t, "leg-1", res.ClientOrderID)

	sent := api.last()
	assert.Equal(t, "LIMIT", sent["type"])
	assert.Equal(t, "110", sent["price"])
	assert.Equal(t, "GTC", sent["timeInForce"])

	stop := strategy.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       strategy.SideSell,
		Kind:       strategy.KindStopMarket,
		Quantity:   decimal.RequireFromString("1"),
		StopPrice:  decimal.RequireFromString("90"),
		LimitPrice: decimal.RequireFromString("89"),
	}
	_, err = gw.PlaceOrder(ctx, stop, "leg-2")
	require.NoError(t, err)

	sent = api.last()
	assert.Equal(t, "STOP_MARKET", sent["type"])
	assert.Equal(t, "90", sent["stopPrice"])
	assert.Empty(t, sent["price"], "limit price must not be transmitted")
}

func TestBinanceGateway_ClassifiesErrors(t *testing.T) {
	gw, _ := newTestBinanceGateway(t)
	ctx := context.Background()

	req := strategy.OrderRequest{Side: strategy.SideBuy, Kind: strategy.KindMarket, Quantity: decimal.NewFromInt(1)}

	req.Symbol = "BADUSDT"
	_, err := gw.PlaceOrder(ctx, req, "")
	require.Error(t, err)
	assert.Equal(t, KindExchange, Classify(err))
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, int64(-1121), gwErr.Code)
	assert.Equal(t, "Invalid symbol.", gwErr.Message)

	req.Symbol = "GARBLEDUSDT"
	_, err = gw.PlaceOrder(ctx, req, "")
	require.Error(t, err)
	assert.Equal(t, KindTransport, Classify(err))
}

func TestBinanceGateway_QueryAndCancel(t *testing.T) {
	gw, _ := newTestBinanceGateway(t)
	ctx := context.Background()

	record, err := gw.GetOrder(ctx, "BTCUSDT", "4242")
	require.NoError(t, err)
	assert.Equal(t, "PARTIALLY_FILLED", record.Status)
	assert.True(t, record.ExecutedQty.Equal(decimal.RequireFromString("0.4")))
	assert.True(t, record.AvgPrice.Equal(decimal.RequireFromString("110.5")))
	assert.True(t, record.ReduceOnly)
	assert.Equal(t, int64(1700000000000), record.UpdateTime.UnixMilli())

	records, err := gw.ListOrders(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].OrderID)
	assert.Equal(t, "3", records[1].OrderID, "most recent order must be last")

	cancel, err := gw.CancelOrder(ctx, "BTCUSDT", "4242")
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", cancel.Status)

	_, err = gw.GetOrder(ctx, "BTCUSDT", "not-a-number")
	assert.ErrorIs(t, err, ErrInvalidOrderID)
}

func TestNewBinanceGateway_Endpoints(t *testing.T) {
	gw, err := NewBinanceGateway(config.ExchangeConfig{APIKey: "k", APISecret: "s", UseTestnet: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.TestnetBaseURL, gw.client.BaseURL)

	gw, err = NewBinanceGateway(config.ExchangeConfig{APIKey: "k", APISecret: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultBinanceBaseURL, gw.client.BaseURL)

	_, err = NewBinanceGateway(config.ExchangeConfig{}, nil)
	assert.Error(t, err)
}
