package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"futures-orderbot/internal/config"
	"futures-orderbot/internal/strategy"
)

type mockCCXT struct {
	mock.Mock
}

func (m *mockCCXT) CreateOrder(symbol string, typeVar string, side string, amount float64, options ...ccxt.CreateOrderOptions) (ccxt.Order, error) {
	args := m.Called(symbol, typeVar, side, amount)
	return args.Get(0).(ccxt.Order), args.Error(1)
}

func (m *mockCCXT) FetchOrder(id string, options ...ccxt.FetchOrderOptions) (ccxt.Order, error) {
	args := m.Called(id)
	return args.Get(0).(ccxt.Order), args.Error(1)
}

func (m *mockCCXT) FetchOrders(options ...ccxt.FetchOrdersOptions) ([]ccxt.Order, error) {
	args := m.Called()
	return args.Get(0).([]ccxt.Order), args.Error(1)
}

func (m *mockCCXT) CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error) {
	args := m.Called(id)
	return args.Get(0).(ccxt.Order), args.Error(1)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 3, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestCCXTClient_PlaceOrderUsesUnifiedSymbol(t *testing.T) {
	ex := new(mockCCXT)
	ex.On("CreateOrder", "BTC/USDT:USDT", "limit", "sell", 1.5).
		Return(ccxt.Order{Id: strPtr("77"), Status: strPtr("open")}, nil).Once()

	loads := 0
	client := newClientWith(config.ExchangeConfig{Retry: testRetryConfig()}, ex, func() error {
		loads++
		return nil
	}, nil)

	res, err := client.PlaceOrder(context.Background(), strategy.OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        strategy.SideSell,
		Kind:        strategy.KindLimit,
		Quantity:    decimal.RequireFromString("1.5"),
		Price:       decimal.RequireFromString("110"),
		TimeInForce: strategy.TimeInForceGTC,
	}, "leg-1")
	require.NoError(t, err)
	assert.Equal(t, "77", res.OrderID)
	assert.Equal(t, "OPEN", res.Status)
	assert.Equal(t, 1, loads)
	ex.AssertExpectations(t)
}

func TestCCXTClient_PlaceOrderDoesNotRetry(t *testing.T) {
	ex := new(mockCCXT)
	netErr := &ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "connection reset"}
	ex.On("CreateOrder", "ETH/USDT:USDT", "market", "buy", 2.0).Return(ccxt.Order{}, netErr).Once()

	client := newClientWith(config.ExchangeConfig{Retry: testRetryConfig()}, ex, nil, nil)
	_, err := client.PlaceOrder(context.Background(), strategy.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     strategy.SideBuy,
		Kind:     strategy.KindMarket,
		Quantity: decimal.NewFromInt(2),
	}, "")
	require.Error(t, err)
	assert.Equal(t, KindTransport, Classify(err))
	ex.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestCCXTClient_GetOrderRetriesNetworkErrors(t *testing.T) {
	ex := new(mockCCXT)
	netErr := &ccxt.Error{Type: ccxt.RequestTimeoutErrType, Message: "timeout"}
	ex.On("FetchOrder", "9").Return(ccxt.Order{}, netErr).Once()
	ex.On("FetchOrder", "9").Return(ccxt.Order{
		Id:      strPtr("9"),
		Side:    strPtr("buy"),
		Type:    strPtr("limit"),
		Status:  strPtr("closed"),
		Amount:  floatPtr(1),
		Filled:  floatPtr(1),
		Average: floatPtr(101.25),
	}, nil).Once()

	client := newClientWith(config.ExchangeConfig{Retry: testRetryConfig()}, ex, nil, nil)
	record, err := client.GetOrder(context.Background(), "BTCUSDT", "9")
	require.NoError(t, err)
	assert.Equal(t, "BUY", record.Side)
	assert.Equal(t, "CLOSED", record.Status)
	assert.True(t, record.AvgPrice.Equal(decimal.RequireFromString("101.25")))
	ex.AssertNumberOfCalls(t, "FetchOrder", 2)
}

func TestCCXTClient_BusinessErrorsAreExchangeKind(t *testing.T) {
	ex := new(mockCCXT)
	ex.On("CancelOrder", "5").Return(ccxt.Order{}, &ccxt.Error{Type: ccxt.OrderNotFoundErrType, Message: "Unknown order sent."}).Once()

	client := newClientWith(config.ExchangeConfig{Retry: testRetryConfig()}, ex, nil, nil)
	_, err := client.CancelOrder(context.Background(), "BTCUSDT", "5")
	require.Error(t, err)
	assert.Equal(t, KindExchange, Classify(err))
}

func TestCCXTClient_MarketLoadFailureIsSurfaced(t *testing.T) {
	ex := new(mockCCXT)
	client := newClientWith(config.ExchangeConfig{Retry: testRetryConfig()}, ex, func() error {
		return errors.New("dns failure")
	}, nil)

	_, err := client.PlaceOrder(context.Background(), strategy.OrderRequest{
		Symbol: "BTCUSDT", Side: strategy.SideBuy, Kind: strategy.KindMarket, Quantity: decimal.NewFromInt(1),
	}, "")
	require.Error(t, err)
	assert.Equal(t, KindTransport, Classify(err))
	ex.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnifiedSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTC/USDT:USDT",
		"ethusdc":       "ETH/USDC:USDC",
		"BTC/USDT:USDT": "BTC/USDT:USDT",
		"USDT":          "USDT",
	}
	for in, want := range cases {
		assert.Equal(t, want, unifiedSymbol(in), in)
	}
}
