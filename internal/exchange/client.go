package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-orderbot/internal/config"
	"futures-orderbot/internal/strategy"
)

var quoteAssets = []string{"USDT", "USDC", "BUSD"}

type ccxtOrderClient interface {
	CreateOrder(symbol string, typeVar string, side string, amount float64, options ...ccxt.CreateOrderOptions) (ccxt.Order, error)
	FetchOrder(id string, options ...ccxt.FetchOrderOptions) (ccxt.Order, error)
	FetchOrders(options ...ccxt.FetchOrdersOptions) ([]ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
}

// Client 通过 ccxt 访问 Binance USDⓈ-M，查询类调用带重试，下单与撤单只尝试一次。
type Client struct {
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	exchange    ccxtOrderClient
	loadMarkets func() error

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Gateway = (*Client)(nil)

// NewClient 构造 ccxt 网关。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.HTTPTimeout > 0 {
		userConfig["timeout"] = cfg.HTTPTimeout.Milliseconds()
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseTestnet {
		ex.SetSandboxMode(true)
	}

	loadMarkets := func() error {
		_, err := ex.LoadMarkets()
		return err
	}
	return newClientWith(cfg, ex, loadMarkets, logger), nil
}

func newClientWith(cfg config.ExchangeConfig, ex ccxtOrderClient, loadMarkets func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loadMarkets == nil {
		loadMarkets = func() error { return nil }
	}
	return &Client{
		cfg:         cfg,
		logger:      logger,
		exchange:    ex,
		loadMarkets: loadMarkets,
	}
}

// PlaceOrder 提交单笔委托。
func (c *Client) PlaceOrder(ctx context.Context, req strategy.OrderRequest, clientOrderID string) (PlaceResult, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return PlaceResult{}, c.normalize(err)
	}
	if err := ctx.Err(); err != nil {
		return PlaceResult{}, NewTransportError(err)
	}

	params := map[string]interface{}{}
	if clientOrderID != "" {
		params["newClientOrderId"] = clientOrderID
	}

	var (
		orderType string
		opts      []ccxt.CreateOrderOptions
	)
	switch req.Kind {
	case strategy.KindMarket:
		orderType = "market"
	case strategy.KindLimit:
		orderType = "limit"
		opts = append(opts, ccxt.WithCreateOrderPrice(decimalToFloat(req.Price)))
		params["timeInForce"] = string(req.TimeInForce)
	case strategy.KindStopMarket:
		orderType = "market"
		params["triggerPrice"] = decimalToFloat(req.StopPrice)
	default:
		return PlaceResult{}, NewExchangeError(0, fmt.Sprintf("unsupported order kind %q", req.Kind), nil)
	}
	opts = append(opts, ccxt.WithCreateOrderParams(params))

	order, err := c.exchange.CreateOrder(unifiedSymbol(req.Symbol), orderType, strings.ToLower(string(req.Side)), decimalToFloat(req.Quantity), opts...)
	if err != nil {
		return PlaceResult{}, c.normalize(err)
	}

	return PlaceResult{
		OrderID:       derefString(order.Id),
		ClientOrderID: derefString(order.ClientOrderId),
		Status:        strings.ToUpper(derefString(order.Status)),
	}, nil
}

// GetOrder 查询单笔委托。
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (OrderRecord, error) {
	var raw ccxt.Order
	err := c.callWithRetry(ctx, "fetch_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		order, err := c.exchange.FetchOrder(orderID, ccxt.WithFetchOrderSymbol(unifiedSymbol(symbol)))
		if err != nil {
			return err
		}
		raw = order
		return nil
	})
	if err != nil {
		return OrderRecord{}, c.normalize(err)
	}
	return convertCCXTOrder(symbol, raw), nil
}

// ListOrders 返回最近 limit 笔委托。
func (c *Client) ListOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		orders, err := c.exchange.FetchOrders(
			ccxt.WithFetchOrdersSymbol(unifiedSymbol(symbol)),
			ccxt.WithFetchOrdersLimit(int64(limit)),
		)
		if err != nil {
			return err
		}
		raw = orders
		return nil
	})
	if err != nil {
		return nil, c.normalize(err)
	}

	records := make([]OrderRecord, 0, len(raw))
	for _, order := range raw {
		records = append(records, convertCCXTOrder(symbol, order))
	}
	return recentTail(records, limit), nil
}

// CancelOrder 撤销委托。
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (CancelResult, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return CancelResult{}, c.normalize(err)
	}
	order, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(unifiedSymbol(symbol)))
	if err != nil {
		return CancelResult{}, c.normalize(err)
	}
	id := derefString(order.Id)
	if id == "" {
		id = orderID
	}
	return CancelResult{OrderID: id, Status: strings.ToUpper(derefString(order.Status))}, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", c.loadMarkets)
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if !c.retryable(err) || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRetryable(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// normalize 将 ccxt 错误映射到网关错误。
func (c *Client) normalize(err error) error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if isCCXTNetworkError(ccxtErr) {
			return NewTransportError(err)
		}
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return NewExchangeError(0, message, fmt.Errorf("%w: %s", ErrMaintenance, message))
		}
		return NewExchangeError(0, strings.TrimSpace(ccxtErr.Message), err)
	}

	return NewTransportError(err)
}

func convertCCXTOrder(symbol string, order ccxt.Order) OrderRecord {
	record := OrderRecord{
		Symbol:        symbol,
		OrderID:       derefString(order.Id),
		ClientOrderID: derefString(order.ClientOrderId),
		Side:          strings.ToUpper(derefString(order.Side)),
		Kind:          strings.ToUpper(derefString(order.Type)),
		Status:        strings.ToUpper(derefString(order.Status)),
		OrigQty:       floatToDecimal(order.Amount),
		ExecutedQty:   floatToDecimal(order.Filled),
		AvgPrice:      floatToDecimal(order.Average),
		Price:         floatToDecimal(order.Price),
		StopPrice:     floatToDecimal(order.TriggerPrice),
	}
	if order.ReduceOnly != nil {
		record.ReduceOnly = *order.ReduceOnly
	}
	if order.Timestamp != nil {
		record.UpdateTime = time.UnixMilli(*order.Timestamp).UTC()
	}
	return record
}

// unifiedSymbol 将 BTCUSDT 转为 ccxt 统一格式 BTC/USDT:USDT。
func unifiedSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, "/") {
		return symbol
	}
	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			base := strings.TrimSuffix(symbol, quote)
			return fmt.Sprintf("%s/%s:%s", base, quote, quote)
		}
	}
	return symbol
}

func decimalToFloat(value decimal.Decimal) float64 {
	f, _ := value.Float64()
	return f
}

func floatToDecimal(value *float64) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*value)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
