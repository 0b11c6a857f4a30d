package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"futures-orderbot/internal/config"
	"futures-orderbot/internal/strategy"
)

const (
	defaultBinanceBaseURL = "https://fapi.binance.com"
	maxListOrdersLimit    = 1000
)

// BinanceGateway 基于 go-binance SDK 访问 USDⓈ-M 合约。
type BinanceGateway struct {
	client *futures.Client
	logger *zap.Logger
}

var _ Gateway = (*BinanceGateway)(nil)

// NewBinanceGateway 创建合约网关，不修改 SDK 的全局测试网开关。
func NewBinanceGateway(cfg config.ExchangeConfig, logger *zap.Logger) (*BinanceGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("exchange: binance 网关缺少 api_key/api_secret")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
		if cfg.UseTestnet {
			baseURL = config.TestnetBaseURL
		}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	client.BaseURL = strings.TrimRight(baseURL, "/")
	client.HTTPClient = &http.Client{Timeout: timeout}

	logger.Info("Binance 合约网关已初始化",
		zap.String("base_url", client.BaseURL),
		zap.Bool("testnet", cfg.UseTestnet),
	)

	return &BinanceGateway{client: client, logger: logger}, nil
}

// PlaceOrder 提交单笔委托。
func (g *BinanceGateway) PlaceOrder(ctx context.Context, req strategy.OrderRequest, clientOrderID string) (PlaceResult, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(req.Quantity.String())

	switch req.Kind {
	case strategy.KindMarket:
		svc.Type(futures.OrderTypeMarket)
	case strategy.KindLimit:
		svc.Type(futures.OrderTypeLimit).
			Price(req.Price.String()).
			TimeInForce(futures.TimeInForceType(req.TimeInForce))
	case strategy.KindStopMarket:
		svc.Type(futures.OrderTypeStopMarket).
			StopPrice(req.StopPrice.String())
	default:
		return PlaceResult{}, NewExchangeError(0, fmt.Sprintf("unsupported order kind %q", req.Kind), nil)
	}
	if clientOrderID != "" {
		svc.NewClientOrderID(clientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return PlaceResult{}, classifyBinanceError(err)
	}

	return PlaceResult{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Status:        string(resp.Status),
	}, nil
}

// GetOrder 查询单笔委托。
func (g *BinanceGateway) GetOrder(ctx context.Context, symbol, orderID string) (OrderRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return OrderRecord{}, err
	}

	order, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return OrderRecord{}, classifyBinanceError(err)
	}
	return convertBinanceOrder(order), nil
}

// ListOrders 返回最近 limit 笔委托。
func (g *BinanceGateway) ListOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > maxListOrdersLimit {
		limit = maxListOrdersLimit
	}

	orders, err := g.client.NewListOrdersService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Time < orders[j].Time
	})

	records := make([]OrderRecord, 0, len(orders))
	for _, order := range orders {
		if order == nil {
			continue
		}
		records = append(records, convertBinanceOrder(order))
	}
	return recentTail(records, limit), nil
}

// CancelOrder 撤销委托。
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, orderID string) (CancelResult, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return CancelResult{}, err
	}

	resp, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return CancelResult{}, classifyBinanceError(err)
	}
	return CancelResult{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  string(resp.Status),
	}, nil
}

func convertBinanceOrder(order *futures.Order) OrderRecord {
	return OrderRecord{
		Symbol:        order.Symbol,
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Side:          string(order.Side),
		Kind:          string(order.Type),
		Status:        string(order.Status),
		OrigQty:       parseDecimal(order.OrigQuantity),
		ExecutedQty:   parseDecimal(order.ExecutedQuantity),
		AvgPrice:      parseDecimal(order.AvgPrice),
		Price:         parseDecimal(order.Price),
		StopPrice:     parseDecimal(order.StopPrice),
		ReduceOnly:    order.ReduceOnly,
		UpdateTime:    time.UnixMilli(order.UpdateTime).UTC(),
	}
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	return id, nil
}

func classifyBinanceError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return NewExchangeError(apiErr.Code, apiErr.Message, err)
	}
	return NewTransportError(err)
}
