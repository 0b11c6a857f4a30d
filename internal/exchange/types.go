package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"futures-orderbot/internal/strategy"
)

// Gateway 抽象合约交易所的下单、查单与撤单能力。
type Gateway interface {
	PlaceOrder(ctx context.Context, req strategy.OrderRequest, clientOrderID string) (PlaceResult, error)
	GetOrder(ctx context.Context, symbol, orderID string) (OrderRecord, error)
	// ListOrders 按时间升序返回最近 limit 笔委托，最新的在最后。
	ListOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (CancelResult, error)
}

// PlaceResult 为下单成功后的回执。
type PlaceResult struct {
	OrderID       string
	ClientOrderID string
	Status        string
}

// CancelResult 为撤单回执。
type CancelResult struct {
	OrderID string
	Status  string
}

// OrderRecord 为交易所侧的委托快照。
type OrderRecord struct {
	Symbol        string          `json:"symbol"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Side          string          `json:"side"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	OrigQty       decimal.Decimal `json:"orig_qty"`
	ExecutedQty   decimal.Decimal `json:"executed_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	ReduceOnly    bool            `json:"reduce_only"`
	UpdateTime    time.Time       `json:"update_time"`
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func recentTail(records []OrderRecord, limit int) []OrderRecord {
	if limit > 0 && len(records) > limit {
		return records[len(records)-limit:]
	}
	return records
}
