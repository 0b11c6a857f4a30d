package exchange

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"futures-orderbot/internal/strategy"
)

const (
	codeUnknownOrder   = -2011
	codeOrderNotExists = -2013
)

// PaperGateway 在内存中模拟交易所，用于 dry-run 与测试。
// 市价单立即成交，限价与条件单保持 NEW 直到撤单。
type PaperGateway struct {
	mu     sync.Mutex
	nextID int64
	orders []OrderRecord
	logger *zap.Logger
	now    func() time.Time

	// Reject 不为空时在下单前调用，返回的错误原样交给调用方。
	Reject func(req strategy.OrderRequest) error
}

var _ Gateway = (*PaperGateway)(nil)

// NewPaperGateway 创建模拟网关。
func NewPaperGateway(logger *zap.Logger) *PaperGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperGateway{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder 记录委托并返回递增订单号。
func (p *PaperGateway) PlaceOrder(ctx context.Context, req strategy.OrderRequest, clientOrderID string) (PlaceResult, error) {
	if err := ctx.Err(); err != nil {
		return PlaceResult{}, NewTransportError(err)
	}
	if err := req.Validate(); err != nil {
		return PlaceResult{}, NewExchangeError(-1102, err.Error(), err)
	}
	if p.Reject != nil {
		if err := p.Reject(req); err != nil {
			return PlaceResult{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	record := OrderRecord{
		Symbol:        req.Symbol,
		OrderID:       strconv.FormatInt(p.nextID, 10),
		ClientOrderID: clientOrderID,
		Side:          string(req.Side),
		Kind:          string(req.Kind),
		Status:        "NEW",
		OrigQty:       req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		UpdateTime:    p.now(),
	}
	if req.Kind == strategy.KindMarket {
		record.Status = "FILLED"
		record.ExecutedQty = req.Quantity
	}
	p.orders = append(p.orders, record)

	p.logger.Debug("模拟委托已接受",
		zap.String("symbol", record.Symbol),
		zap.String("order_id", record.OrderID),
		zap.String("kind", record.Kind),
	)

	return PlaceResult{OrderID: record.OrderID, ClientOrderID: clientOrderID, Status: record.Status}, nil
}

// GetOrder 查询模拟委托。
func (p *PaperGateway) GetOrder(ctx context.Context, symbol, orderID string) (OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx := p.find(symbol, orderID); idx >= 0 {
		return p.orders[idx], nil
	}
	return OrderRecord{}, NewExchangeError(codeOrderNotExists, "Order does not exist.", nil)
}

// ListOrders 返回该交易对最近 limit 笔委托。
func (p *PaperGateway) ListOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]OrderRecord, 0, len(p.orders))
	for _, order := range p.orders {
		if order.Symbol == symbol {
			records = append(records, order)
		}
	}
	return recentTail(records, limit), nil
}

// CancelOrder 撤销未成交的模拟委托。
func (p *PaperGateway) CancelOrder(ctx context.Context, symbol, orderID string) (CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.find(symbol, orderID)
	if idx < 0 || p.orders[idx].Status != "NEW" {
		return CancelResult{}, NewExchangeError(codeUnknownOrder, "Unknown order sent.", nil)
	}
	p.orders[idx].Status = "CANCELED"
	p.orders[idx].UpdateTime = p.now()
	return CancelResult{OrderID: orderID, Status: "CANCELED"}, nil
}

// Orders 返回全部模拟委托的副本。
func (p *PaperGateway) Orders() []OrderRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderRecord, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperGateway) find(symbol, orderID string) int {
	for i, order := range p.orders {
		if order.Symbol == symbol && order.OrderID == orderID {
			return i
		}
	}
	return -1
}
