package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// QuantityPrecision 为 TWAP 每笔数量保留的小数位。
	QuantityPrecision int32 = 6
	// GridPricePrecision 为网格价位保留的小数位。
	GridPricePrecision int32 = 2
	// MaxLegs 为单个计划允许的最大腿数。
	MaxLegs = 1000
)

// MarketParams 市价单参数。
type MarketParams struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
}

// LimitParams 限价单参数。
type LimitParams struct {
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	TimeInForce TimeInForce
}

// StopLimitParams 止损限价参数，LimitPrice 仅保留展示。
type StopLimitParams struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
}

// OCOParams 模拟 OCO 参数，两腿之间没有撤单联动。
type OCOParams struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// TWAPParams 时间加权拆单参数。
type TWAPParams struct {
	Symbol        string
	Side          Side
	TotalQuantity decimal.Decimal
	Chunks        int
	Interval      time.Duration
}

// GridParams 网格挂单参数，Levels 为网格数（价位数为 Levels+1）。
type GridParams struct {
	Symbol           string
	Lower            decimal.Decimal
	Upper            decimal.Decimal
	Levels           int
	QuantityPerOrder decimal.Decimal
}

// Market 生成单笔市价委托。
func Market(p MarketParams) (Plan, error) {
	req := OrderRequest{
		Symbol:   normalizeSymbol(p.Symbol),
		Side:     p.Side,
		Kind:     KindMarket,
		Quantity: p.Quantity,
	}
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	return newPlan(TypeMarket, req.Symbol, []Leg{{Request: req, Label: "market"}}), nil
}

// Limit 生成单笔限价委托，未指定有效期时使用 GTC。
func Limit(p LimitParams) (Plan, error) {
	tif := p.TimeInForce
	if tif == "" {
		tif = TimeInForceGTC
	}
	if !tif.valid() {
		return Plan{}, invalidf("time_in_force %q 必须为 GTC/IOC/FOK", p.TimeInForce)
	}
	req := OrderRequest{
		Symbol:      normalizeSymbol(p.Symbol),
		Side:        p.Side,
		Kind:        KindLimit,
		Quantity:    p.Quantity,
		Price:       p.Price,
		TimeInForce: tif,
	}
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	return newPlan(TypeLimit, req.Symbol, []Leg{{Request: req, Label: "limit"}}), nil
}

// StopLimit 只下止损腿（STOP_MARKET），限价不发送。
func StopLimit(p StopLimitParams) (Plan, error) {
	if p.LimitPrice.IsNegative() {
		return Plan{}, invalidf("limit_price 不能为负, got %s", p.LimitPrice)
	}
	req := OrderRequest{
		Symbol:     normalizeSymbol(p.Symbol),
		Side:       p.Side,
		Kind:       KindStopMarket,
		Quantity:   p.Quantity,
		StopPrice:  p.StopPrice,
		LimitPrice: p.LimitPrice,
	}
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	return newPlan(TypeStopLimit, req.Symbol, []Leg{{Request: req, Label: "stop"}}), nil
}

// OCO 生成止盈限价与止损市价两腿，两腿互不关联。
func OCO(p OCOParams) (Plan, error) {
	symbol := normalizeSymbol(p.Symbol)
	takeProfit := OrderRequest{
		Symbol:      symbol,
		Side:        p.Side,
		Kind:        KindLimit,
		Quantity:    p.Quantity,
		Price:       p.TakeProfit,
		TimeInForce: TimeInForceGTC,
	}
	if err := takeProfit.Validate(); err != nil {
		return Plan{}, fmt.Errorf("take_profit: %w", err)
	}
	stopLoss := OrderRequest{
		Symbol:    symbol,
		Side:      p.Side,
		Kind:      KindStopMarket,
		Quantity:  p.Quantity,
		StopPrice: p.StopLoss,
	}
	if err := stopLoss.Validate(); err != nil {
		return Plan{}, fmt.Errorf("stop_loss: %w", err)
	}

	return newPlan(TypeOCO, symbol, []Leg{
		{Request: takeProfit, Label: "take_profit"},
		{Request: stopLoss, Label: "stop_loss"},
	}), nil
}

// TWAP 将总量均分为 Chunks 笔市价单，首笔立即发送，其余每笔前等待 Interval。
func TWAP(p TWAPParams) (Plan, error) {
	if p.Chunks <= 0 {
		return Plan{}, invalidf("chunks 必须为正整数, got %d", p.Chunks)
	}
	if p.Chunks > MaxLegs {
		return Plan{}, invalidf("chunks 不能超过 %d, got %d", MaxLegs, p.Chunks)
	}
	if p.Interval < 0 {
		return Plan{}, invalidf("interval 不能为负, got %s", p.Interval)
	}
	if !p.TotalQuantity.IsPositive() {
		return Plan{}, invalidf("total_quantity 必须大于0, got %s", p.TotalQuantity)
	}

	perLeg := ChunkQuantity(p.TotalQuantity, p.Chunks)
	if !perLeg.IsPositive() {
		return Plan{}, invalidf("每笔数量 %s/%d 舍入后为0", p.TotalQuantity, p.Chunks)
	}

	symbol := normalizeSymbol(p.Symbol)
	legs := make([]Leg, 0, p.Chunks)
	for i := 0; i < p.Chunks; i++ {
		req := OrderRequest{
			Symbol:   symbol,
			Side:     p.Side,
			Kind:     KindMarket,
			Quantity: perLeg,
		}
		if err := req.Validate(); err != nil {
			return Plan{}, err
		}
		var delay time.Duration
		if i > 0 {
			delay = p.Interval
		}
		legs = append(legs, Leg{
			Request: req,
			Delay:   delay,
			Label:   fmt.Sprintf("twap %d/%d", i+1, p.Chunks),
		})
	}

	plan := newPlan(TypeTWAP, symbol, legs)
	plan.RequestedQuantity = p.TotalQuantity
	return plan, nil
}

// ChunkQuantity 返回 total/chunks 按银行家舍入保留 QuantityPrecision 位的结果。
func ChunkQuantity(total decimal.Decimal, chunks int) decimal.Decimal {
	if chunks <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(chunks))).RoundBank(QuantityPrecision)
}

// Grid 在 [Lower, Upper] 间生成 Levels+1 个价位的限价单。
// 低于中点为 BUY，等于或高于中点为 SELL。
func Grid(p GridParams) (Plan, error) {
	if p.Levels < 1 {
		return Plan{}, invalidf("grid_count 必须 >= 1, got %d", p.Levels)
	}
	// 价位数为 Levels+1，先比较 Levels 避免溢出
	if p.Levels >= MaxLegs {
		return Plan{}, invalidf("grid_count 不能超过 %d, got %d", MaxLegs-1, p.Levels)
	}
	if !p.Lower.IsPositive() {
		return Plan{}, invalidf("lower_price 必须大于0, got %s", p.Lower)
	}
	if !p.Upper.GreaterThan(p.Lower) {
		return Plan{}, invalidf("upper_price %s 必须大于 lower_price %s", p.Upper, p.Lower)
	}

	symbol := normalizeSymbol(p.Symbol)
	prices := GridPrices(p.Lower, p.Upper, p.Levels)
	mid := GridMidpoint(p.Lower, p.Upper)

	legs := make([]Leg, 0, len(prices))
	for i, price := range prices {
		req := OrderRequest{
			Symbol:      symbol,
			Side:        GridSide(price, mid),
			Kind:        KindLimit,
			Quantity:    p.QuantityPerOrder,
			Price:       price,
			TimeInForce: TimeInForceGTC,
		}
		if err := req.Validate(); err != nil {
			return Plan{}, fmt.Errorf("grid level %d: %w", i, err)
		}
		legs = append(legs, Leg{
			Request: req,
			Label:   fmt.Sprintf("grid %d/%d", i+1, len(prices)),
		})
	}

	return newPlan(TypeGrid, symbol, legs), nil
}

// GridPrices 计算 lower + i*step (i ∈ [0, levels])，每档保留两位小数。
// levels 超出 [1, MaxLegs) 时返回 nil。
func GridPrices(lower, upper decimal.Decimal, levels int) []decimal.Decimal {
	if levels < 1 || levels >= MaxLegs {
		return nil
	}
	step := upper.Sub(lower).Div(decimal.NewFromInt(int64(levels)))
	prices := make([]decimal.Decimal, 0, levels+1)
	for i := 0; i <= levels; i++ {
		level := lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
		prices = append(prices, level.RoundBank(GridPricePrecision))
	}
	return prices
}

// GridMidpoint 返回区间中点。
func GridMidpoint(lower, upper decimal.Decimal) decimal.Decimal {
	return upper.Add(lower).Div(decimal.NewFromInt(2))
}

// GridSide 价位等于中点时归为 SELL。
func GridSide(price, mid decimal.Decimal) Side {
	if price.LessThan(mid) {
		return SideBuy
	}
	return SideSell
}

// Describe 生成供确认提示使用的计划摘要。
func Describe(p Plan) string {
	legs := p.legs
	if len(legs) == 0 {
		return fmt.Sprintf("%s %s: empty plan", p.Strategy, p.Symbol)
	}
	first := legs[0].Request

	switch p.Strategy {
	case TypeMarket:
		return fmt.Sprintf("%s %s %s at MARKET", first.Side, first.Quantity, p.Symbol)
	case TypeLimit:
		return fmt.Sprintf("%s %s %s LIMIT @ %s (%s)", first.Side, first.Quantity, p.Symbol, first.Price, first.TimeInForce)
	case TypeStopLimit:
		return fmt.Sprintf("%s %s %s STOP @ %s (limit %s not sent)", first.Side, first.Quantity, p.Symbol, first.StopPrice, first.LimitPrice)
	case TypeOCO:
		var sl decimal.Decimal
		if len(legs) > 1 {
			sl = legs[1].Request.StopPrice
		}
		return fmt.Sprintf("%s %s %s simulated OCO TP @ %s / SL @ %s (no cancel linkage)", first.Side, first.Quantity, p.Symbol, first.Price, sl)
	case TypeTWAP:
		total := p.RequestedQuantity
		if total.IsZero() {
			total = first.Quantity.Mul(decimal.NewFromInt(int64(len(legs))))
		}
		var interval time.Duration
		if len(legs) > 1 {
			interval = legs[1].Delay
		}
		return fmt.Sprintf("%s %s %s via %d TWAP legs of %s every %s", first.Side, total, p.Symbol, len(legs), first.Quantity, interval)
	case TypeGrid:
		last := legs[len(legs)-1].Request
		return fmt.Sprintf("GRID %s %d limit orders of %s between %s and %s", p.Symbol, len(legs), first.Quantity, first.Price, last.Price)
	default:
		return fmt.Sprintf("%s %s: %d legs", p.Strategy, p.Symbol, len(legs))
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
