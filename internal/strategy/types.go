package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidParameter 表示策略参数不满足前置条件，此时不会触达交易所。
var ErrInvalidParameter = errors.New("strategy: invalid parameter")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 解析方向字符串，大小写不敏感。
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", invalidf("side %q 必须为 BUY 或 SELL", raw)
	}
}

// Kind 表示委托类型。
type Kind string

const (
	KindMarket     Kind = "MARKET"
	KindLimit      Kind = "LIMIT"
	KindStopMarket Kind = "STOP_MARKET"
)

// TimeInForce 仅对限价单有意义。
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// ParseTimeInForce 解析有效期，空字符串视为 GTC。
func ParseTimeInForce(raw string) (TimeInForce, error) {
	value := TimeInForce(strings.ToUpper(strings.TrimSpace(raw)))
	if value == "" {
		return TimeInForceGTC, nil
	}
	if !value.valid() {
		return "", invalidf("time_in_force %q 必须为 GTC/IOC/FOK", raw)
	}
	return value, nil
}

func (t TimeInForce) valid() bool {
	switch t {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return true
	default:
		return false
	}
}

// Type 标识策略族。
type Type string

const (
	TypeMarket    Type = "market"
	TypeLimit     Type = "limit"
	TypeStopLimit Type = "stop_limit"
	TypeOCO       Type = "oco"
	TypeTWAP      Type = "twap"
	TypeGrid      Type = "grid"
)

// OrderRequest 描述一笔待提交的委托。
type OrderRequest struct {
	Symbol      string
	Side        Side
	Kind        Kind
	Quantity    decimal.Decimal
	Price       decimal.Decimal // 仅 LIMIT
	StopPrice   decimal.Decimal // 仅 STOP_MARKET
	TimeInForce TimeInForce     // 仅 LIMIT

	// LimitPrice 只用于止损限价策略的展示，不会发送到交易所。
	LimitPrice decimal.Decimal
}

// Validate 校验价格字段与委托类型是否匹配。
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return invalidf("symbol 不能为空")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return invalidf("side %q 无效", r.Side)
	}
	if !r.Quantity.IsPositive() {
		return invalidf("quantity 必须大于0, got %s", r.Quantity)
	}

	switch r.Kind {
	case KindMarket:
		if !r.Price.IsZero() || !r.StopPrice.IsZero() {
			return invalidf("MARKET 委托不能携带价格")
		}
	case KindLimit:
		if !r.Price.IsPositive() {
			return invalidf("LIMIT 委托需要正价格, got %s", r.Price)
		}
		if !r.StopPrice.IsZero() {
			return invalidf("LIMIT 委托不能携带 stop_price")
		}
		if !r.TimeInForce.valid() {
			return invalidf("time_in_force %q 无效", r.TimeInForce)
		}
		return nil
	case KindStopMarket:
		if !r.StopPrice.IsPositive() {
			return invalidf("STOP_MARKET 委托需要正 stop_price, got %s", r.StopPrice)
		}
		if !r.Price.IsZero() {
			return invalidf("STOP_MARKET 委托不能携带 price")
		}
	default:
		return invalidf("不支持的委托类型 %q", r.Kind)
	}

	if r.TimeInForce != "" {
		return invalidf("time_in_force 仅适用于 LIMIT 委托")
	}
	return nil
}

// Leg 是计划中的一笔委托及其发送前等待时长。
type Leg struct {
	Request OrderRequest
	Delay   time.Duration
	Label   string
}

// Plan 为分解器的唯一输出，按发送顺序排列。
type Plan struct {
	Strategy          Type
	Symbol            string
	// RequestedQuantity 为用户输入的 TWAP 总量，舍入前的值，仅用于展示。
	RequestedQuantity decimal.Decimal
	legs              []Leg
}

func newPlan(strategy Type, symbol string, legs []Leg) Plan {
	return Plan{Strategy: strategy, Symbol: symbol, legs: legs}
}

// Legs 返回副本，调用方无法修改计划本身。
func (p Plan) Legs() []Leg {
	out := make([]Leg, len(p.legs))
	copy(out, p.legs)
	return out
}

// Len 返回腿数。
func (p Plan) Len() int {
	return len(p.legs)
}

// TotalDelay 返回整个计划的累计等待时间。
func (p Plan) TotalDelay() time.Duration {
	var total time.Duration
	for _, leg := range p.legs {
		total += leg.Delay
	}
	return total
}
