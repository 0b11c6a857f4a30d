package monitor

import (
	"time"

	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/execution"
	"futures-orderbot/internal/strategy"
)

// EventType 表示事件日志类型。
type EventType string

const (
	EventLegDispatched     EventType = "leg_dispatched"
	EventStrategyCompleted EventType = "strategy_completed"
	EventOrderQuery        EventType = "order_query"
	EventOrderCancel       EventType = "order_cancel"
	EventError             EventType = "error"
)

// ParseEventType 解析事件类型，空字符串表示全部类型。
func ParseEventType(raw string) (EventType, bool) {
	switch typ := EventType(raw); typ {
	case "", EventLegDispatched, EventStrategyCompleted, EventOrderQuery, EventOrderCancel, EventError:
		return typ, true
	default:
		return "", false
	}
}

// Event 封装通用事件。
type Event struct {
	ID        int64       `json:"id"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LegPayload 记录单腿发送结果。
type LegPayload struct {
	Strategy strategy.Type     `json:"strategy"`
	Symbol   string            `json:"symbol"`
	Planned  int               `json:"planned"`
	Outcome  execution.Outcome `json:"outcome"`
}

// StrategyPayload 记录策略汇总，不重复保存各腿明细。
type StrategyPayload struct {
	Strategy  strategy.Type `json:"strategy"`
	Symbol    string        `json:"symbol"`
	Result    string        `json:"result"`
	Summary   string        `json:"summary"`
	Planned   int           `json:"planned"`
	Total     int           `json:"total"`
	Accepted  int           `json:"accepted"`
	Rejected  int           `json:"rejected"`
	Cancelled bool          `json:"cancelled"`
	OrderIDs  []string      `json:"order_ids"`
	Elapsed   time.Duration `json:"elapsed"`
}

// OrderQueryPayload 记录查单结果。
type OrderQueryPayload struct {
	Symbol string                 `json:"symbol"`
	Orders []exchange.OrderRecord `json:"orders"`
}

// CancelPayload 记录撤单请求。
type CancelPayload struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
