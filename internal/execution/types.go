package execution

import (
	"context"
	"fmt"
	"time"

	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/strategy"
)

// Status 表示单腿下单结果。
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// LegError 记录被拒绝腿的错误类别与信息。
type LegError struct {
	Kind    exchange.ErrorKind `json:"kind"`
	Code    int64              `json:"code,omitempty"`
	Message string             `json:"message"`
}

func (e *LegError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code=%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Outcome 为单腿的执行结果。
type Outcome struct {
	Index         int                   `json:"index"`
	Label         string                `json:"label"`
	Request       strategy.OrderRequest `json:"request"`
	Status        Status                `json:"status"`
	OrderID       string                `json:"order_id,omitempty"`
	ClientOrderID string                `json:"client_order_id,omitempty"`
	Error         *LegError             `json:"error,omitempty"`
	SentAt        time.Time             `json:"sent_at"`
	Latency       time.Duration         `json:"latency"`
}

// Accepted 判断该腿是否被交易所接受。
func (o Outcome) Accepted() bool {
	return o.Status == StatusAccepted
}

// Recorder 接收执行事件，例如写入事件日志。
type Recorder interface {
	RecordLeg(ctx context.Context, report Report, outcome Outcome)
	RecordReport(ctx context.Context, report Report)
}

// Metrics 接收执行指标。
type Metrics interface {
	ObserveLeg(strategy, side, status string, latency time.Duration)
	ObserveStrategy(strategy, result string)
}

// Sleeper 在发送前等待，ctx 取消时提前返回错误。
type Sleeper func(ctx context.Context, d time.Duration) error

// Options 控制执行器的可选依赖。
type Options struct {
	Sleeper     Sleeper
	NewID       func() string
	Now         func() time.Time
	Recorder    Recorder
	Metrics     Metrics
	ClientIDTag string
}
