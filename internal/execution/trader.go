package execution

import (
	"context"

	"futures-orderbot/internal/strategy"
)

// Trader 抽象执行器接口，方便切换真实或模拟下单。
type Trader interface {
	Execute(ctx context.Context, plan strategy.Plan) Report
}

var _ Trader = (*Executor)(nil)
