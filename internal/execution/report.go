package execution

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"futures-orderbot/internal/strategy"
)

// 策略结果。
const (
	ResultCompleted = "completed"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Report 汇总一次策略执行的全部腿结果。
type Report struct {
	RunID      string        `json:"run_id"`
	Strategy   strategy.Type `json:"strategy"`
	Symbol     string        `json:"symbol"`
	Planned    int           `json:"planned"`
	Total      int           `json:"total"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Cancelled  bool          `json:"cancelled"`
	Outcomes   []Outcome     `json:"outcomes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func newReport(runID string, plan strategy.Plan, startedAt time.Time) Report {
	return Report{
		RunID:     runID,
		Strategy:  plan.Strategy,
		Symbol:    plan.Symbol,
		Planned:   plan.Len(),
		Outcomes:  make([]Outcome, 0, plan.Len()),
		StartedAt: startedAt,
	}
}

// finalize 扫描一次 Outcomes 计算计数。
func (r *Report) finalize(finishedAt time.Time) {
	r.Total = len(r.Outcomes)
	r.Accepted = 0
	r.Rejected = 0
	for _, outcome := range r.Outcomes {
		if outcome.Accepted() {
			r.Accepted++
		} else {
			r.Rejected++
		}
	}
	r.FinishedAt = finishedAt
}

// Skipped 返回因取消而未发送的腿数。
func (r Report) Skipped() int {
	return r.Planned - r.Total
}

// AllAccepted 所有计划腿均已发送且被接受。
func (r Report) AllAccepted() bool {
	return !r.Cancelled && r.Rejected == 0 && r.Total == r.Planned
}

// OrderIDs 返回被接受腿的交易所订单号，顺序与计划一致。
func (r Report) OrderIDs() []string {
	ids := make([]string, 0, r.Accepted)
	for _, outcome := range r.Outcomes {
		if outcome.Accepted() {
			ids = append(ids, outcome.OrderID)
		}
	}
	return ids
}

// FirstError 返回第一条被拒绝腿的错误。
func (r Report) FirstError() error {
	for _, outcome := range r.Outcomes {
		if outcome.Error != nil {
			return outcome.Error
		}
	}
	return nil
}

// Err 合并全部腿错误，没有失败时为 nil。
func (r Report) Err() error {
	var err error
	for _, outcome := range r.Outcomes {
		if outcome.Error != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", outcome.Label, outcome.Error))
		}
	}
	return err
}

// Result 返回策略级结果分类。
func (r Report) Result() string {
	switch {
	case r.Cancelled:
		return ResultCancelled
	case r.Total > 0 && r.Accepted == 0:
		return ResultFailed
	case r.Rejected > 0:
		return ResultPartial
	default:
		return ResultCompleted
	}
}

// Summary 返回退出提示。
func (r Report) Summary() string {
	switch {
	case r.Cancelled:
		return fmt.Sprintf("cancelled after %d of %d legs (%d rejected)", r.Total, r.Planned, r.Rejected)
	case r.Rejected == 0:
		return fmt.Sprintf("all %d legs completed", r.Total)
	default:
		return fmt.Sprintf("%d of %d legs failed", r.Rejected, r.Total)
	}
}
