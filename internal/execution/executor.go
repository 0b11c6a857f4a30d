package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/strategy"
)

// Executor 按计划顺序逐腿下单，单腿失败不影响后续腿，且不做重试。
// 同一个 Executor 可被顺序复用，但单次 Execute 内没有并发。
type Executor struct {
	gateway exchange.Gateway
	logger  *zap.Logger
	opts    Options
}

// NewExecutor 创建执行器。
func NewExecutor(gateway exchange.Gateway, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sleeper == nil {
		opts.Sleeper = sleepContext
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Executor{
		gateway: gateway,
		logger:  logger,
		opts:    opts,
	}
}

// Execute 执行计划并返回报告。下单错误记录在 Outcome 中，不会作为错误返回。
// ctx 取消后剩余腿不再发送，报告标记为 Cancelled。
func (e *Executor) Execute(ctx context.Context, plan strategy.Plan) Report {
	report := newReport(e.opts.NewID(), plan, e.opts.Now())
	legs := plan.Legs()

	e.logger.Info("开始执行策略",
		zap.String("run_id", report.RunID),
		zap.String("strategy", string(plan.Strategy)),
		zap.String("symbol", plan.Symbol),
		zap.Int("legs", len(legs)),
		zap.Duration("total_delay", plan.TotalDelay()),
	)

	for i, leg := range legs {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if leg.Delay > 0 {
			e.logger.Debug("等待发送下一腿",
				zap.String("run_id", report.RunID),
				zap.Int("leg", i+1),
				zap.Duration("delay", leg.Delay),
			)
			if err := e.opts.Sleeper(ctx, leg.Delay); err != nil {
				report.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		outcome := e.dispatch(ctx, report.RunID, i, leg)
		report.Outcomes = append(report.Outcomes, outcome)
		e.observeLeg(ctx, report, outcome, len(legs))
	}

	report.finalize(e.opts.Now())
	e.observeReport(ctx, report)
	return report
}

func (e *Executor) dispatch(ctx context.Context, runID string, index int, leg strategy.Leg) Outcome {
	clientID := e.clientOrderID(runID, index)
	outcome := Outcome{
		Index:         index,
		Label:         leg.Label,
		Request:       leg.Request,
		ClientOrderID: clientID,
		SentAt:        e.opts.Now(),
	}

	start := time.Now()
	res, err := e.gateway.PlaceOrder(ctx, leg.Request, clientID)
	outcome.Latency = time.Since(start)

	if err != nil {
		outcome.Status = StatusRejected
		outcome.Error = toLegError(err)
		return outcome
	}

	outcome.Status = StatusAccepted
	outcome.OrderID = res.OrderID
	if res.ClientOrderID != "" {
		outcome.ClientOrderID = res.ClientOrderID
	}
	return outcome
}

// clientOrderID 生成不超过 36 个字符的客户端订单号。
func (e *Executor) clientOrderID(runID string, index int) string {
	tag := e.opts.ClientIDTag
	if tag == "" {
		tag = "ob"
	}
	id := fmt.Sprintf("%s-%d-%s", tag, index+1, compactID(runID))
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}

func (e *Executor) observeLeg(ctx context.Context, report Report, outcome Outcome, planned int) {
	req := outcome.Request
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("strategy", string(report.Strategy)),
		zap.String("leg", fmt.Sprintf("%d/%d", outcome.Index+1, planned)),
		zap.String("label", outcome.Label),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("kind", string(req.Kind)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("status", string(outcome.Status)),
		zap.Duration("latency", outcome.Latency),
	}
	if !req.Price.IsZero() {
		fields = append(fields, zap.String("price", req.Price.String()))
	}
	if !req.StopPrice.IsZero() {
		fields = append(fields, zap.String("stop_price", req.StopPrice.String()))
	}
	if !req.LimitPrice.IsZero() {
		fields = append(fields, zap.String("limit_price", req.LimitPrice.String()))
	}

	if outcome.Accepted() {
		fields = append(fields, zap.String("order_id", outcome.OrderID))
		e.logger.Info("委托已提交", fields...)
	} else {
		fields = append(fields,
			zap.String("error_kind", string(outcome.Error.Kind)),
			zap.Error(outcome.Error),
		)
		e.logger.Error("委托被拒绝", fields...)
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveLeg(string(report.Strategy), string(req.Side), string(outcome.Status), outcome.Latency)
	}
	if e.opts.Recorder != nil {
		e.opts.Recorder.RecordLeg(context.WithoutCancel(ctx), report, outcome)
	}
}

func (e *Executor) observeReport(ctx context.Context, report Report) {
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("strategy", string(report.Strategy)),
		zap.String("symbol", report.Symbol),
		zap.Int("planned", report.Planned),
		zap.Int("total", report.Total),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.Rejected),
		zap.Bool("cancelled", report.Cancelled),
		zap.Strings("order_ids", report.OrderIDs()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if err := report.FirstError(); err != nil {
		fields = append(fields, zap.NamedError("first_error", err))
	}

	switch report.Result() {
	case ResultCompleted:
		e.logger.Info("策略执行完成", fields...)
	default:
		e.logger.Warn("策略执行未全部成功", append(fields, zap.String("summary", report.Summary()))...)
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveStrategy(string(report.Strategy), report.Result())
	}
	if e.opts.Recorder != nil {
		e.opts.Recorder.RecordReport(context.WithoutCancel(ctx), report)
	}
}

func toLegError(err error) *LegError {
	var gwErr *exchange.Error
	if errors.As(err, &gwErr) {
		return &LegError{Kind: gwErr.Kind, Code: gwErr.Code, Message: gwErr.Message}
	}
	return &LegError{Kind: exchange.KindTransport, Message: err.Error()}
}

func compactID(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] != '-' {
			out = append(out, id[i])
		}
	}
	return string(out)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
