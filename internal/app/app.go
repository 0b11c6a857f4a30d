package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"futures-orderbot/internal/config"
	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/execution"
	"futures-orderbot/internal/metrics"
	"futures-orderbot/internal/monitor"
	"futures-orderbot/internal/store"
	"futures-orderbot/internal/strategy"
)

// ErrAborted 表示用户在确认环节放弃执行。
var ErrAborted = errors.New("no action taken")

// Options 控制 App 的运行模式。
type Options struct {
	// DryRun 使用模拟网关，不访问交易所
	DryRun bool
	// AssumeYes 跳过确认提示
	AssumeYes bool
	// Gateway 不为空时替代配置中的网关
	Gateway exchange.Gateway
	// Trader 不为空时替代默认执行器
	Trader execution.Trader
	In     io.Reader
	Out    io.Writer
}

// App 聚合核心依赖，对外提供下单、查单与撤单操作。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	opts     Options
	gateway  exchange.Gateway
	executor execution.Trader
	query    *exchange.QueryService
	metrics  *metrics.Recorder
	store    *store.Store
	monitor  *monitor.Service
	in       *bufio.Reader
	out      io.Writer
}

// New 根据配置装配网关、执行器与事件日志。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		opts:    opts,
		metrics: metrics.New(),
		in:      bufio.NewReader(opts.In),
		out:     opts.Out,
	}

	gateway, err := a.buildGateway()
	if err != nil {
		return nil, err
	}
	a.gateway = gateway

	if cfg.Database.Enabled {
		st, err := store.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("初始化数据库失败: %w", err)
		}
		svc, err := monitor.NewService(ctx, st, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.store = st
		a.monitor = svc
	}

	execOpts := execution.Options{Metrics: a.metrics}
	if a.monitor != nil {
		execOpts.Recorder = a.monitor
	}
	if opts.Trader != nil {
		a.executor = opts.Trader
	} else {
		a.executor = execution.NewExecutor(a.gateway, execOpts, logger)
	}
	a.query = exchange.NewQueryService(a.gateway, logger)

	logger.Info("下单机器人已初始化",
		zap.String("environment", cfg.App.Environment),
		zap.String("driver", a.driverName()),
		zap.Bool("testnet", cfg.Exchange.UseTestnet),
		zap.Bool("journal", a.monitor != nil),
	)
	return a, nil
}

func (a *App) buildGateway() (exchange.Gateway, error) {
	switch {
	case a.opts.Gateway != nil:
		return a.opts.Gateway, nil
	case a.opts.DryRun:
		return exchange.NewPaperGateway(a.logger), nil
	default:
		gateway, err := exchange.New(a.cfg.Exchange, a.logger)
		if err != nil {
			return nil, fmt.Errorf("初始化交易网关失败: %w", err)
		}
		return gateway, nil
	}
}

func (a *App) driverName() string {
	if a.opts.DryRun {
		return config.DriverPaper
	}
	return a.cfg.Exchange.Driver
}

// Close 释放数据库连接。
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// DefaultTimeInForce 返回配置的默认有效期。
func (a *App) DefaultTimeInForce() string {
	return a.cfg.Execution.DefaultTimeInForce
}

// RecentOrdersLimit 返回 orders 命令的默认条数。
func (a *App) RecentOrdersLimit() int {
	return a.cfg.Execution.RecentOrdersLimit
}

// RunStrategy 打印计划摘要，经确认后执行。用户拒绝时返回 ErrAborted 且不触达网关。
func (a *App) RunStrategy(ctx context.Context, plan strategy.Plan) (execution.Report, error) {
	summary := strategy.Describe(plan)
	fmt.Fprintf(a.out, "%s\n", summary)

	if a.cfg.Execution.Confirm && !a.opts.AssumeYes {
		ok, err := a.confirm(ctx, "Proceed? (y/n): ")
		if err != nil {
			return execution.Report{}, err
		}
		if !ok {
			fmt.Fprintln(a.out, ErrAborted.Error())
			a.logger.Info("用户取消执行", zap.String("strategy", string(plan.Strategy)), zap.String("plan", summary))
			return execution.Report{}, ErrAborted
		}
	}

	report := a.executor.Execute(ctx, plan)
	return report, nil
}

type confirmInput struct {
	line string
	err  error
}

// confirm 读取一行确认输入。ctx 结束（如 Ctrl+C）时视为拒绝。
func (a *App) confirm(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprint(a.out, prompt)

	inputCh := make(chan confirmInput, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		inputCh <- confirmInput{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.out)
		a.logger.Info("等待确认时收到取消信号", zap.Error(ctx.Err()))
		return false, nil
	case in := <-inputCh:
		if in.err != nil && !errors.Is(in.err, io.EOF) {
			return false, fmt.Errorf("读取确认输入失败: %w", in.err)
		}
		return strings.EqualFold(strings.TrimSpace(in.line), "y"), nil
	}
}

// Status 查询单笔委托。
func (a *App) Status(ctx context.Context, symbol, orderID string) (exchange.OrderRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	record, err := a.gateway.GetOrder(ctx, symbol, orderID)
	if err != nil {
		a.recordError(ctx, "查询委托失败", err, map[string]interface{}{"symbol": symbol, "order_id": orderID})
		return exchange.OrderRecord{}, err
	}
	a.recordQuery(ctx, symbol, []exchange.OrderRecord{record})
	return record, nil
}

// RecentOrders 并发查询多个交易对的最近委托。limit<=0 时使用配置默认值。
func (a *App) RecentOrders(ctx context.Context, symbols []string, limit int) (map[string][]exchange.OrderRecord, error) {
	if limit <= 0 {
		limit = a.cfg.Execution.RecentOrdersLimit
	}
	normalized := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if s := strings.ToUpper(strings.TrimSpace(symbol)); s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: 至少需要一个交易对", strategy.ErrInvalidParameter)
	}

	result, err := a.query.RecentOrders(ctx, normalized, limit)
	if err != nil {
		a.recordError(ctx, "查询最近委托失败", err, map[string]interface{}{"symbols": normalized})
		return nil, err
	}
	for _, symbol := range normalized {
		a.recordQuery(ctx, symbol, result[symbol])
	}
	return result, nil
}

// Cancel 撤销单笔委托。
func (a *App) Cancel(ctx context.Context, symbol, orderID string) (exchange.CancelResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	res, err := a.gateway.CancelOrder(ctx, symbol, orderID)
	if a.monitor != nil {
		a.monitor.RecordCancel(ctx, symbol, orderID, res, err)
	}
	if err != nil {
		a.logger.Warn("撤单失败",
			zap.String("symbol", symbol),
			zap.String("order_id", orderID),
			zap.String("error_kind", string(exchange.Classify(err))),
			zap.Error(err),
		)
		return exchange.CancelResult{}, err
	}
	a.logger.Info("撤单成功", zap.String("symbol", symbol), zap.String("order_id", res.OrderID), zap.String("status", res.Status))
	return res, nil
}

// Events 读取事件日志。
func (a *App) Events(ctx context.Context, q monitor.Query) ([]monitor.Event, error) {
	if a.monitor == nil {
		return nil, fmt.Errorf("%w: database.enabled=false，事件日志不可用", config.ErrFatalConfiguration)
	}
	return a.monitor.ListEvents(ctx, q)
}

func (a *App) recordQuery(ctx context.Context, symbol string, orders []exchange.OrderRecord) {
	if a.monitor != nil {
		a.monitor.RecordQuery(ctx, symbol, orders)
	}
}

func (a *App) recordError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	a.logger.Error(msg, zap.Any("context", fields), zap.Error(err))
	if a.monitor != nil {
		a.monitor.RecordError(ctx, msg, err, fields)
	}
}

// Shutdown 关闭监控服务并释放资源。
func (a *App) Shutdown(ctx context.Context, srv *MonitorServer) error {
	var err error
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(ctx))
	}
	return multierr.Append(err, a.Close())
}
