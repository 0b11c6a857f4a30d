package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"futures-orderbot/internal/app"
	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/execution"
	"futures-orderbot/internal/monitor"
	"futures-orderbot/internal/strategy"
)

type command struct {
	help string
	run  func(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error)
}

var commandOrder = []string{"market", "limit", "stop-limit", "oco", "twap", "grid", "status", "orders", "cancel", "events", "serve"}

var commands = map[string]command{
	"market":     {help: "市价单", run: runMarket},
	"limit":      {help: "限价单", run: runLimit},
	"stop-limit": {help: "止损单（仅发送 STOP_MARKET 腿）", run: runStopLimit},
	"oco":        {help: "模拟 OCO：止盈限价 + 止损市价，两腿无联动", run: runOCO},
	"twap":       {help: "时间加权拆单", run: runTWAP},
	"grid":       {help: "区间网格挂单", run: runGrid},
	"status":     {help: "查询单笔委托", run: runStatus},
	"orders":     {help: "查询最近委托，symbols 逗号分隔", run: runOrders},
	"cancel":     {help: "撤销委托", run: runCancel},
	"events":     {help: "查看事件日志", run: runEvents},
	"serve":      {help: "仅运行监控接口，直到收到退出信号", run: runServe},
}

// decimalValue 让 flag 直接解析十进制数。
type decimalValue struct {
	d *decimal.Decimal
}

func (v decimalValue) String() string {
	if v.d == nil {
		return "0"
	}
	return v.d.String()
}

func (v decimalValue) Set(raw string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("无效数值 %q", raw)
	}
	*v.d = d
	return nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func decimalFlag(fs *flag.FlagSet, name, usage string) *decimal.Decimal {
	d := new(decimal.Decimal)
	fs.Var(decimalValue{d: d}, name, usage)
	return d
}

// parseFlags 将 flag 解析错误归为参数错误。
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return fmt.Errorf("%w: %v", strategy.ErrInvalidParameter, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: 多余的参数 %v", strategy.ErrInvalidParameter, fs.Args())
	}
	return nil
}

func runMarket(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("market", out)
	symbol := fs.String("symbol", "", "交易对，例如 BTCUSDT")
	side := fs.String("side", "", "BUY/SELL")
	qty := decimalFlag(fs, "qty", "下单数量")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	s, err := strategy.ParseSide(*side)
	if err != nil {
		return exitFailure, err
	}
	plan, err := strategy.Market(strategy.MarketParams{Symbol: *symbol, Side: s, Quantity: *qty})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func runLimit(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("limit", out)
	symbol := fs.String("symbol", "", "交易对")
	side := fs.String("side", "", "BUY/SELL")
	qty := decimalFlag(fs, "qty", "下单数量")
	price := decimalFlag(fs, "price", "限价")
	tif := fs.String("tif", bot.DefaultTimeInForce(), "GTC/IOC/FOK")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	s, err := strategy.ParseSide(*side)
	if err != nil {
		return exitFailure, err
	}
	t, err := strategy.ParseTimeInForce(*tif)
	if err != nil {
		return exitFailure, err
	}
	plan, err := strategy.Limit(strategy.LimitParams{Symbol: *symbol, Side: s, Quantity: *qty, Price: *price, TimeInForce: t})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func runStopLimit(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("stop-limit", out)
	symbol := fs.String("symbol", "", "交易对")
	side := fs.String("side", "", "BUY/SELL")
	qty := decimalFlag(fs, "qty", "下单数量")
	stop := decimalFlag(fs, "stop", "触发价")
	limit := decimalFlag(fs, "limit", "限价（仅展示，不发送）")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	s, err := strategy.ParseSide(*side)
	if err != nil {
		return exitFailure, err
	}
	plan, err := strategy.StopLimit(strategy.StopLimitParams{Symbol: *symbol, Side: s, Quantity: *qty, StopPrice: *stop, LimitPrice: *limit})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func runOCO(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("oco", out)
	symbol := fs.String("symbol", "", "交易对")
	side := fs.String("side", "", "BUY/SELL")
	qty := decimalFlag(fs, "qty", "下单数量")
	tp := decimalFlag(fs, "tp", "止盈限价")
	sl := decimalFlag(fs, "sl", "止损触发价")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	s, err := strategy.ParseSide(*side)
	if err != nil {
		return exitFailure, err
	}
	plan, err := strategy.OCO(strategy.OCOParams{Symbol: *symbol, Side: s, Quantity: *qty, TakeProfit: *tp, StopLoss: *sl})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func runTWAP(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("twap", out)
	symbol := fs.String("symbol", "", "交易对")
	side := fs.String("side", "", "BUY/SELL")
	total := decimalFlag(fs, "total", "总数量")
	chunks := fs.Int("chunks", 0, "拆分笔数")
	interval := fs.Duration("interval", 0, "每笔间隔，例如 30s")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	s, err := strategy.ParseSide(*side)
	if err != nil {
		return exitFailure, err
	}
	plan, err := strategy.TWAP(strategy.TWAPParams{Symbol: *symbol, Side: s, TotalQuantity: *total, Chunks: *chunks, Interval: *interval})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func runGrid(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("grid", out)
	symbol := fs.String("symbol", "", "交易对")
	lower := decimalFlag(fs, "lower", "区间下沿")
	upper := decimalFlag(fs, "upper", "区间上沿")
	levels := fs.Int("levels", 0, "网格数")
	qty := decimalFlag(fs, "qty", "每格数量")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	plan, err := strategy.Grid(strategy.GridParams{Symbol: *symbol, Lower: *lower, Upper: *upper, Levels: *levels, QuantityPerOrder: *qty})
	if err != nil {
		return exitFailure, err
	}
	return execute(ctx, bot, plan, out)
}

func execute(ctx context.Context, bot *app.App, plan strategy.Plan, out io.Writer) (int, error) {
	report, err := bot.RunStrategy(ctx, plan)
	if err != nil {
		return exitFailure, err
	}
	printReport(out, report)
	if report.Rejected > 0 {
		return exitRejected, nil
	}
	return exitOK, nil
}

func printReport(out io.Writer, report execution.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEG\tSIDE\tKIND\tQTY\tPRICE\tSTATUS\tORDER/ERROR")
	for _, o := range report.Outcomes {
		price := o.Request.Price
		if price.IsZero() {
			price = o.Request.StopPrice
		}
		detail := o.OrderID
		if o.Error != nil {
			detail = o.Error.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Label, o.Request.Side, o.Request.Kind, o.Request.Quantity, price, o.Status, detail)
	}
	_ = w.Flush()
	fmt.Fprintln(out, report.Summary())
}

func runStatus(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("status", out)
	symbol := fs.String("symbol", "", "交易对")
	orderID := fs.String("id", "", "订单号")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	if *orderID == "" {
		return exitFailure, fmt.Errorf("%w: 需要 -id", strategy.ErrInvalidParameter)
	}
	record, err := bot.Status(ctx, *symbol, *orderID)
	if err != nil {
		return exitFailure, err
	}
	printOrders(out, []exchange.OrderRecord{record})
	return exitOK, nil
}

func runOrders(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("orders", out)
	symbols := fs.String("symbols", "", "交易对列表，逗号分隔")
	limit := fs.Int("limit", bot.RecentOrdersLimit(), "每个交易对显示条数")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	result, err := bot.RecentOrders(ctx, strings.Split(*symbols, ","), *limit)
	if err != nil {
		return exitFailure, err
	}
	keys := make([]string, 0, len(result))
	for symbol := range result {
		keys = append(keys, symbol)
	}
	sort.Strings(keys)
	for _, symbol := range keys {
		fmt.Fprintf(out, "== %s ==\n", symbol)
		printOrders(out, result[symbol])
	}
	return exitOK, nil
}

func printOrders(out io.Writer, records []exchange.OrderRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no orders")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER ID\tSYMBOL\tSIDE\tKIND\tSTATUS\tQTY\tFILLED\tPRICE\tAVG\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.OrderID, r.Symbol, r.Side, r.Kind, r.Status, r.OrigQty, r.ExecutedQty, r.Price, r.AvgPrice,
			r.UpdateTime.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runCancel(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("cancel", out)
	symbol := fs.String("symbol", "", "交易对")
	orderID := fs.String("id", "", "订单号")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	if *orderID == "" {
		return exitFailure, fmt.Errorf("%w: 需要 -id", strategy.ErrInvalidParameter)
	}
	res, err := bot.Cancel(ctx, *symbol, *orderID)
	if err != nil {
		return exitFailure, err
	}
	fmt.Fprintf(out, "order %s %s\n", res.OrderID, res.Status)
	return exitOK, nil
}

func runEvents(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("events", out)
	typ := fs.String("type", "", "事件类型")
	runID := fs.String("run", "", "按 run_id 过滤")
	limit := fs.Int("limit", 20, "条数")
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	eventType, ok := monitor.ParseEventType(strings.ToLower(strings.TrimSpace(*typ)))
	if !ok {
		return exitFailure, fmt.Errorf("%w: 未知事件类型 %q", strategy.ErrInvalidParameter, *typ)
	}
	events, err := bot.Events(ctx, monitor.Query{Type: eventType, RunID: *runID, Limit: *limit})
	if err != nil {
		return exitFailure, err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return exitFailure, err
	}
	return exitOK, nil
}

func runServe(ctx context.Context, bot *app.App, args []string, out io.Writer) (int, error) {
	fs := newFlagSet("serve", out)
	if err := parseFlags(fs, args); err != nil {
		return exitFailure, err
	}
	fmt.Fprintln(out, "monitor running, press Ctrl+C to stop")
	<-ctx.Done()
	return exitOK, nil
}
