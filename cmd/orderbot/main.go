package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"futures-orderbot/internal/app"
	"futures-orderbot/internal/config"
	"futures-orderbot/internal/log"
	"futures-orderbot/internal/strategy"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitRejected = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("orderbot", flag.ContinueOnError)
	global.SetOutput(stderr)
	var (
		configPath string
		assumeYes  bool
		dryRun     bool
	)
	global.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	global.BoolVar(&assumeYes, "yes", false, "跳过下单确认")
	global.BoolVar(&dryRun, "dry-run", false, "使用模拟网关，不发送真实委托")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return exitFailure
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return exitFailure
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "未知命令 %q\n", rest[0])
		usage(global)
		return exitFailure
	}

	var overrides []config.Override
	if dryRun {
		overrides = append(overrides, config.WithPaperDriver())
	}
	cfg, err := config.Load(configPath, overrides...)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return exitFailure
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败: %v\n", err)
		return exitFailure
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := app.New(ctx, cfg, logger, app.Options{
		DryRun:    dryRun,
		AssumeYes: assumeYes,
		In:        stdin,
		Out:       stdout,
	})
	if err != nil {
		logger.Error("初始化失败", zap.Error(err))
		fmt.Fprintf(stderr, "初始化失败: %v\n", err)
		return exitFailure
	}

	srv, err := bot.StartMonitor(ctx)
	if err != nil {
		logger.Warn("监控接口启动失败，继续执行", zap.Error(err))
	}
	defer func() {
		if err := bot.Shutdown(context.Background(), srv); err != nil {
			logger.Warn("释放资源失败", zap.Error(err))
		}
	}()

	code, err := cmd.run(ctx, bot, rest[1:], stdout)
	if err != nil {
		return reportError(stderr, logger, err)
	}
	return code
}

func reportError(stderr io.Writer, logger *zap.Logger, err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, app.ErrAborted):
		return exitOK
	case errors.Is(err, strategy.ErrInvalidParameter):
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
	case errors.Is(err, config.ErrFatalConfiguration):
		fmt.Fprintf(stderr, "配置错误: %v\n", err)
	default:
		fmt.Fprintf(stderr, "执行失败: %v\n", err)
	}
	logger.Error("命令执行失败", zap.Error(err))
	return exitFailure
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "用法: orderbot [-config path] [-yes] [-dry-run] <command> [flags]")
	fmt.Fprintln(out, "\n命令:")
	for _, name := range commandOrder {
		fmt.Fprintf(out, "  %-11s %s\n", name, commands[name].help)
	}
	fmt.Fprintln(out, "\n全局参数:")
	fs.PrintDefaults()
}
