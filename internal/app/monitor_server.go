package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"futures-orderbot/internal/metrics"
	"futures-orderbot/internal/monitor"
)

// MonitorServer 暴露 /events 与 /metrics。
type MonitorServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger

	once sync.Once
	err  error
}

// StartMonitor 在 monitor.enabled 时启动监控接口，未启用时返回 nil。
// ctx 结束后服务自动关闭。
func (a *App) StartMonitor(ctx context.Context) (*MonitorServer, error) {
	if !a.cfg.Monitor.Enabled || a.monitor == nil {
		return nil, nil
	}
	return startMonitorServer(ctx, a.cfg.Monitor.Addr, newMonitorHandler(a.monitor, a.metrics, a.logger), a.logger)
}

func newMonitorHandler(svc *monitor.Service, rec *metrics.Recorder, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				limit = min(v, monitor.MaxListLimit)
			}
		}

		eventType, ok := monitor.ParseEventType(strings.ToLower(strings.TrimSpace(q.Get("type"))))
		if !ok {
			http.Error(w, "unknown event type", http.StatusBadRequest)
			return
		}

		events, err := svc.ListEvents(r.Context(), monitor.Query{
			Type:  eventType,
			RunID: strings.TrimSpace(q.Get("run_id")),
			Limit: limit,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})
	if rec != nil {
		mux.Handle("/metrics", rec.Handler())
	}
	return mux
}

func startMonitorServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) (*MonitorServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	m := &MonitorServer{
		srv:      &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Shutdown(shutdownCtx); err != nil {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", ln.Addr().String()))
	return m, nil
}

// Addr 返回实际监听地址。
func (m *MonitorServer) Addr() string {
	return m.listener.Addr().String()
}

// Shutdown 优雅关闭，可重复调用。
func (m *MonitorServer) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		if err := m.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.err = err
		}
	})
	return m.err
}
