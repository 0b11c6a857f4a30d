package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"futures-orderbot/internal/exchange"
	"futures-orderbot/internal/execution"
	"futures-orderbot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS orderbot_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orderbot_events_type ON orderbot_events(event_type);
CREATE INDEX IF NOT EXISTS idx_orderbot_events_run ON orderbot_events(run_id);
`

// Service 负责持久化事件日志。写入失败只记录告警，不影响下单流程。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ execution.Recorder = (*Service)(nil)

// NewService 初始化事件服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := st.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return &Service{
		db:     st.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orderbot_events (event_type, run_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.RunID, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	return nil
}

// RecordLeg 记录单腿结果。
func (s *Service) RecordLeg(ctx context.Context, report execution.Report, outcome execution.Outcome) {
	s.record(ctx, Event{
		Type:      EventLegDispatched,
		RunID:     report.RunID,
		Timestamp: outcome.SentAt,
		Payload: LegPayload{
			Strategy: report.Strategy,
			Symbol:   report.Symbol,
			Planned:  report.Planned,
			Outcome:  outcome,
		},
	}, "记录下单事件失败")
}

// RecordReport 记录策略汇总。
func (s *Service) RecordReport(ctx context.Context, report execution.Report) {
	s.record(ctx, Event{
		Type:      EventStrategyCompleted,
		RunID:     report.RunID,
		Timestamp: report.FinishedAt,
		Payload: StrategyPayload{
			Strategy:  report.Strategy,
			Symbol:    report.Symbol,
			Result:    report.Result(),
			Summary:   report.Summary(),
			Planned:   report.Planned,
			Total:     report.Total,
			Accepted:  report.Accepted,
			Rejected:  report.Rejected,
			Cancelled: report.Cancelled,
			OrderIDs:  report.OrderIDs(),
			Elapsed:   report.FinishedAt.Sub(report.StartedAt),
		},
	}, "记录策略事件失败")
}

// RecordQuery 记录查单结果。
func (s *Service) RecordQuery(ctx context.Context, symbol string, orders []exchange.OrderRecord) {
	s.record(ctx, Event{
		Type:    EventOrderQuery,
		Payload: OrderQueryPayload{Symbol: symbol, Orders: orders},
	}, "记录查单事件失败")
}

// RecordCancel 记录撤单结果，err 不为空时记录失败原因。
func (s *Service) RecordCancel(ctx context.Context, symbol, orderID string, res exchange.CancelResult, err error) {
	payload := CancelPayload{Symbol: symbol, OrderID: orderID, Status: res.Status}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, Event{Type: EventOrderCancel, Payload: payload}, "记录撤单事件失败")
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, Event{Type: EventError, Payload: payload}, "记录异常事件失败")
}

func (s *Service) record(ctx context.Context, event Event, failMsg string) {
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn(failMsg, zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// MaxListLimit 为单次检索返回的最大条数。
const MaxListLimit = 1000

// Query 描述事件检索条件，零值表示不过滤。
type Query struct {
	Type  EventType
	RunID string
	Limit int
}

// ListEvents 按条件检索最近事件，最新的在前。
func (s *Service) ListEvents(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT id, event_type, run_id, payload, created_at FROM orderbot_events WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if q.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(q.Type))
	}
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			id      int64
			typ     string
			runID   string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &runID, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Time{}
		}

		events = append(events, Event{
			ID:        id,
			Type:      EventType(typ),
			RunID:     runID,
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}
	return events, nil
}
