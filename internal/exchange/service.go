package exchange

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QueryService 聚合多交易对的委托查询。
type QueryService struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewQueryService 创建查询服务。
func NewQueryService(gateway Gateway, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		gateway: gateway,
		logger:  logger,
	}
}

// RecentOrders 并发拉取各交易对最近 limit 笔委托，任一失败即返回错误。
func (s *QueryService) RecentOrders(ctx context.Context, symbols []string, limit int) (map[string][]OrderRecord, error) {
	var (
		mu     sync.Mutex
		result = make(map[string][]OrderRecord, len(symbols))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		group.Go(func() error {
			records, err := s.gateway.ListOrders(groupCtx, symbol, limit)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			mu.Lock()
			result[symbol] = records
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("最近委托查询完成",
		zap.Strings("symbols", symbols),
		zap.Int("limit", limit),
	)

	return result, nil
}
