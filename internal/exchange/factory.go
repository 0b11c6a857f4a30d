package exchange

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"futures-orderbot/internal/config"
)

// New 根据 exchange.driver 创建网关。
func New(cfg config.ExchangeConfig, logger *zap.Logger) (Gateway, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverBinance, "":
		return NewBinanceGateway(cfg, logger)
	case config.DriverCCXT:
		return NewClient(cfg, logger)
	case config.DriverPaper:
		return NewPaperGateway(logger), nil
	default:
		return nil, fmt.Errorf("exchange: 不支持的网关驱动 %q", cfg.Driver)
	}
}
