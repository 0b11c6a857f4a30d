package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "orderbot"

	// TestnetBaseURL 为 Binance USDⓈ-M 合约测试网地址。
	TestnetBaseURL = "https://testnet.binancefuture.com"
)

// ErrFatalConfiguration 表示凭证或连接配置无法使用，策略不会启动。
var ErrFatalConfiguration = errors.New("fatal configuration error")

// Override 在校验前修改配置。
type Override func(*Config)

// WithPaperDriver 强制使用模拟网关，此时不要求交易所凭证。
func WithPaperDriver() Override {
	return func(cfg *Config) {
		cfg.Exchange.Driver = DriverPaper
	}
}

// Load 读取配置文件并结合环境变量返回 Config。
// 配置文件不存在时仅使用默认值与环境变量。
func Load(path string, overrides ...Override) (*Config, error) {
	// .env 为可选项
	_ = godotenv.Load()

	v := viper.New()

	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("%w: 未找到配置文件 %q: %v", ErrFatalConfiguration, path, err)
			}
		default:
			return nil, fmt.Errorf("%w: 读取配置文件失败: %v", ErrFatalConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: 解析配置失败: %v", ErrFatalConfiguration, err)
	}

	applyCredentialEnv(&cfg)
	cfg.Exchange.Driver = strings.ToLower(strings.TrimSpace(cfg.Exchange.Driver))
	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfiguration, err)
	}

	return &cfg, nil
}

// applyCredentialEnv 兼容 API_KEY / API_SECRET 环境变量。
func applyCredentialEnv(cfg *Config) {
	if cfg.Exchange.APIKey == "" {
		cfg.Exchange.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	if cfg.Exchange.APISecret == "" {
		cfg.Exchange.APISecret = strings.TrimSpace(os.Getenv("API_SECRET"))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.driver", DriverBinance)
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.base_url", "")
	v.SetDefault("exchange.use_testnet", true)
	v.SetDefault("exchange.http_timeout", "15s")
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("execution.confirm", true)
	v.SetDefault("execution.default_time_in_force", "GTC")
	v.SetDefault("execution.recent_orders_limit", 5)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "data/orderbot.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "0s")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout", "bot.log"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.addr", ":9108")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
