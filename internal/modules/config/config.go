package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"live_bots/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	apiKeyENV         = "APCA_API_KEY_ID"
	apiSecretENV      = "APCA_API_SECRET_KEY"
	apiBaseURLENV     = "APCA_API_BASE_URL"
	databaseDSN       = "DATABASE_DSN"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
)

// BotConfig — один бот = один символ + таймфрейм + стратегия.
// Раньше это был отдельный скрипт на каждую комбинацию.
type BotConfig struct {
	ID        string `yaml:"id"`
	Symbol    string `yaml:"symbol"`    // "BTC/USD" — крипта, "MSFT" — акции
	Timeframe string `yaml:"timeframe"` // "5Min", "15Min", "1Hour"
	Strategy  string `yaml:"strategy"`  // squeeze | scalpz | breakout

	StopLossPct   float64 `yaml:"stop_loss_pct"`   // напр. 0.01 => 1%
	TakeProfitPct float64 `yaml:"take_profit_pct"` // напр. 0.015 => 1.5%
	MaxHoldMin    int     `yaml:"max_hold_min"`    // 0 = без тайм-стопа
	BarLimit      int     `yaml:"bar_limit"`

	TickIntervalSec int `yaml:"tick_interval_sec"`

	// Переопределение риска для конкретного бота (0 = глобальные лимиты)
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
}

// Config ...
type Config struct {
	Alpaca struct {
		KeyID     string `yaml:"key_id"`
		SecretKey string `yaml:"secret_key"`
		BaseURL   string `yaml:"base_url"`
		DataURL   string `yaml:"data_url"`
		StreamURL string `yaml:"stream_url"`
	} `yaml:"alpaca"`

	DB string `yaml:"db_dsn"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Глобальные лимиты риска (доли, 0.02 = 2%)
	Risk models.RiskLimits `yaml:"risk"`

	// Дефолтный тик цикла; боты могут переопределить
	DefaultTickInterval time.Duration `yaml:"-"`
	// Сколько раз ретраим transient-ошибку внутри одного вызова брокера
	BrokerRetries int `yaml:"broker_retries"`

	Bots []BotConfig `yaml:"bots"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Risk: models.RiskLimits{
			RiskPerTradePct: floatFromEnv("RISK_PER_TRADE_PCT", 0.02),
			MaxPositionPct:  floatFromEnv("MAX_POSITION_PCT", 0.10),
			MaxDailyLossPct: floatFromEnv("MAX_DAILY_LOSS_PCT", 0.05),
		},
		DefaultTickInterval: durationFromEnv("TICK_INTERVAL", "60s"),
		BrokerRetries:       intFromEnv("BROKER_RETRIES", 3),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if key := os.Getenv(apiKeyENV); key != "" {
		config.Alpaca.KeyID = key
	}
	if secret := os.Getenv(apiSecretENV); secret != "" {
		config.Alpaca.SecretKey = secret
	}
	if base := os.Getenv(apiBaseURLENV); base != "" {
		config.Alpaca.BaseURL = base
	}
	if config.Alpaca.BaseURL == "" {
		config.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if config.Alpaca.DataURL == "" {
		config.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	if config.Alpaca.StreamURL == "" {
		config.Alpaca.StreamURL = "wss://stream.data.alpaca.markets/v1beta3/crypto/us"
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "" {
		return fmt.Errorf("alpaca creds are required (%s/%s)", apiKeyENV, apiSecretENV)
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("bots list is empty")
	}

	seen := map[string]bool{}
	for i := range c.Bots {
		b := &c.Bots[i]
		if b.ID == "" || b.Symbol == "" {
			return fmt.Errorf("bot #%d: id and symbol are required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate bot id %q", b.ID)
		}
		seen[b.ID] = true

		// подставляем дефолты
		if b.Timeframe == "" {
			b.Timeframe = "15Min"
		}
		if b.Strategy == "" {
			b.Strategy = "squeeze"
		}
		if b.StopLossPct <= 0 {
			b.StopLossPct = 0.01
		}
		if b.TakeProfitPct <= 0 {
			b.TakeProfitPct = 0.015
		}
		if b.BarLimit <= 0 {
			b.BarLimit = 200
		}
		if b.TickIntervalSec <= 0 {
			b.TickIntervalSec = int(c.DefaultTickInterval.Seconds())
		}
	}

	r := c.Risk
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 0.2 {
		return fmt.Errorf("risk_per_trade_pct out of range: %v", r.RiskPerTradePct)
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct out of range: %v", r.MaxPositionPct)
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > 1 {
		return fmt.Errorf("max_daily_loss_pct out of range: %v", r.MaxDailyLossPct)
	}
	return nil
}

// Tick — интервал control loop бота.
func (b BotConfig) Tick() time.Duration {
	return time.Duration(b.TickIntervalSec) * time.Second
}

// Hold — максимум удержания позиции (0 = без лимита).
func (b BotConfig) Hold() time.Duration {
	return time.Duration(b.MaxHoldMin) * time.Minute
}

// LimitsFor — глобальные лимиты с учётом пер-ботового override.
func (c *Config) LimitsFor(b BotConfig) models.RiskLimits {
	limits := c.Risk
	if b.RiskPerTradePct > 0 {
		limits.RiskPerTradePct = b.RiskPerTradePct
	}
	return limits
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := def
	if v := os.Getenv(key); v != "" {
		val = v
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
