package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/Alias1177/MoexSignal/internal/database"
	"github.com/Alias1177/MoexSignal/internal/trading/risk"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

// Config holds all application configuration
type Config struct {
	LogLevel string

	TelegramBotToken string
	ChatID           int64
	UserID           int64

	DB database.ConnectionParams

	MOEXBaseURL    string
	MOEXBoard      string
	Tickers        []string
	Interval       string
	HistoryDays    int
	WindowSize     int
	CycleMinutes   int
	RetrainHours   int
	RequestTimeout int // seconds
	RequestsPerSec int
	MaxRetries     int
	Concurrency    int

	Indicators models.IndicatorConfig
	Strategy   strategy.Params
	Risk       risk.Params

	PaperBalance      float64
	BacktestMinProfit float64
	EnableBacktest    bool
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.ChatID = getEnvInt64WithDefault("CHAT_ID", 0)
	cfg.UserID = getEnvInt64WithDefault("USER_ID", 1)

	cfg.DB = database.ConnectionParams{
		Host:     os.Getenv("DB_HOST"),
		Port:     getEnvWithDefault("DB_PORT", "5432"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
	}

	cfg.MOEXBaseURL = getEnvWithDefault("MOEX_BASE_URL", "https://iss.moex.com")
	cfg.MOEXBoard = getEnvWithDefault("MOEX_BOARD", "TQBR")
	cfg.Tickers = parseList(getEnvWithDefault("TICKERS", "SBER,GAZP,LKOH,YNDX,ROSN"))
	cfg.Interval = getEnvWithDefault("INTERVAL", "60")
	cfg.HistoryDays = getEnvIntWithDefault("HISTORY_DAYS", 30)
	cfg.WindowSize = getEnvIntWithDefault("WINDOW_SIZE", 100)
	cfg.CycleMinutes = getEnvIntWithDefault("CYCLE_MINUTES", 5)
	cfg.RetrainHours = getEnvIntWithDefault("RETRAIN_HOURS", 24)
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.MaxRetries = getEnvIntWithDefault("MAX_RETRIES", 3)
	cfg.Concurrency = getEnvIntWithDefault("CONCURRENCY", 4)

	cfg.Indicators = models.IndicatorConfig{
		RSIPeriod:        getEnvIntWithDefault("RSI_PERIOD", 14),
		MACDFastPeriod:   getEnvIntWithDefault("MACD_FAST_PERIOD", 12),
		MACDSlowPeriod:   getEnvIntWithDefault("MACD_SLOW_PERIOD", 26),
		MACDSignalPeriod: getEnvIntWithDefault("MACD_SIGNAL_PERIOD", 9),
		BBPeriod:         getEnvIntWithDefault("BB_PERIOD", 20),
		BBStdDev:         getEnvFloatWithDefault("BB_STD_DEV", 2.0),
		ATRPeriod:        getEnvIntWithDefault("ATR_PERIOD", 14),
	}

	cfg.Strategy = strategy.Params{
		BuyRSI:            getEnvFloatWithDefault("BUY_RSI", 30),
		SellRSI:           getEnvFloatWithDefault("SELL_RSI", 70),
		PredictBuyMargin:  getEnvFloatWithDefault("PREDICT_BUY_MARGIN", 1.02),
		PredictSellMargin: getEnvFloatWithDefault("PREDICT_SELL_MARGIN", 0.98),
	}

	cfg.Risk = risk.Params{
		BalanceFraction: getEnvFloatWithDefault("BALANCE_FRACTION", 0.10),
		MaxLot:          int64(getEnvIntWithDefault("MAX_LOT", 10)),
		MaxSellPerCycle: int64(getEnvIntWithDefault("MAX_SELL_PER_CYCLE", 10)),
		StopATRMult:     getEnvFloatWithDefault("STOP_ATR_MULT", 2),
		TakeATRMult:     getEnvFloatWithDefault("TAKE_ATR_MULT", 4),
		TrailATRMult:    getEnvFloatWithDefault("TRAIL_ATR_MULT", 2),
	}

	cfg.PaperBalance = getEnvFloatWithDefault("PAPER_BALANCE", 100000)
	cfg.BacktestMinProfit = getEnvFloatWithDefault("BACKTEST_MIN_PROFIT", 0)
	cfg.EnableBacktest = getEnvBoolWithDefault("ENABLE_BACKTEST", true)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validIntervals = map[string]bool{"1": true, "10": true, "60": true, "24": true, "7": true, "31": true}

// Validate rejects settings the engine cannot work with
func (c *Config) Validate() error {
	var errs []error

	if len(c.Tickers) == 0 {
		errs = append(errs, errors.New("TICKERS is empty"))
	}
	if !validIntervals[c.Interval] {
		errs = append(errs, fmt.Errorf("INTERVAL %q is not an ISS interval", c.Interval))
	}
	if c.HistoryDays <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_DAYS must be positive, got %d", c.HistoryDays))
	}
	if lookback := c.Indicators.Lookback(); c.WindowSize < lookback {
		errs = append(errs, fmt.Errorf("WINDOW_SIZE %d is shorter than the indicator lookback %d", c.WindowSize, lookback))
	}
	if lookback := c.Indicators.Lookback(); validIntervals[c.Interval] && c.HistoryDays > 0 {
		if candles := models.CalculateCandlesForHistory(c.Interval, c.HistoryDays); candles < lookback {
			errs = append(errs, fmt.Errorf("HISTORY_DAYS %d at INTERVAL %s gives about %d candles, the indicator lookback needs %d",
				c.HistoryDays, c.Interval, candles, lookback))
		}
	}
	if c.CycleMinutes <= 0 {
		errs = append(errs, fmt.Errorf("CYCLE_MINUTES must be positive, got %d", c.CycleMinutes))
	}
	if c.Indicators.RSIPeriod <= 0 || c.Indicators.BBPeriod <= 0 || c.Indicators.ATRPeriod <= 0 ||
		c.Indicators.MACDFastPeriod <= 0 || c.Indicators.MACDSignalPeriod <= 0 {
		errs = append(errs, errors.New("indicator periods must be positive"))
	}
	if c.Indicators.MACDFastPeriod >= c.Indicators.MACDSlowPeriod {
		errs = append(errs, fmt.Errorf("MACD fast period %d must be below slow period %d",
			c.Indicators.MACDFastPeriod, c.Indicators.MACDSlowPeriod))
	}
	if c.Risk.BalanceFraction <= 0 || c.Risk.BalanceFraction > 1 {
		errs = append(errs, fmt.Errorf("BALANCE_FRACTION must be in (0, 1], got %.2f", c.Risk.BalanceFraction))
	}
	if c.Risk.MaxLot <= 0 || c.Risk.MaxSellPerCycle <= 0 {
		errs = append(errs, errors.New("MAX_LOT and MAX_SELL_PER_CYCLE must be positive"))
	}
	if c.PaperBalance <= 0 {
		errs = append(errs, fmt.Errorf("PAPER_BALANCE must be positive, got %.2f", c.PaperBalance))
	}
	if c.TelegramBotToken != "" && c.ChatID == 0 {
		errs = append(errs, errors.New("CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}

	return multierr.Combine(errs...)
}

// CycleInterval is the pause between autotrading cycles
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleMinutes) * time.Minute
}

func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainHours) * time.Hour
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid number, using default")
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func parseList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	return items
}
