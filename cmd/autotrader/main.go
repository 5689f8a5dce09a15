package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/internal/api/moex"
	"github.com/Alias1177/MoexSignal/internal/autotrade"
	"github.com/Alias1177/MoexSignal/internal/broker/paper"
	"github.com/Alias1177/MoexSignal/internal/config"
	"github.com/Alias1177/MoexSignal/internal/database"
	"github.com/Alias1177/MoexSignal/internal/notify"
	"github.com/Alias1177/MoexSignal/internal/prediction"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

func main() {
	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandling(cancel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting MOEX autotrader")
	printConfig(cfg)

	candles := moex.NewClient(moex.ClientOptions{
		BaseURL:        cfg.MOEXBaseURL,
		Board:          cfg.MOEXBoard,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
		MaxRetries:     cfg.MaxRetries,
	})
	account := paper.NewAccount(cfg.PaperBalance)

	sinks := notify.Fanout{notify.NewLogSink()}
	deps := autotrade.Deps{
		Candles:  candles,
		Account:  account,
		Executor: account,
	}

	if cfg.DB.Host != "" {
		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if recent, err := db.RecentTrades(ctx, cfg.UserID, 5); err != nil {
			log.Warn().Err(err).Msg("Failed to read trade history")
		} else {
			for _, t := range recent {
				log.Info().
					Str("ticker", t.InstrumentID).
					Str("action", string(t.Action)).
					Int64("quantity", t.Quantity).
					Float64("price", t.Price).
					Time("at", t.Timestamp).
					Msg("Recent trade")
			}
		}

		deps.Store = db
		sinks = append(sinks, db)
	} else {
		log.Warn().Msg("DB_HOST not set, trades and positions are not persisted")
	}

	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.ChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram bot")
		}
		sinks = append(sinks, tg)
	}
	deps.Sink = sinks

	trader := autotrade.New(deps, autotrade.Options{
		UserID:            cfg.UserID,
		Tickers:           cfg.Tickers,
		Interval:          cfg.Interval,
		HistoryDays:       cfg.HistoryDays,
		WindowSize:        cfg.WindowSize,
		CycleInterval:     cfg.CycleInterval(),
		RetrainInterval:   cfg.RetrainInterval(),
		Concurrency:       cfg.Concurrency,
		EnableBacktest:    cfg.EnableBacktest,
		BacktestMinProfit: cfg.BacktestMinProfit,
		Rule:              strategy.Rule{Params: cfg.Strategy, Indicators: cfg.Indicators},
		Risk:              cfg.Risk,
		Prediction:        prediction.Options{WindowSize: prediction.DefaultWindowSize},
	})

	if err := trader.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("Starting without persisted positions")
	}

	if err := trader.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Autotrader stopped with error")
	}
}

// setupSignalHandling cancels the context on SIGINT/SIGTERM so the current cycle can finish
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, stopping...")
		cancel()
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

func printConfig(cfg *config.Config) {
	log.Info().
		Strs("Tickers", cfg.Tickers).
		Str("Board", cfg.MOEXBoard).
		Str("Interval", cfg.Interval).
		Int("HistoryDays", cfg.HistoryDays).
		Int("ExpectedCandles", models.CalculateCandlesForHistory(cfg.Interval, cfg.HistoryDays)).
		Int("WindowSize", cfg.WindowSize).
		Dur("Cycle", cfg.CycleInterval()).
		Dur("Retrain", cfg.RetrainInterval()).
		Int("RSIPeriod", cfg.Indicators.RSIPeriod).
		Int("MACDFastPeriod", cfg.Indicators.MACDFastPeriod).
		Int("MACDSlowPeriod", cfg.Indicators.MACDSlowPeriod).
		Int("MACDSignalPeriod", cfg.Indicators.MACDSignalPeriod).
		Int("BBPeriod", cfg.Indicators.BBPeriod).
		Float64("BBStdDev", cfg.Indicators.BBStdDev).
		Int("ATRPeriod", cfg.Indicators.ATRPeriod).
		Float64("PaperBalance", cfg.PaperBalance).
		Bool("EnableBacktest", cfg.EnableBacktest).
		Float64("BacktestMinProfit", cfg.BacktestMinProfit).
		Bool("Telegram", cfg.TelegramBotToken != "").
		Bool("Database", cfg.DB.Host != "").
		Msg("Configuration loaded")
}
