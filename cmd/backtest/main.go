package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/internal/api/moex"
	"github.com/Alias1177/MoexSignal/internal/baktest"
	"github.com/Alias1177/MoexSignal/internal/config"
	"github.com/Alias1177/MoexSignal/internal/prediction"
	"github.com/Alias1177/MoexSignal/internal/trading/engine"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

func main() {
	days := flag.Int("days", 0, "history depth in days, HISTORY_DAYS when zero")
	trainShare := flag.Float64("train", 0.5, "share of history used to fit the predictor, 0 disables it")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel)

	if *days <= 0 {
		*days = cfg.HistoryDays
	}

	client := moex.NewClient(moex.ClientOptions{
		BaseURL:        cfg.MOEXBaseURL,
		Board:          cfg.MOEXBoard,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
		MaxRetries:     cfg.MaxRetries,
	})
	rule := strategy.Rule{Params: cfg.Strategy, Indicators: cfg.Indicators}

	till := time.Now()
	from := till.AddDate(0, 0, -*days)

	for _, ticker := range cfg.Tickers {
		if ctx.Err() != nil {
			return
		}

		history, err := client.FetchCandles(ctx, ticker, from, till, cfg.Interval)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("Failed to fetch history")
			continue
		}

		report := runTicker(ticker, history, rule, cfg, *trainShare)
		fmt.Println(formatReport(ticker, len(history), report, cfg.BacktestMinProfit))
	}
}

// runTicker fits the predictor on the head of the history and replays the tail,
// so the model never sees the candles it is scored on
func runTicker(ticker string, history []models.Candle, rule strategy.Rule, cfg *config.Config, trainShare float64) baktest.Report {
	replay := history
	var forecaster engine.Forecaster

	if trainShare > 0 && trainShare < 1 {
		split := int(float64(len(history)) * trainShare)
		predictor := prediction.NewPredictor(prediction.Options{Indicators: cfg.Indicators})

		if _, err := predictor.Train(ticker, history[:split]); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Replaying without predictor")
		} else {
			forecaster = predictor
			replay = history[split:]
		}
	}

	return baktest.Replay(replay, rule, baktest.Options{
		InstrumentID:   ticker,
		InitialBalance: cfg.PaperBalance,
		WindowSize:     cfg.WindowSize,
		Risk:           cfg.Risk,
		Forecaster:     forecaster,
	})
}

func formatReport(ticker string, candles int, report baktest.Report, minProfit float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s (%d candles) ===\n", ticker, candles)
	fmt.Fprintf(&b, "Net profit:   %.2f RUB\n", report.Result.NetProfit)
	fmt.Fprintf(&b, "Trades:       %d\n", report.Result.TradeCount)
	fmt.Fprintf(&b, "Final cash:   %.2f RUB\n", report.FinalCash)
	fmt.Fprintf(&b, "Open lot:     %d\n", report.OpenLot)
	fmt.Fprintf(&b, "Max drawdown: %.2f%%\n", report.MaxDrawdown*100)

	verdict := "entries allowed"
	if !baktest.Gate(report.Result, minProfit) {
		verdict = "entries blocked"
	}
	fmt.Fprintf(&b, "Gate:         %s\n", verdict)

	for _, t := range report.Trades {
		fmt.Fprintf(&b, "  %s %-4s %3d @ %.2f  %s\n",
			t.Timestamp.Format("2006-01-02 15:04"), t.Action, t.Quantity, t.Price, t.Reason)
	}

	return b.String()
}

func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, exiting...")
		cancel()
	}()
}

func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}
