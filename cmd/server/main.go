// Package main is the entry point for the pairs-trading engine: a
// fixed-tick statistical-arbitrage service running four pair strategies
// (cointegration, order-book imbalance, correlation/RSI, Bollinger
// mean-reversion) over live Bybit v5 perpetual futures data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/api"
	"github.com/atlas-desktop/pairs-engine/internal/config"
	"github.com/atlas-desktop/pairs-engine/internal/engine"
	"github.com/atlas-desktop/pairs-engine/internal/execution"
	"github.com/atlas-desktop/pairs-engine/internal/marketdata"
	"github.com/atlas-desktop/pairs-engine/internal/orchestrator"
	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/internal/position"
	"github.com/atlas-desktop/pairs-engine/internal/pricehistory"
	"github.com/atlas-desktop/pairs-engine/internal/risk"
	"github.com/atlas-desktop/pairs-engine/internal/signals"
	"github.com/atlas-desktop/pairs-engine/internal/snapshot"
	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configName := flag.String("config", "config", "Config file name (without extension)")
	configPath := flag.String("config-path", "./config", "Config file directory")
	host := flag.String("host", "0.0.0.0", "Metrics/snapshot server host")
	port := flag.Int("port", 9090, "Metrics/snapshot server port")
	dataDir := flag.String("data", "./data", "Data directory created at startup (export paths come from snapshot_path in the config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configName, *configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("starting pairs-engine",
		zap.Bool("tradingEnabled", cfg.TradingEnabled),
		zap.Bool("testnet", cfg.Testnet),
		zap.Int("pairs", len(cfg.Pairs)),
		zap.String("aggregationMode", cfg.AggregationMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	symbols := pairSymbols(cfg.Pairs)

	marketData := marketdata.New(logger, marketdata.Config{
		Testnet: cfg.Testnet,
		Symbols: symbols,
	})

	prices := pricehistory.NewStore()
	vol := risk.NewVolatilityEstimator()

	strategyRegistry := strategy.NewRegistry(logger)
	aggMode := signals.ModeConsensus
	if cfg.AggregationMode == "or" {
		aggMode = signals.ModeOR
	}
	strategyMgr := signals.NewManager(logger, strategyRegistry, signals.Config{Mode: aggMode})

	riskLimits := types.RiskLimits{
		MaxConcurrentPairs: cfg.MaxConcurrentPairs,
		DailyLossLimit:     cfg.DailyLossLimit,
		RiskPerTrade:       cfg.RiskPerTrade,
		MaxPositionSize:    cfg.MaxPositionSize,
		MaxDrawdown:        decimal.NewFromFloat(0.20),
		MaxExposureFrac:    decimal.NewFromFloat(0.80),
	}
	riskAgent := risk.NewAgent(logger, risk.Config{
		Limits:                  riskLimits,
		ZScoreExitThreshold:     cfg.ZScoreExitThreshold,
		ZScoreStoplossThreshold: cfg.ZScoreStoplossThreshold,
		MaxHoldingHours:         24,
	})

	tracker := performance.NewTracker()
	positions := position.NewManager(logger, tracker)

	orch := orchestrator.New(logger, marketData, prices, strategyMgr, riskAgent, positions, vol)

	limiter := execution.NewRateLimiter()
	var broker execution.Broker
	var paperBroker *execution.PaperBroker
	if cfg.TradingEnabled {
		broker = execution.NewBybitBroker(logger, execution.BybitConfig{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Testnet:   cfg.Testnet,
		})
	} else {
		paperBroker = execution.NewPaperBroker(logger, decimal.NewFromInt(10000))
		broker = paperBroker
	}
	orderMgr := execution.NewOrderManager(logger, broker, limiter)

	sessionStart := time.Now()
	snapPath := cfg.SnapshotPath
	perfPath := performancePathFor(snapPath)
	snapWriter := snapshot.NewWriter(snapPath, perfPath, sessionStart)

	eng := engine.New(logger, orch, positions, orderMgr, broker, tracker, snapWriter, cfg.Pairs, 0)

	serverConfig := &types.ServerConfig{
		Host:          *host,
		Port:          *port,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		EnableMetrics: true,
	}
	server := api.NewServer(logger, serverConfig, snapPath, perfPath)

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	if err := marketData.Start(ctx); err != nil {
		logger.Fatal("failed to start market data service", zap.Error(err))
	}

	if paperBroker != nil {
		go feedPaperPrices(ctx, marketData, paperBroker, symbols)
	}

	go eng.Run(ctx)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("metrics/snapshot server stopped", zap.Error(err))
		}
	}()

	logger.Info("pairs-engine started",
		zap.String("metrics", fmt.Sprintf("http://%s:%d/metrics", *host, *port)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	if err := marketData.Stop(); err != nil {
		logger.Error("error stopping market data", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("pairs-engine stopped")
}

// feedPaperPrices keeps the paper broker's fill prices in sync with the
// live market-data feed; a real broker needs no such bridge since it
// quotes its own book.
func feedPaperPrices(ctx context.Context, market *marketdata.Service, broker *execution.PaperBroker, symbols []string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				if price, ok := market.GetPrice(symbol); ok {
					broker.SetPrice(symbol, price)
				}
			}
		}
	}
}

// pairSymbols returns the deduplicated set of symbols the market-data
// service must subscribe to across every configured pair.
func pairSymbols(pairs []types.PairConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range pairs {
		for _, s := range []string{p.SymbolA, p.SymbolB} {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// performancePathFor derives the rolling performance-export path from
// the snapshot path, keeping both exports side by side.
func performancePathFor(snapshotPath string) string {
	const suffix = ".json"
	if len(snapshotPath) > len(suffix) && snapshotPath[len(snapshotPath)-len(suffix):] == suffix {
		return snapshotPath[:len(snapshotPath)-len(suffix)] + "_performance.json"
	}
	return snapshotPath + "_performance.json"
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
