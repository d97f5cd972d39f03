// Command mirror runs the live copy-trading pipeline: stream pending
// transactions, match them against the alpha wallet set, validate candidate
// tokens and mirror approved buys, managing the resulting positions until
// shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"alpha-mirror/internal/config"
	"alpha-mirror/internal/decoder"
	"alpha-mirror/internal/engine"
	"alpha-mirror/internal/ethereum"
	"alpha-mirror/internal/exchange"
	"alpha-mirror/internal/ingestion"
	"alpha-mirror/internal/observability"
	"alpha-mirror/internal/orchestrator"
	"alpha-mirror/internal/registry"
	"alpha-mirror/internal/storage"
	chstore "alpha-mirror/internal/storage/clickhouse"
	"alpha-mirror/internal/storage/memory"
	"alpha-mirror/internal/storage/migrations"
	pgstore "alpha-mirror/internal/storage/postgres"
	"alpha-mirror/internal/trader"
	"alpha-mirror/internal/validation"
)

func main() {
	configPath := flag.String("config", "config.env", "path to config.env (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mirror: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Alpha wallet set. An empty set is a valid run: the pipeline idles.
	wallets := registry.New()
	loaded, err := wallets.LoadFile(cfg.WalletsFile)
	if err != nil {
		return fmt.Errorf("load wallets from %s: %w", cfg.WalletsFile, err)
	}
	logger.Info("alpha wallets loaded",
		zap.Int("count", loaded), zap.String("file", cfg.WalletsFile))

	// Chain access.
	rpcClient, err := ethereum.DialRPC(ctx, cfg.NodeRPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc node: %w", err)
	}
	defer rpcClient.Close()
	wsClient := ethereum.NewWSClient(cfg.NodeWSURL, nil)

	// Aggregator gateway. A failing ping is fatal: nothing downstream works
	// without it.
	gateway := exchange.NewClient(exchange.Credentials{
		APIKey:     cfg.ExchangeAPIKey,
		SecretKey:  cfg.ExchangeSecretKey,
		Passphrase: cfg.ExchangePassphrase,
	}, cfg.WalletAddress, nil, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = gateway.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	metrics := observability.NewMetrics("")
	gateway.Instrument(metrics)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	validator, err := validation.New(
		validation.NewEtherscanClient(cfg.EtherscanAPIKey, ""),
		gateway,
		validation.NewHoneypotClient(""),
		rpcClient,
		validation.Options{
			MinLiquidityUSD:             cfg.MinLiquidityUSD,
			CacheCapacity:               cfg.ValidationCacheCapacity,
			AssumeSafeOnHoneypotError:   cfg.AssumeSafeOnHoneypotError,
			AssumeRenouncedWithoutOwner: cfg.AssumeRenouncedWithoutOwner,
			WalletAddress:               common.HexToAddress(cfg.WalletAddress),
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}
	validator.Instrument(metrics)
	if cfg.BlacklistFile != "" {
		added, err := validator.ImportBlacklist(cfg.BlacklistFile)
		if err != nil {
			return fmt.Errorf("import blacklist: %w", err)
		}
		logger.Info("blacklist imported",
			zap.Int("entries", added), zap.String("file", cfg.BlacklistFile))
	}

	journal, snapshots, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var trades engine.Trader
	switch cfg.TradingMode {
	case config.TradingModeLive:
		trades, err = trader.NewLive(gateway, trader.LiveConfig{
			ETHPriceUSD: cfg.MirrorETHPriceUSD,
		}, logger)
		if err != nil {
			return fmt.Errorf("build live trader: %w", err)
		}
		logger.Warn("live trading enabled; swaps will spend real funds")
	default:
		trades = trader.NewPaper(gateway, logger)
	}

	book, err := engine.New(engine.Config{
		StartingCapital:     cfg.StartingCapital,
		MaxPositionFraction: cfg.MaxPositionFraction,
		MaxOpenPositions:    cfg.MaxOpenPositions,
		StopLossFraction:    cfg.StopLossFraction,
		TakeProfitMultiple:  cfg.TakeProfitMultiple,
		MaxHold:             cfg.MaxHold,
		MirrorETHPriceUSD:   cfg.MirrorETHPriceUSD,
	}, trades, &engine.Options{
		Journal:   journal,
		Snapshots: snapshots,
		Prices:    gateway,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	runner := ingestion.NewRunner(wsClient, rpcClient, wallets, decoder.New(), nil, metrics, logger)

	pipeline, err := orchestrator.New(orchestrator.Options{
		Source:    runner,
		Validator: validator,
		Book:      book,
		Prices:    gateway,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("mirror starting",
		zap.String("mode", cfg.TradingMode),
		zap.Float64("capital", cfg.StartingCapital),
		zap.Int("wallets", wallets.Len()))

	err = pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mirror stopped")
	return nil
}

// buildStores wires the optional persistence backends. Absent DSNs fall
// back to the in-memory journal and no snapshot sink.
func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.TradeJournal, storage.SnapshotStore, func(), error) {
	var (
		journal   storage.TradeJournal = memory.NewTradeJournal()
		snapshots storage.SnapshotStore
		closers   []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, func() {}, fmt.Errorf("postgres migrations: %w", err)
		}
		journal = pgstore.NewTradeJournal(pool)
		logger.Info("trade journal on postgres")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, func() {}, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		snapshots = chstore.NewSnapshotStore(conn)
		logger.Info("position snapshots on clickhouse")
	}

	return journal, snapshots, cleanup, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
