// Command zenlend runs the collateralized lending dashboard: it polls a
// market price source, tracks collateral positions, computes risk
// snapshots and serves the HTTP/SSE API.
//
// Usage:
//
//	zenlend --config config.yaml
//	zenlend setup          (interactive configuration wizard)
//	zenlend                (uses CLI arguments)
//
// Optional environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY, HYPERLIQUID_API_URL
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenlend/zenlend/config"
	"github.com/zenlend/zenlend/internal/clients"
	"github.com/zenlend/zenlend/internal/services/analytics"
	"github.com/zenlend/zenlend/internal/services/commitments"
	"github.com/zenlend/zenlend/internal/services/positions"
	"github.com/zenlend/zenlend/internal/services/pricefeed"
	"github.com/zenlend/zenlend/internal/services/pricesource"
	"github.com/zenlend/zenlend/internal/services/protocol"
	"github.com/zenlend/zenlend/internal/services/riskengine"
	"github.com/zenlend/zenlend/internal/setup"
	"github.com/zenlend/zenlend/internal/storage/positionjournal"
	"github.com/zenlend/zenlend/internal/web"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		os.Args = []string{os.Args[0], "--config", "config.gen.yaml"}
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	source, err := buildPriceSource(cfg)
	if err != nil {
		logger.Fatal("build price source", zap.Error(err))
	}

	journal, err := positionjournal.New(cfg.JournalDir)
	if err != nil {
		logger.Fatal("open position journal", zap.Error(err))
	}
	defer journal.Close()

	records, err := journal.Replay()
	if err != nil {
		logger.Fatal("replay position journal", zap.Error(err))
	}
	restored := positionjournal.RestorePositions(records)
	if len(restored) > 0 {
		logger.Info("restored positions from journal", zap.Int("count", len(restored)))
	}

	feed := pricefeed.New(source, cfg.Asset, cfg.FallbackPrice, logger)
	feed.SetFetchTimeout(cfg.FetchTimeout)

	params := riskengine.Params{
		MinRatioPct:      cfg.MinRatioPct,
		LiquidationRatio: cfg.LiquidationRatio,
	}

	storeOpts := []positions.Option{
		positions.WithJournal(journal),
		positions.WithRestoredPositions(restored),
	}
	if cfg.CommitmentAPIURL != "" {
		storeOpts = append(storeOpts, positions.WithCommitter(commitments.NewClient(cfg.CommitmentAPIURL, logger)))
	}
	store := positions.NewStore(feed, params, logger, storeOpts...)

	history := analytics.NewHistory(cfg.Asset, 0)
	aggregator := protocol.New(feed, store, history, params, logger)

	server := web.NewServer(cfg.ListenAddr, aggregator, feed, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return aggregator.Run(gctx, cfg.PollPriceInterval)
	})
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.TLSDomains, cfg.TLSCacheDir)
		}
		return server.Start(gctx)
	})

	logger.Info("dashboard started",
		zap.String("platform", cfg.Platform),
		zap.String("asset", cfg.Asset),
		zap.String("listen", cfg.ListenAddr))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
	logger.Info("dashboard stopped")
}

func buildPriceSource(cfg config.Config) (pricesource.Source, error) {
	switch cfg.Platform {
	case "coingecko":
		return pricesource.NewCoinGecko(""), nil
	case "binance":
		client := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		return pricesource.NewBinance(client), nil
	case "bybit":
		client := clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
		return pricesource.NewBybit(client), nil
	case "hyperliquid":
		client, err := clients.NewHyperliquidClient(
			os.Getenv("HYPERLIQUID_PRIVATE_KEY"),
			os.Getenv("HYPERLIQUID_API_URL"))
		if err != nil {
			return nil, err
		}
		return pricesource.NewHyperliquid(client.Info()), nil
	}
	return nil, errors.Errorf("unsupported platform %q", cfg.Platform)
}
