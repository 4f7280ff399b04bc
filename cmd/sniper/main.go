// Command sniper runs the token sniping engine: it watches a discovery feed
// for new listings, screens candidates, buys through a trade aggregator and
// manages tiered exits under a process-wide circuit breaker.
//
// Usage:
//
//	sniper -config config.yaml
//	sniper -setup          (interactive configuration wizard)
//	sniper -dryrun         (simulated venue, no real orders)
//
// Optional environment variables (also read from .env):
//
//	AGGREGATOR_API_KEY  trade aggregator credentials
//	TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID  operator alerts
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/config"
	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/metrics"
	"github.com/vadiminshakov/sniper/internal/notify"
	"github.com/vadiminshakov/sniper/internal/services/breaker"
	"github.com/vadiminshakov/sniper/internal/services/detector"
	"github.com/vadiminshakov/sniper/internal/services/executor"
	"github.com/vadiminshakov/sniper/internal/services/manager"
	"github.com/vadiminshakov/sniper/internal/services/pricer"
	"github.com/vadiminshakov/sniper/internal/services/security"
	"github.com/vadiminshakov/sniper/internal/services/sniper"
	"github.com/vadiminshakov/sniper/internal/setup"
	"github.com/vadiminshakov/sniper/internal/storage/history"
	"github.com/vadiminshakov/sniper/internal/storage/positions"
	"github.com/vadiminshakov/sniper/internal/web"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to yaml config")
	dryRun := flag.Bool("dryrun", false, "force simulated venue")
	setupMode := flag.Bool("setup", false, "run interactive setup wizard")
	flag.Parse()

	if *setupMode {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		*configPath = "config.gen.yaml"
	}

	cfg, err := config.Load(*configPath, *dryRun)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage
	journal, err := positions.NewWALStore(cfg.JournalDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	archive, err := history.NewRepository(cfg.HistoryPath, logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	// alerts
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	notifier := notify.New(logger, senders...)

	// safety
	brk := breaker.New(breaker.Limits{
		MaxDailyLoss:           cfg.MaxDailyLoss,
		MaxSingleLoss:          cfg.MaxSingleLoss,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		Cooldown:               cfg.BreakerCooldown,
	}, logger)
	brk.OnStateChange(func(change breaker.StateChange) {
		if change.Opened {
			metrics.BreakerState.Set(1)
			notifier.NotifyAsync("circuit breaker OPENED: " + change.Reason)
		} else {
			metrics.BreakerState.Set(0)
			notifier.NotifyAsync("circuit breaker closed, trading resumed")
		}
	})

	// venue plumbing
	simulated := cfg.DryRun || cfg.Venue == domain.VenueSimulate

	var (
		price    pricer.Pricer
		exec     executor.Executor
		balancer executor.Balancer
		feed     detector.Detector
	)
	if simulated {
		sim := pricer.NewSimulatePricer()
		simExec := executor.NewSimulateExecutor(sim, cfg.BuyAmount.Mul(decimal.NewFromInt(100)), logger)
		price, exec, balancer = sim, simExec, simExec

		// scripted listings whose quotes climb through the exit ladder, so a
		// dry run exercises the whole entry and exit path
		scripted := detector.SyntheticEvents(3)
		for _, event := range scripted {
			sim.SetPrice(event.Asset, decimal.NewFromInt(1))
			go sim.Walk(ctx, event.Asset, decimal.NewFromFloat(1.02), cfg.MonitorInterval)
		}
		feed = detector.NewSimulateDetector(scripted, 3*time.Second)
		logger.Info("running against simulated venue", zap.Int("scripted_listings", len(scripted)))
	} else {
		dex := executor.NewDexExecutor(cfg.ExecutorURL, cfg.AggregatorAPIKey)
		price = pricer.NewDexPricer(cfg.PricerURL)
		exec, balancer = dex, dex
		feed = detector.NewWSDetector(cfg.FeedURL, cfg.Venue, logger)
	}

	// reference quote, purely informational
	ref := pricer.NewReferencePricer(cfg.ReferenceSymbol)
	if quote, err := ref.QuoteUSD(ctx); err != nil {
		logger.Warn("reference quote unavailable", zap.Error(err))
	} else {
		logger.Info("reference quote", zap.String("symbol", cfg.ReferenceSymbol), zap.String("usd", quote.String()))
	}

	// exit side
	mgr, err := manager.New(manager.Config{
		Tiers:         cfg.Tiers,
		CheckInterval: cfg.MonitorInterval,
		MaxHold:       cfg.MaxHoldDuration,
		MaxSlippage:   cfg.MaxSlippage,
	}, manager.Deps{
		Pricer:   price,
		Executor: exec,
		Safety:   brk,
		Journal:  journal,
		History:  archive,
		Alerts:   notifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// resume journaled positions before accepting new candidates
	open, err := journal.OpenPositions()
	if err != nil {
		return err
	}
	if len(open) > 0 {
		logger.Info("recovering journaled positions", zap.Int("count", len(open)))
		if err := mgr.Recover(ctx, open, balancer); err != nil {
			return err
		}
	}

	// entry side
	gates := security.Gates{
		Blacklist:    security.NewStaticBlacklist(cfg.Blacklist),
		Confirm:      security.AutoConfirmer{MaxAmount: cfg.BuyAmount},
		MaxRiskScore: cfg.MaxRiskScore,
		Logger:       logger,
	}
	coordinator, err := sniper.New(sniper.Config{
		BuyAmount:   cfg.BuyAmount,
		MaxSlippage: cfg.MaxSlippage,
	}, gates, brk, exec, mgr, logger)
	if err != nil {
		return err
	}

	// operator api
	server := web.NewServer(cfg.WebAddr, mgr, brk, archive, logger)
	go func() {
		var err error
		if len(cfg.TLSDomains) > 0 {
			err = server.StartWithAutoTLS(ctx, cfg.TLSDomains, cfg.TLSCacheDir)
		} else {
			err = server.Start(ctx)
		}
		if err != nil {
			logger.Error("operator api stopped", zap.Error(err))
		}
	}()

	// discovery feed -> coordinator
	events := make(chan domain.NewAssetEvent, 64)
	go func() {
		if err := feed.Run(ctx, events); err != nil && ctx.Err() == nil {
			logger.Error("discovery feed stopped", zap.Error(err))
		}
		close(events)
	}()

	logger.Info("sniper engine started",
		zap.String("venue", string(cfg.Venue)),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("buy_amount", cfg.BuyAmount.String()),
		zap.Int("tiers", len(cfg.Tiers)))

	coordinator.Run(ctx, events)

	// ctx is done: liquidate what we can before exiting
	logger.Info("shutting down, liquidating open positions")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mgr.Stop(shutdownCtx)

	return nil
}
