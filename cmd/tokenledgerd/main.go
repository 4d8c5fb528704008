// Package main provides the tokenledgerd daemon: the Token Ledger Core
// wired to a SQLite-backed store, driving the expiry and retention
// workers on tickers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-exchange/tokenledger/internal/config"
	"github.com/klingon-exchange/tokenledger/internal/ledger"
	"github.com/klingon-exchange/tokenledger/internal/ledgerlog"
	"github.com/klingon-exchange/tokenledger/internal/store"
	"github.com/klingon-exchange/tokenledger/internal/store/memstore"
	"github.com/klingon-exchange/tokenledger/internal/store/sqlitestore"
	"github.com/klingon-exchange/tokenledger/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.tokenledger", "Data directory")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error); overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("tokenledgerd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("Config loaded", "dataDir", cfg.Storage.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeFn, err := buildStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize store", "error", err)
	}
	defer closeFn()
	log.Info("Store initialized", "backend", cfg.Storage.Backend)

	adapter := ledgerlog.New(log)
	manager := ledger.New(ledger.Config{
		Store:           st,
		Table:           ledger.TableTokenRegistry,
		Log:             adapter,
		Errors:          adapter,
		MinExpiresAfter: cfg.Hold.MinExpiresAfter,
		MaxExpiresAfter: cfg.Hold.MaxExpiresAfter,
		MaxTotalExtend:  cfg.Hold.MaxTotalExtend,
	})

	log.Info("Starting token ledger daemon...")

	expiryTicker := time.NewTicker(cfg.Workers.ExpiryInterval)
	defer expiryTicker.Stop()
	retentionTicker := time.NewTicker(cfg.Workers.RetentionInterval)
	defer retentionTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-expiryTicker.C:
				summary, err := manager.ProcessExpired(ctx, cfg.Workers.ExpiredForSeconds, cfg.Workers.ExpiryBatchSize)
				if err != nil {
					log.Error("Expiry worker failed", "error", err)
					continue
				}
				log.Info("Expiry worker ran", "scanned", summary.Scanned, "reversed", summary.ReversedCount, "errors", len(summary.Errors))
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-retentionTicker.C:
				res, err := manager.PurgeOld(ctx, ledger.RetentionOptions{
					OlderThanDays: cfg.Workers.RetentionOlderThanDays,
					Limit:         cfg.Workers.RetentionLimit,
					DryRun:        cfg.Workers.RetentionDryRun,
					Archive:       cfg.Workers.RetentionArchive,
					MaxSeconds:    cfg.Workers.RetentionMaxSeconds,
				})
				if err != nil {
					log.Error("Retention worker failed", "error", err)
					continue
				}
				log.Info("Retention worker ran", "scanned", res.Scanned, "deleted", res.Deleted, "archived", res.Archived, "dryRun", res.DryRun)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")
	cancel()
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		pk, indexes := ledger.MemstoreSchema()
		return memstore.New(pk, indexes), func() {}, nil
	default:
		st, err := sqlitestore.New(sqlitestore.Config{
			DataDir:  cfg.Storage.DataDir,
			FileName: cfg.Storage.FileName,
		}, ledger.SqliteSchemas())
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}
