package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/config"
	"github.com/Domenick1991/charterbooking/internal/bootstrap"
	"github.com/Domenick1991/charterbooking/internal/logger"
	"github.com/Domenick1991/charterbooking/internal/service/migration"
)

func main() {
	kindFlag := flag.String("kind", "", "collection to migrate (quoteRequests, quotes, bookings, invoices); empty runs all")
	reportOnly := flag.Bool("report", false, "print migration progress without writing")
	batch := flag.Int("batch", 0, "override migration.batch_size")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *batch > 0 {
		cfg.Migration.BatchSize = *batch
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	kinds := migration.Kinds()
	if *kindFlag != "" {
		kind, err := migration.ParseKind(*kindFlag)
		if err != nil {
			zlog.Fatal("parse kind", zap.Error(err))
		}
		kinds = []migration.Kind{kind}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		zlog.Fatal("open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	redisCache := bootstrap.OpenRedis(cfg)
	if redisCache != nil {
		defer redisCache.Close()
	}

	engine, err := bootstrap.NewMigrationEngine(cfg, store, redisCache, zlog)
	if err != nil {
		zlog.Fatal("build migration engine", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := false
	for _, kind := range kinds {
		var out any
		if *reportOnly {
			out, err = engine.Report(ctx, kind)
		} else {
			var report migration.RunReport
			report, err = engine.MigrateAll(ctx, kind)
			out = report
			if report.Failed > 0 {
				failed = true
			}
		}
		if err != nil {
			zlog.Error("migration", zap.String("kind", string(kind)), zap.Error(err))
			failed = true
			continue
		}
		if err := enc.Encode(out); err != nil {
			zlog.Error("write output", zap.Error(err))
		}
	}
	if failed {
		stop()
		os.Exit(1)
	}
}
