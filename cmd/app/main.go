package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/api"
	"github.com/Domenick1991/charterbooking/config"
	"github.com/Domenick1991/charterbooking/internal/bootstrap"
	"github.com/Domenick1991/charterbooking/internal/kafka"
	"github.com/Domenick1991/charterbooking/internal/logger"
	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

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

	var notifier lifecycle.Notifier
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, zlog)
		defer producer.Close()
		notifier = kafka.NewNotifier(producer, cfg.Kafka.NotificationsTopic)
	}

	svc, err := bootstrap.NewLifecycle(cfg, store, redisCache, notifier, zlog)
	if err != nil {
		zlog.Fatal("build lifecycle service", zap.Error(err))
	}
	defer svc.Drain()

	engine, err := bootstrap.NewMigrationEngine(cfg, store, redisCache, zlog)
	if err != nil {
		zlog.Fatal("build migration engine", zap.Error(err))
	}

	router := api.NewRouter(svc, engine, zlog)
	if err := bootstrap.Run(ctx, cfg, router, store, zlog); err != nil {
		zlog.Error("server error", zap.Error(err))
	}
}
