package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/config"
	"github.com/Domenick1991/charterbooking/internal/bootstrap"
	"github.com/Domenick1991/charterbooking/internal/email"
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

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zlog)
		defer consumer.Close()

		emailSender := email.NewSender(zlog)
		go func() {
			if err := consumer.ConsumeNotifications(ctx, emailSender.Send); err != nil {
				zlog.Warn("consumer stopped", zap.Error(err))
			}
		}()
	}

	svc, err := bootstrap.NewLifecycle(cfg, store, redisCache, notifier, zlog)
	if err != nil {
		zlog.Fatal("build lifecycle service", zap.Error(err))
	}
	defer svc.Drain()

	sweep := time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute
	expireTicker := time.NewTicker(sweep)
	defer expireTicker.Stop()

	zlog.Info("worker started", zap.Duration("sweep", sweep))
	for {
		select {
		case <-expireTicker.C:
			report, err := svc.ExpireStale(ctx)
			if err != nil {
				zlog.Error("expire stale", zap.Error(err))
				continue
			}
			if report.Requests > 0 || report.Offers > 0 {
				zlog.Info("expired stale entities",
					zap.Int("requests", report.Requests),
					zap.Int("offers", report.Offers),
					zap.Int("skipped", report.Skipped),
				)
			}
		case <-ctx.Done():
			zlog.Info("shutting down worker")
			return
		}
	}
}
