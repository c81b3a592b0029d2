package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/config"
	"github.com/zsp-sports/gymbooking/internal/cache"
	"github.com/zsp-sports/gymbooking/internal/email"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/notify"
	"github.com/zsp-sports/gymbooking/internal/repository"
	"github.com/zsp-sports/gymbooking/internal/service/catalog"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	customerRepo := repository.NewCustomerRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	var sender email.Sender = email.LogSender{}
	if cfg.Email.APIKey != "" {
		sender = email.NewResendSender(cfg.Email.APIKey, cfg.Email.From)
	}
	notifier := notify.NewNotifier(customerRepo, catalogRepo, sender, cfg.Email.AdminRecipients)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, notifier.HandleOrderEvent); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("consumer stopped")
		}
	}()

	redisCache := cache.NewRedisCache(cfg.Redis,
		time.Duration(cfg.Booking.PackagesCacheTTLSeconds)*time.Second,
		time.Duration(cfg.Booking.AvailabilityCacheTTLSeconds)*time.Second)
	catalogSvc := catalog.NewCatalogService(catalogRepo, redisCache)

	refresh := time.NewTicker(time.Duration(cfg.Worker.CacheRefreshMinutes) * time.Minute)
	defer refresh.Stop()

	for {
		select {
		case <-refresh.C:
			if err := catalogSvc.RefreshAvailability(ctx); err != nil {
				log.Warn().Err(err).Msg("availability cache refresh failed")
			}
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		}
	}
}
