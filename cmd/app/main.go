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
	"github.com/zsp-sports/gymbooking/api"
	"github.com/zsp-sports/gymbooking/config"
	"github.com/zsp-sports/gymbooking/internal/bootstrap"
	"github.com/zsp-sports/gymbooking/internal/cache"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/payments"
	"github.com/zsp-sports/gymbooking/internal/repository"
	"github.com/zsp-sports/gymbooking/internal/service/catalog"
	"github.com/zsp-sports/gymbooking/internal/service/checkout"
	"github.com/zsp-sports/gymbooking/internal/service/credits"
	"github.com/zsp-sports/gymbooking/internal/service/reservation"
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

	redisCache := cache.NewRedisCache(cfg.Redis,
		time.Duration(cfg.Booking.PackagesCacheTTLSeconds)*time.Second,
		time.Duration(cfg.Booking.AvailabilityCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	stripeClient := payments.NewStripeClient(cfg.Stripe)
	verifier := payments.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	bookingRepo := repository.NewBookingRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	reservationSvc := reservation.NewReservationService(bookingRepo, redisCache, producer, cfg.Kafka.NotificationsTopic)
	checkoutSvc := checkout.NewCheckoutService(orderRepo, catalogRepo, stripeClient, producer, cfg.Kafka.NotificationsTopic)
	catalogSvc := catalog.NewCatalogService(catalogRepo, redisCache)
	creditsSvc := credits.NewCreditsService(ledgerRepo)

	handlers := bootstrap.Handlers{
		Bookings: api.NewBookingHandler(reservationSvc, checkoutSvc, verifier, cfg.Stripe.RedirectURL),
		Catalog:  api.NewCatalogHandler(catalogSvc),
		Credits:  api.NewCreditsHandler(creditsSvc),
	}

	if err := bootstrap.Run(ctx, cfg, handlers); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
