package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-ticket-checkout/internal/cache"
	"github.com/iliyamo/cinema-ticket-checkout/internal/config"
	"github.com/iliyamo/cinema-ticket-checkout/internal/database"
	"github.com/iliyamo/cinema-ticket-checkout/internal/gateway"
	"github.com/iliyamo/cinema-ticket-checkout/internal/handler"
	"github.com/iliyamo/cinema-ticket-checkout/internal/logger"
	"github.com/iliyamo/cinema-ticket-checkout/internal/middleware"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
	"github.com/iliyamo/cinema-ticket-checkout/internal/router"
	"github.com/iliyamo/cinema-ticket-checkout/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	lg := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		lg.Info("schema applied")
	}

	// Redis is optional: without it rate limiting and the seat cache are off
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		lg.Warn("redis unavailable, running without rate limits and seat cache")
	} else {
		defer rdb.Close()
	}

	shows := repository.NewShowRepo(db)
	payments := repository.NewPaymentRepo(db)
	bookings := repository.NewBookingRepo(db, payments)

	publisher := queue.NewPublisher(cfg.RabbitURL, lg)
	consumer := queue.NewConsumer(cfg.RabbitURL, cfg.EventLogDir, lg)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.WithError(err).Error("event consumer stopped")
		}
	}()

	svc := service.New(service.Deps{
		Shows:      shows,
		Bookings:   bookings,
		Payments:   payments,
		Gateway:    gateway.NewRazorpay(cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout),
		Signatures: gateway.NewVerifier(cfg.GatewayKeySecret),
		Events:     publisher,
		Cache:      cache.NewSeatCache(rdb, config.LoadSeatCacheConfig()),
		Log:        lg,
	}, service.Options{
		Currency:        cfg.Currency,
		MinorUnitFactor: cfg.MinorUnitFactor,
		FeeBps:          cfg.ConvenienceFeeBps,
		MaxSeats:        cfg.MaxSeatsPerOrder,
		HoldTTL:         cfg.HoldTTL,
	})

	auth, err := middleware.JWTAuth(middleware.JWTConfig{
		Secret:       cfg.JWTSecret,
		PublicKeyPEM: cfg.JWTPublicKey,
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(lg.Middleware())

	h := handler.NewBookingHandler(svc)
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, h, limit)
	router.RegisterBooking(e, h, auth, middleware.RequireRole(cfg.BookingRoles...), limit)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Error("shutdown")
	}
}
