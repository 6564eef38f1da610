package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/service"
	"github.com/iliyamo/event-ticketing/internal/store"
)

const intentPrefix = "intent"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}
	cfg := config.Load() // Load environment config
	if cfg.Env == "dev" {
		log.SetLevel(log.DEBUG)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.MigrateOnBoot {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	// Booking intents and the reset wizard live only in Redis.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	monitor := monitoring.NewMonitor(ctx, rdb, intentPrefix)
	publisher := queue.NewPublisher(cfg.AMQPURL)
	consumer := &queue.Consumer{URL: cfg.AMQPURL, Dir: "logs"}
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("queue consumer stopped: %v", err)
		}
	}()

	// Repositories
	users := repository.NewUserRepo(db)
	creds := repository.NewCredentialRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	bookings := repository.NewBookingRepo(db)

	// Redis-backed stores
	cacheCfg := config.LoadCacheConfig()
	intents := store.NewJSONStore[model.BookingIntent](rdb, intentPrefix, cfg.IntentTTL)
	flows := store.NewJSONStore[service.ResetFlow](rdb, "reset:flow", cfg.ResetTokenTTL)
	avail := store.NewAvailabilityCache(rdb, cacheCfg.AvailabilityTTL)

	provider := identity.NewProvider(identity.Options{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
		ResetTTL:       cfg.ResetTokenTTL,
	}, creds, tokens, store.NewResetTokenStore(rdb))

	accounts := service.NewIdentityService(users, provider, flows, publisher, monitor, service.IdentityOptions{
		MinAge:  cfg.MinRegistrationAge,
		Timeout: cfg.RemoteCallTimeout,
	})
	checkout := service.NewCheckoutService(events, bookings, provider, intents, avail, publisher, monitor, service.CheckoutOptions{
		CheckoutPath: cfg.CheckoutPath,
		LoginPath:    cfg.LoginPath,
		Timeout:      cfg.RemoteCallTimeout,
	})
	cancellation := service.NewCancellationService(bookings, avail, publisher, monitor, cfg.CancellationWindow, cfg.RemoteCallTimeout)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger.SetLevel(log.Level())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Errorf("%s %s %d %s ip=%s err=%v", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s %d %s ip=%s", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	}))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	mws := router.Middlewares{
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	}
	h := router.Handlers{
		Auth:       handler.NewAuthHandler(accounts, provider),
		Public:     handler.NewPublicHandler(events),
		Booking:    handler.NewBookingHandler(checkout, provider),
		MyBookings: handler.NewMyBookingsHandler(cancellation),
		Session:    handler.NewSessionHandler(provider, users),
		Ready: handler.Ready(map[string]handler.Pinger{
			"mysql": db,
			"redis": handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
	}
	router.RegisterRoutes(e, h)
	router.RegisterAuth(e, h.Auth, cfg.JWTSecret, mws)
	router.RegisterPublic(e, h.Public, h.Session, mws)
	router.RegisterBooking(e, h.Booking, h.MyBookings, cfg.JWTSecret, mws)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Tab-ID", "Cache-Control"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Cache"},
		AllowCredentials: false,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port, // Address string with port
		Handler:           c.Handler(e),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("listening on %s (env=%s)", srv.Addr, cfg.Env) // Print startup info
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
