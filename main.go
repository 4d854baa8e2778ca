package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"price_alert_backend/config"
	"price_alert_backend/controllers"
	"price_alert_backend/logger"
	"price_alert_backend/metrics"
	"price_alert_backend/models"
	"price_alert_backend/routes"
	"price_alert_backend/scheduler"
	"price_alert_backend/services/alerts"
	"price_alert_backend/services/marketdata"
	"price_alert_backend/services/monitor"
	"price_alert_backend/services/notifications"
	"price_alert_backend/services/realtime"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	log := logger.Must(cfg.Environment)
	defer log.Sync()

	if err != nil {
		log.Fatal("invalid_configuration", zap.Error(err))
	}

	if !cfg.EnvFileLoaded {
		log.Info("no_env_file", zap.String("message", "using environment variables"))
	}

	log.Info("starting_price_alert_api",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.DBDriver),
	)

	metrics.Init()

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal("database_connection_failed", zap.Error(err))
	}

	// Price gateway
	cache, closeCache := newPriceCache(cfg, log)
	defer closeCache()

	gateway := marketdata.NewGateway(map[models.AssetClass][]marketdata.Provider{
		models.AssetClassCrypto: {
			marketdata.NewBinanceProvider(cfg.Market.BinanceBaseURL),
			marketdata.NewCoinGeckoProvider(cfg.Market.CoinGeckoBaseURL),
		},
		models.AssetClassStock: {
			marketdata.NewYahooProvider(cfg.Market.YahooBaseURL),
		},
	}, cache, marketdata.GatewayConfig{
		CacheTTL:     cfg.Market.CacheTTL,
		FetchTimeout: cfg.Market.FetchTimeout,
	}, log)

	hub := realtime.NewHub(log)

	// Notifications
	emailService := notifications.NewEmailService(notifications.EmailConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUser,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.SMTPFromEmail,
		FromName:  cfg.SMTPFromName,
		AppURL:    cfg.AppURL,
	}, log)

	var archive notifications.TriggerRecorder
	if cfg.MongoDBURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoArchive, err := notifications.ConnectMongoArchive(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, log)
		cancel()
		if err != nil {
			log.Warn("trigger_archive_disabled", zap.Error(err))
		} else {
			archive = mongoArchive
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoArchive.Close(ctx)
			}()
		}
	}

	dispatcher := notifications.NewDispatcher(hub, emailService, notifications.NewNoopSMSSender(log), archive, log)

	// Monitoring loop
	store := alerts.NewGormStore(db)
	priceMonitor := monitor.New(store, gateway, hub, dispatcher, monitor.Config{
		Interval:             cfg.Monitor.Interval,
		ErrorBackoff:         cfg.Monitor.ErrorBackoff,
		StopTimeout:          cfg.Monitor.StopTimeout,
		MaxConcurrentFetches: cfg.Monitor.MaxConcurrentFetches,
	}, log)
	priceMonitor.Start()

	jobScheduler := scheduler.NewScheduler(store, hub, priceMonitor, cfg.TriggeredAlertRetention, log)
	if err := jobScheduler.Start(); err != nil {
		log.Fatal("scheduler_start_failed", zap.Error(err))
	}

	// HTTP surface
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(log, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(router, routes.Dependencies{
		Market:    controllers.NewMarketController(gateway),
		WebSocket: controllers.NewWebSocketController(hub, controllers.NewGormUserLookup(db), priceMonitor, cfg.JWTSecret, realtime.NewUpgrader(allowedOrigin(cfg.AllowedOrigins)), log),
		JWTSecret: cfg.JWTSecret,
		Ready:     databaseReady(db),
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Info("server_listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server_error", zap.Error(err))
		}
	}()

	gracefulShutdown(log, server, priceMonitor, dispatcher, jobScheduler, hub, db)
}

// newPriceCache returns the redis cache when enabled and reachable, the
// in-process cache otherwise
func newPriceCache(cfg *config.Config, log *zap.Logger) (marketdata.Cache, func()) {
	if !cfg.RedisEnabled {
		return marketdata.NewMemoryCache(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis_unavailable_using_memory_cache", zap.String("addr", cfg.RedisAddr()), zap.Error(err))
		client.Close()
		return marketdata.NewMemoryCache(), func() {}
	}

	log.Info("redis_price_cache_enabled", zap.String("addr", cfg.RedisAddr()))
	return marketdata.NewRedisCache(client), func() { client.Close() }
}

func allowedOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func databaseReady(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// gracefulShutdown waits for a signal, then stops the monitor before
// draining notifications and closing client connections
func gracefulShutdown(log *zap.Logger, server *http.Server, priceMonitor *monitor.Monitor, dispatcher *notifications.Dispatcher,
	jobScheduler *scheduler.Scheduler, hub *realtime.Hub, db *gorm.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("shutting_down", zap.String("signal", sig.String()))

	jobScheduler.Stop()
	priceMonitor.Stop()
	dispatcher.Wait()

	closed := hub.CloseAll(1001, "Server shutting down")
	log.Info("websocket_connections_closed", zap.Int("count", closed))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server_forced_shutdown", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
		log.Info("database_connection_closed")
	}

	log.Info("server_shutdown_completed")
}
