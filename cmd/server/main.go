package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"storefront.chat/relay/common/id"
	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/common/otel"
	"storefront.chat/relay/core/config"
	"storefront.chat/relay/core/db"
	"storefront.chat/relay/internal/http/handler"
	"storefront.chat/relay/internal/http/handler/webhook"
	"storefront.chat/relay/internal/http/middleware"
	httprouter "storefront.chat/relay/internal/http/router"
	"storefront.chat/relay/internal/metrics"
	"storefront.chat/relay/internal/queue"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
	"storefront.chat/relay/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())

	registry := metrics.NewRegistry()
	scheduler, err := smartdelay.New(smartDelayConfig(cfg.SmartDelay), service.NewBatchPublisher(producer),
		smartdelay.WithLogger(slog.Default()),
		smartdelay.WithObserver(metrics.NewSmartDelay(registry)),
	)
	if err != nil {
		slog.ErrorContext(ctx, "invalid smart delay config", "error", err)
		os.Exit(1)
	}
	metrics.RegisterPending(registry, scheduler.Pending)

	services := service.NewServices(store.NewStores(database.Querier()), slog.Default())
	dedupe := store.NewRedisDedupeStore(redisClient, "relay:messenger:mid:", cfg.Pipeline.DedupeTTL)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Messenger: webhook.NewMessengerWebhookHandler(
			services.MessageIngest(dedupe, scheduler),
			cfg.Messenger.AppSecret,
			cfg.Messenger.VerifyToken,
		),
		SmartDelay: handler.NewSmartDelayHandler(scheduler),
	}, metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Stop taking webhooks first so no fragment arrives after the final flush.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "smart delay shutdown error", "error", err)
	}

	if err := producer.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "redis close error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func smartDelayConfig(c config.SmartDelayConfig) smartdelay.Config {
	return smartdelay.Config{
		Delays: smartdelay.Delays{
			ShortFragment:  c.ShortFragment,
			DirectQuestion: c.DirectQuestion,
			LongStatement:  c.LongStatement,
		},
		MaxDelay:      c.MaxDelay,
		LongThreshold: c.LongThreshold,
	}
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers, metricsHandler http.Handler) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, handlers, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
		Metrics:     metricsHandler,
	})

	return router
}

const banner = `
███████╗████████╗ ██████╗ ██████╗ ███████╗███████╗██████╗  ██████╗ ███╗   ██╗████████╗
██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝██╔════╝██╔══██╗██╔═══██╗████╗  ██║╚══██╔══╝
███████╗   ██║   ██║   ██║██████╔╝█████╗  █████╗  ██████╔╝██║   ██║██╔██╗ ██║   ██║   
╚════██║   ██║   ██║   ██║██╔══██╗██╔══╝  ██╔══╝  ██╔══██╗██║   ██║██║╚██╗██║   ██║   
███████║   ██║   ╚██████╔╝██║  ██║███████╗██║     ██║  ██║╚██████╔╝██║ ╚████║   ██║   
╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚══════╝╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═══╝   ╚═╝   
`
