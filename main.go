package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/db"
	"chat-gateway/internal/gateway"
	grpcserver "chat-gateway/internal/grpc"
	"chat-gateway/internal/handlers"
	"chat-gateway/internal/logging"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/presence"
	"chat-gateway/internal/rabbitmq"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
	"chat-gateway/internal/ws"
)

const auditRoutingKey = "audit_log"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.Tracing.ServiceName)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer func() { _ = publisher.Close() }()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.Tracing.ServiceName, cfg.Server.Environment, logger)

	database, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	store, closeStore, err := newPresenceStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := ws.NewHub(logger)
	registry := presence.NewRegistry(store, gateway.NewStatusNotifier(hub), logger)
	gw := gateway.New(gateway.Deps{
		Messages:      messageRepo,
		Chats:         chatRepo,
		Notifications: notificationRepo,
		Presence:      registry,
		Broadcaster:   hub,
		Audit:         audit,
		Logger:        logger,
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	var wsVerifier ws.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		wsVerifier = verifier
	} else {
		logger.Warn("jwt secret not set, socket tokens are ignored")
	}
	socketServer := ws.NewServer(hub, gw, wsVerifier, ws.Options{
		PingInterval:   cfg.Socket.PingInterval,
		PingTimeout:    cfg.Socket.PingTimeout,
		MaxPayload:     cfg.Socket.MaxPayload,
		SendBuffer:     cfg.Socket.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)

	chatHandler := handlers.NewChatHandler(messageRepo, chatRepo, hub, audit, logger)
	presenceHandler := handlers.NewPresenceHandler(registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/socket.io/", socketServer.Handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.ConnCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", middleware.AuthMiddleware(verifier))
	api.POST("/chat/send", chatHandler.SendMessage)
	api.POST("/chat/read", chatHandler.MarkRead)
	api.DELETE("/chat/message/:id", chatHandler.DeleteMessage)
	api.PUT("/chat/message/:id", chatHandler.EditMessage)
	api.GET("/chat/user/:userId/unread-count", chatHandler.GetUnreadCount)
	api.POST("/chat/dm", chatHandler.GetOrCreateDm)
	api.GET("/presence/online", presenceHandler.ListOnline)
	api.GET("/presence/:userId", presenceHandler.GetStatus)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.Server.Debug)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 2)
	var healthServer *grpcserver.HealthServer
	if cfg.GRPC.Port > 0 {
		grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return errors.Wrap(err, "listen grpc")
		}
		healthServer = grpcserver.NewHealthServer(logger)
		go func() {
			if err := healthServer.Serve(grpcLis); err != nil {
				errCh <- err
			}
		}()
	}
	go func() {
		logger.Info("http listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if healthServer != nil {
		healthServer.SetServing(true)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("listener failed", zap.Error(err))
	}

	if healthServer != nil {
		healthServer.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = httpServer.Shutdown(shutdownCtx)
	hub.Close()
	if healthServer != nil {
		healthServer.GracefulStop()
	}
	return err
}

func newPresenceStore(ctx context.Context, cfg config.Config) (presence.Store, func(), error) {
	if cfg.Presence.Backend != "redis" {
		return presence.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
	}
	return presence.NewRedisStore(rdb, cfg.Presence.KeyPrefix), func() { _ = rdb.Close() }, nil
}
