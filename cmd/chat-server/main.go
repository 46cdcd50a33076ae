package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imaad666/W-Chhatt/internal/cache"
	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/handler"
	"github.com/imaad666/W-Chhatt/internal/hub"
	"github.com/imaad666/W-Chhatt/internal/idgen"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/relay"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/internal/service"
	"github.com/imaad666/W-Chhatt/pkg/database"
	"github.com/imaad666/W-Chhatt/pkg/jwt"
	pkglog "github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/middleware"
	"github.com/imaad666/W-Chhatt/pkg/pubsub"
	"github.com/imaad666/W-Chhatt/pkg/storage"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "chat-server",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Initialize repositories
	userRepo := repository.NewGormUserRepository(db)
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Initialize token manager
	tokens, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	go cleanupRevocations(ctx, tokens, time.Hour)

	// Initialize room cache
	var roomCache cache.RoomCache = cache.NewNoopRoomCache()
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisRoomCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		roomCache = redisCache
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
	}
	defer roomCache.Close()

	// Initialize presence and relay
	tracker := presence.NewTracker()
	chatRelay := relay.NewRelay(messageRepo, userRepo, roomRepo, tracker, idgen.NewULIDGenerator(), cfg.Chat)

	store, err := storage.New(ctx, cfg.Storage.Config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize attachment storage")
	}
	chatRelay.SetAttachments(relay.NewAttachments(store, cfg.Storage.MaxUploadSize))
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("attachment storage ready")

	// Cross-instance fan-out
	if cfg.PubSub.Enabled {
		instanceID := uuid.New().String()

		// Every instance must consume every room event.
		psCfg := cfg.PubSub.Config
		psCfg.Kafka.GroupID = fmt.Sprintf("%s-%s", psCfg.Kafka.GroupID, instanceID)

		ps, err := pubsub.NewPubSub(psCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to pubsub")
		}
		defer ps.Close()

		bridge := relay.NewBridge(ps, chatRelay, instanceID)
		if err := bridge.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start pubsub bridge")
		}
		chatRelay.SetPublisher(bridge)
		logger.Info().
			Str("driver", cfg.PubSub.Driver).
			Str(pkglog.FieldInstanceID, instanceID).
			Msg("pubsub bridge started")
	}

	// Initialize services
	accountService := service.NewAccountService(userRepo, tokens)
	roomService := service.NewRoomService(roomRepo, userRepo, messageRepo, roomCache, cfg.Cache.TTL)
	chatService := service.NewChatService(tracker, roomService, chatRelay, tokens)

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	wsHub := hub.NewHub()

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHealthHandler(version, tracker, wsHub).RegisterRoutes(r)
	handler.NewAuthHandler(accountService, authMiddleware).RegisterRoutes(r)
	handler.NewRoomHandler(roomService, authMiddleware).RegisterRoutes(r)
	handler.NewMessageHandler(chatRelay, authMiddleware).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, chatService, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat-server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-server")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	wsHub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat-server stopped")
}

func cleanupRevocations(ctx context.Context, tokens *jwt.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens.CleanupExpiredRevocations()
		}
	}
}
