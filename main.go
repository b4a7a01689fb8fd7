package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chathub/internal/auth"
	"chathub/internal/blob"
	"chathub/internal/config"
	"chathub/internal/database/db_client"
	"chathub/internal/http/http_server"
	"chathub/internal/redis/redis_client"
	"chathub/internal/redis/watcher/sessionwatcher"
	"chathub/internal/store/history"
	"chathub/internal/store/rooms"
	"chathub/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis: session cache
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()
	if err := db_client.EnsureSchema(ctx, pgDb); err != nil {
		Log.Fatal("pg-schema", zap.Error(err))
	}

	// 5. Stores and services
	historyStore := history.New(pgDb)
	roomStore := rooms.New(pgDb)
	authService := auth.NewAuthService(redisClient, pgDb,
		time.Duration(cfg.SessionTTLHours)*time.Hour)
	blobStore, err := blob.New(cfg.UploadDir)
	if err != nil {
		Log.Fatal("blob-open", zap.Error(err))
	}

	// 6. Background: session-expiry watcher keeps the Postgres mirror clean
	go sessionwatcher.Run(ctx, redisClient, pgDb)

	// 7. WebSockets hub + room sessions
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, historyStore, roomStore)

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, authService, blobStore)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
