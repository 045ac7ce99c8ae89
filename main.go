package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Nerd-coderZero/Chat-application/internal/auth"
	"github.com/Nerd-coderZero/Chat-application/internal/config"
	"github.com/Nerd-coderZero/Chat-application/internal/history"
	"github.com/Nerd-coderZero/Chat-application/internal/http/http_server"
	"github.com/Nerd-coderZero/Chat-application/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Token verifier against the auth collaborator
	verifier := auth.NewHTTPVerifier(cfg.AuthAPIURL, time.Duration(cfg.AuthTimeoutSeconds)*time.Second)

	// Optional Redis-backed verification cache
	if cfg.TokenCacheTTLSeconds > 0 {
		var redisClient *redis.Client
		redisClient, err = auth.NewRedisClient(cfg.RedisChatHost, int(cfg.RedisChatPort))
		if err != nil {
			Log.Warn("Token cache disabled, Redis unavailable", zap.Error(err))
		} else {
			defer redisClient.Close()
			verifier = auth.NewCachedVerifier(verifier, redisClient,
				time.Duration(cfg.TokenCacheTTLSeconds)*time.Second)
			Log.Debug("Token cache enabled")
		}
	}

	// 4. Optional message-history recorder
	var recorder ws.MessageRecorder
	if cfg.HistoryEnabled {
		pgDb, err := history.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
		recorder = history.Run(ctx, pgDb)
	}

	// 5. WebSocket hub + per-connection sessions
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, verifier, recorder, cfg.MaxMessageSize)

	// 6. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, hub)

	go func() {
		<-ctx.Done()
		Log.Info("Shutting down")
		_ = httpServer.Dispose()
	}()

	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
