package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reviewhub/media-service/internal/cache"
	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/events"
	mediaHandlers "github.com/reviewhub/media-service/internal/http/handlers/media"
	wsHandlers "github.com/reviewhub/media-service/internal/http/handlers/websocket"
	"github.com/reviewhub/media-service/internal/http/middleware"
	"github.com/reviewhub/media-service/internal/pipeline"
	mediaService "github.com/reviewhub/media-service/internal/services/media"
	"github.com/reviewhub/media-service/internal/storage/postgres"
	"github.com/reviewhub/media-service/internal/websocket"
)

func main() {
	// load config
	cfg := config.MustLoad()

	setupLogger(cfg.Env)

	// database setup
	db, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// Redis for caching and rate limiting
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	slog.Info("Connected to Redis")

	store := cache.NewCacheService(db, redisClient)

	// object storage
	objectStore, err := mediaService.NewService(cfg)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}
	slog.Info("Connected to object storage")

	transcoder, err := pipeline.NewFFmpegTranscoder()
	if err != nil {
		log.Fatal("Failed to locate ffmpeg:", err)
	}

	// WebSocket hub for processing notifications
	hub := websocket.NewHub()
	go hub.Run()
	publisher := events.NewEventPublisher(hub)

	ingestor := pipeline.NewIngestor(cfg.Media, objectStore, store, transcoder, publisher, slog.Default())

	// middleware
	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.JWTSecret)
	rateLimits := middleware.NewRateLimitConfig(redisClient)

	// setup server
	router := http.NewServeMux()

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	router.Handle("POST /media", optionalAuth(
		rateLimits.RateLimitedHandler("upload", mediaHandlers.Upload(ingestor, cfg.Media))))
	router.Handle("GET /media", optionalAuth(mediaHandlers.ListMedia(store)))
	router.HandleFunc("GET /media/stats", mediaHandlers.GetStats(store))
	router.HandleFunc("GET /media/{id}", mediaHandlers.GetMedia(store))
	router.HandleFunc("GET /media/{id}/qualities", mediaHandlers.GetQualities(store))
	router.HandleFunc("GET /media/{id}/download", mediaHandlers.Download(store, objectStore))
	router.Handle("DELETE /media/{id}", auth(
		rateLimits.RateLimitedHandler("delete", mediaHandlers.DeleteMedia(ingestor))))

	router.HandleFunc("GET /ws", wsHandlers.WebSocketHandler(hub, cfg.JWTSecret))

	router.HandleFunc("GET /cache/stats", cache.GetCacheStats(redisClient))
	router.Handle("POST /cache/clear", auth(http.HandlerFunc(cache.ClearCache(redisClient))))

	server := http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: router,
	}

	log.Println("server started on", cfg.HTTPServer.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	if err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}

func setupLogger(env string) {
	var handler slog.Handler
	switch env {
	case "local", "dev":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}
