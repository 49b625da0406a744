package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mediagrab/api/internal/client"
	"github.com/mediagrab/api/internal/config"
	"github.com/mediagrab/api/internal/handler"
	"github.com/mediagrab/api/internal/middleware"
	"github.com/mediagrab/api/internal/service"
	ws "github.com/mediagrab/api/internal/websocket"
	"github.com/mediagrab/api/internal/worker"
	"github.com/mediagrab/api/internal/workspace"
	"github.com/mediagrab/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Extractor and download directory
	extractor, err := client.NewExtractorClient(&cfg.Download)
	if err != nil {
		log.Fatalf("Failed to configure extractor: %v", err)
	}
	if err := extractor.Available(); err != nil {
		log.Printf("Warning: %v", err)
	}
	workspaces, err := workspace.NewManager(cfg.Download.BaseDir)
	if err != nil {
		log.Fatalf("Failed to prepare download directory: %v", err)
	}

	hub := ws.NewHub(ws.WithTerminalRetention(cfg.Download.RetentionDuration()))

	// Initialize services
	opts := []service.Option{service.WithNotifier(hub)}
	if client.MirrorConfigured(&cfg.R2) {
		mirror, err := client.NewR2Mirror(&cfg.R2)
		if err != nil {
			log.Printf("Warning: artifact mirror disabled: %v", err)
		} else {
			opts = append(opts, service.WithMirror(mirror))
		}
	}
	store := service.NewRedisJobStore(redisClient, service.DefaultJobTTL)
	downloadService := service.NewDownloadService(&cfg.Download, extractor, workspaces, store, asynqClient, opts...)

	// Initialize handlers
	validate := handler.NewValidator()
	router := &handler.Router{
		Download: handler.NewDownloadHandler(downloadService, validate),
		Jobs:     handler.NewJobHandler(downloadService, validate),
		Health:   handler.NewHealthHandler(downloadService),
		Limiter:  middleware.NewRateLimiter(middleware.NewRedisCounter(redisClient)),
		Limits:   cfg.RateLimit,
		Hub:      hub,
	}

	// Initialize Fiber app
	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 1
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    bodyLimit * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: logFormat(cfg.Server.LogLevel),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept",
		ExposeHeaders: "Content-Disposition",
	}))

	router.Register(app)

	// Start Asynq worker server
	srv := newWorkerServer(cfg, redisOpt)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDownload, worker.NewDownloadWorker(downloadService).ProcessTask)
	mux.HandleFunc(service.TaskTypeCleanup, worker.NewCleanupWorker(downloadService).ProcessTask)
	if err := srv.Start(mux); err != nil {
		log.Printf("Warning: Asynq worker not started: %v", err)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		srv.Shutdown()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s (downloads in %s)", addr, workspaces.BaseDir())
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	var level asynq.LogLevel
	if err := level.Set(cfg.Server.LogLevel); err != nil {
		level = asynq.InfoLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueDownload: 6,
			service.QueueCleanup:  1,
		},
		LogLevel: level,
	})
}

func logFormat(level string) string {
	if level == "debug" {
		return "[${time}] ${ip} ${status} - ${latency} ${method} ${path}?${queryParams} ${bytesSent}B ${error}\n"
	}
	return "[${time}] ${status} - ${latency} ${method} ${path}\n"
}
