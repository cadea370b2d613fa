package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/songgift/api/internal/cache"
	"github.com/songgift/api/internal/client"
	"github.com/songgift/api/internal/config"
	"github.com/songgift/api/internal/handler"
	"github.com/songgift/api/internal/middleware"
	"github.com/songgift/api/internal/model"
	"github.com/songgift/api/internal/service"
	"github.com/songgift/api/internal/store"
	"github.com/songgift/api/internal/worker"
	ws "github.com/songgift/api/internal/websocket"
)

// @title          SongGift API
// @version        1.0
// @description    Backend API for SongGift — personalized AI-generated songs.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
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

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Postgres and run migrations
	db, err := store.NewPostgresConnection(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := store.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize generation provider (optional - mock submissions if missing)
	sunoClient := client.NewSunoClient(&cfg.Suno)
	var provider client.GenerationProvider
	if sunoClient.IsConfigured() {
		provider = sunoClient
	} else {
		log.Println("Info: Suno API not configured, submissions use mock task ids")
	}

	// Initialize caches and the expiry sweeper
	statusCache := cache.New[*model.StatusResult](cfg.Cache.StatusMaxSize)
	recordCache := cache.New[*model.SongGeneration](cfg.Cache.RecordMaxSize)
	sweeper, err := cache.NewSweeper(cfg.Cache.SweepSchedule, statusCache, recordCache)
	if err != nil {
		log.Fatalf("Failed to start cache sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize store and services
	songStore := store.NewSongStore(db)
	statusService := service.NewStatusService(songStore, provider, statusCache, recordCache, hub, asynqClient, &cfg.Refresh)
	generationService := service.NewGenerationService(songStore, provider)

	// Initialize handlers
	songHandler := handler.NewSongHandler(generationService, statusService, validate)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"suno":     sunoClient.IsConfigured(),
				"postgres": db.PingContext(c.Context()) == nil,
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"auth":     cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Song routes
	songs := api.Group("/songs")
	songs.Post("", rateLimiter.CreateLimit(cfg.RateLimit.CreatePerHour), songHandler.Create)
	songs.Get("/:songId/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), songHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/songs/:songId", websocket.New(func(c *websocket.Conn) {
		songID, err := strconv.ParseInt(c.Params("songId"), 10, 64)
		if err != nil || songID <= 0 {
			c.Close()
			return
		}
		hub.HandleConnection(c, songID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, statusService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, statusService *service.StatusService) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"status": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	statusWorker := worker.NewStatusWorker(statusService)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeStatusRefresh, statusWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
