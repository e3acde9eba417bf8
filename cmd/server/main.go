package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/jobctl/internal/client"
	"github.com/makeasinger/jobctl/internal/config"
	"github.com/makeasinger/jobctl/internal/handler"
	"github.com/makeasinger/jobctl/internal/middleware"
	"github.com/makeasinger/jobctl/internal/schema"
	"github.com/makeasinger/jobctl/internal/search"
	"github.com/makeasinger/jobctl/internal/service"
	"github.com/makeasinger/jobctl/internal/store"
	ws "github.com/makeasinger/jobctl/internal/websocket"
	"github.com/makeasinger/jobctl/internal/worker"
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

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize job store
	jobStore, err := newJobStore(ctx, cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}

	// Initialize search index
	var index search.Index
	switch cfg.Search.Driver {
	case "memory":
		index = search.NewMemoryIndex()
	default:
		index = search.NewRedisIndex(redisClient, cfg.Store.Prefix+":search")
	}

	// Initialize payload schemas
	validate := validator.New()
	schemas := schema.New(validate)
	if err := schemas.LoadFile(cfg.Schemas.Path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load job schemas: %v", err)
		}
		log.Printf("Warning: no job schemas at %s, every job type will be rejected", cfg.Schemas.Path)
	} else {
		log.Printf("Loaded schemas for job types: %s", strings.Join(schemas.Types(), ", "))
	}

	// Initialize R2 client (optional - continues if not configured)
	files := client.Router{Local: client.LocalFS{Root: cfg.Files.Root}}
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			files.Objects = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, s3:// outputs are unavailable")
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	dispatcher := service.NewAsynqDispatcher(asynq.NewClient(redisOpt))

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Initialize services
	jobService, err := service.NewJobService(service.Deps{
		Defaults: service.Defaults{
			Priority: cfg.Store.DefaultPriority,
			Attempts: cfg.Store.DefaultAttempts,
		},
		Store:      jobStore,
		Index:      index,
		Validator:  schemas,
		Files:      files,
		Dispatcher: dispatcher,
		Notifier:   hub,
	})
	if err != nil {
		log.Fatalf("Failed to initialize job service: %v", err)
	}
	defer jobService.Close()

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Mutating routes are protected only when an auth mode is configured
	var protect []fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		if cfg.Gateway.Secret == "" {
			log.Println("Warning: no gateway secret configured, identity headers are trusted from any caller")
		}
		protect = append(protect, middleware.GatewayAuthMiddleware(cfg.Gateway.Secret))
	} else if cfg.JWT.Secret != "" {
		protect = append(protect, middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate())
	} else {
		log.Println("Warning: no JWT secret configured, mutating routes are unauthenticated")
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024, // 4MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: func() string { return uuid.New().String() },
	}))
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${locals:requestid}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "Content-Location,X-Request-Id",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		if err := jobService.Ping(c.UserContext()); err != nil {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status": status,
			"services": fiber.Map{
				"store":  cfg.Store.Driver,
				"search": cfg.Search.Driver,
				"r2":     files.Objects != nil,
				"auth":   len(protect) > 0,
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// Read routes
	app.Get("/stats", jobHandler.Stats)
	app.Get("/job/types", jobHandler.Types)
	app.Get("/jobs/*", jobHandler.Range)
	app.Get("/job/:id", jobHandler.Get)
	app.Get("/job/:id/output", jobHandler.Output)
	app.Get("/job/:id/log", jobHandler.Log)
	app.Get("/search", jobHandler.Search)

	// Mutating routes
	create := append(append([]fiber.Handler{}, protect...), rateLimiter.CreateLimit(cfg.RateLimit.CreatePerMin), jobHandler.Create)
	app.Post("/job", create...)
	app.Delete("/job/:id", append(append([]fiber.Handler{}, protect...), jobHandler.Remove)...)
	app.Put("/job/:id/priority/:priority", append(append([]fiber.Handler{}, protect...), jobHandler.UpdatePriority)...)
	app.Put("/job/:id/state/:state", append(append([]fiber.Handler{}, protect...), jobHandler.UpdateState)...)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Start Asynq worker server
	srv := newWorkerServer(cfg, redisOpt)
	mux := asynq.NewServeMux()
	mux.Handle(service.TaskTypePromote, worker.NewPromoter(jobService))
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

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
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newJobStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (store.JobStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Println("Info: using in-memory job store, jobs are lost on restart")
		return store.NewMemoryStore(), nil
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewRedisStore(redisClient, cfg.Store.Prefix), nil
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueuePromote: 1,
		},
		LogLevel: asynqLogLevel,
	})
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
