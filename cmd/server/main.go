package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"aos/internal/config"
	"aos/internal/database"
	"aos/internal/handlers"
	"aos/internal/jobs"
	"aos/internal/logging"
	"aos/internal/middleware"
	"aos/internal/services"
	"aos/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting AOS Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Budget: %d tokens, Summarizer: %s)",
		cfg.Port, cfg.TokenBudget, cfg.Summarizer)

	// Initialize database (sqlite file by default, mysql:// DSN supported)
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initialize Redis (optional - distillation locking degrades without it)
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (distillation locking disabled)", err)
			redisService = nil
		} else {
			defer redisService.Close()
			log.Println("✅ Redis connected successfully")
		}
	}

	// Initialize Prometheus metrics
	metrics := services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Stores
	logStore := services.NewLogStore(db)
	wisdomStore := services.NewWisdomStore(db)

	// Reset policy engine
	entropyService := services.NewEntropyService(cfg.TokenBudget, cfg.CriticalAnxiety, cfg.AnxietyWindow)

	// Execution backend (OpenAI-compatible, optional)
	var llmClient *services.LLMClient
	var actor services.Actor
	if cfg.LLMConfigured() {
		llmClient = services.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel,
			time.Duration(cfg.LLMTimeoutSecs)*time.Second)
		actor = services.NewLLMActor(llmClient)
		log.Printf("✅ LLM backend configured (model: %s)", cfg.LLMModel)
	} else {
		log.Println("⚠️ LLM_API_KEY not set - agent runs in NoLLM mode")
	}

	// Summarizer selection: the LLM summarizer needs a configured backend,
	// otherwise the deterministic heuristic serves
	var summarizer services.Summarizer = services.NewHeuristicSummarizer()
	if cfg.Summarizer == "llm" {
		if llmClient != nil {
			summarizer = services.NewLLMSummarizer(llmClient)
			log.Println("✅ LLM summarizer enabled")
		} else {
			log.Println("⚠️ SUMMARIZER=llm but no LLM configured - falling back to heuristic")
		}
	}

	distillService := services.NewDistillService(logStore, wisdomStore, summarizer, redisService, metrics)
	agentService := services.NewAgentService(cfg.AgentID, entropyService, logStore, wisdomStore, distillService, actor, metrics)

	// Initialize authentication
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT authentication: %v", err)
		}
		log.Println("✅ Local JWT authentication initialized")
	} else if os.Getenv("ENVIRONMENT") == "production" && cfg.APIKey == "" {
		log.Fatal("❌ CRITICAL SECURITY ERROR: JWT_SECRET or API_KEY is required in production. Generate with: openssl rand -hex 64")
	}

	// Background jobs
	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	retentionJob := jobs.NewRetentionCleanupJob(logStore, cfg.RetentionDays)
	if err := scheduler.RegisterDaily("retention_cleanup", 2, retentionJob); err != nil {
		log.Fatalf("❌ Failed to register retention job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "AOS v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM-backed tasks can be slow
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024, // 10MB: telemetry batches with large attributes
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("aos")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key",
	}))

	// Global API rate limiter
	app.Use("/api", limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please slow down.",
			})
		},
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, cfg.Summarizer, cfg.LLMConfigured())
	logsHandler := handlers.NewLogsHandler(logStore, metrics)
	wisdomHandler := handlers.NewWisdomHandler(distillService, wisdomStore)
	agentHandler := handlers.NewAgentHandler(agentService, entropyService, logStore)

	// Routes

	// Health check (public)
	app.Get("/health", healthHandler.Handle)

	// API routes (API key or JWT)
	api := app.Group("/api/v1", middleware.APIKeyOrJWTMiddleware(cfg.APIKey, jwtAuth))
	{
		telemetry := api.Group("/telemetry")
		telemetry.Post("/logs", logsHandler.Ingest)
		telemetry.Get("/logs", logsHandler.List)
		telemetry.Get("/logs/:trace_id", logsHandler.TraceLogs)
		telemetry.Get("/traces", logsHandler.ListTraces)
		telemetry.Get("/traces/:trace_id/tree", logsHandler.TraceTree)

		wisdom := api.Group("/wisdom")
		wisdom.Post("/distill", wisdomHandler.Distill)
		wisdom.Get("/search", wisdomHandler.Search) // Must be before parameterized routes
		wisdom.Get("/trace/:trace_id", wisdomHandler.ByTrace)
		wisdom.Get("/", wisdomHandler.List)
		wisdom.Post("/", wisdomHandler.Create)

		agent := api.Group("/agent")
		agent.Post("/task", agentHandler.RunTask)
		agent.Post("/analyze", agentHandler.Analyze)
	}

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Println("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Server listening on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}

	log.Println("✅ Server stopped")
}
