package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"tacotip-backend/config"
	"tacotip-backend/controllers"
	"tacotip-backend/database"
	"tacotip-backend/engine"
	"tacotip-backend/ghost"
	"tacotip-backend/metrics"
	"tacotip-backend/middlewares"
	"tacotip-backend/routes"
	"tacotip-backend/slackbot"
	"tacotip-backend/store"
	"tacotip-backend/tips"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	// ---- Database
	if err := database.Connect(cfg); err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	// ---- Expiring KV (dedup markers, pending tips)
	kv, err := store.Open(cfg.BoltPath)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer kv.Close()
	go func() {
		// Bolt has no native TTL; reclaim expired entries periodically.
		for range time.Tick(time.Minute) {
			if err := kv.Sweep(); err != nil {
				log.Warn("store sweep failed", "err", err)
			}
		}
	}()

	// ---- Components
	eng := engine.New(cfg, log)
	idx := ghost.New(cfg.GhostAPIURL, cfg.GhostAPIKey, log)
	bot := &slackbot.Bot{DB: database.DB, Cfg: cfg, Engine: eng, Ghost: idx, Log: log}
	orc := &tips.Orchestrator{
		Engine:     eng,
		Store:      kv,
		DB:         database.DB,
		Notifier:   bot,
		Log:        log,
		DedupTTL:   cfg.DedupTTL,
		PendingTTL: cfg.PendingTTL,
	}
	rec := &tips.Reconciler{Store: kv, Notifier: bot, DB: database.DB, Log: log}

	controllers.Init(controllers.Deps{
		Cfg:          cfg,
		Engine:       eng,
		Bot:          bot,
		Orchestrator: orc,
		Reconciler:   rec,
		Log:          log,
	})

	metrics.Start(context.Background(), cfg.MetricsListen, log)

	// ---- Limits (configurable via env)
	bodyLimitBytes := envInt("BODY_LIMIT_BYTES", 0)
	if bodyLimitBytes <= 0 {
		bodyLimitBytes = envInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    bodyLimitBytes,
	})

	// ---- CORS
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: false,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	// ---- Global rate limiter (applies to all routes; tune via env)
	rlMax := envInt("RATE_LIMIT_MAX", 120)
	rlWindow := time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	app.Use(limiter.New(limiter.Config{
		Max:        rlMax,
		Expiration: rlWindow,
	}))

	// ---- Routes
	routes.Register(app)

	// ---- Start
	log.Info("starting server", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
