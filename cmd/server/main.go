package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/minjcho/noteum-account/config"
	"github.com/minjcho/noteum-account/internal/app/controller"
	"github.com/minjcho/noteum-account/internal/app/repository"
	"github.com/minjcho/noteum-account/internal/app/service"
	"github.com/minjcho/noteum-account/internal/db"
	"github.com/minjcho/noteum-account/internal/dispatch"
	"github.com/minjcho/noteum-account/internal/middleware"
	"github.com/minjcho/noteum-account/internal/router"
	"github.com/minjcho/noteum-account/internal/scheduler"
	"github.com/minjcho/noteum-account/pkg/logger"
	"github.com/minjcho/noteum-account/pkg/redis"
)

func main() {
	// Load configuration; this fails fast when the signing key is missing
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      "console", // Use "json" for production
		EnableColor: true,
	})

	logger.Info("Starting NOTEUM Account Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis backs the mail queue and the token blacklist. Without it the
	// server still runs: OTP jobs go to the log dispatcher and refresh
	// tokens cannot be revoked.
	var dispatcher dispatch.EmailDispatcher
	var blacklist service.TokenBlacklist
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, using development fallbacks", map[string]interface{}{
			"error": err.Error(),
		})
		dispatcher = dispatch.NewLogDispatcher()
	} else {
		defer func() {
			if err := redis.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		dispatcher = dispatch.NewRedisQueue(redis.GetClient(), cfg.Mail.QueueKey)
		blacklist = redis.NewTokenBlacklist(redis.GetClient())
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.GetDB())
	recoveryRepo := repository.NewRecoveryRepository(db.GetDB())

	// Initialize services
	authService := service.NewAuthService(userRepo, blacklist, cfg.JWT)
	recoveryService := service.NewRecoveryService(
		recoveryRepo,
		userRepo,
		dispatcher,
		cfg.Recovery,
		cfg.JWT,
	)

	// Initialize controllers
	authController := controller.NewAuthController(authService)
	recoveryController := controller.NewRecoveryController(recoveryService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Retention pruning of dead recovery entries
	retentionScheduler := scheduler.NewRetentionScheduler(recoveryRepo, cfg.Recovery.RetentionGrace)
	if err := retentionScheduler.Start(); err != nil {
		logger.Fatal("Failed to start retention scheduler", err)
	}
	defer retentionScheduler.Stop()

	// Setup router
	r := router.NewRouter(
		authController,
		recoveryController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server started successfully", map[string]interface{}{
			"address": addr,
			"pid":     os.Getpid(),
		})
		if err := engine.Run(addr); err != nil {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	logger.Info("Server stopped successfully")
}
