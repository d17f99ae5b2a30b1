package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/infrastructure/ratelimit"
	"github.com/kavos113/dynctf/infrastructure/repository"
	"github.com/kavos113/dynctf/infrastructure/runner"
	"github.com/kavos113/dynctf/interface/handler"
	"github.com/kavos113/dynctf/interface/middleware"
	"github.com/kavos113/dynctf/lib/logger"
	"github.com/kavos113/dynctf/usecase"
)

func main() {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	slogger := logger.New("dynctf")

	dbConfig := repository.NewConfigFromEnv()
	db, err := repository.Connect(dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if os.Getenv("DB_INIT_SCHEMA") == "true" {
		if err := repository.InitSchema(context.Background(), db, dbConfig.SchemaPath); err != nil {
			log.Fatalf("failed to initialize schema: %v", err)
		}
	}

	userRepo := repository.NewMySQLUserRepository(db)
	challengeRepo := repository.NewMySQLChallengeRepository(db)
	hintRepo := repository.NewMySQLHintRepository(db)
	submissionRepo := repository.NewMySQLSubmissionRepository(db)
	instanceRepo := repository.NewMySQLInstanceRepository(db)

	containerRunner, err := runner.New(runner.NewConfigFromEnv(), slogger)
	if err != nil {
		log.Fatalf("failed to create container runner: %v", err)
	}

	containerService := usecase.NewContainerService(
		challengeRepo, instanceRepo, containerRunner,
		usecase.NewInstanceConfigFromEnv(), slogger)
	submissionService := usecase.NewSubmissionService(
		challengeRepo, submissionRepo, hintRepo, slogger)

	// The limiter is optional: without redis, submissions are unthrottled.
	var limiter ratelimit.Limiter
	redisLimiter, err := ratelimit.NewRedisLimiter(ratelimit.NewConfigFromEnv())
	if err != nil {
		slogger.Warn("redis unavailable, submission rate limiting disabled", "error", err.Error())
	} else {
		limiter = redisLimiter
		defer redisLimiter.Close()
	}

	containerService.EnsureAlwaysOn(context.Background())
	containerService.StartReaper()
	defer containerService.StopReaper()

	challengeHandler := handler.NewChallengeHandler(challengeRepo, slogger)
	instanceHandler := handler.NewInstanceHandler(challengeRepo, containerService, slogger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, limiter, slogger)
	healthHandler := handler.NewHealthHandler(containerService)

	e := echo.New()
	e.HideBanner = true
	e.Use(logger.RequestLogger(slogger))

	e.GET("/runner/health", healthHandler.RunnerHealth)

	authed := e.Group("", middleware.RequireUser(userRepo))
	authed.GET("/challenges", challengeHandler.List)
	authed.POST("/challenges/:id/instance", instanceHandler.Start)
	authed.GET("/challenges/:id/instance", instanceHandler.Get)
	authed.DELETE("/challenges/:id/instance", instanceHandler.Stop)
	authed.POST("/submit", submissionHandler.Submit)
	authed.GET("/leaderboard", submissionHandler.Leaderboard)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slogger.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			slogger.Error("shutdown failed", "error", err.Error())
		}
	}()

	slogger.Info("server starting", "port", port)
	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to serve: %v", err)
	}
}
