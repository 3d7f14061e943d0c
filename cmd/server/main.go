package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jkorir/bookhold/internal/config"
	"github.com/jkorir/bookhold/internal/database"
	"github.com/jkorir/bookhold/internal/events"
	"github.com/jkorir/bookhold/internal/handlers"
	"github.com/jkorir/bookhold/internal/middleware"
	"github.com/jkorir/bookhold/internal/repository/postgres"
	"github.com/jkorir/bookhold/internal/services"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database connection
	db, err := database.New(cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis connection
	redis, err := database.NewRedis(cfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	// Initialize repositories
	reservationRepo := postgres.NewReservationRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)
	bookRepo := postgres.NewBookRepository(db.Pool)

	// Initialize event bus and services
	bus := events.NewBus(logger)
	queueService := services.NewQueueService(reservationRepo, bus, logger)
	reservationService := services.NewReservationService(queueService, reservationRepo, userRepo, bookRepo, logger)
	circulationService := services.NewCirculationService(queueService, reservationRepo, bookRepo, bus, logger)

	// Start the expiration sweeper
	if cfg.Sweeper.Enabled {
		sweeper := services.NewSweeper(queueService, cfg.Sweeper.Interval, logger)
		sweeper.Start(context.Background())
		defer sweeper.Stop()
	}

	// Initialize Gin router
	r := gin.New()

	// Add global middleware
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.SecureJSON())

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(redis)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redis)
	reservationHandler := handlers.NewReservationHandler(reservationService, queueService)
	circulationHandler := handlers.NewCirculationHandler(circulationService)

	v1 := r.Group("/api/v1")
	v1.Use(rateLimiter.APILimit())
	{
		v1.GET("/ping", healthHandler.Ping)
		v1.GET("/health", healthHandler.Health)

		reservations := v1.Group("/reservations")
		{
			reservations.POST("", rateLimiter.ReserveLimit(), reservationHandler.ReserveBook)
			reservations.GET("/:id", reservationHandler.GetReservation)
			reservations.DELETE("/:id", reservationHandler.CancelReservation)
			reservations.POST("/:id/fulfill", reservationHandler.FulfillReservation)
			reservations.POST("/expire", reservationHandler.ExpireReservations)
		}

		books := v1.Group("/books")
		{
			books.GET("/:book_id/queue", reservationHandler.GetBookQueue)
			books.GET("/:book_id/queue/next", reservationHandler.GetNextInQueue)
			books.POST("/:book_id/return", circulationHandler.ReturnBook)
			books.POST("/:book_id/borrow", circulationHandler.BorrowBook)
		}

		v1.GET("/users/:user_id/reservations", reservationHandler.GetUserReservations)
	}

	// Root health check
	r.GET("/health", healthHandler.Health)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "port", port, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
