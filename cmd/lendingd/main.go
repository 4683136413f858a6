package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/config"
	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/bubblethoughts/book-management-system/internal/events"
	grpcserver "github.com/bubblethoughts/book-management-system/internal/grpc"
	"github.com/bubblethoughts/book-management-system/internal/lending"
	"github.com/bubblethoughts/book-management-system/internal/metrics"
	"github.com/bubblethoughts/book-management-system/internal/repo"
	"github.com/bubblethoughts/book-management-system/internal/web"
	"github.com/bubblethoughts/book-management-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// eventPublisher is satisfied by both the RabbitMQ publisher and the no-op one
type eventPublisher interface {
	lending.Publisher
	Close() error
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Lending service starting")

	// Connect to database
	log.Info("Connecting to database...", zap.String("driver", cfg.DBDriver))
	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	lendingRepo := repo.NewLendingRepository(database, log, repo.WithStrictLending(cfg.StrictLending))

	var publisher eventPublisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		log.Info("Connecting to RabbitMQ")
		amqpPublisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		publisher = amqpPublisher
	} else {
		log.Warn("RABBITMQ_URL not set, lending events disabled")
	}
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lendingMetrics := metrics.New(registry, lendingRepo, log)

	service := lending.NewService(lendingRepo, publisher, lendingMetrics, log)

	// Web UI plus operational routes
	e, err := web.NewServer(service, log)
	if err != nil {
		log.Fatal("Failed to build web server", zap.Error(err))
	}
	e.GET("/healthz", web.HealthHandler(database, publisher, log))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// gRPC health endpoint
	grpcServer := grpcserver.NewServer(grpcserver.NewHealthServer(database, publisher, log), log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	grpcServer.GracefulStop()

	// Let pending event publishes finish before the broker connection closes
	service.Wait()

	log.Info("Server stopped")
}
