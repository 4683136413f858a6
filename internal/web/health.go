package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping() error
}

// HealthReporter reports whether a dependency connection is healthy
type HealthReporter interface {
	IsHealthy() bool
}

// HealthHandler checks the database and the event broker
func HealthHandler(database Pinger, publisher HealthReporter, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := database.Ping(); err != nil {
			log.Error("Database health check failed", zap.Error(err))
			return c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
		}

		if !publisher.IsHealthy() {
			log.Error("RabbitMQ health check failed")
			return c.String(http.StatusServiceUnavailable, "unhealthy: rabbitmq connection failed")
		}

		return c.String(http.StatusOK, "healthy")
	}
}
