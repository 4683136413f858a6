package web

import (
	"net/http"

	"github.com/bubblethoughts/book-management-system/internal/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// NewServer builds the Echo instance serving the lending views.
// Operational routes (health, metrics) are mounted by the caller.
func NewServer(svc LendingService, log *zap.Logger) (*echo.Echo, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(correlationMiddleware)
	e.Use(requestLogger(log))

	NewHandler(svc, log).Register(e)
	return e, nil
}

// correlationMiddleware copies the request id onto the context so published events carry it
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(events.WithCorrelationID(req.Context(), id)))
		}
		return next(c)
	}
}

// requestLogger logs every HTTP request
func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				log.Error("HTTP request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("HTTP request completed", fields...)
			return nil
		},
	})
}
