package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/idempotency"
)

type ServerConfig struct {
	// Production hides internal error details from clients.
	Production bool
	// JWTSecret enables bearer authentication on mutating routes when set.
	JWTSecret string
	// Registerer and Gatherer back the HTTP metrics; nil uses the
	// prometheus defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Health reports storage liveness for /health. Optional.
	Health func(ctx context.Context) error
}

// NewServer builds the echo instance with middleware, /health, /metrics
// and the API routes under /api.
func NewServer(h *Handler, cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	showDetails := !cfg.Production
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(detailsKey, showDetails)
			return next(c)
		}
	})
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				zap.L().Warn("http request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zap.L().Info("http request", fields...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, idempotency.Header},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "libreria",
		Registerer: cfg.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: cfg.Gatherer}))
	e.GET("/health", func(c echo.Context) error {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				return fail(c, http.StatusServiceUnavailable, "INTERNAL_ERROR", "Storage unavailable", err)
			}
		}
		return ok(c, map[string]string{"status": "ok"})
	})

	var staff, self []echo.MiddlewareFunc
	if cfg.JWTSecret != "" {
		auth := jwtMiddleware([]byte(cfg.JWTSecret))
		staff = []echo.MiddlewareFunc{auth, sellerGuard(h.catalog)}
		self = []echo.MiddlewareFunc{auth}
	} else {
		zap.L().Warn("auth.jwt_secret is empty, seller routes are not authenticated")
	}
	h.RegisterRoutes(e.Group("/api"), staff, self)
	return e
}
