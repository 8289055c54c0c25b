package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/auth"
	"github.com/abdusco/linkdash/internal/logger"
	"github.com/abdusco/linkdash/internal/metrics"
	"github.com/abdusco/linkdash/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Deps is everything the HTTP layer needs from the application.
type Deps struct {
	DB            Pinger
	Resolver      *service.Resolver
	Manager       *service.Manager
	Stats         *service.Aggregator
	Authenticator *auth.Authenticator
	Redirect      RedirectConfig
	RateLimit     RateLimitConfig
}

func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(logger.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestMetrics())

	e.GET("/health", healthHandler(d.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	pages := NewPageHandler()
	e.GET("/link/expired", pages.Expired)
	e.GET("/link/not-found", pages.NotFound)

	authMiddleware := auth.NewAuthMiddleware(d.Authenticator)

	authHandler := NewAuthHandler(d.Authenticator)
	authGroup := e.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", authHandler.Me, authMiddleware)

	linkHandler := NewLinkHandler(d.Manager, d.Stats)
	links := e.Group("/links", authMiddleware)
	links.POST("", linkHandler.CreateLink)
	links.GET("", linkHandler.ListLinks)
	links.GET("/summary", linkHandler.Summary)
	links.POST("/bulk-delete", linkHandler.BulkDelete)
	links.GET("/:id", linkHandler.GetLink)
	links.PATCH("/:id", linkHandler.UpdateLink)
	links.DELETE("/:id", linkHandler.DeleteLink)
	links.GET("/:id/stats", linkHandler.LinkStats)
	links.GET("/:id/qr", linkHandler.QRCode)

	var redirectMiddleware []echo.MiddlewareFunc
	if d.RateLimit.Enabled && d.RateLimit.RPS > 0 {
		redirectMiddleware = append(redirectMiddleware, redirectRateLimiter(d.RateLimit))
	}

	// Parameterized route (must be last)
	redirectHandler := NewRedirectHandler(d.Resolver, d.Redirect)
	e.GET("/:shortCode", redirectHandler.Redirect, redirectMiddleware...)

	return e
}

func healthHandler(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			log.Error().Err(err).Msg("health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// redirectRateLimiter limits redirects per client IP.
func redirectRateLimiter(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RPS),
		Burst:     cfg.Burst,
		ExpiresIn: 3 * time.Minute,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			metrics.Redirects.WithLabelValues("rate_limited").Inc()
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordAPIRequest(c.Request().Method, route, statusOf(c, err), time.Since(start))
			return err
		}
	}
}

// statusOf predicts the status the error handler will write for err.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}

	var appErr *internal.Error
	if errors.As(err, &appErr) {
		return appErr.Kind.Status()
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
