// Package server implements the Nova chat backend HTTP API: account signup
// and JWT auth, conversation management, and LLM-backed chat completion with
// both buffered and SSE streaming delivery.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novabot/nova/internal/auth"
	"github.com/novabot/nova/internal/health"
	"github.com/novabot/nova/internal/observe"
	"github.com/novabot/nova/internal/store"
)

// userContextKey is the echo context key holding the authenticated *store.User.
const userContextKey = "nova.user"

// DefaultRequestsPerMinute is the per-user chat rate limit applied when the
// config leaves it unset.
const DefaultRequestsPerMinute = 60

// Config carries the dependencies and settings for a [Server].
type Config struct {
	// Store is the persistence backend. Required.
	Store store.Store

	// Auth issues and verifies JWT token pairs. Required.
	Auth *auth.Manager

	// Gateway routes chat requests to LLM providers. Required.
	Gateway *Gateway

	// RequestsPerMinute caps chat sends per user. Zero means
	// [DefaultRequestsPerMinute]; negative disables limiting.
	RequestsPerMinute int

	// AllowOrigins lists CORS origins. Empty allows any origin.
	AllowOrigins []string

	// Logger receives request and handler logs. Nil uses slog.Default.
	Logger *slog.Logger

	// Metrics receives request and chat instrumentation. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the Nova backend HTTP server.
type Server struct {
	echo    *echo.Echo
	store   store.Store
	auth    *auth.Manager
	gateway *Gateway
	limiter *RateLimiter
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a Server with all routes and middleware registered.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: Config.Store is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("server: Config.Auth is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("server: Config.Gateway is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute == 0 {
		perMinute = DefaultRequestsPerMinute
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Server{
		echo:    echo.New(),
		store:   cfg.Store,
		auth:    cfg.Auth,
		gateway: cfg.Gateway,
		limiter: NewRateLimiter(perMinute, time.Minute),
		metrics: metrics,
		log:     logger,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(echo.WrapMiddleware(observe.Middleware(metrics)))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
				logger.Warn("http request", attrs...)
			} else {
				logger.Info("http request", attrs...)
			}
			return nil
		},
	}))

	probes := health.New(health.PingChecker("database", cfg.Store.Ping))
	e.GET("/healthz", echo.WrapHandler(http.HandlerFunc(probes.Healthz)))
	e.GET("/readyz", echo.WrapHandler(http.HandlerFunc(probes.Readyz)))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/refresh", s.handleRefresh)

	authed := api.Group("", s.requireUser)
	authed.GET("/users/me", s.handleMe)
	authed.GET("/users/usage/summary", s.handleUsageSummary)
	authed.POST("/chat/new", s.handleCreateChat)
	authed.GET("/chat/list", s.handleListChats)
	authed.PATCH("/chat/:id", s.handleRenameChat)
	authed.DELETE("/chat/:id", s.handleDeleteChat)
	authed.GET("/chat/history/:id", s.handleChatHistory)
	authed.POST("/chat/send", s.handleSend)
	authed.POST("/chat/send/stream", s.handleSendStream)

	return s, nil
}

// Handler exposes the routed handler, mainly for tests via httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireUser authenticates the request from its Bearer access token and
// stashes the loaded user in the echo context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
		}
		userID, err := s.auth.Verify(token, auth.TypeAccess)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}
		user, err := s.store.UserByID(c.Request().Context(), userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "User not found")
		}
		if !user.IsActive {
			return echo.NewHTTPError(http.StatusForbidden, "Inactive user")
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

// currentUser returns the user stored by requireUser. Only valid inside
// authenticated routes.
func currentUser(c echo.Context) *store.User {
	user, _ := c.Get(userContextKey).(*store.User)
	return user
}

