// Package server exposes the HTTP API: session login, health, the message
// feed used by the web client, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"

	"billgate/internal/billing"
	"billgate/internal/config"
	"billgate/internal/database"
)

const defaultConversationLimit = 50

// Server is the HTTP front of the gateway.
type Server struct {
	echo   *echo.Echo
	store  database.Store
	tokens *billing.TokenCache
	addr   string
	log    *slog.Logger
}

// New builds the HTTP server with routing and middleware configured.
func New(cfg config.ServerConfig, store database.Store, tokens *billing.TokenCache, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return cuid2.Generate() },
	}))

	registry := prometheus.NewRegistry()
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "billgate",
		Registerer: registry,
	}))

	s := &Server{
		echo:   e,
		store:  store,
		tokens: tokens,
		addr:   cfg.ListenAddr,
		log:    log.With("component", "http_server"),
	}

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: registry,
	}))
	e.GET("/api/health", s.health)
	e.POST("/api/login", s.login)
	e.POST("/api/messages", s.postMessage)
	e.GET("/api/messages", s.listMessages)

	return s
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type loginResponse struct {
	Success     bool   `json:"success"`
	Token       string `json:"token"`
	PhoneNumber string `json:"phoneNumber"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// login exchanges the phone number for a backend token through the same
// login call the token cache uses, warming the cache for later messages.
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "phoneNumber is required"})
	}

	ctx := c.Request().Context()
	token, err := s.tokens.Get(ctx, phone)
	if err != nil {
		var apiErr *billing.APIError
		var netErr net.Error
		switch {
		case errors.As(err, &apiErr) && apiErr.BadRequest():
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "authentication failed"})
		case errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded):
			s.log.WarnContext(ctx, "Billing backend unreachable during login", "error", err)
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "billing backend unreachable"})
		default:
			s.log.ErrorContext(ctx, "Login failed", "error", err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		}
	}

	return c.JSON(http.StatusOK, loginResponse{
		Success:     true,
		Token:       token,
		PhoneNumber: phone,
	})
}

// health reports liveness plus store reachability.
func (s *Server) health(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.store.Ping(ctx); err != nil {
		s.log.ErrorContext(ctx, "Health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type postMessageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
}

type messageView struct {
	ID        int64  `json:"id"`
	Origin    string `json:"origin"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

// postMessage appends one inbound user message to the feed. The reply
// arrives asynchronously through the processing loop.
func (s *Server) postMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	text := strings.TrimSpace(req.Text)
	if phone == "" || text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "phoneNumber and text are required"})
	}

	ctx := c.Request().Context()
	msg := &database.Message{
		Identity: phone,
		Body:     text,
		Origin:   database.OriginUser,
		Channel:  database.ChannelWeb,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "Failed to store inbound message", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to store message"})
	}

	return c.JSON(http.StatusAccepted, map[string]bool{"accepted": true})
}

// listMessages returns the recent conversation for one identity in
// chronological order.
func (s *Server) listMessages(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if phone == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "phone query parameter is required"})
	}

	ctx := c.Request().Context()
	msgs, err := s.store.ListConversation(ctx, phone, defaultConversationLimit)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list conversation", "identity", phone, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list messages"})
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:        m.ID,
			Origin:    m.Origin,
			Body:      m.Body,
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": views})
}
