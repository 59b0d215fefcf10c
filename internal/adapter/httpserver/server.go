// Package httpserver is the REST boundary of the realtime layer: durable
// reads for catch-up and polling, and the mutation endpoints that commit
// through a repository and then publish to the affected room.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/briankwest/imglink/internal/domain"
	"github.com/briankwest/imglink/internal/platform/config"
)

type notificationStore interface {
	List(ctx context.Context, userID int64, unreadOnly bool, skip, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID, notificationID int64) error
	DeleteAll(ctx context.Context, userID int64) (int64, error)
	Create(ctx context.Context, n *domain.Notification) error
}

type commentStore interface {
	Create(ctx context.Context, c *domain.Comment) error
	Update(ctx context.Context, authorID, commentID int64, content string) (*domain.Comment, error)
	Delete(ctx context.Context, authorID, commentID int64) (imageID int64, err error)
	ImageOwner(ctx context.Context, imageID int64) (int64, error)
}

type eventPublisher interface {
	Publish(event domain.Event)
}

type tokenVerifier interface {
	Verify(token string) (int64, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	notifications notificationStore
	comments      commentStore
	publisher     eventPublisher
	verifier      tokenVerifier

	websocketHandler echo.HandlerFunc
	metricsHandler   http.Handler
	healthChecks     []HealthCheck
	startTime        time.Time
}

func NewServer(
	cfg *config.Config,
	notifications notificationStore,
	comments commentStore,
	publisher eventPublisher,
	verifier tokenVerifier,
	websocketHandler echo.HandlerFunc,
	metricsHandler http.Handler,
	healthChecks []HealthCheck,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		notifications:    notifications,
		comments:         comments,
		publisher:        publisher,
		verifier:         verifier,
		websocketHandler: websocketHandler,
		metricsHandler:   metricsHandler,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
