package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/briankwest/imglink/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())

	s.registerHealthRoutes()

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	s.echo.GET("/ws/notifications", s.websocketHandler)

	api := s.echo.Group("/api/v1", s.bearerAuthMiddleware())

	api.GET("/notifications", s.handleListNotifications)
	api.GET("/notifications/unread-count", s.handleUnreadCount)
	api.PUT("/notifications/read-all", s.handleMarkAllRead)
	api.PUT("/notifications/:id/read", s.handleMarkRead)
	api.DELETE("/notifications/:id", s.handleDeleteNotification)
	api.DELETE("/notifications", s.handleDeleteAllNotifications)

	api.POST("/images/:id/comments", s.handleCreateComment)
	api.PUT("/comments/:id", s.handleUpdateComment)
	api.DELETE("/comments/:id", s.handleDeleteComment)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
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
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
