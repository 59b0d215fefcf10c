package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/briankwest/imglink/internal/domain"
	apperrors "github.com/briankwest/imglink/internal/errors"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

func (s *Server) handleListNotifications(c echo.Context) error {
	userID := currentUserID(c)

	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread_only"))
	skip := parseQueryInt(c, "skip", 0)
	limit := parseQueryInt(c, "limit", defaultNotificationLimit)
	if skip < 0 || limit <= 0 {
		return apperrors.ValidationError("skip must be >= 0 and limit must be > 0")
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := s.notifications.List(c.Request().Context(), userID, unreadOnly, skip, limit)
	if err != nil {
		return apperrors.InternalError("failed to list notifications", err)
	}

	if err := c.JSON(http.StatusOK, notifications); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	count, err := s.notifications.UnreadCount(c.Request().Context(), currentUserID(c))
	if err != nil {
		return apperrors.InternalError("failed to count notifications", err)
	}

	if err := c.JSON(http.StatusOK, map[string]int64{"unread_count": count}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) handleMarkRead(c echo.Context) error {
	notificationID, err := parsePathID(c)
	if err != nil {
		return err
	}

	err = s.notifications.MarkRead(c.Request().Context(), currentUserID(c), notificationID)
	if errors.Is(err, domain.ErrNotificationNotFound) {
		return apperrors.NotFoundError("notification not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to mark notification read", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(c echo.Context) error {
	updated, err := s.notifications.MarkAllRead(c.Request().Context(), currentUserID(c))
	if err != nil {
		return apperrors.InternalError("failed to mark notifications read", err)
	}

	if err := c.JSON(http.StatusOK, map[string]int64{"updated": updated}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	notificationID, err := parsePathID(c)
	if err != nil {
		return err
	}

	err = s.notifications.Delete(c.Request().Context(), currentUserID(c), notificationID)
	if errors.Is(err, domain.ErrNotificationNotFound) {
		return apperrors.NotFoundError("notification not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to delete notification", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteAllNotifications(c echo.Context) error {
	deleted, err := s.notifications.DeleteAll(c.Request().Context(), currentUserID(c))
	if err != nil {
		return apperrors.InternalError("failed to delete notifications", err)
	}

	if err := c.JSON(http.StatusOK, map[string]int64{"deleted": deleted}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func parsePathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("id must be a positive integer")
	}
	return id, nil
}

func parseQueryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
