package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/briankwest/imglink/internal/domain"
	apperrors "github.com/briankwest/imglink/internal/errors"
)

// connectionIDHeader carries the caller's websocket connection ID so the
// dispatcher can exclude it from fan-out. The caller already holds the
// authoritative result from this response.
const connectionIDHeader = "X-Connection-ID"

const commentPreviewLength = 50

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleCreateComment(c echo.Context) error {
	imageID, err := parsePathID(c)
	if err != nil {
		return err
	}

	var req createCommentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.ValidationError("content must not be empty")
	}

	ctx := c.Request().Context()
	authorID := currentUserID(c)

	owner, err := s.comments.ImageOwner(ctx, imageID)
	if errors.Is(err, domain.ErrImageNotFound) {
		return apperrors.NotFoundError("image not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to resolve image", err)
	}

	comment := &domain.Comment{
		Content:  req.Content,
		ImageID:  imageID,
		AuthorID: authorID,
		ParentID: req.ParentID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		if errors.Is(err, domain.ErrCommentNotFound) {
			return apperrors.NotFoundError("parent comment not found")
		}
		return apperrors.InternalError("failed to create comment", err)
	}

	// The durable write is committed; everything below is fan-out and must
	// not fail the request.
	s.publisher.Publish(domain.NewCommentEvent(comment, originConnectionID(c)))
	s.notifyImageOwner(c, owner, comment)

	if err := c.JSON(http.StatusCreated, comment); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// notifyImageOwner stores a notification for the image owner and pushes it
// to their private room. Commenting on your own image makes no noise.
func (s *Server) notifyImageOwner(c echo.Context, ownerID int64, comment *domain.Comment) {
	if ownerID == comment.AuthorID {
		return
	}

	preview := comment.Content
	if len(preview) > commentPreviewLength {
		preview = preview[:commentPreviewLength] + "..."
	}

	notification := &domain.Notification{
		UserID:         ownerID,
		Type:           domain.NotificationComment,
		Title:          "New comment on your image",
		Message:        fmt.Sprintf("%q", preview),
		RelatedUserID:  &comment.AuthorID,
		RelatedImageID: &comment.ImageID,
	}
	if err := s.notifications.Create(c.Request().Context(), notification); err != nil {
		slog.Error("failed to store comment notification",
			"image_id", comment.ImageID, "owner_id", ownerID, "error", err)
		return
	}

	s.publisher.Publish(domain.NotificationEvent(notification))
}

func (s *Server) handleUpdateComment(c echo.Context) error {
	commentID, err := parsePathID(c)
	if err != nil {
		return err
	}

	var req updateCommentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.ValidationError("content must not be empty")
	}

	comment, err := s.comments.Update(c.Request().Context(), currentUserID(c), commentID, req.Content)
	if errors.Is(err, domain.ErrCommentNotFound) {
		return apperrors.NotFoundError("comment not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to update comment", err)
	}

	s.publisher.Publish(domain.EditCommentEvent(comment, originConnectionID(c)))

	if err := c.JSON(http.StatusOK, comment); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteComment(c echo.Context) error {
	commentID, err := parsePathID(c)
	if err != nil {
		return err
	}

	imageID, err := s.comments.Delete(c.Request().Context(), currentUserID(c), commentID)
	if errors.Is(err, domain.ErrCommentNotFound) {
		return apperrors.NotFoundError("comment not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to delete comment", err)
	}

	s.publisher.Publish(domain.DeleteCommentEvent(imageID, commentID, originConnectionID(c)))

	return c.NoContent(http.StatusNoContent)
}

// originConnectionID parses the optional X-Connection-ID header. A missing
// or malformed value means no origin exclusion, never an error.
func originConnectionID(c echo.Context) uuid.UUID {
	id, err := uuid.Parse(c.Request().Header.Get(connectionIDHeader))
	if err != nil {
		return uuid.Nil
	}
	return id
}
