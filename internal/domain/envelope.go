package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the discriminant of the wire envelope.
type EventType string

const (
	// Server to client.
	EventConnection    EventType = "connection"
	EventNotification  EventType = "notification"
	EventNewComment    EventType = "new_comment"
	EventEditComment   EventType = "edit_comment"
	EventDeleteComment EventType = "delete_comment"
	EventOnlineUsers   EventType = "online_users"

	// Both directions.
	EventHeartbeat EventType = "heartbeat"

	// Client to server.
	EventJoinRoom       EventType = "join_room"
	EventLeaveRoom      EventType = "leave_room"
	EventMarkRead       EventType = "mark_read"
	EventGetOnlineUsers EventType = "get_online_users"
)

// CloseAuthFailure is the websocket close code sent when the handshake token
// is missing or invalid. Clients must treat it as permanent and not retry.
const CloseAuthFailure = 4001

// Envelope is the wire format, one JSON object per frame. Only the fields
// relevant to the Type are populated; Validate enforces that at the boundary
// before the message is handed to application logic.
type Envelope struct {
	Type             EventType        `json:"type"`
	RoomID           string           `json:"room_id,omitempty"`
	Comment          *Comment         `json:"comment,omitempty"`
	CommentID        int64            `json:"comment_id,omitempty"`
	UserID           int64            `json:"user_id,omitempty"`
	NotificationID   int64            `json:"notification_id,omitempty"`
	ID               int64            `json:"id,omitempty"`
	NotificationType NotificationType `json:"notification_type,omitempty"`
	Title            string           `json:"title,omitempty"`
	Message          string           `json:"message,omitempty"`
	Timestamp        string           `json:"timestamp,omitempty"`
	Users            []int64          `json:"users,omitempty"`
	Status           string           `json:"status,omitempty"`

	// ConnectionID is sent in the connection ack so the client can tag its
	// own REST mutations for origin exclusion.
	ConnectionID string `json:"connection_id,omitempty"`
}

// Validate checks that the envelope carries the fields its type requires.
func (e *Envelope) Validate() error {
	switch e.Type {
	case EventJoinRoom, EventLeaveRoom:
		if _, _, err := ParseRoomKey(e.RoomID); err != nil {
			return err
		}
	case EventMarkRead:
		if e.NotificationID <= 0 {
			return fmt.Errorf("mark_read requires a positive notification_id, got %d", e.NotificationID)
		}
	case EventNewComment, EventEditComment:
		if e.Comment == nil {
			return fmt.Errorf("%s requires a comment payload", e.Type)
		}
	case EventDeleteComment:
		if e.CommentID <= 0 {
			return fmt.Errorf("delete_comment requires a positive comment_id, got %d", e.CommentID)
		}
	case EventHeartbeat, EventConnection, EventNotification, EventOnlineUsers, EventGetOnlineUsers:
		// no required fields
	case "":
		return fmt.Errorf("envelope is missing a type")
	default:
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}
	return nil
}

// DecodeEnvelope parses and validates a single frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Event is a domain event handed to the dispatcher after a durable write.
// OriginConnectionID, when set, is excluded from fan-out: the originating
// client already holds the authoritative result from the REST response.
type Event struct {
	Room     RoomKey
	Envelope Envelope
	Origin   uuid.UUID // zero value means no origin exclusion
}

// NewCommentEvent builds the fan-out event for a freshly created comment.
func NewCommentEvent(c *Comment, origin uuid.UUID) Event {
	return Event{
		Room:     ImageRoom(c.ImageID),
		Envelope: Envelope{Type: EventNewComment, Comment: c},
		Origin:   origin,
	}
}

// EditCommentEvent builds the fan-out event for an edited comment.
func EditCommentEvent(c *Comment, origin uuid.UUID) Event {
	return Event{
		Room:     ImageRoom(c.ImageID),
		Envelope: Envelope{Type: EventEditComment, Comment: c},
		Origin:   origin,
	}
}

// DeleteCommentEvent builds the fan-out event for a deleted comment.
func DeleteCommentEvent(imageID, commentID int64, origin uuid.UUID) Event {
	return Event{
		Room:     ImageRoom(imageID),
		Envelope: Envelope{Type: EventDeleteComment, CommentID: commentID},
		Origin:   origin,
	}
}

// NotificationEvent builds the private-channel event for a stored notification.
func NotificationEvent(n *Notification) Event {
	return Event{
		Room: UserRoom(n.UserID),
		Envelope: Envelope{
			Type:             EventNotification,
			ID:               n.ID,
			NotificationType: n.Type,
			Title:            n.Title,
			Message:          n.Message,
			Timestamp:        n.CreatedAt.Format(time.RFC3339),
		},
	}
}
