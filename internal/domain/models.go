package domain

import "time"

// NotificationType mirrors the enum used by the durable store.
type NotificationType string

const (
	NotificationComment     NotificationType = "comment"
	NotificationLike        NotificationType = "like"
	NotificationFollow      NotificationType = "follow"
	NotificationMention     NotificationType = "mention"
	NotificationSystem      NotificationType = "system"
	NotificationImageShared NotificationType = "image_shared"
	NotificationAlbumShared NotificationType = "album_shared"
)

// Notification is a durable per-user notification. The realtime layer only
// reads and flags these; creation happens on the REST write path.
type Notification struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"user_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	RelatedUserID  *int64           `json:"related_user_id,omitempty"`
	RelatedImageID *int64           `json:"related_image_id,omitempty"`
	Read           bool             `json:"read"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Comment is a single entry in an image's threaded comment stream.
// Replies nest one level deep per node; the full thread forms a tree.
type Comment struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	ImageID   int64     `json:"image_id"`
	AuthorID  int64     `json:"author_id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Replies   []Comment `json:"replies,omitempty"`
}
