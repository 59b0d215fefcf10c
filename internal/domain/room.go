package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomKind distinguishes the two broadcast scopes: a user's private
// notification channel and an image's comment stream.
type RoomKind string

const (
	RoomKindUser  RoomKind = "user"
	RoomKindImage RoomKind = "image"
)

// RoomKey identifies a broadcast group, e.g. "user:17" or "image:42".
type RoomKey string

// UserRoom returns the private notification room for a user.
func UserRoom(userID int64) RoomKey {
	return RoomKey(fmt.Sprintf("user:%d", userID))
}

// ImageRoom returns the comment room for an image.
func ImageRoom(imageID int64) RoomKey {
	return RoomKey(fmt.Sprintf("image:%d", imageID))
}

// ParseRoomKey validates a raw room key and returns its kind and entity ID.
func ParseRoomKey(raw string) (RoomKind, int64, error) {
	kind, idStr, found := strings.Cut(raw, ":")
	if !found {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}

	switch RoomKind(kind) {
	case RoomKindUser, RoomKindImage:
		return RoomKind(kind), id, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}
}

func (k RoomKey) String() string { return string(k) }
