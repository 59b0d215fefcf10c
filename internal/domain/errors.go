package domain

import "errors"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrImageNotFound        = errors.New("image not found")
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrInvalidRoomKey       = errors.New("invalid room key")
	ErrRegistryClosed       = errors.New("registry is closed")
	ErrRegistryFull         = errors.New("connection limit reached")
)
