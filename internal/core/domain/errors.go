package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrRoomFull   = errors.New("room is full")
)
