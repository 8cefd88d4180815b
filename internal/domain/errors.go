package domain

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoundLocked      = errors.New("round is locked")
	ErrNoParticipants   = errors.New("no participants to draw from")
	ErrStoreUnavailable = errors.New("room store unavailable")

	ErrInvalidAmount   = errors.New("invalid stake amount")
	ErrInvalidKind     = errors.New("invalid contribution kind")
	ErrInvalidIdentity = errors.New("invalid player identity")
	ErrInvalidRoomID   = errors.New("invalid room id")
)
