// Package store defines the Room Store contract the coordinator runs on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
)

// ErrNoChange aborts a Mutation without writing; Apply then returns the
// current state and a nil error.
var ErrNoChange = errors.New("no change")

// Mutation edits st in place. Returning an error discards every change.
type Mutation func(st *domain.RoomState) error

type RoomStore interface {
	// CreateRoom inserts room unless a room with the same id exists and
	// returns whatever is stored afterwards.
	CreateRoom(ctx context.Context, room *domain.Room) (*domain.RoomState, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	// Load reads room and participants as one consistent state.
	Load(ctx context.Context, roomID string) (*domain.RoomState, error)
	// Apply runs fn with exclusive access to the room and persists the result
	// atomically, bumping Version and UpdatedAt.
	Apply(ctx context.Context, roomID string, fn Mutation) (*domain.RoomState, error)
	// PendingRooms lists ids of rooms whose status is one of statuses.
	PendingRooms(ctx context.Context, statuses []domain.Status) ([]string, error)

	TouchPresence(ctx context.Context, p domain.Presence) error
	ListPresence(ctx context.Context, roomID string, since time.Time) ([]domain.Presence, error)

	Close() error
}

// Commit stamps a state that is about to be persisted.
func Commit(st *domain.RoomState, now time.Time) {
	st.Room.Version++
	st.Room.UpdatedAt = now
}
