package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/store"
)

type PresenceService struct {
	store store.RoomStore
	now   func() time.Time

	heartbeatWindow time.Duration
}

func NewPresenceService(st store.RoomStore) *PresenceService {
	return &PresenceService{
		store:           st,
		now:             time.Now,
		heartbeatWindow: 60 * time.Second, // "online" window
	}
}

func (s *PresenceService) SetHeartbeatWindow(d time.Duration) {
	if d > 0 {
		s.heartbeatWindow = d
	}
}

// Touch records that the player has the room open. It is fire-and-forget
// from the caller's point of view and never takes the room lock.
func (s *PresenceService) Touch(ctx context.Context, roomID string, id domain.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return s.store.TouchPresence(ctx, domain.Presence{
		RoomID:      roomID,
		PlayerID:    id.ID,
		DisplayName: id.Name(),
		AvatarURL:   id.AvatarURL,
		LastSeenAt:  s.now(),
	})
}

// Online lists players seen within the heartbeat window.
func (s *PresenceService) Online(ctx context.Context, roomID string) ([]domain.Presence, error) {
	return s.store.ListPresence(ctx, roomID, s.now().Add(-s.heartbeatWindow))
}
