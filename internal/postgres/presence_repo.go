package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
)

// TouchPresence upserts a heartbeat; last_seen_at never moves backwards.
func (s *RoomStore) TouchPresence(ctx context.Context, p domain.Presence) error {
	if _, err := s.db.Exec(ctx, qTouchPresence, p.RoomID, p.PlayerID, p.DisplayName, p.AvatarURL, p.LastSeenAt); err != nil {
		return unavailable("touch presence", err)
	}
	return nil
}

// ListPresence returns players seen after since, freshest first.
func (s *RoomStore) ListPresence(ctx context.Context, roomID string, since time.Time) ([]domain.Presence, error) {
	rows, err := s.db.Query(ctx, qListPresence, roomID, since)
	if err != nil {
		return nil, unavailable("list presence", err)
	}
	defer rows.Close()

	out := make([]domain.Presence, 0, 16)
	for rows.Next() {
		var p domain.Presence
		if err := rows.Scan(&p.RoomID, &p.PlayerID, &p.DisplayName, &p.AvatarURL, &p.LastSeenAt); err != nil {
			return nil, unavailable("scan presence", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list presence", err)
	}
	return out, nil
}
