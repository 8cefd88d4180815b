package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/store"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.RoomStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) (*domain.RoomState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rooms (id, status, round, round_id, total_stake_units, phase_changed_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, string(room.Status), room.Round, room.RoundID, room.TotalStakeUnits.String(),
		toNanos(room.PhaseChangedAt), room.Version, toNanos(room.CreatedAt), toNanos(room.UpdatedAt))
	if err != nil {
		return nil, unavailable("insert room", err)
	}
	return s.Load(ctx, room.ID)
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return getRoom(ctx, s.db, roomID)
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := getRoom(ctx, s.db, roomID); err != nil {
		return nil, err
	}
	return listParticipants(ctx, s.db, roomID)
}

func (s *Store) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	return loadState(ctx, s.db, roomID)
}

func (s *Store) Apply(ctx context.Context, roomID string, fn store.Mutation) (*domain.RoomState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	st, err := loadState(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	current := st.Clone()

	if err := fn(st); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return current, nil
		}
		return nil, err
	}
	store.Commit(st, s.now())

	if err := saveState(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return st, nil
}

func (s *Store) PendingRooms(ctx context.Context, statuses []domain.Status) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM rooms WHERE status IN (`+marks+`) ORDER BY id`, args...)
	if err != nil {
		return nil, unavailable("pending rooms", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan room id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) TouchPresence(ctx context.Context, p domain.Presence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence (room_id, player_id, display_name, avatar_url, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, player_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			last_seen_at = MAX(presence.last_seen_at, excluded.last_seen_at)`,
		p.RoomID, p.PlayerID, p.DisplayName, nullString(p.AvatarURL), toNanos(p.LastSeenAt))
	if err != nil {
		return unavailable("touch presence", err)
	}
	return nil
}

func (s *Store) ListPresence(ctx context.Context, roomID string, since time.Time) ([]domain.Presence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, player_id, display_name, avatar_url, last_seen_at
		FROM presence
		WHERE room_id = ? AND last_seen_at > ?
		ORDER BY last_seen_at DESC, player_id ASC`, roomID, toNanos(since))
	if err != nil {
		return nil, unavailable("list presence", err)
	}
	defer rows.Close()

	var out []domain.Presence
	for rows.Next() {
		var (
			p      domain.Presence
			avatar sql.NullString
			seen   int64
		)
		if err := rows.Scan(&p.RoomID, &p.PlayerID, &p.DisplayName, &avatar, &seen); err != nil {
			return nil, unavailable("scan presence", err)
		}
		if avatar.Valid {
			p.AvatarURL = &avatar.String
		}
		p.LastSeenAt = fromNanos(seen)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func loadState(ctx context.Context, q queryer, roomID string) (*domain.RoomState, error) {
	room, err := getRoom(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	parts, err := listParticipants(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	return &domain.RoomState{Room: room, Participants: parts}, nil
}

func getRoom(ctx context.Context, q queryer, roomID string) (*domain.Room, error) {
	var (
		rm                      domain.Room
		status                  string
		countdown, winner       sql.NullInt64
		phase, created, updated int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, status, round, round_id, countdown_end_time, winner_id,
		       total_stake_units, total_contribution_count, phase_changed_at, version, created_at, updated_at
		FROM rooms WHERE id = ?`, roomID).Scan(
		&rm.ID, &status, &rm.Round, &rm.RoundID, &countdown, &winner,
		&rm.TotalStakeUnits, &rm.TotalContributionCount, &phase, &rm.Version, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, unavailable("select room", err)
	}
	rm.Status = domain.Status(status)
	if countdown.Valid {
		t := fromNanos(countdown.Int64)
		rm.CountdownEndTime = &t
	}
	if winner.Valid {
		w := winner.Int64
		rm.WinnerID = &w
	}
	rm.PhaseChangedAt = fromNanos(phase)
	rm.CreatedAt = fromNanos(created)
	rm.UpdatedAt = fromNanos(updated)
	return &rm, nil
}

func listParticipants(ctx context.Context, q queryer, roomID string) ([]domain.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT room_id, player_id, display_name, avatar_url, stake_units, contribution_count,
		       join_seq, color_index, joined_at, updated_at
		FROM participants WHERE room_id = ? ORDER BY join_seq ASC`, roomID)
	if err != nil {
		return nil, unavailable("select participants", err)
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var (
			p               domain.Participant
			avatar          sql.NullString
			joined, updated int64
		)
		if err := rows.Scan(&p.RoomID, &p.PlayerID, &p.DisplayName, &avatar, &p.StakeUnits,
			&p.ContributionCount, &p.JoinSeq, &p.ColorIndex, &joined, &updated); err != nil {
			return nil, unavailable("scan participant", err)
		}
		if avatar.Valid {
			p.AvatarURL = &avatar.String
		}
		p.JoinedAt = fromNanos(joined)
		p.UpdatedAt = fromNanos(updated)
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("select participants", err)
	}
	return list, nil
}

func saveState(ctx context.Context, tx *sql.Tx, st *domain.RoomState) error {
	rm := st.Room
	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms SET status = ?, round = ?, round_id = ?, countdown_end_time = ?, winner_id = ?,
		       total_stake_units = ?, total_contribution_count = ?, phase_changed_at = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		string(rm.Status), rm.Round, rm.RoundID, nullTime(rm.CountdownEndTime), nullInt(rm.WinnerID),
		rm.TotalStakeUnits.String(), rm.TotalContributionCount, toNanos(rm.PhaseChangedAt), rm.Version,
		toNanos(rm.UpdatedAt), rm.ID); err != nil {
		return unavailable("update room", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE room_id = ?`, rm.ID); err != nil {
		return unavailable("clear participants", err)
	}
	for _, p := range st.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (room_id, player_id, display_name, avatar_url, stake_units,
			                          contribution_count, join_seq, color_index, joined_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rm.ID, p.PlayerID, p.DisplayName, nullString(p.AvatarURL), p.StakeUnits.String(),
			p.ContributionCount, p.JoinSeq, p.ColorIndex, toNanos(p.JoinedAt), toNanos(p.UpdatedAt)); err != nil {
			return unavailable("insert participant", err)
		}
	}
	return nil
}
