package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RoomStore keeps rooms and their participants in postgres. Apply locks the
// room row with SELECT ... FOR UPDATE, so concurrent mutations of one room
// queue up in the database while other rooms proceed.
type RoomStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ store.RoomStore = (*RoomStore)(nil)

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db, now: time.Now}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func (s *RoomStore) CreateRoom(ctx context.Context, room *domain.Room) (*domain.RoomState, error) {
	_, err := s.db.Exec(ctx, qInsertRoom,
		room.ID, string(room.Status), room.Round, room.RoundID, room.TotalStakeUnits.String(),
		room.PhaseChangedAt, room.Version, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return nil, unavailable("insert room", err)
	}
	return s.Load(ctx, room.ID)
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return getRoom(ctx, s.db, roomID, false)
}

func (s *RoomStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := getRoom(ctx, s.db, roomID, false); err != nil {
		return nil, err
	}
	return listParticipants(ctx, s.db, roomID)
}

func (s *RoomStore) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	st, err := loadState(ctx, tx, roomID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}
	return st, nil
}

func (s *RoomStore) Apply(ctx context.Context, roomID string, fn store.Mutation) (*domain.RoomState, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	st, err := loadState(ctx, tx, roomID, true)
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
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}
	return st, nil
}

func (s *RoomStore) PendingRooms(ctx context.Context, statuses []domain.Status) ([]string, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := s.db.Query(ctx, qPendingRooms, names)
	if err != nil {
		return nil, unavailable("pending rooms", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("pending rooms", err)
	}
	return ids, nil
}

func (s *RoomStore) Close() error {
	s.db.Close()
	return nil
}

func loadState(ctx context.Context, q querier, roomID string, forUpdate bool) (*domain.RoomState, error) {
	room, err := getRoom(ctx, q, roomID, forUpdate)
	if err != nil {
		return nil, err
	}
	parts, err := listParticipants(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	return &domain.RoomState{Room: room, Participants: parts}, nil
}

func getRoom(ctx context.Context, q querier, roomID string, forUpdate bool) (*domain.Room, error) {
	query := qSelectRoom
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		rm     domain.Room
		status string
		total  string
	)
	err := q.QueryRow(ctx, query, roomID).Scan(
		&rm.ID, &status, &rm.Round, &rm.RoundID, &rm.CountdownEndTime, &rm.WinnerID,
		&total, &rm.TotalContributionCount,
		&rm.PhaseChangedAt, &rm.Version, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, unavailable("select room", err)
	}
	rm.Status = domain.Status(status)
	if rm.TotalStakeUnits, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("room %s total: %w", roomID, err)
	}
	return &rm, nil
}

func listParticipants(ctx context.Context, q querier, roomID string) ([]domain.Participant, error) {
	rows, err := q.Query(ctx, qSelectParticipants, roomID)
	if err != nil {
		return nil, unavailable("select participants", err)
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var (
			p     domain.Participant
			stake string
		)
		if err := rows.Scan(&p.RoomID, &p.PlayerID, &p.DisplayName, &p.AvatarURL, &stake,
			&p.ContributionCount, &p.JoinSeq, &p.ColorIndex, &p.JoinedAt, &p.UpdatedAt); err != nil {
			return nil, unavailable("scan participant", err)
		}
		if p.StakeUnits, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("participant %d stake: %w", p.PlayerID, err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("select participants", err)
	}
	return list, nil
}

// saveState writes the room row and replaces the participant set in one batch.
func saveState(ctx context.Context, tx pgx.Tx, st *domain.RoomState) error {
	rm := st.Room
	b := &pgx.Batch{}
	b.Queue(qUpdateRoom,
		rm.ID, string(rm.Status), rm.Round, rm.RoundID, rm.CountdownEndTime, rm.WinnerID,
		rm.TotalStakeUnits.String(), rm.TotalContributionCount,
		rm.PhaseChangedAt, rm.Version, rm.UpdatedAt)
	b.Queue(qDeleteParticipants, rm.ID)
	for _, p := range st.Participants {
		b.Queue(qInsertParticipant,
			rm.ID, p.PlayerID, p.DisplayName, p.AvatarURL, p.StakeUnits.String(), p.ContributionCount,
			p.JoinSeq, p.ColorIndex, p.JoinedAt, p.UpdatedAt)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return unavailable("save room state", err)
	}
	return nil
}
