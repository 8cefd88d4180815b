// Package memory is an in-process Room Store. State lives in maps guarded by
// a per-room mutex; it is used for tests and single node dev runs.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/store"
)

type record struct {
	mu    sync.Mutex
	state *domain.RoomState
}

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*record
	presence map[string]map[int64]domain.Presence

	now func() time.Time
}

var _ store.RoomStore = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms:    make(map[string]*record),
		presence: make(map[string]map[int64]domain.Presence),
		now:      time.Now,
	}
}

func (s *Store) record(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	return rec, ok
}

func (s *Store) CreateRoom(_ context.Context, room *domain.Room) (*domain.RoomState, error) {
	s.mu.Lock()
	rec, ok := s.rooms[room.ID]
	if !ok {
		rec = &record{state: &domain.RoomState{Room: room.Clone()}}
		s.rooms[room.ID] = rec
	}
	s.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

func (s *Store) Load(_ context.Context, roomID string) (*domain.RoomState, error) {
	rec, ok := s.record(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	st, err := s.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return st.Room, nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	st, err := s.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return st.Participants, nil
}

func (s *Store) Apply(_ context.Context, roomID string, fn store.Mutation) (*domain.RoomState, error) {
	rec, ok := s.record(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	work := rec.state.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return rec.state.Clone(), nil
		}
		return nil, err
	}
	store.Commit(work, s.now())
	rec.state = work
	return work.Clone(), nil
}

func (s *Store) PendingRooms(_ context.Context, statuses []domain.Status) ([]string, error) {
	s.mu.RLock()
	recs := make(map[string]*record, len(s.rooms))
	for id, rec := range s.rooms {
		recs[id] = rec
	}
	s.mu.RUnlock()

	var out []string
	for id, rec := range recs {
		rec.mu.Lock()
		pending := slices.Contains(statuses, rec.state.Room.Status)
		rec.mu.Unlock()
		if pending {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) TouchPresence(_ context.Context, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPlayer, ok := s.presence[p.RoomID]
	if !ok {
		byPlayer = make(map[int64]domain.Presence)
		s.presence[p.RoomID] = byPlayer
	}
	byPlayer[p.PlayerID] = p
	return nil
}

func (s *Store) ListPresence(_ context.Context, roomID string, since time.Time) ([]domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Presence, 0, len(s.presence[roomID]))
	for _, p := range s.presence[roomID] {
		if p.LastSeenAt.After(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *Store) Close() error { return nil }
