// Package storetest is a behaviour suite every store.RoomStore must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/ledger"
	"github.com/cwrk-planet/roulette-service/internal/store"

	"github.com/shopspring/decimal"
)

// Factory returns an empty store; it is called once per subtest.
type Factory func(t *testing.T) store.RoomStore

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s store.RoomStore)
	}{
		{"CreateRoomIsIdempotent", testCreateRoomIdempotent},
		{"UnknownRoom", testUnknownRoom},
		{"ApplyPersists", testApplyPersists},
		{"ApplyErrorRollsBack", testApplyRollback},
		{"ApplyNoChange", testApplyNoChange},
		{"ApplyClear", testApplyClear},
		{"ConcurrentApply", testConcurrentApply},
		{"PendingRooms", testPendingRooms},
		{"StakePrecision", testStakePrecision},
		{"Presence", testPresence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func mustCreate(t *testing.T, s store.RoomStore, id string) *domain.RoomState {
	t.Helper()
	st, err := s.CreateRoom(context.Background(), domain.NewRoom(id, "round-"+id, base))
	if err != nil {
		t.Fatalf("CreateRoom(%s): %v", id, err)
	}
	return st
}

func testCreateRoomIdempotent(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	first := mustCreate(t, s, "r1")
	second, err := s.CreateRoom(ctx, domain.NewRoom("r1", "other-round", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("CreateRoom again: %v", err)
	}
	if second.Room.RoundID != first.Room.RoundID {
		t.Fatalf("second create replaced the room: %q vs %q", second.Room.RoundID, first.Room.RoundID)
	}
	if second.Room.Status != domain.StatusWaiting || !second.Room.TotalStakeUnits.IsZero() {
		t.Fatalf("unexpected fresh room: %+v", second.Room)
	}
}

func testUnknownRoom(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Load: %v", err)
	}
	if _, err := s.GetRoom(ctx, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("GetRoom: %v", err)
	}
	_, err := s.Apply(ctx, "missing", func(*domain.RoomState) error { return nil })
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Apply: %v", err)
	}
}

func addStake(l *ledger.Ledger, id int64, units decimal.Decimal) store.Mutation {
	return func(st *domain.RoomState) error {
		avatar := fmt.Sprintf("https://cdn.example/%d.png", id)
		_, err := l.AddStake(st, domain.Identity{ID: id, DisplayName: fmt.Sprintf("p%d", id), AvatarURL: &avatar}, units, false, base)
		return err
	}
}

func testApplyPersists(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	l := ledger.New(nil, decimal.NewFromInt(1))
	start := mustCreate(t, s, "r1")

	if _, err := s.Apply(ctx, "r1", addStake(l, 2, decimal.RequireFromString("12.345"))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st, err := s.Apply(ctx, "r1", func(st *domain.RoomState) error {
		if err := addStake(l, 1, decimal.NewFromInt(3))(st); err != nil {
			return err
		}
		end := base.Add(20 * time.Second)
		st.Room.CountdownEndTime = &end
		st.Room.SetStatus(domain.StatusCountdown, base)
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st.Room.Version != start.Room.Version+2 {
		t.Fatalf("version=%d want %d", st.Room.Version, start.Room.Version+2)
	}

	loaded, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Room.Status != domain.StatusCountdown || loaded.Room.CountdownEndTime == nil ||
		!loaded.Room.CountdownEndTime.Equal(base.Add(20*time.Second)) {
		t.Fatalf("room not persisted: %+v", loaded.Room)
	}
	if !loaded.Room.TotalStakeUnits.Equal(decimal.RequireFromString("15.345")) || loaded.Room.TotalContributionCount != 2 {
		t.Fatalf("totals=%s/%d", loaded.Room.TotalStakeUnits, loaded.Room.TotalContributionCount)
	}
	if len(loaded.Participants) != 2 || loaded.Participants[0].PlayerID != 2 || loaded.Participants[1].PlayerID != 1 {
		t.Fatalf("join order lost: %+v", loaded.Participants)
	}
	p := loaded.Participants[0]
	if p.DisplayName != "p2" || p.AvatarURL == nil || *p.AvatarURL != "https://cdn.example/2.png" || p.ColorIndex != 0 {
		t.Fatalf("participant fields lost: %+v", p)
	}
	if err := ledger.Check(loaded); err != nil {
		t.Fatalf("ledger: %v", err)
	}

	parts, err := s.ListParticipants(ctx, "r1")
	if err != nil || len(parts) != 2 {
		t.Fatalf("ListParticipants: %v %d", err, len(parts))
	}
	room, err := s.GetRoom(ctx, "r1")
	if err != nil || room.Version != st.Room.Version {
		t.Fatalf("GetRoom: %v %+v", err, room)
	}
}

func testApplyRollback(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	l := ledger.New(nil, decimal.NewFromInt(1))
	mustCreate(t, s, "r1")
	boom := errors.New("boom")

	_, err := s.Apply(ctx, "r1", func(st *domain.RoomState) error {
		if err := addStake(l, 1, decimal.NewFromInt(5))(st); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	st, _ := s.Load(ctx, "r1")
	if len(st.Participants) != 0 || !st.Room.TotalStakeUnits.IsZero() {
		t.Fatalf("failed mutation leaked: %+v", st)
	}
}

func testApplyNoChange(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	before := mustCreate(t, s, "r1")
	st, err := s.Apply(ctx, "r1", func(st *domain.RoomState) error {
		st.Room.Round = 99
		return store.ErrNoChange
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st.Room.Version != before.Room.Version || st.Room.Round != before.Room.Round {
		t.Fatalf("no-change mutation was written: %+v", st.Room)
	}
}

func testApplyClear(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	l := ledger.New(nil, decimal.NewFromInt(1))
	mustCreate(t, s, "r1")
	for i := int64(1); i <= 3; i++ {
		if _, err := s.Apply(ctx, "r1", addStake(l, i, decimal.NewFromInt(i))); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if _, err := s.Apply(ctx, "r1", func(st *domain.RoomState) error {
		l.Clear(st)
		st.Room.Round++
		return nil
	}); err != nil {
		t.Fatalf("Apply clear: %v", err)
	}
	st, _ := s.Load(ctx, "r1")
	if len(st.Participants) != 0 || st.Room.Round != 2 || !st.Room.TotalStakeUnits.IsZero() {
		t.Fatalf("clear not persisted: %+v", st)
	}
}

func testConcurrentApply(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	l := ledger.New(nil, decimal.NewFromInt(1))
	mustCreate(t, s, "r1")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := s.Apply(ctx, "r1", addStake(l, id, decimal.NewFromInt(10))); err != nil {
				errs <- err
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Apply: %v", err)
	}

	st, _ := s.Load(ctx, "r1")
	if len(st.Participants) != n || !st.Room.TotalStakeUnits.Equal(decimal.NewFromInt(10*n)) {
		t.Fatalf("lost update: %d participants, total %s", len(st.Participants), st.Room.TotalStakeUnits)
	}
	if err := ledger.Check(st); err != nil {
		t.Fatalf("ledger: %v", err)
	}
}

func testPendingRooms(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	mustCreate(t, s, "idle")
	mustCreate(t, s, "busy")
	mustCreate(t, s, "done")
	if _, err := s.Apply(ctx, "busy", func(st *domain.RoomState) error {
		end := base.Add(time.Minute)
		st.Room.CountdownEndTime = &end
		st.Room.SetStatus(domain.StatusCountdown, base)
		return nil
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := s.Apply(ctx, "done", func(st *domain.RoomState) error {
		w := int64(7)
		st.Room.WinnerID = &w
		st.Room.SetStatus(domain.StatusFinished, base)
		return nil
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ids, err := s.PendingRooms(ctx, []domain.Status{domain.StatusCountdown, domain.StatusSpinning})
	if err != nil {
		t.Fatalf("PendingRooms: %v", err)
	}
	if len(ids) != 1 || ids[0] != "busy" {
		t.Fatalf("pending=%v", ids)
	}
	ids, err = s.PendingRooms(ctx, []domain.Status{domain.StatusCountdown, domain.StatusSpinning, domain.StatusFinished})
	if err != nil {
		t.Fatalf("PendingRooms: %v", err)
	}
	if len(ids) != 2 || ids[0] != "busy" || ids[1] != "done" {
		t.Fatalf("pending with finished=%v", ids)
	}
}

// Stakes at the finest accepted scale and at the cap come back exactly, and
// anything finer never reaches the store.
func testStakePrecision(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	l := ledger.New(nil, decimal.NewFromInt(1))
	mustCreate(t, s, "r1")

	tiny := decimal.New(1, -ledger.MaxScale)
	for _, m := range []store.Mutation{
		addStake(l, 1, tiny),
		addStake(l, 2, tiny),
		addStake(l, 3, ledger.MaxStake),
	} {
		if _, err := s.Apply(ctx, "r1", m); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	_, err := s.Apply(ctx, "r1", addStake(l, 4, decimal.New(5, -ledger.MaxScale-1)))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("finer stake: %v", err)
	}

	st, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Participants) != 3 || !st.Participants[0].StakeUnits.Equal(tiny) || !st.Participants[2].StakeUnits.Equal(ledger.MaxStake) {
		t.Fatalf("stakes changed: %+v", st.Participants)
	}
	want := ledger.MaxStake.Add(tiny).Add(tiny)
	if !st.Room.TotalStakeUnits.Equal(want) {
		t.Fatalf("total=%s want %s", st.Room.TotalStakeUnits, want)
	}
	if err := ledger.Check(st); err != nil {
		t.Fatalf("ledger: %v", err)
	}
}

func testPresence(t *testing.T, s store.RoomStore) {
	ctx := context.Background()
	mustCreate(t, s, "r1")
	old := domain.Presence{RoomID: "r1", PlayerID: 1, DisplayName: "old", LastSeenAt: base}
	fresh := domain.Presence{RoomID: "r1", PlayerID: 2, DisplayName: "fresh", LastSeenAt: base.Add(time.Minute)}
	for _, p := range []domain.Presence{old, fresh} {
		if err := s.TouchPresence(ctx, p); err != nil {
			t.Fatalf("TouchPresence: %v", err)
		}
	}
	// touching again moves last_seen forward
	fresh.LastSeenAt = base.Add(2 * time.Minute)
	if err := s.TouchPresence(ctx, fresh); err != nil {
		t.Fatalf("TouchPresence: %v", err)
	}

	list, err := s.ListPresence(ctx, "r1", base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("ListPresence: %v", err)
	}
	if len(list) != 1 || list[0].PlayerID != 2 || !list[0].LastSeenAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("presence=%+v", list)
	}
}
