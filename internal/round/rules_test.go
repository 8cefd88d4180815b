package round

import (
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/ledger"
	"github.com/cwrk-planet/roulette-service/internal/roulette"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func roundIDs() func() string {
	n := 0
	return func() string {
		n++
		return "round-" + string(rune('a'+n))
	}
}

func firstDrawer(calls *int) Drawer {
	return func(es []roulette.Entry) (int64, error) {
		*calls++
		return es[0].PlayerID, nil
	}
}

func stake(t *testing.T, l *ledger.Ledger, st *domain.RoomState, id int64, units int64) {
	t.Helper()
	if _, err := l.AddStake(st, domain.Identity{ID: id}, decimal.NewFromInt(units), false, t0); err != nil {
		t.Fatalf("AddStake: %v", err)
	}
}

func TestAfterStake_StartsCountdownAtTwoPlayers(t *testing.T) {
	r := DefaultRules()
	l := ledger.New(nil, decimal.NewFromInt(1))
	st := &domain.RoomState{Room: domain.NewRoom("r", "x", t0)}

	stake(t, l, st, 1, 5)
	tr, changed := r.AfterStake(st, t0)
	if !changed || tr.To != domain.StatusSinglePlayer {
		t.Fatalf("expected single_player, got %+v changed=%v", tr, changed)
	}
	if st.Room.CountdownEndTime != nil {
		t.Fatalf("single player must not start timer")
	}

	stake(t, l, st, 2, 5)
	tr, changed = r.AfterStake(st, t0)
	if !changed || tr.To != domain.StatusCountdown {
		t.Fatalf("expected countdown, got %+v", tr)
	}
	if got := st.Room.CountdownEndTime.Sub(t0); got != 20*time.Second {
		t.Fatalf("deadline in %v, want 20s", got)
	}
	if err := CheckInvariants(st.Room); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestAfterStake_DoesNotExtendCountdown(t *testing.T) {
	r := DefaultRules()
	l := ledger.New(nil, decimal.NewFromInt(1))
	st := &domain.RoomState{Room: domain.NewRoom("r", "x", t0)}
	stake(t, l, st, 1, 5)
	stake(t, l, st, 2, 5)
	r.AfterStake(st, t0)
	deadline := *st.Room.CountdownEndTime

	stake(t, l, st, 3, 5)
	if _, changed := r.AfterStake(st, t0.Add(10*time.Second)); changed {
		t.Fatalf("countdown must not transition on extra stakes")
	}
	if !st.Room.CountdownEndTime.Equal(deadline) {
		t.Fatalf("deadline moved from %v to %v", deadline, *st.Room.CountdownEndTime)
	}
}

func TestCheckContribution_LockBoundary(t *testing.T) {
	r := DefaultRules()
	end := t0.Add(20 * time.Second)
	room := &domain.Room{Status: domain.StatusCountdown, CountdownEndTime: &end}

	if err := r.CheckContribution(room, end.Add(-3*time.Second)); !errors.Is(err, domain.ErrRoundLocked) {
		t.Fatalf("3s left should be locked, got %v", err)
	}
	if err := r.CheckContribution(room, end.Add(-3010*time.Millisecond)); err != nil {
		t.Fatalf("3.01s left should be accepted, got %v", err)
	}
	if err := r.CheckContribution(room, end.Add(time.Second)); !errors.Is(err, domain.ErrRoundLocked) {
		t.Fatalf("past deadline should be locked, got %v", err)
	}

	for _, s := range []domain.Status{domain.StatusSpinning, domain.StatusFinished} {
		if err := r.CheckContribution(&domain.Room{Status: s}, t0); !errors.Is(err, domain.ErrRoundLocked) {
			t.Fatalf("%s should be locked, got %v", s, err)
		}
	}
	for _, s := range []domain.Status{domain.StatusWaiting, domain.StatusSinglePlayer} {
		if err := r.CheckContribution(&domain.Room{Status: s}, t0); err != nil {
			t.Fatalf("%s should accept, got %v", s, err)
		}
	}
}

func TestAdvance_FullCycle(t *testing.T) {
	r := DefaultRules()
	l := ledger.New(nil, decimal.NewFromInt(1))
	ids := roundIDs()
	st := &domain.RoomState{Room: domain.NewRoom("r", ids(), t0)}
	stake(t, l, st, 1, 5)
	stake(t, l, st, 2, 5)
	r.AfterStake(st, t0)

	calls := 0
	draw := firstDrawer(&calls)

	trs, err := r.Advance(st, t0.Add(19*time.Second), draw, l, ids)
	if err != nil || len(trs) != 0 {
		t.Fatalf("nothing due before deadline: %v %v", trs, err)
	}

	trs, err = r.Advance(st, t0.Add(20*time.Second), draw, l, ids)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(trs) != 1 || trs[0].To != domain.StatusSpinning {
		t.Fatalf("expected spinning, got %+v", trs)
	}
	if st.Room.WinnerID == nil || *st.Room.WinnerID != 1 {
		t.Fatalf("winner not committed: %v", st.Room.WinnerID)
	}
	if err := CheckInvariants(st.Room); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	// repeated checks inside the spin window change nothing and never redraw
	if trs, _ := r.Advance(st, t0.Add(21*time.Second), draw, l, ids); len(trs) != 0 {
		t.Fatalf("unexpected transitions %+v", trs)
	}
	if calls != 1 {
		t.Fatalf("draw called %d times", calls)
	}

	spinEnd := st.Room.PhaseChangedAt.Add(r.SpinDuration)
	trs, _ = r.Advance(st, spinEnd, draw, l, ids)
	if len(trs) != 1 || st.Room.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %+v", trs)
	}

	holdEnd := st.Room.PhaseChangedAt.Add(r.ResultHold)
	trs, _ = r.Advance(st, holdEnd, draw, l, ids)
	if len(trs) != 1 || st.Room.Status != domain.StatusWaiting {
		t.Fatalf("expected auto reset, got %+v", trs)
	}
	if len(st.Participants) != 0 || st.Room.WinnerID != nil || st.Room.Round != 2 {
		t.Fatalf("reset incomplete: %+v", st.Room)
	}
}

func TestAdvance_DrawFailureLeavesCountdown(t *testing.T) {
	r := DefaultRules()
	l := ledger.New(nil, decimal.NewFromInt(1))
	end := t0
	st := &domain.RoomState{Room: &domain.Room{ID: "r", Status: domain.StatusCountdown, CountdownEndTime: &end}}

	_, err := r.Advance(st, t0, func(es []roulette.Entry) (int64, error) {
		return roulette.Select(es, roulette.SecureSource{})
	}, l, roundIDs())
	if !errors.Is(err, domain.ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	if st.Room.Status != domain.StatusCountdown || st.Room.WinnerID != nil {
		t.Fatalf("failed draw must not commit: %+v", st.Room)
	}
}

func TestAdvance_ZeroSpinFinishesImmediately(t *testing.T) {
	r := DefaultRules()
	r.SpinDuration = 0
	r.AutoReset = false
	l := ledger.New(nil, decimal.NewFromInt(1))
	st := &domain.RoomState{Room: domain.NewRoom("r", "x", t0)}
	stake(t, l, st, 1, 5)
	stake(t, l, st, 2, 5)
	r.AfterStake(st, t0)

	calls := 0
	trs, err := r.Advance(st, t0.Add(time.Minute), firstDrawer(&calls), l, roundIDs())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(trs) != 2 || st.Room.Status != domain.StatusFinished {
		t.Fatalf("expected spinning+finished, got %+v", trs)
	}
}

func TestReset_Idempotent(t *testing.T) {
	l := ledger.New(nil, decimal.NewFromInt(1))
	w := int64(1)
	st := &domain.RoomState{Room: &domain.Room{ID: "r", Status: domain.StatusFinished, WinnerID: &w, Round: 3}}
	stake(t, l, st, 1, 5)

	if !Reset(st, t0, l, roundIDs()) {
		t.Fatalf("first reset should apply")
	}
	first := *st.Room
	if Reset(st, t0, l, roundIDs()) {
		t.Fatalf("second reset should be a no-op")
	}
	if st.Room.Round != first.Round || st.Room.Status != domain.StatusWaiting || len(st.Participants) != 0 {
		t.Fatalf("second reset changed state: %+v", st.Room)
	}
}

func TestReset_OnlyFinished(t *testing.T) {
	l := ledger.New(nil, decimal.NewFromInt(1))
	end := t0.Add(time.Second)
	w := int64(1)
	for _, room := range []*domain.Room{
		{Status: domain.StatusWaiting},
		{Status: domain.StatusSinglePlayer},
		{Status: domain.StatusCountdown, CountdownEndTime: &end},
		{Status: domain.StatusSpinning, WinnerID: &w},
	} {
		st := &domain.RoomState{Room: room}
		if room.Status != domain.StatusWaiting {
			stake(t, l, st, 1, 5)
		}
		if Reset(st, t0, l, roundIDs()) {
			t.Fatalf("reset applied to %s", room.Status)
		}
		if room.Status != domain.StatusWaiting && len(st.Participants) != 1 {
			t.Fatalf("%s lost its participants", room.Status)
		}
	}
}

func TestPendingStatuses(t *testing.T) {
	r := DefaultRules()
	if got := r.PendingStatuses(); len(got) != 3 || got[2] != domain.StatusFinished {
		t.Fatalf("auto reset pending = %v", got)
	}
	r.AutoReset = false
	for _, s := range r.PendingStatuses() {
		if s == domain.StatusFinished {
			t.Fatalf("finished pending without auto reset")
		}
	}
}

func TestRules_Validate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	r := DefaultRules()
	r.LockWindow = r.Countdown
	if err := r.Validate(); err == nil {
		t.Fatalf("lock window >= countdown must fail")
	}
}

func TestDue(t *testing.T) {
	r := DefaultRules()
	end := t0.Add(20 * time.Second)
	cases := []struct {
		name string
		room domain.Room
		now  time.Time
		want bool
	}{
		{"waiting", domain.Room{Status: domain.StatusWaiting}, t0, false},
		{"countdown running", domain.Room{Status: domain.StatusCountdown, CountdownEndTime: &end}, t0, false},
		{"countdown expired", domain.Room{Status: domain.StatusCountdown, CountdownEndTime: &end}, end, true},
		{"spinning", domain.Room{Status: domain.StatusSpinning, PhaseChangedAt: t0}, t0.Add(time.Second), false},
		{"spin over", domain.Room{Status: domain.StatusSpinning, PhaseChangedAt: t0}, t0.Add(r.SpinDuration), true},
		{"finished hold", domain.Room{Status: domain.StatusFinished, PhaseChangedAt: t0}, t0.Add(r.ResultHold), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Due(&tc.room, tc.now); got != tc.want {
				t.Fatalf("Due=%v want %v", got, tc.want)
			}
		})
	}
}
