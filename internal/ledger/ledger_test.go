package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/shopspring/decimal"
)

func newState() *domain.RoomState {
	return &domain.RoomState{Room: domain.NewRoom("r1", "round-1", time.Unix(0, 0))}
}

func ident(id int64, name string) domain.Identity {
	return domain.Identity{ID: id, DisplayName: name}
}

func TestAddStake_FirstAndRepeat(t *testing.T) {
	l := New(nil, decimal.NewFromInt(1))
	st := newState()
	now := time.Unix(100, 0)

	p, err := l.AddStake(st, ident(1, "alice"), decimal.NewFromInt(5), false, now)
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}
	if p.ColorIndex != 0 || p.ContributionCount != 1 || !p.StakeUnits.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected participant: %+v", p)
	}

	p, err = l.AddStake(st, ident(1, "alice"), decimal.NewFromFloat(2.5), false, now)
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}
	if p.ContributionCount != 2 || !p.StakeUnits.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("unexpected participant after repeat: %+v", p)
	}
	if len(st.Participants) != 1 {
		t.Fatalf("expected one participant, got %d", len(st.Participants))
	}
	if !st.Room.TotalStakeUnits.Equal(decimal.NewFromFloat(7.5)) || st.Room.TotalContributionCount != 2 {
		t.Fatalf("unexpected totals: %s/%d", st.Room.TotalStakeUnits, st.Room.TotalContributionCount)
	}
	if err := Check(st); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestAddStake_ColorIndexCyclesOverPalette(t *testing.T) {
	l := New([]string{"red", "green"}, decimal.NewFromInt(1))
	st := newState()
	for i := int64(1); i <= 3; i++ {
		if _, err := l.AddStake(st, ident(i, ""), decimal.NewFromInt(1), false, time.Now()); err != nil {
			t.Fatalf("AddStake: %v", err)
		}
	}
	want := []int{0, 1, 0}
	for i, p := range st.Participants {
		if p.ColorIndex != want[i] {
			t.Fatalf("participant %d colorIndex=%d want %d", i, p.ColorIndex, want[i])
		}
		if p.JoinSeq != i {
			t.Fatalf("participant %d joinSeq=%d", i, p.JoinSeq)
		}
	}
	if got := l.List(st)[2].Color; got != "red" {
		t.Fatalf("third color=%q", got)
	}
}

func TestAddStake_GiftUsesGiftUnits(t *testing.T) {
	l := New(nil, decimal.NewFromInt(1))
	st := newState()
	p, err := l.AddStake(st, ident(7, ""), decimal.NewFromInt(999), true, time.Now())
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}
	if !p.StakeUnits.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("gift should add one unit, got %s", p.StakeUnits)
	}
	if p.DisplayName != "User 7" {
		t.Fatalf("fallback name=%q", p.DisplayName)
	}
}

func TestAddStake_Rejects(t *testing.T) {
	l := New(nil, decimal.NewFromInt(1))
	st := newState()

	cases := []struct {
		name  string
		id    domain.Identity
		units decimal.Decimal
		want  error
	}{
		{"zero", ident(1, "a"), decimal.Zero, domain.ErrInvalidAmount},
		{"negative", ident(1, "a"), decimal.NewFromInt(-3), domain.ErrInvalidAmount},
		{"no id", ident(0, "a"), decimal.NewFromInt(3), domain.ErrInvalidIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.AddStake(st, tc.id, tc.units, false, time.Now()); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
	if len(st.Participants) != 0 || !st.Room.TotalStakeUnits.IsZero() {
		t.Fatalf("rejected stakes must not touch the ledger")
	}
}

func TestValidateAmount(t *testing.T) {
	ok := []string{"1", "0.000000001", "12.345", "1.500000000000", "1000000000000000", "999999999999999.999999999"}
	for _, v := range ok {
		if err := ValidateAmount(decimal.RequireFromString(v)); err != nil {
			t.Fatalf("%s rejected: %v", v, err)
		}
	}
	bad := []string{"0", "-1", "0.0000000001", "0.0000000005", "1000000000000000.1", "1e16", "1e100000000", "1e-100000000"}
	for _, v := range bad {
		if err := ValidateAmount(decimal.RequireFromString(v)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("%s: err = %v", v, err)
		}
	}
}

func TestValidateAmount_HugeExponentIsCheap(t *testing.T) {
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if ValidateAmount(decimal.New(1, math.MaxInt32)) == nil {
			t.Fatalf("accepted 1e%d", math.MaxInt32)
		}
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("validation took %v", d)
	}
}

func TestList_Percentages(t *testing.T) {
	l := New(nil, decimal.NewFromInt(1))
	st := newState()
	for i, units := range []int64{10, 30, 60} {
		if _, err := l.AddStake(st, ident(int64(i+1), ""), decimal.NewFromInt(units), false, time.Now()); err != nil {
			t.Fatalf("AddStake: %v", err)
		}
	}
	list := l.List(st)
	want := []float64{10, 30, 60}
	sum := 0.0
	for i, p := range list {
		if math.Abs(p.Percentage-want[i]) > 1e-9 {
			t.Fatalf("participant %d percentage=%v want %v", i, p.Percentage, want[i])
		}
		sum += p.Percentage
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Fatalf("percentages sum to %v", sum)
	}
}

func TestPercentage_EmptyPot(t *testing.T) {
	got := Percentage(decimal.NewFromInt(5), decimal.Zero)
	if got != 0 || math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestClear(t *testing.T) {
	l := New(nil, decimal.NewFromInt(1))
	st := newState()
	_, _ = l.AddStake(st, ident(1, ""), decimal.NewFromInt(4), false, time.Now())
	l.Clear(st)
	if len(st.Participants) != 0 || !st.Room.TotalStakeUnits.IsZero() || st.Room.TotalContributionCount != 0 {
		t.Fatalf("clear left state behind: %+v", st.Room)
	}
	if err := Check(st); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
