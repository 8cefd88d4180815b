package roulette

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/shopspring/decimal"
)

func fixed(v float64) RandomSource {
	return SourceFunc(func() (float64, error) { return v, nil })
}

func entries(stakes ...int64) []Entry {
	out := make([]Entry, len(stakes))
	for i, s := range stakes {
		out[i] = Entry{PlayerID: int64(i + 1), Stake: decimal.NewFromInt(s)}
	}
	return out
}

func TestSelect_NoParticipants(t *testing.T) {
	if _, err := Select(nil, fixed(0)); !errors.Is(err, domain.ErrNoParticipants) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Select(entries(0, 0), fixed(0)); !errors.Is(err, domain.ErrNoParticipants) {
		t.Fatalf("zero stakes should count as empty: %v", err)
	}
}

func TestSelect_SingleParticipantWinsWithoutDraw(t *testing.T) {
	calls := 0
	src := SourceFunc(func() (float64, error) {
		calls++
		return 0.5, nil
	})
	got, err := Select(entries(0, 7), src)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != 2 {
		t.Fatalf("winner=%d want 2", got)
	}
	if calls != 0 {
		t.Fatalf("random source used %d times", calls)
	}
}

func TestSelect_Boundaries(t *testing.T) {
	// stakes 10/30/60: r in [0,10) -> 1, [10,40) -> 2, [40,100) -> 3
	cases := []struct {
		f    float64
		want int64
	}{
		{0, 1},
		{0.0999, 1},
		{0.10, 2},
		{0.3999, 2},
		{0.40, 3},
		{0.9999999, 3},
	}
	for _, tc := range cases {
		got, err := Select(entries(10, 30, 60), fixed(tc.f))
		if err != nil {
			t.Fatalf("Select(%v): %v", tc.f, err)
		}
		if got != tc.want {
			t.Fatalf("Select(%v)=%d want %d", tc.f, got, tc.want)
		}
	}
}

func TestSelect_RejectsOutOfRangeSource(t *testing.T) {
	if _, err := Select(entries(1, 1), fixed(1)); err == nil {
		t.Fatalf("expected error for f=1")
	}
	if _, err := Select(entries(1, 1), SourceFunc(func() (float64, error) { return 0, errors.New("boom") })); err == nil {
		t.Fatalf("expected source error")
	}
}

func TestSelect_WeightedFairness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	src := SourceFunc(func() (float64, error) { return rng.Float64(), nil })

	const draws = 100000
	wins := map[int64]int{}
	es := entries(10, 30, 60)
	for i := 0; i < draws; i++ {
		id, err := Select(es, src)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		wins[id]++
	}

	want := map[int64]float64{1: 0.10, 2: 0.30, 3: 0.60}
	for id, p := range want {
		got := float64(wins[id]) / draws
		if math.Abs(got-p) > 0.01 {
			t.Fatalf("player %d win rate %.4f, want %.2f±0.01", id, got, p)
		}
	}
}

func TestSecureSource_Range(t *testing.T) {
	var s SecureSource
	for i := 0; i < 1000; i++ {
		f, err := s.Float64()
		if err != nil {
			t.Fatalf("Float64: %v", err)
		}
		if f < 0 || f >= 1 {
			t.Fatalf("out of range: %v", f)
		}
	}
}
