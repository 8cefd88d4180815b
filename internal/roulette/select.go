// Package roulette picks the winner of a round, weighting every participant by stake.
package roulette

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Entry is one participant as the selector sees it.
type Entry struct {
	PlayerID int64
	Stake    decimal.Decimal
}

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() (float64, error)
}

// SecureSource reads crypto/rand; nothing about the draw is derivable by a client.
type SecureSource struct{}

func (SecureSource) Float64() (float64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	// 53 random bits map exactly onto float64 mantissa steps in [0,1)
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53), nil
}

// SourceFunc adapts a plain function.
type SourceFunc func() (float64, error)

func (f SourceFunc) Float64() (float64, error) { return f() }

// Select draws r uniformly from [0, total) and walks entries in the given order,
// returning the first one whose running sum exceeds r.
func Select(entries []Entry, src RandomSource) (int64, error) {
	total := decimal.Zero
	positive := 0
	last := -1
	for i, e := range entries {
		if e.Stake.IsPositive() {
			total = total.Add(e.Stake)
			positive++
			last = i
		}
	}
	if positive == 0 {
		return 0, domain.ErrNoParticipants
	}
	if positive == 1 {
		return entries[last].PlayerID, nil
	}

	f, err := src.Float64()
	if err != nil {
		return 0, fmt.Errorf("draw random: %w", err)
	}
	if f < 0 || f >= 1 {
		return 0, fmt.Errorf("random source out of range: %v", f)
	}
	r := total.Mul(decimal.NewFromFloat(f))

	cum := decimal.Zero
	for _, e := range entries {
		if !e.Stake.IsPositive() {
			continue
		}
		cum = cum.Add(e.Stake)
		if cum.GreaterThan(r) {
			return e.PlayerID, nil
		}
	}
	return entries[last].PlayerID, nil
}

// Entries projects a participant list, keeping join order.
func Entries(ps []domain.Participant) []Entry {
	out := make([]Entry, 0, len(ps))
	for _, p := range ps {
		out = append(out, Entry{PlayerID: p.PlayerID, Stake: p.StakeUnits})
	}
	return out
}
