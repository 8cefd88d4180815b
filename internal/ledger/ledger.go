// Package ledger keeps the per-round stake record of a room: who put in how
// much, in which order they joined, and their share of the pot.
package ledger

import (
	"fmt"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/shopspring/decimal"
)

var DefaultPalette = []string{"#ef4444", "#22c55e", "#3b82f6", "#f59e0b", "#8b5cf6", "#ec4899"}

var hundred = decimal.NewFromInt(100)

// MaxScale is the number of fractional digits a stake may carry. The SQL
// stores keep stakes as NUMERIC(38, 9).
const MaxScale = 9

// MaxStake caps a single contribution.
var MaxStake = decimal.New(1, 15)

const (
	minExponent        = -38
	maxExponent        = 15
	maxCoefficientBits = 128
)

// ValidateAmount rejects stakes that are not positive, carry more than
// MaxScale fractional digits or exceed MaxStake. The exponent and coefficient
// are bounded before any comparison, since comparing rescales both sides.
func ValidateAmount(units decimal.Decimal) error {
	if !units.IsPositive() {
		return fmt.Errorf("%w: %s is not positive", domain.ErrInvalidAmount, units.String())
	}
	exp := units.Exponent()
	if exp < minExponent || exp > maxExponent || units.Coefficient().BitLen() > maxCoefficientBits {
		return fmt.Errorf("%w: out of range", domain.ErrInvalidAmount)
	}
	if !units.Equal(units.Truncate(MaxScale)) {
		return fmt.Errorf("%w: more than %d decimal places", domain.ErrInvalidAmount, MaxScale)
	}
	if units.GreaterThan(MaxStake) {
		return fmt.Errorf("%w: above %s", domain.ErrInvalidAmount, MaxStake.String())
	}
	return nil
}

type Ledger struct {
	palette   []string
	giftUnits decimal.Decimal
}

func New(palette []string, giftUnits decimal.Decimal) *Ledger {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if ValidateAmount(giftUnits) != nil {
		giftUnits = decimal.NewFromInt(1)
	}
	return &Ledger{palette: palette, giftUnits: giftUnits}
}

func (l *Ledger) Palette() []string { return l.palette }

// AddStake credits units to the player in st. A gift ignores units and counts
// as the configured gift size. The first stake of a round appends the player
// with the next color index; later stakes only grow the existing entry.
// Room totals are updated in the same call.
func (l *Ledger) AddStake(st *domain.RoomState, id domain.Identity, units decimal.Decimal, gift bool, now time.Time) (domain.Participant, error) {
	if err := id.Validate(); err != nil {
		return domain.Participant{}, err
	}
	if gift {
		units = l.giftUnits
	}
	if err := ValidateAmount(units); err != nil {
		return domain.Participant{}, err
	}

	idx, ok := st.Find(id.ID)
	if !ok {
		seq := len(st.Participants)
		st.Participants = append(st.Participants, domain.Participant{
			RoomID:     st.Room.ID,
			PlayerID:   id.ID,
			StakeUnits: decimal.Zero,
			JoinSeq:    seq,
			ColorIndex: seq % len(l.palette),
			JoinedAt:   now,
		})
		idx = seq
	}

	p := &st.Participants[idx]
	p.DisplayName = id.Name()
	p.AvatarURL = id.AvatarURL
	p.StakeUnits = p.StakeUnits.Add(units)
	p.ContributionCount++
	p.UpdatedAt = now

	st.Room.TotalStakeUnits = st.Room.TotalStakeUnits.Add(units)
	st.Room.TotalContributionCount++

	return *p, nil
}

// Clear empties the participant set and zeroes the room aggregates.
func (l *Ledger) Clear(st *domain.RoomState) {
	st.Participants = nil
	st.Room.TotalStakeUnits = decimal.Zero
	st.Room.TotalContributionCount = 0
}

// List returns participants in join order with their share of the pot.
func (l *Ledger) List(st *domain.RoomState) []domain.ParticipantSnapshot {
	out := make([]domain.ParticipantSnapshot, 0, len(st.Participants))
	for _, p := range st.Participants {
		out = append(out, l.Snapshot(p, st.Room.TotalStakeUnits))
	}
	return out
}

func (l *Ledger) Snapshot(p domain.Participant, total decimal.Decimal) domain.ParticipantSnapshot {
	var color string
	if p.ColorIndex >= 0 && p.ColorIndex < len(l.palette) {
		color = l.palette[p.ColorIndex]
	}
	return domain.ParticipantSnapshot{
		PlayerID:          p.PlayerID,
		DisplayName:       p.DisplayName,
		AvatarURL:         p.AvatarURL,
		StakeUnits:        p.StakeUnits,
		ContributionCount: p.ContributionCount,
		ColorIndex:        p.ColorIndex,
		Color:             color,
		Percentage:        Percentage(p.StakeUnits, total),
	}
}

// Percentage is stake/total*100; zero when the pot is empty.
func Percentage(stake, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return stake.Mul(hundred).Div(total).InexactFloat64()
}

// Totals sums the participant set.
func Totals(participants []domain.Participant) (decimal.Decimal, int64) {
	units := decimal.Zero
	var count int64
	for _, p := range participants {
		units = units.Add(p.StakeUnits)
		count += p.ContributionCount
	}
	return units, count
}

// Check reports a broken aggregate invariant.
func Check(st *domain.RoomState) error {
	units, count := Totals(st.Participants)
	if !units.Equal(st.Room.TotalStakeUnits) || count != st.Room.TotalContributionCount {
		return fmt.Errorf("ledger out of sync: participants=%s/%d room=%s/%d",
			units, count, st.Room.TotalStakeUnits, st.Room.TotalContributionCount)
	}
	seen := make(map[int64]struct{}, len(st.Participants))
	for _, p := range st.Participants {
		if !p.StakeUnits.IsPositive() {
			return fmt.Errorf("participant %d has no stake", p.PlayerID)
		}
		if _, dup := seen[p.PlayerID]; dup {
			return fmt.Errorf("participant %d listed twice", p.PlayerID)
		}
		seen[p.PlayerID] = struct{}{}
	}
	return nil
}
