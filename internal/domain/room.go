package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusWaiting      Status = "waiting"
	StatusSinglePlayer Status = "single_player"
	StatusCountdown    Status = "countdown"
	StatusSpinning     Status = "spinning"
	StatusFinished     Status = "finished"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusSinglePlayer, StatusCountdown, StatusSpinning, StatusFinished:
		return true
	}
	return false
}

// Open reports whether contributions are accepted without a running timer.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusSinglePlayer
}

// Resolved reports whether a winner has been committed for the round.
func (s Status) Resolved() bool {
	return s == StatusSpinning || s == StatusFinished
}

const DefaultRoomID = "default-room-id"

type Room struct {
	ID      string `db:"id"`
	Status  Status `db:"status"`
	Round   int64  `db:"round"`
	RoundID string `db:"round_id"`

	CountdownEndTime *time.Time `db:"countdown_end_time"`
	WinnerID         *int64     `db:"winner_id"`

	TotalStakeUnits        decimal.Decimal `db:"total_stake_units"`
	TotalContributionCount int64           `db:"total_contribution_count"`

	// PhaseChangedAt is when Status last changed; spin and result timers run from it.
	PhaseChangedAt time.Time `db:"phase_changed_at"`
	Version        int64     `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// NewRoom returns a fresh room in the waiting state.
func NewRoom(id, roundID string, now time.Time) *Room {
	return &Room{
		ID:              id,
		Status:          StatusWaiting,
		Round:           1,
		RoundID:         roundID,
		TotalStakeUnits: decimal.Zero,
		PhaseChangedAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *Room) SetStatus(s Status, now time.Time) {
	if r.Status != s {
		r.Status = s
		r.PhaseChangedAt = now
	}
}

// Remaining is the time left until the countdown deadline, zero outside countdown.
func (r *Room) Remaining(now time.Time) time.Duration {
	if r.CountdownEndTime == nil {
		return 0
	}
	return r.CountdownEndTime.Sub(now)
}

func (r *Room) Clone() *Room {
	c := *r
	if r.CountdownEndTime != nil {
		t := *r.CountdownEndTime
		c.CountdownEndTime = &t
	}
	if r.WinnerID != nil {
		w := *r.WinnerID
		c.WinnerID = &w
	}
	return &c
}

// ValidateRoomID accepts 1..64 characters of [A-Za-z0-9_-].
func ValidateRoomID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidRoomID
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ErrInvalidRoomID
		}
	}
	return nil
}
