// Package round holds the room lifecycle rules:
//
//	waiting/single_player -> countdown -> spinning -> finished -> waiting
//
// Every function here mutates a domain.RoomState in place and is meant to run
// inside the room's critical section.
package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/ledger"
	"github.com/cwrk-planet/roulette-service/internal/roulette"
)

type Rules struct {
	Countdown    time.Duration
	LockWindow   time.Duration
	SpinDuration time.Duration
	ResultHold   time.Duration
	AutoReset    bool
	MinPlayers   int
}

func DefaultRules() Rules {
	return Rules{
		Countdown:    20 * time.Second,
		LockWindow:   3 * time.Second,
		SpinDuration: 15 * time.Second,
		ResultHold:   6 * time.Second,
		AutoReset:    true,
		MinPlayers:   2,
	}
}

func (r Rules) Validate() error {
	if r.Countdown <= 0 {
		return errors.New("countdown must be > 0")
	}
	if r.LockWindow < 0 || r.LockWindow >= r.Countdown {
		return errors.New("lock window must be in [0, countdown)")
	}
	if r.SpinDuration < 0 || r.ResultHold < 0 {
		return errors.New("spin duration and result hold must be >= 0")
	}
	if r.MinPlayers < 2 {
		return errors.New("min players must be >= 2")
	}
	return nil
}

type Transition struct {
	From, To domain.Status
}

// CheckContribution returns ErrRoundLocked unless the room accepts stakes at now.
// During countdown the last LockWindow before the deadline is closed.
func (r Rules) CheckContribution(room *domain.Room, now time.Time) error {
	switch room.Status {
	case domain.StatusWaiting, domain.StatusSinglePlayer:
		return nil
	case domain.StatusCountdown:
		if left := room.Remaining(now); left <= r.LockWindow {
			return fmt.Errorf("%w: %s left", domain.ErrRoundLocked, left.Round(time.Millisecond))
		}
		return nil
	default:
		return fmt.Errorf("%w: room is %s", domain.ErrRoundLocked, room.Status)
	}
}

// AfterStake re-evaluates an open room once the ledger changed. Reaching
// MinPlayers starts the countdown; an active countdown is never extended.
func (r Rules) AfterStake(st *domain.RoomState, now time.Time) (Transition, bool) {
	room := st.Room
	if !room.Status.Open() {
		return Transition{}, false
	}

	from := room.Status
	switch n := len(st.Participants); {
	case n >= r.MinPlayers:
		end := now.Add(r.Countdown)
		room.CountdownEndTime = &end
		room.SetStatus(domain.StatusCountdown, now)
	case n > 0:
		room.SetStatus(domain.StatusSinglePlayer, now)
	default:
		room.SetStatus(domain.StatusWaiting, now)
	}
	return Transition{From: from, To: room.Status}, from != room.Status
}

// Drawer picks a winner; it is called at most once per resolution.
type Drawer func([]roulette.Entry) (int64, error)

// Advance applies every time-driven transition that is due at now and returns
// them in order. A failed draw leaves st untouched.
func (r Rules) Advance(st *domain.RoomState, now time.Time, draw Drawer, l *ledger.Ledger, newRoundID func() string) ([]Transition, error) {
	var out []Transition
	for {
		tr, ok, err := r.step(st, now, draw, l, newRoundID)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tr)
	}
}

func (r Rules) step(st *domain.RoomState, now time.Time, draw Drawer, l *ledger.Ledger, newRoundID func() string) (Transition, bool, error) {
	room := st.Room
	from := room.Status

	switch room.Status {
	case domain.StatusCountdown:
		if room.CountdownEndTime == nil || now.Before(*room.CountdownEndTime) {
			return Transition{}, false, nil
		}
		winner, err := draw(roulette.Entries(st.Participants))
		if err != nil {
			return Transition{}, false, err
		}
		room.WinnerID = &winner
		room.CountdownEndTime = nil
		room.SetStatus(domain.StatusSpinning, now)

	case domain.StatusSpinning:
		if now.Before(room.PhaseChangedAt.Add(r.SpinDuration)) {
			return Transition{}, false, nil
		}
		room.SetStatus(domain.StatusFinished, now)

	case domain.StatusFinished:
		if !r.AutoReset || now.Before(room.PhaseChangedAt.Add(r.ResultHold)) {
			return Transition{}, false, nil
		}
		Reset(st, now, l, newRoundID)

	default:
		return Transition{}, false, nil
	}

	return Transition{From: from, To: room.Status}, true, nil
}

// Reset starts a new round for a finished room. Any other room is left alone
// and false is returned; a spinning room keeps its winner until the spin ends.
func Reset(st *domain.RoomState, now time.Time, l *ledger.Ledger, newRoundID func() string) bool {
	room := st.Room
	if room.Status != domain.StatusFinished {
		return false
	}
	l.Clear(st)
	room.WinnerID = nil
	room.CountdownEndTime = nil
	room.Round++
	room.RoundID = newRoundID()
	room.SetStatus(domain.StatusWaiting, now)
	return true
}

// Due reports whether Advance would change the room at now.
func (r Rules) Due(room *domain.Room, now time.Time) bool {
	switch room.Status {
	case domain.StatusCountdown:
		return room.CountdownEndTime != nil && !now.Before(*room.CountdownEndTime)
	case domain.StatusSpinning:
		return !now.Before(room.PhaseChangedAt.Add(r.SpinDuration))
	case domain.StatusFinished:
		return r.AutoReset && !now.Before(room.PhaseChangedAt.Add(r.ResultHold))
	}
	return false
}

// PendingStatuses lists the statuses that have a timer the scheduler must
// watch. A finished room only advances when AutoReset is on.
func (r Rules) PendingStatuses() []domain.Status {
	out := []domain.Status{domain.StatusCountdown, domain.StatusSpinning}
	if r.AutoReset {
		out = append(out, domain.StatusFinished)
	}
	return out
}

// CheckInvariants validates the status/field pairing of a room.
func CheckInvariants(room *domain.Room) error {
	if (room.Status == domain.StatusCountdown) != (room.CountdownEndTime != nil) {
		return fmt.Errorf("status %s with countdownEndTime=%v", room.Status, room.CountdownEndTime)
	}
	if room.Status.Resolved() != (room.WinnerID != nil) {
		return fmt.Errorf("status %s with winnerId=%v", room.Status, room.WinnerID)
	}
	return nil
}
