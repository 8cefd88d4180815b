package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomSnapshot is the wire shape of a room.
type RoomSnapshot struct {
	ID                     string          `json:"id"`
	Status                 Status          `json:"status"`
	Round                  int64           `json:"round"`
	RoundID                string          `json:"roundId"`
	CountdownEndTime       *time.Time      `json:"countdownEndTime"`
	WinnerID               *int64          `json:"winnerId"`
	TotalStakeUnits        decimal.Decimal `json:"totalStakeUnits"`
	TotalContributionCount int64           `json:"totalContributionCount"`
	Version                int64           `json:"version"`
	ServerTime             time.Time       `json:"serverTime"`
}

type ParticipantSnapshot struct {
	PlayerID          int64           `json:"playerId"`
	DisplayName       string          `json:"displayName"`
	AvatarURL         *string         `json:"avatarUrl"`
	StakeUnits        decimal.Decimal `json:"stakeUnits"`
	ContributionCount int64           `json:"contributionCount"`
	ColorIndex        int             `json:"colorIndex"`
	Color             string          `json:"color,omitempty"`
	Percentage        float64         `json:"percentage"`
}

// Snapshot is the full state a consumer replaces its local copy with.
type Snapshot struct {
	Room         RoomSnapshot          `json:"room"`
	Participants []ParticipantSnapshot `json:"participants"`
}

func NewRoomSnapshot(r *Room, now time.Time) RoomSnapshot {
	c := r.Clone()
	return RoomSnapshot{
		ID:                     c.ID,
		Status:                 c.Status,
		Round:                  c.Round,
		RoundID:                c.RoundID,
		CountdownEndTime:       c.CountdownEndTime,
		WinnerID:               c.WinnerID,
		TotalStakeUnits:        c.TotalStakeUnits,
		TotalContributionCount: c.TotalContributionCount,
		Version:                c.Version,
		ServerTime:             now,
	}
}
