package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Identity is what the identity provider hands over for a player.
type Identity struct {
	ID          int64
	Username    string
	DisplayName string
	AvatarURL   *string
}

func (i Identity) Validate() error {
	if i.ID <= 0 {
		return ErrInvalidIdentity
	}
	return nil
}

// Name returns the display name, falling back to @username and then to "User <id>".
func (i Identity) Name() string {
	if n := strings.TrimSpace(i.DisplayName); n != "" {
		return n
	}
	if u := strings.TrimSpace(i.Username); u != "" {
		return "@" + u
	}
	return fmt.Sprintf("User %d", i.ID)
}

type Participant struct {
	RoomID            string          `db:"room_id"`
	PlayerID          int64           `db:"player_id"`
	DisplayName       string          `db:"display_name"`
	AvatarURL         *string         `db:"avatar_url"`
	StakeUnits        decimal.Decimal `db:"stake_units"`
	ContributionCount int64           `db:"contribution_count"`
	JoinSeq           int             `db:"join_seq"`
	ColorIndex        int             `db:"color_index"`
	JoinedAt          time.Time       `db:"joined_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Presence is a heartbeat entry; it never affects the round.
type Presence struct {
	RoomID      string    `db:"room_id"`
	PlayerID    int64     `db:"player_id"`
	DisplayName string    `db:"display_name"`
	AvatarURL   *string   `db:"avatar_url"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

type ContributionKind string

const (
	KindGift  ContributionKind = "gift"
	KindToken ContributionKind = "token"
)

// ParseKind reads a contribution kind. An empty kind means a token when an
// amount was sent and a gift otherwise.
func ParseKind(s string, hasAmount bool) (ContributionKind, error) {
	switch ContributionKind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		if hasAmount {
			return KindToken, nil
		}
		return KindGift, nil
	case KindGift:
		return KindGift, nil
	case KindToken:
		return KindToken, nil
	}
	return "", ErrInvalidKind
}
