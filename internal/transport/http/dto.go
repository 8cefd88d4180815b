package http

import (
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/round"

	"github.com/shopspring/decimal"
)

type ContributeRequest struct {
	Kind   string           `json:"kind"`   // gift|token, gift when empty
	Amount *decimal.Decimal `json:"amount"` // required for token
}

type ResolveResponse struct {
	Transitions []TransitionItem `json:"transitions"`
	State       domain.Snapshot  `json:"state"`
}

type ResetResponse struct {
	Reset bool            `json:"reset"`
	State domain.Snapshot `json:"state"`
}

type TransitionItem struct {
	From domain.Status `json:"from"`
	To   domain.Status `json:"to"`
}

type PresenceItem struct {
	PlayerID    int64     `json:"playerId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

type PresenceResponse struct {
	Items []PresenceItem `json:"items"`
}

func transitionItems(trs []round.Transition) []TransitionItem {
	out := make([]TransitionItem, 0, len(trs))
	for _, tr := range trs {
		out = append(out, TransitionItem{From: tr.From, To: tr.To})
	}
	return out
}
