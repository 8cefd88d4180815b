package ws

import (
	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/service"

	"github.com/shopspring/decimal"
)

// Message types on the socket
const (
	TypeState         = "state"          // full room snapshot
	TypePeerJoined    = "peer_joined"    // someone opened the room
	TypePeerLeft      = "peer_left"      // someone closed it
	TypeContribute    = "contribute"     // client -> server stake
	TypeContributeAck = "contribute_ack" // accepted stake, sender only
	TypeNotice        = "notice"         // rejected request, sender only
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string            `json:"type"`
	Payload ContributePayload `json:"payload"`
}

type ContributePayload struct {
	RequestID string           `json:"requestId,omitempty"`
	Kind      string           `json:"kind"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

type ContributeAckPayload struct {
	RequestID string           `json:"requestId,omitempty"`
	Receipt   *service.Receipt `json:"receipt"`
}

type NoticePayload struct {
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type PeerEventPayload struct {
	RoomID      string `json:"roomId"`
	PlayerID    int64  `json:"playerId"`
	DisplayName string `json:"displayName"`
}

func stateMessage(snap domain.Snapshot) Message {
	return Message{Type: TypeState, Payload: snap}
}
