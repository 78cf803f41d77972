package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ServerEvent is the base structure for every event delivered by the game
// service over the session socket.
type ServerEvent struct {
	ID        string          `json:"id,omitempty"`        // Event UUID
	GameID    string          `json:"game_id,omitempty"`   // Game UUID
	Type      EventType       `json:"type"`                // Event type
	Timestamp time.Time       `json:"timestamp,omitzero"`  // Event creation time
	Data      json.RawMessage `json:"data"`                // Event-specific payload
}

// EventType represents the type of a game service event.
type EventType string

const (
	EventTypeMoveApplied   EventType = "MoveApplied"
	EventTypeFullState     EventType = "FullState"
	EventTypeClockUpdate   EventType = "ClockUpdate"
	EventTypePossibleMoves EventType = "PossibleMoves"
	EventTypeGameEnded     EventType = "GameEnded"
	EventTypeError         EventType = "Error"
	EventTypeWarning       EventType = "Warning"
)

// MoveAppliedPayload is the state delta broadcast after either side's move
// is applied by the rule engine. It carries a full loosely-typed state plus
// the move that produced it.
type MoveAppliedPayload struct {
	State RawState `json:"state"`
	Move  *RawMove `json:"move,omitempty"`
}

// RawMove describes the move a MoveApplied payload was produced by.
type RawMove struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Piece     string `json:"piece,omitempty"`
	Color     string `json:"color,omitempty"`
	Drop      bool   `json:"drop,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Notation  string `json:"notation,omitempty"`
}

// ClockUpdatePayload is a timer-only refresh between moves.
type ClockUpdatePayload struct {
	Timers    *RawTimers `json:"timers,omitempty"`
	WhiteMS   *float64   `json:"white_time_ms,omitempty"`
	BlackMS   *float64   `json:"black_time_ms,omitempty"`
	Turn      string     `json:"turn,omitempty"`
	UpdatedAt *float64   `json:"updated_at,omitempty"`
}

// PossibleMovesPayload answers a possible-moves request for one square.
type PossibleMovesPayload struct {
	Square string   `json:"square"`
	Moves  []string `json:"moves"`
}

// GameEndPayload is the dedicated terminal event. Like the state payloads
// it is loosely typed: the winner may arrive under either color field, or
// only as the side that was checkmated.
type GameEndPayload struct {
	Result      string   `json:"result,omitempty"`
	Winner      string   `json:"winner,omitempty"`
	WinnerColor string   `json:"winner_color,omitempty"`
	Loser       string   `json:"loser,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	EndReason   string   `json:"end_reason,omitempty"`
	Message     string   `json:"message,omitempty"`
	Move        string   `json:"move,omitempty"`
	Mover       string   `json:"mover,omitempty"`
	WhitePoints *int     `json:"white_points,omitempty"`
	BlackPoints *int     `json:"black_points,omitempty"`
	State       *RawState `json:"state,omitempty"`
}

// NoticePayload is shared by Error and Warning events.
type NoticePayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ParseEventPayload parses event data into the appropriate payload struct.
func ParseEventPayload(event *ServerEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeMoveApplied:
		var payload MoveAppliedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeFullState:
		var payload RawState
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeClockUpdate:
		var payload ClockUpdatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePossibleMoves:
		var payload PossibleMovesPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeGameEnded:
		var payload GameEndPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeError, EventTypeWarning:
		var payload NoticePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}

// ClientMessage is the outbound envelope. Every message is fire-and-forget;
// the only acknowledgement is whatever inbound event follows.
type ClientMessage struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageType represents the type of an outbound client message.
type MessageType string

const (
	MessageTypeMove          MessageType = "Move"
	MessageTypeDrop          MessageType = "Drop"
	MessageTypePossibleMoves MessageType = "PossibleMoves"
	MessageTypeResign        MessageType = "Resign"
	MessageTypeDrawOffer     MessageType = "DrawOffer"
)

// MoveIntent is an outbound board move.
type MoveIntent struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// DropIntent is an outbound pocket drop.
type DropIntent struct {
	Piece       string `json:"piece"`
	Destination string `json:"destination"`
	PieceID     string `json:"piece_id,omitempty"`
}

// MovesRequest asks the service for the legal moves from one square.
type MovesRequest struct {
	Square string `json:"square"`
}

func newClientMessage(t MessageType, payload interface{}) ClientMessage {
	msg := ClientMessage{ID: uuid.New().String(), Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			msg.Data = data
		}
	}
	return msg
}

// NewMoveMessage builds an outbound move intent.
func NewMoveMessage(from, to, promotion string) ClientMessage {
	return newClientMessage(MessageTypeMove, MoveIntent{From: from, To: to, Promotion: promotion})
}

// NewDropMessage builds an outbound drop intent.
func NewDropMessage(piece, destination, pieceID string) ClientMessage {
	return newClientMessage(MessageTypeDrop, DropIntent{Piece: piece, Destination: destination, PieceID: pieceID})
}

// NewMovesRequestMessage asks for the legal moves from a square.
func NewMovesRequestMessage(square string) ClientMessage {
	return newClientMessage(MessageTypePossibleMoves, MovesRequest{Square: square})
}

// NewResignMessage builds a resign signal.
func NewResignMessage() ClientMessage {
	return newClientMessage(MessageTypeResign, nil)
}

// NewDrawOfferMessage builds a draw-offer signal.
func NewDrawOfferMessage() ClientMessage {
	return newClientMessage(MessageTypeDrawOffer, nil)
}
