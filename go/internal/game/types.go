package game

import "time"

// Color identifies one side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether the color is one of the two known sides.
func (c Color) Valid() bool {
	return c == White || c == Black
}

// Variant identifies which rule set the session is playing.
type Variant string

const (
	VariantStandard   Variant = "standard"
	VariantDecay      Variant = "decay"
	VariantCrazyhouse Variant = "crazyhouse"
	VariantSixPointer Variant = "sixpointer"
)

// Square is an algebraic board coordinate, e.g. "e4".
type Square string

// PieceKind is the piece class of an entity on the board or in a pocket.
type PieceKind string

const (
	Pawn   PieceKind = "pawn"
	Knight PieceKind = "knight"
	Bishop PieceKind = "bishop"
	Rook   PieceKind = "rook"
	Queen  PieceKind = "queen"
	King   PieceKind = "king"
)

// Piece is one occupied square in the canonical snapshot.
type Piece struct {
	Color Color     `json:"color"`
	Kind  PieceKind `json:"kind"`
}

// ClockPair holds remaining time in milliseconds for both sides.
type ClockPair struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

// For returns the remaining milliseconds for one side.
func (p ClockPair) For(c Color) int64 {
	if c == White {
		return p.White
	}
	return p.Black
}

// Set returns a copy of the pair with one side replaced.
func (p ClockPair) Set(c Color, ms int64) ClockPair {
	if c == White {
		p.White = ms
	} else {
		p.Black = ms
	}
	return p
}

// PocketPiece is one captured piece held for dropping in crazyhouse play.
// ExpiresAt is the server-reported drop deadline for the front piece, zero
// when the server did not supply one. Unusable pieces stay visible in the
// pocket but can no longer be dropped.
type PocketPiece struct {
	ID        string    `json:"id"`
	Kind      PieceKind `json:"kind"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Unusable  bool      `json:"unusable,omitempty"`
}

// SideBudget carries the per-side move accounting for the six-pointer
// variant as reported by the server.
type SideBudget struct {
	MovesPlayed int `json:"moves_played"`
	BonusMoves  int `json:"bonus_moves"`
	Points      int `json:"points"`
}

// BudgetState is the six-pointer accounting for both sides.
type BudgetState struct {
	White    SideBudget `json:"white"`
	Black    SideBudget `json:"black"`
	MaxMoves int        `json:"max_moves"`
}

// TerminalState is the optional end-of-game block embedded in a snapshot.
type TerminalState struct {
	Result     string `json:"result"`
	Winner     Color  `json:"winner,omitempty"`
	WinnerSide Color  `json:"winner_side,omitempty"`
	Reason     string `json:"reason"`
	Message    string `json:"message,omitempty"`
}

// Snapshot is one canonical, authoritative state update from the game
// service. Every inbound payload shape is normalized into this form before
// any other component reads it. Timer values are always finite and
// non-negative.
type Snapshot struct {
	ActiveColor Color          `json:"active_color"`
	Timers      ClockPair      `json:"timers"`
	TurnStart   time.Time      `json:"turn_start,omitzero"`
	MoveCount   int            `json:"move_count"`
	FirstMove   bool           `json:"first_move"`
	Board       map[Square]Piece `json:"board,omitempty"`
	Pockets     map[Color][]PocketPiece `json:"pockets,omitempty"`
	Budget      *BudgetState   `json:"budget,omitempty"`
	Terminal    *TerminalState `json:"terminal,omitempty"`
}

// Occupied returns the set of occupied squares, used for ephemeral timer
// reconciliation after each snapshot adoption.
func (s *Snapshot) Occupied() map[Square]bool {
	occ := make(map[Square]bool, len(s.Board))
	for sq := range s.Board {
		occ[sq] = true
	}
	return occ
}

// Result classifies how a game ended.
type Result string

const (
	ResultCheckmate   Result = "checkmate"
	ResultTimeout     Result = "timeout"
	ResultPoints      Result = "points"
	ResultDraw        Result = "draw"
	ResultResignation Result = "resignation"
	ResultUnknown     Result = "unknown"
)

// PointsPair holds final point totals for a points-based finish.
type PointsPair struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// Outcome is the single normalized terminal record for a session. Winner is
// nil for draws and for results where no side could be determined.
type Outcome struct {
	Result  Result `json:"result"`
	Winner  *Color `json:"winner,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	// Auxiliary context for display: the last move and mover when the
	// terminal payload carried them, and final points for points finishes.
	LastMove  string      `json:"last_move,omitempty"`
	LastMover Color       `json:"last_mover,omitempty"`
	Points    *PointsPair `json:"points,omitempty"`
}

// WinnerOrNil is a convenience for building outcomes from a color value
// where the zero value means "no winner".
func WinnerOrNil(c Color) *Color {
	if !c.Valid() {
		return nil
	}
	return &c
}
