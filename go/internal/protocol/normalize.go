package protocol

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// The game service expresses the same logical value under several payload
// paths depending on which server code path produced the event. Everything
// funnels through Normalize here; no other package inspects raw shapes.

// RawTimers is the common clock block: milliseconds remaining per side.
type RawTimers struct {
	White *float64 `json:"white,omitempty"`
	Black *float64 `json:"black,omitempty"`
	WhiteMS *float64 `json:"white_ms,omitempty"`
	BlackMS *float64 `json:"black_ms,omitempty"`
}

func (t *RawTimers) white() *float64 {
	if t == nil {
		return nil
	}
	if t.White != nil {
		return t.White
	}
	return t.WhiteMS
}

func (t *RawTimers) black() *float64 {
	if t == nil {
		return nil
	}
	if t.Black != nil {
		return t.Black
	}
	return t.BlackMS
}

// WhitePtr returns the white clock value, if present. Nil-safe.
func (t *RawTimers) WhitePtr() *float64 { return t.white() }

// BlackPtr returns the black clock value, if present. Nil-safe.
func (t *RawTimers) BlackPtr() *float64 { return t.black() }

// RawTimeControl nests timers under the time-control block.
type RawTimeControl struct {
	Timers  *RawTimers `json:"timers,omitempty"`
	WhiteMS *float64   `json:"white_time_ms,omitempty"`
	BlackMS *float64   `json:"black_time_ms,omitempty"`
	TurnStartMS *float64 `json:"turn_start_ms,omitempty"`
}

// RawPiece is one occupied square in a raw board block.
type RawPiece struct {
	Color string `json:"color,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Type  string `json:"type,omitempty"`
	Piece string `json:"piece,omitempty"`
}

// RawBoard is the board-level block; some payloads duplicate clock and
// turn data here instead of (or in addition to) the top level.
type RawBoard struct {
	Pieces      map[string]RawPiece `json:"pieces,omitempty"`
	ActiveColor string              `json:"active_color,omitempty"`
	Turn        string              `json:"turn,omitempty"`
	Timers      *RawTimers          `json:"timers,omitempty"`
	MoveCount   *int                `json:"move_count,omitempty"`
	TurnStartMS *float64            `json:"turn_start_ms,omitempty"`
}

// RawPocketPiece is one pocketed piece in a crazyhouse payload.
type RawPocketPiece struct {
	ID          string   `json:"id,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Piece       string   `json:"piece,omitempty"`
	ExpiresAtMS *float64 `json:"expires_at_ms,omitempty"`
	Unusable    *bool    `json:"unusable,omitempty"`
	Expired     bool     `json:"expired,omitempty"`
}

// RawSideBudget is one side's move accounting in a six-pointer payload.
type RawSideBudget struct {
	MovesPlayed *int `json:"moves_played,omitempty"`
	Moves       *int `json:"moves,omitempty"`
	BonusMoves  *int `json:"bonus_moves,omitempty"`
	Points      *int `json:"points,omitempty"`
}

func (b RawSideBudget) played() int {
	if b.MovesPlayed != nil {
		return *b.MovesPlayed
	}
	if b.Moves != nil {
		return *b.Moves
	}
	return 0
}

// RawBudget is the six-pointer accounting block.
type RawBudget struct {
	White    RawSideBudget `json:"white"`
	Black    RawSideBudget `json:"black"`
	MaxMoves *int          `json:"max_moves,omitempty"`
}

// RawState mirrors the loosely-typed state shape the game service sends.
type RawState struct {
	ActiveColor string `json:"active_color,omitempty"`
	Turn        string `json:"turn,omitempty"`

	Timers      *RawTimers      `json:"timers,omitempty"`
	TimeControl *RawTimeControl `json:"time_control,omitempty"`
	Board       *RawBoard       `json:"board,omitempty"`

	MoveCount *int `json:"move_count,omitempty"`
	HalfMoves *int `json:"half_moves,omitempty"`
	FirstMove *bool `json:"first_move,omitempty"`

	TurnStartMS *float64 `json:"turn_start_ms,omitempty"`
	TurnStartedAtMS *float64 `json:"turn_started_at,omitempty"`

	Pockets    map[string][]RawPocketPiece `json:"pockets,omitempty"`
	Crazyhouse *struct {
		Pockets map[string][]RawPocketPiece `json:"pockets,omitempty"`
	} `json:"crazyhouse,omitempty"`

	Budget     *RawBudget `json:"budget,omitempty"`
	SixPointer *RawBudget `json:"six_pointer,omitempty"`

	GameOver    *bool  `json:"game_over,omitempty"`
	Result      string `json:"result,omitempty"`
	Winner      string `json:"winner,omitempty"`
	WinnerColor string `json:"winner_color,omitempty"`
	EndReason   string `json:"end_reason,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Message     string `json:"message,omitempty"`
}

// SafeTimer coerces a server-reported timer value to a usable millisecond
// count. Finite non-negative numbers pass through truncated; NaN, infinities
// and negatives all become 0. Total and idempotent.
func SafeTimer(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return int64(v)
}

func safeTimerPtr(v *float64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	return SafeTimer(*v), true
}

// clockSources lists every known path to the per-side clocks, in the order
// they are trusted. The first source that yields a value for a side wins.
var clockSources = []struct {
	name  string
	white func(*RawState) *float64
	black func(*RawState) *float64
}{
	{"timers", func(r *RawState) *float64 { return r.Timers.white() },
		func(r *RawState) *float64 { return r.Timers.black() }},
	{"time_control.timers", func(r *RawState) *float64 {
		if r.TimeControl == nil {
			return nil
		}
		return r.TimeControl.Timers.white()
	}, func(r *RawState) *float64 {
		if r.TimeControl == nil {
			return nil
		}
		return r.TimeControl.Timers.black()
	}},
	{"time_control", func(r *RawState) *float64 {
		if r.TimeControl == nil {
			return nil
		}
		return r.TimeControl.WhiteMS
	}, func(r *RawState) *float64 {
		if r.TimeControl == nil {
			return nil
		}
		return r.TimeControl.BlackMS
	}},
	{"board.timers", func(r *RawState) *float64 {
		if r.Board == nil {
			return nil
		}
		return r.Board.Timers.white()
	}, func(r *RawState) *float64 {
		if r.Board == nil {
			return nil
		}
		return r.Board.Timers.black()
	}},
}

// turnStartSources lists every known path to the turn-start instant (ms
// since epoch), in trust order.
var turnStartSources = []func(*RawState) *float64{
	func(r *RawState) *float64 { return r.TurnStartMS },
	func(r *RawState) *float64 { return r.TurnStartedAtMS },
	func(r *RawState) *float64 {
		if r.TimeControl == nil {
			return nil
		}
		return r.TimeControl.TurnStartMS
	},
	func(r *RawState) *float64 {
		if r.Board == nil {
			return nil
		}
		return r.Board.TurnStartMS
	},
}

// moveCountSources lists every known path to the half-move count.
var moveCountSources = []func(*RawState) *int{
	func(r *RawState) *int { return r.MoveCount },
	func(r *RawState) *int { return r.HalfMoves },
	func(r *RawState) *int {
		if r.Board == nil {
			return nil
		}
		return r.Board.MoveCount
	},
}

// ParseColor maps the wire spellings of a side to a canonical color.
// Unknown spellings yield the zero value.
func ParseColor(s string) game.Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return game.White
	case "black", "b":
		return game.Black
	}
	return ""
}

// ParsePieceKind maps the wire spellings of a piece class to a canonical
// kind. Both full names and single-letter codes appear in payloads.
func ParsePieceKind(s string) game.PieceKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pawn", "p":
		return game.Pawn
	case "knight", "n":
		return game.Knight
	case "bishop", "b":
		return game.Bishop
	case "rook", "r":
		return game.Rook
	case "queen", "q":
		return game.Queen
	case "king", "k":
		return game.King
	}
	return ""
}

func (p RawPiece) kind() game.PieceKind {
	for _, s := range []string{p.Kind, p.Type, p.Piece} {
		if k := ParsePieceKind(s); k != "" {
			return k
		}
	}
	return ""
}

func (p RawPocketPiece) kind() game.PieceKind {
	for _, s := range []string{p.Kind, p.Piece} {
		if k := ParsePieceKind(s); k != "" {
			return k
		}
	}
	return ""
}

// Normalize converts a raw state payload into the canonical snapshot.
// adoptedAt is substituted for a missing turn-start instant, a degraded
// accuracy fallback rather than an error. The function is pure and
// idempotent: the same raw payload and instant always produce the same
// snapshot, and a payload already using the canonical paths passes through
// unchanged.
func Normalize(raw *RawState, adoptedAt time.Time) *game.Snapshot {
	snap := &game.Snapshot{}

	snap.ActiveColor = game.White
	for _, s := range []string{raw.ActiveColor, raw.Turn, boardActive(raw)} {
		if c := ParseColor(s); c.Valid() {
			snap.ActiveColor = c
			break
		}
	}

	for _, src := range clockSources {
		if ms, ok := safeTimerPtr(src.white(raw)); ok {
			snap.Timers.White = ms
			break
		}
	}
	for _, src := range clockSources {
		if ms, ok := safeTimerPtr(src.black(raw)); ok {
			snap.Timers.Black = ms
			break
		}
	}

	snap.TurnStart = adoptedAt
	for _, src := range turnStartSources {
		if v := src(raw); v != nil {
			if ms := SafeTimer(*v); ms > 0 {
				snap.TurnStart = time.UnixMilli(ms)
			}
			break
		}
	}

	for _, src := range moveCountSources {
		if v := src(raw); v != nil {
			if *v > 0 {
				snap.MoveCount = *v
			}
			break
		}
	}

	if raw.FirstMove != nil {
		snap.FirstMove = *raw.FirstMove
	} else {
		// No explicit flag: the clocks stay frozen until each side has
		// moved once.
		snap.FirstMove = snap.MoveCount < 2
	}

	if raw.Board != nil && len(raw.Board.Pieces) > 0 {
		snap.Board = make(map[game.Square]game.Piece, len(raw.Board.Pieces))
		for sq, p := range raw.Board.Pieces {
			c := ParseColor(p.Color)
			k := p.kind()
			if !c.Valid() || k == "" {
				continue
			}
			snap.Board[game.Square(strings.ToLower(sq))] = game.Piece{Color: c, Kind: k}
		}
	}

	if pockets := rawPockets(raw); pockets != nil {
		snap.Pockets = make(map[game.Color][]game.PocketPiece, 2)
		for colorKey, pieces := range pockets {
			c := ParseColor(colorKey)
			if !c.Valid() {
				continue
			}
			out := make([]game.PocketPiece, 0, len(pieces))
			for i, p := range pieces {
				k := p.kind()
				if k == "" {
					continue
				}
				pp := game.PocketPiece{ID: p.ID, Kind: k}
				if pp.ID == "" {
					pp.ID = pocketFallbackID(c, k, i)
				}
				if ms, ok := safeTimerPtr(p.ExpiresAtMS); ok && ms > 0 {
					pp.ExpiresAt = time.UnixMilli(ms)
				}
				pp.Unusable = p.Expired
				if p.Unusable != nil {
					pp.Unusable = *p.Unusable
				}
				out = append(out, pp)
			}
			snap.Pockets[c] = out
		}
	}

	if rb := rawBudget(raw); rb != nil {
		b := &game.BudgetState{
			White: game.SideBudget{MovesPlayed: rb.White.played(), Points: intOrZero(rb.White.Points), BonusMoves: intOrZero(rb.White.BonusMoves)},
			Black: game.SideBudget{MovesPlayed: rb.Black.played(), Points: intOrZero(rb.Black.Points), BonusMoves: intOrZero(rb.Black.BonusMoves)},
			MaxMoves: intOrZero(rb.MaxMoves),
		}
		snap.Budget = b
	}

	if term := rawTerminal(raw); term != nil {
		snap.Terminal = term
	}

	return snap
}

func boardActive(raw *RawState) string {
	if raw.Board == nil {
		return ""
	}
	if raw.Board.ActiveColor != "" {
		return raw.Board.ActiveColor
	}
	return raw.Board.Turn
}

func rawPockets(raw *RawState) map[string][]RawPocketPiece {
	if len(raw.Pockets) > 0 {
		return raw.Pockets
	}
	if raw.Crazyhouse != nil && len(raw.Crazyhouse.Pockets) > 0 {
		return raw.Crazyhouse.Pockets
	}
	return nil
}

func rawBudget(raw *RawState) *RawBudget {
	if raw.Budget != nil {
		return raw.Budget
	}
	return raw.SixPointer
}

func rawTerminal(raw *RawState) *game.TerminalState {
	over := raw.GameOver != nil && *raw.GameOver
	if !over && raw.Result == "" && raw.Winner == "" && raw.WinnerColor == "" {
		return nil
	}
	if !over && raw.Result == "" {
		// A bare winner field without a result or flag is not a terminal
		// signal; some payloads echo the last round winner here.
		return nil
	}
	return &game.TerminalState{
		Result:     raw.Result,
		Winner:     ParseColor(raw.Winner),
		WinnerSide: ParseColor(raw.WinnerColor),
		Reason:     firstNonEmpty(raw.EndReason, raw.Reason),
		Message:    raw.Message,
	}
}

// pocketFallbackID keeps pocket entries addressable when the server omits
// piece IDs. Positional IDs are stable because pocket order is preserved
// across snapshots until a piece is dropped.
func pocketFallbackID(c game.Color, k game.PieceKind, idx int) string {
	return string(c) + ":" + string(k) + ":" + strconv.Itoa(idx)
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
