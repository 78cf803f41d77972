package budget

import (
	"sync"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// DefaultMaxMoves is the per-side move cap of the six-pointer variant.
const DefaultMaxMoves = 6

// Tracker keeps the six-pointer per-side accounting: moves played, bonus
// moves granted by variant rules, and point totals. The server snapshot is
// authoritative; local RecordMove only bridges the gap until the next one.
type Tracker struct {
	mu       sync.Mutex
	maxMoves int
	played   map[game.Color]int
	bonus    map[game.Color]int
	points   map[game.Color]int
}

// NewTracker returns a tracker with zeroed counters for both sides.
func NewTracker(maxMoves int) *Tracker {
	if maxMoves <= 0 {
		maxMoves = DefaultMaxMoves
	}
	return &Tracker{
		maxMoves: maxMoves,
		played:   map[game.Color]int{game.White: 0, game.Black: 0},
		bonus:    map[game.Color]int{game.White: 0, game.Black: 0},
		points:   map[game.Color]int{game.White: 0, game.Black: 0},
	}
}

// Sync replaces all counters from an authoritative snapshot block.
func (t *Tracker) Sync(b *game.BudgetState) {
	if b == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if b.MaxMoves > 0 {
		t.maxMoves = b.MaxMoves
	}
	t.played[game.White] = b.White.MovesPlayed
	t.played[game.Black] = b.Black.MovesPlayed
	t.bonus[game.White] = b.White.BonusMoves
	t.bonus[game.Black] = b.Black.BonusMoves
	t.points[game.White] = b.White.Points
	t.points[game.Black] = b.Black.Points
}

// RecordMove counts one half-move for a side.
func (t *Tracker) RecordMove(c game.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.played[c]++
}

// AddBonus grants extra moves to a side. Bonuses originate from variant
// rules on the server and normally arrive via Sync; this exists for the
// delta events that carry only the grant.
func (t *Tracker) AddBonus(c game.Color, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bonus[c] += n
}

// Remaining returns maxMoves + bonus - played for a side. May be negative
// when the server granted moves that were later revoked.
func (t *Tracker) Remaining(c game.Color) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(c)
}

func (t *Tracker) remainingLocked(c game.Color) int {
	return t.maxMoves + t.bonus[c] - t.played[c]
}

// Exhausted reports whether both sides have no moves remaining.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(game.White) <= 0 && t.remainingLocked(game.Black) <= 0
}

// Points returns the current point totals.
func (t *Tracker) Points() game.PointsPair {
	t.mu.Lock()
	defer t.mu.Unlock()
	return game.PointsPair{White: t.points[game.White], Black: t.points[game.Black]}
}

// State returns the full budget block for state views.
func (t *Tracker) State() game.BudgetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return game.BudgetState{
		MaxMoves: t.maxMoves,
		White: game.SideBudget{MovesPlayed: t.played[game.White], BonusMoves: t.bonus[game.White], Points: t.points[game.White]},
		Black: game.SideBudget{MovesPlayed: t.played[game.Black], BonusMoves: t.bonus[game.Black], Points: t.points[game.Black]},
	}
}

// ResolvePoints maps final point totals to an outcome. Greater total wins,
// equal totals draw. Pure function of the final snapshot; it cannot depend
// on event arrival order.
func ResolvePoints(points game.PointsPair) game.Outcome {
	out := game.Outcome{Result: game.ResultPoints, Reason: "move budget exhausted", Points: &points}
	switch {
	case points.White > points.Black:
		out.Winner = game.WinnerOrNil(game.White)
	case points.Black > points.White:
		out.Winner = game.WinnerOrNil(game.Black)
	default:
		out.Result = game.ResultDraw
		out.Reason = "move budget exhausted, points level"
	}
	return out
}
