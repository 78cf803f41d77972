package ephemeral

import (
	"time"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// PocketBase is the drop window granted to a front pocket piece.
const PocketBase = 10 * time.Second

// PocketTracker specializes the ephemeral engine for the timed-drop
// crazyhouse variant. Timers are keyed by pocket piece ID. Only the front
// piece of a side's pocket (the oldest still-droppable one) ever holds a
// live timer; when it expires the piece stays visible but can no longer be
// dropped, and the next piece in pocket order arms only once that side is
// to move again.
type PocketTracker struct {
	base   time.Duration
	engine *Engine
}

// NewPocketTracker returns a tracker with the given per-piece drop window.
func NewPocketTracker(base time.Duration) *PocketTracker {
	return &PocketTracker{
		base: base,
		// Drop timers are never extended, so the extension bounds are
		// just the base window.
		engine: NewEngine(Config{Increment: 0, Cap: base}),
	}
}

// Engine exposes the underlying timer engine for ticking by the session.
func (p *PocketTracker) Engine() *Engine {
	return p.engine
}

// Sync reconciles the tracker against the pockets of an adopted snapshot.
// Timers and frozen markers for pieces no longer pocketed are removed by
// set-difference, server-reported unusable flags and deadlines are adopted,
// and the active side's front piece is armed if it has no timer yet.
func (p *PocketTracker) Sync(pockets map[game.Color][]game.PocketPiece, activeColor game.Color, now time.Time) {
	occupied := make(map[string]bool)
	for _, pieces := range pockets {
		for _, piece := range pieces {
			occupied[piece.ID] = true
		}
	}
	p.engine.ReconcileOccupancy(occupied)

	for color, pieces := range pockets {
		for _, piece := range pieces {
			if piece.Unusable {
				// Server says this piece already timed out; heal any local
				// disagreement.
				delete(p.engine.timers, piece.ID)
				p.engine.frozen[piece.ID] = color
				continue
			}
			if !piece.ExpiresAt.IsZero() {
				// Authoritative deadline replaces whatever we predicted.
				delete(p.engine.frozen, piece.ID)
				p.engine.timers[piece.ID] = &Timer{Key: piece.ID, Owner: color, ExpiresAt: piece.ExpiresAt}
			}
		}
	}

	p.arm(pockets[activeColor], activeColor, now)
}

// arm gives the front droppable piece a fresh timer if it has none.
func (p *PocketTracker) arm(pieces []game.PocketPiece, color game.Color, now time.Time) {
	front, ok := p.front(pieces)
	if !ok {
		return
	}
	if _, live := p.engine.Lookup(front.ID); live {
		return
	}
	p.engine.Start(front.ID, color, p.base, now)
}

// front returns the oldest piece that has not timed out.
func (p *PocketTracker) front(pieces []game.PocketPiece) (game.PocketPiece, bool) {
	for _, piece := range pieces {
		if piece.Unusable || p.engine.IsFrozen(piece.ID) {
			continue
		}
		return piece, true
	}
	return game.PocketPiece{}, false
}

// ExpireDue freezes every pocket timer whose deadline has passed and
// returns the affected piece IDs. The successor piece is not armed here;
// it waits for the owner's next turn (the following Sync).
func (p *PocketTracker) ExpireDue(now time.Time) []string {
	return p.engine.ExpireDue(now)
}

// Droppable reports whether the piece may still be dropped.
func (p *PocketTracker) Droppable(id string) bool {
	return !p.engine.IsFrozen(id)
}

// Remaining returns the live countdown for a piece, if it has one.
func (p *PocketTracker) Remaining(id string, now time.Time) (time.Duration, bool) {
	t, ok := p.engine.Lookup(id)
	if !ok {
		return 0, false
	}
	return t.Remaining(now), true
}
