package clock

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// Timeout is raised the first time a side's derived clock reaches zero.
// It fires at most once per adopted snapshot.
type Timeout struct {
	Flagged game.Color // the side whose clock ran out
	Winner  game.Color
}

// Reconciler keeps the locally displayed clocks in step with the
// authoritative server clocks. The server updates clocks only on snapshot
// boundaries; between them Tick predicts the active side's remaining time
// from local wall-clock elapsed. Drift is zero at every sync boundary
// because OnSnapshot replaces the whole sync state atomically.
type Reconciler struct {
	mu sync.Mutex

	synced       game.ClockPair
	activeColor  game.Color
	syncedAt     time.Time
	firstMove    bool
	timeoutFired bool
}

// New returns a reconciler with no sync state; Tick before the first
// OnSnapshot returns zeroed clocks and never raises a timeout.
func New() *Reconciler {
	return &Reconciler{activeColor: game.White, firstMove: true}
}

// OnSnapshot adopts a new authoritative snapshot. This is the only point
// where drift resets to zero. The timeout edge re-arms here so each
// snapshot lineage raises at most one timeout.
func (r *Reconciler) OnSnapshot(s *game.Snapshot, adoptedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.synced = s.Timers
	r.activeColor = s.ActiveColor
	r.firstMove = s.FirstMove
	r.timeoutFired = false

	r.syncedAt = s.TurnStart
	if r.syncedAt.IsZero() {
		// Degraded accuracy fallback, not an error.
		r.syncedAt = adoptedAt
	}

	log.Debug().
		Str("active", string(s.ActiveColor)).
		Int64("white_ms", s.Timers.White).
		Int64("black_ms", s.Timers.Black).
		Bool("first_move", s.FirstMove).
		Msg("clock state synced")
}

// Tick derives the displayed clocks at the given instant. Only the active
// side's clock decreases; the opponent's holds at its last synced value.
// While the first move is pending neither clock moves. The returned
// Timeout is non-nil exactly once per snapshot lineage, on the first tick
// that observes the active clock at zero.
func (r *Reconciler) Tick(now time.Time) (game.ClockPair, *Timeout) {
	r.mu.Lock()
	defer r.mu.Unlock()

	derived := r.deriveLocked(now)

	if !r.firstMove && derived.For(r.activeColor) == 0 && !r.timeoutFired {
		r.timeoutFired = true
		flagged := r.activeColor
		log.Info().
			Str("flagged", string(flagged)).
			Msg("local clock reached zero")
		return derived, &Timeout{Flagged: flagged, Winner: flagged.Opponent()}
	}

	return derived, nil
}

// Predict derives the displayed clocks at an instant without consuming the
// timeout edge. Read paths use this; only Tick may raise the timeout.
func (r *Reconciler) Predict(now time.Time) game.ClockPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deriveLocked(now)
}

func (r *Reconciler) deriveLocked(now time.Time) game.ClockPair {
	if r.firstMove {
		return r.synced
	}
	elapsed := now.Sub(r.syncedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := r.synced.For(r.activeColor) - elapsed.Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	return r.synced.Set(r.activeColor, remaining)
}

// Synced returns the last adopted clock pair and active color, for state
// views that want the raw sync values rather than a prediction.
func (r *Reconciler) Synced() (game.ClockPair, game.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced, r.activeColor
}
