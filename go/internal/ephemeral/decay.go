package ephemeral

import (
	"time"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// Decay variant constants. Minor pieces get the longer fuse; every
// qualifying move extends a live timer by the shared increment, never more
// than the shared cap ahead of now.
const (
	DecayMinorBase = 20 * time.Second
	DecayMajorBase = 12 * time.Second
	DecayIncrement = 2 * time.Second
	DecayCap       = 25 * time.Second
)

// DecayConfig parameterizes the decay tracker. The zero value is not
// usable; use DefaultDecayConfig.
type DecayConfig struct {
	MinorBase time.Duration
	MajorBase time.Duration
	Increment time.Duration
	Cap       time.Duration
	// Trigger is the piece kind whose first move arms decay for its side.
	Trigger game.PieceKind
}

// DefaultDecayConfig returns the production decay parameters.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		MinorBase: DecayMinorBase,
		MajorBase: DecayMajorBase,
		Increment: DecayIncrement,
		Cap:       DecayCap,
		Trigger:   game.Queen,
	}
}

// DecayTracker specializes the ephemeral engine for the decay variant:
// once a side's trigger piece has moved, every subsequent move of that
// side's qualifying pieces starts or extends a timer on the destination
// square. An expired timer freezes the piece in place.
type DecayTracker struct {
	cfg       DecayConfig
	engine    *Engine
	triggered map[game.Color]bool
}

// NewDecayTracker returns a tracker with no side triggered yet.
func NewDecayTracker(cfg DecayConfig) *DecayTracker {
	return &DecayTracker{
		cfg:       cfg,
		engine:    NewEngine(Config{Increment: cfg.Increment, Cap: cfg.Cap}),
		triggered: make(map[game.Color]bool),
	}
}

// Engine exposes the underlying timer engine for ticking and occupancy
// reconciliation by the session.
func (d *DecayTracker) Engine() *Engine {
	return d.engine
}

// Triggered reports whether decay is armed for a side.
func (d *DecayTracker) Triggered(c game.Color) bool {
	return d.triggered[c]
}

func (d *DecayTracker) baseFor(kind game.PieceKind) (time.Duration, bool) {
	switch kind {
	case game.Knight, game.Bishop:
		return d.cfg.MinorBase, true
	case game.Rook, game.Queen:
		return d.cfg.MajorBase, true
	}
	return 0, false
}

// OnMove feeds one applied move into the tracker. A timer already sitting
// on the source square follows the piece to its destination and is then
// extended; otherwise, if the mover's side is armed and the piece class
// qualifies, a fresh timer starts on the destination.
func (d *DecayTracker) OnMove(color game.Color, kind game.PieceKind, from, to game.Square, now time.Time) {
	if kind == d.cfg.Trigger {
		d.triggered[color] = true
	}

	base, qualifies := d.baseFor(kind)

	if _, ok := d.engine.Lookup(string(from)); ok {
		d.engine.Transfer(string(from), string(to))
		if qualifies {
			d.engine.Start(string(to), color, base, now)
		}
		return
	}

	// A capture replaces the destination's occupant. The victim's timer or
	// frozen marker must not outlive it: the square stays occupied, so
	// occupancy reconciliation would never clean it up.
	d.engine.Clear(string(to))

	if !d.triggered[color] || !qualifies {
		return
	}
	d.engine.Start(string(to), color, base, now)
}

// FrozenAt reports whether the square holds a piece frozen by decay.
func (d *DecayTracker) FrozenAt(sq game.Square) bool {
	return d.engine.IsFrozen(string(sq))
}
