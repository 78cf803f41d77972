package ephemeral

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

// Timer is one live per-entity countdown. The key is a board square for
// decay timers and a pocket piece ID for drop timers.
type Timer struct {
	Key       string
	Owner     game.Color
	ExpiresAt time.Time
}

// Remaining returns the time left before expiry, floored at zero.
func (t *Timer) Remaining(now time.Time) time.Duration {
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Config bounds timer extension. Every repeated Start on a live timer adds
// Increment, but never pushes expiry more than Cap ahead of now.
type Config struct {
	Increment time.Duration
	Cap       time.Duration
}

// Engine is a generic per-entity countdown map: entities acquire a timer,
// may have it extended or transferred, expire into a frozen marker, and are
// cleaned up by set-difference against the authoritative occupancy. One
// engine instance serves one variant concern within one session.
type Engine struct {
	cfg    Config
	timers map[string]*Timer
	frozen map[string]game.Color // terminal markers by key, value is the owner
}

// NewEngine returns an empty engine with the given extension bounds.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		timers: make(map[string]*Timer),
		frozen: make(map[string]game.Color),
	}
}

// Start creates a timer for the entity, or extends an existing one. A new
// timer expires at now+base. An extension adds the configured increment but
// is capped: expiry never moves more than Cap ahead of now.
func (e *Engine) Start(key string, owner game.Color, base time.Duration, now time.Time) {
	if t, ok := e.timers[key]; ok {
		extended := t.ExpiresAt.Add(e.cfg.Increment)
		capped := now.Add(e.cfg.Cap)
		if extended.After(capped) {
			extended = capped
		}
		t.ExpiresAt = extended
		t.Owner = owner
		return
	}
	e.timers[key] = &Timer{Key: key, Owner: owner, ExpiresAt: now.Add(base)}
}

// Transfer moves a timer's identity from one key to another without
// resetting its expiry. Whatever ephemeral state sat at the destination is
// cleared first; a piece moving onto a square never inherits the previous
// occupant's timer or frozen marker.
func (e *Engine) Transfer(fromKey, toKey string) {
	t, ok := e.timers[fromKey]
	if !ok {
		return
	}
	delete(e.timers, fromKey)
	delete(e.timers, toKey)
	delete(e.frozen, toKey)
	t.Key = toKey
	e.timers[toKey] = t
}

// Clear removes the live timer and frozen marker at a key, if any. Called
// when an entity is replaced in place, such as a capture onto the square.
func (e *Engine) Clear(key string) {
	delete(e.timers, key)
	delete(e.frozen, key)
}

// ExpireDue transitions every timer whose expiry has passed into a frozen
// marker and returns the affected keys. Frozen is terminal: the entity
// stays on the board (or in the pocket) but can no longer be moved or
// dropped by time alone.
func (e *Engine) ExpireDue(now time.Time) []string {
	var expired []string
	for key, t := range e.timers {
		if now.Before(t.ExpiresAt) {
			continue
		}
		delete(e.timers, key)
		e.frozen[key] = t.Owner
		expired = append(expired, key)
		log.Debug().Str("key", key).Str("owner", string(t.Owner)).Msg("ephemeral timer expired")
	}
	return expired
}

// ReconcileOccupancy removes every timer and frozen marker whose key is
// absent from the authoritative occupied set. Captures are not individually
// delivered, so this set-difference pass after each snapshot adoption is
// the only correct cleanup for removed entities.
func (e *Engine) ReconcileOccupancy(occupied map[string]bool) {
	for key := range e.timers {
		if !occupied[key] {
			delete(e.timers, key)
		}
	}
	for key := range e.frozen {
		if !occupied[key] {
			delete(e.frozen, key)
		}
	}
}

// Lookup returns the live timer for a key, if any.
func (e *Engine) Lookup(key string) (*Timer, bool) {
	t, ok := e.timers[key]
	return t, ok
}

// IsFrozen reports whether the key carries a frozen marker.
func (e *Engine) IsFrozen(key string) bool {
	_, ok := e.frozen[key]
	return ok
}

// FrozenOwner returns the owner of a frozen marker, if present.
func (e *Engine) FrozenOwner(key string) (game.Color, bool) {
	c, ok := e.frozen[key]
	return c, ok
}

// Live returns a copy of the live timer map for state views.
func (e *Engine) Live() map[string]Timer {
	out := make(map[string]Timer, len(e.timers))
	for k, t := range e.timers {
		out[k] = *t
	}
	return out
}

// Frozen returns a copy of the frozen marker map for state views.
func (e *Engine) Frozen() map[string]game.Color {
	out := make(map[string]game.Color, len(e.frozen))
	for k, c := range e.frozen {
		out[k] = c
	}
	return out
}

// Reset drops all timers and markers, for session teardown.
func (e *Engine) Reset() {
	e.timers = make(map[string]*Timer)
	e.frozen = make(map[string]game.Color)
}
