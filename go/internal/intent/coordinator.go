package intent

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

// Submit rejections. None of them emit an outbound message.
var (
	ErrAwaitingConfirmation = errors.New("a move is already awaiting server confirmation")
	ErrNotYourTurn          = errors.New("not the local player's turn")
	ErrSourceFrozen         = errors.New("source entity is frozen")
	ErrBudgetExhausted      = errors.New("no moves remaining")
	ErrSessionOver          = errors.New("session is over")
)

// Phase is the coordinator's confirmation state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaiting
)

// Sender carries an accepted intent to the game service. Implemented by the
// gateway; fire-and-forget.
type Sender interface {
	Send(msg protocol.ClientMessage) error
}

// Gate answers the eligibility questions an intent must pass. Implemented
// by the session over its derived state.
type Gate interface {
	// IsLocalTurn reports whether the local player is to move.
	IsLocalTurn() bool
	// SourceLocked reports whether the intent's source entity (a square or
	// a pocket piece ID) is frozen or expired.
	SourceLocked(key string) bool
	// BudgetOK reports whether the local side still has moves remaining.
	// Always true for unbudgeted variants.
	BudgetOK() bool
}

// Coordinator gates outbound move intents and tracks the single in-flight
// one. Exactly one intent may await server confirmation at a time; the
// coordinator returns to idle only on the next snapshot, an error, or a
// warning. There is no client-side timeout on that wait: a stuck
// confirmation is a liveness failure reported upward via StuckFor.
type Coordinator struct {
	mu sync.Mutex

	sender Sender
	gate   Gate

	phase     Phase
	pendingID string
	sentAt    time.Time
}

// New returns an idle coordinator.
func New(sender Sender, gate Gate) *Coordinator {
	return &Coordinator{sender: sender, gate: gate}
}

// Phase returns the current confirmation phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Submit validates and emits one intent. sourceKey is the square or pocket
// piece ID the intent moves from; the gate decides whether it is locked.
// On acceptance the coordinator enters the awaiting phase and refuses
// further intents until Release.
func (c *Coordinator) Submit(msg protocol.ClientMessage, sourceKey string, now time.Time) error {
	c.mu.Lock()
	idle := c.phase == PhaseIdle
	c.mu.Unlock()
	if !idle {
		return ErrAwaitingConfirmation
	}

	// Gates read the session's derived state and take its lock; they are
	// evaluated without holding ours.
	if !c.gate.IsLocalTurn() {
		return ErrNotYourTurn
	}
	if sourceKey != "" && c.gate.SourceLocked(sourceKey) {
		return ErrSourceFrozen
	}
	if !c.gate.BudgetOK() {
		return ErrBudgetExhausted
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return ErrAwaitingConfirmation
	}

	if err := c.sender.Send(msg); err != nil {
		return err
	}

	c.phase = PhaseAwaiting
	c.pendingID = msg.ID
	c.sentAt = now

	log.Debug().
		Str("intent_id", msg.ID).
		Str("type", string(msg.Type)).
		Msg("move intent submitted, awaiting confirmation")
	return nil
}

// Release returns the coordinator to idle. Called on every snapshot
// adoption and on error/warning events for this session. Safe to call when
// already idle.
func (c *Coordinator) Release(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseIdle {
		return
	}
	log.Debug().
		Str("intent_id", c.pendingID).
		Str("reason", reason).
		Msg("move intent confirmation resolved")
	c.phase = PhaseIdle
	c.pendingID = ""
}

// StuckFor returns how long the current intent has been awaiting
// confirmation, and whether one is in flight at all. The caller decides
// when that duration amounts to a liveness failure.
func (c *Coordinator) StuckFor(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAwaiting {
		return 0, false
	}
	return now.Sub(c.sentAt), true
}
