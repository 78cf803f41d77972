package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/budget"
	"github.com/webwizzz/chess-sub000/go/internal/clock"
	"github.com/webwizzz/chess-sub000/go/internal/ephemeral"
	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/intent"
	"github.com/webwizzz/chess-sub000/go/internal/outcome"
	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

// DefaultTickInterval is how often derived state is recomputed between
// snapshots.
const DefaultTickInterval = 100 * time.Millisecond

// Config parameterizes one game session.
type Config struct {
	Variant      game.Variant
	LocalColor   game.Color
	TickInterval time.Duration
	Decay        ephemeral.DecayConfig
	PocketBase   time.Duration
	MaxMoves     int
}

// DefaultConfig returns a standard-variant config for the given side.
func DefaultConfig(variant game.Variant, localColor game.Color) Config {
	return Config{
		Variant:      variant,
		LocalColor:   localColor,
		TickInterval: DefaultTickInterval,
		Decay:        ephemeral.DefaultDecayConfig(),
		PocketBase:   ephemeral.PocketBase,
		MaxMoves:     budget.DefaultMaxMoves,
	}
}

// Listener receives the session's upward-facing events. All callbacks run
// on the session's event or tick goroutine and must not block.
type Listener interface {
	// OnOutcome fires exactly once, when the session reaches a terminal
	// outcome from any source.
	OnOutcome(out game.Outcome)
	// OnNotice surfaces transient server errors and warnings.
	OnNotice(level string, code string, message string)
	// OnPossibleMoves answers an earlier RequestMoves call.
	OnPossibleMoves(square string, moves []string)
}

// Session is the per-game reconciliation engine instance. It owns the
// clock reconciler, the variant timer trackers, the move budget, the
// optimistic move coordinator and the game-end classifier for exactly one
// game, and is destroyed with it. One mutex serializes snapshot adoption
// against ticks: an adoption always completes, including occupancy
// reconciliation, before the next tick reads state.
type Session struct {
	id       uuid.UUID
	cfg      Config
	clk      clockwork.Clock
	sender   intent.Sender
	listener Listener

	mu        sync.Mutex
	snap      *game.Snapshot
	clocks    *clock.Reconciler
	derived   game.ClockPair
	decay     *ephemeral.DecayTracker
	pocket    *ephemeral.PocketTracker
	budget    *budget.Tracker
	classify  *outcome.Classifier
	coord     *intent.Coordinator

	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a session engine. The sender is the live socket to the
// game service; the listener may be nil.
func New(cfg Config, sender intent.Sender, listener Listener, clk clockwork.Clock) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	s := &Session{
		id:       uuid.New(),
		cfg:      cfg,
		clk:      clk,
		sender:   sender,
		listener: listener,
		clocks:   clock.New(),
		budget:   budget.NewTracker(cfg.MaxMoves),
		classify: outcome.New(),
		done:     make(chan struct{}),
	}
	if cfg.Variant == game.VariantDecay {
		s.decay = ephemeral.NewDecayTracker(cfg.Decay)
	}
	if cfg.Variant == game.VariantCrazyhouse {
		s.pocket = ephemeral.NewPocketTracker(cfg.PocketBase)
	}
	s.coord = intent.New(sender, (*gate)(s))
	return s
}

// ID returns the session's local identity.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Run drives the repeating tick until the context is cancelled or the
// session is closed. Blocking; callers run it on its own goroutine.
func (s *Session) Run(ctx context.Context) {
	ticker := s.clk.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().
		Str("session_id", s.id.String()).
		Str("variant", string(s.cfg.Variant)).
		Str("local_color", string(s.cfg.LocalColor)).
		Msg("session started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.Chan():
			s.tick(s.clk.Now())
		}
	}
}

// Close tears the session down. Idempotent: a second close is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		log.Info().Str("session_id", s.id.String()).Msg("session closed")
	})
}

// HandleEvent dispatches one inbound event from the game service. Events
// for one session arrive in send order; every handler tolerates duplicate
// delivery of the same event.
func (s *Session) HandleEvent(ev protocol.ServerEvent) error {
	payload, err := protocol.ParseEventPayload(&ev)
	if err != nil {
		return fmt.Errorf("parse %s payload: %w", ev.Type, err)
	}

	switch p := payload.(type) {
	case protocol.MoveAppliedPayload:
		s.adopt(&p.State, p.Move)
	case protocol.RawState:
		s.adopt(&p, nil)
	case protocol.ClockUpdatePayload:
		s.adoptClocks(&p)
	case protocol.PossibleMovesPayload:
		if s.listener != nil {
			s.listener.OnPossibleMoves(p.Square, p.Moves)
		}
	case protocol.GameEndPayload:
		s.handleGameEnd(&p)
	case protocol.NoticePayload:
		s.handleNotice(ev.Type, &p)
	default:
		log.Debug().Str("type", string(ev.Type)).Msg("ignoring unknown event type")
	}
	return nil
}

// HandleDisconnect marks the transport as lost. Fatal to the session: all
// local prediction stops and the loss is surfaced.
func (s *Session) HandleDisconnect(err error) {
	log.Error().Err(err).Str("session_id", s.id.String()).Msg("connection to game service lost")
	if s.listener != nil {
		s.listener.OnNotice("error", "connection_lost", "connection to game service lost")
	}
	s.Close()
}

// adopt installs one authoritative snapshot. The whole adoption happens
// under the session mutex: normalize, variant move application, clock
// sync, occupancy reconciliation, budget sync, terminal classification.
func (s *Session) adopt(raw *protocol.RawState, move *protocol.RawMove) {
	now := s.clk.Now()
	snap := protocol.Normalize(raw, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, over := s.classify.Final(); over {
		return
	}

	// Re-delivery of the snapshot we already hold: adoption is keyed on
	// the half-move count, so applying the move again would double-extend
	// decay timers.
	duplicate := s.snap != nil && snap.MoveCount != 0 && snap.MoveCount == s.snap.MoveCount

	if s.decay != nil && move != nil && !duplicate {
		color := protocol.ParseColor(move.Color)
		kind := protocol.ParsePieceKind(move.Piece)
		if color.Valid() && kind != "" && !move.Drop {
			s.decay.OnMove(color, kind, game.Square(move.From), game.Square(move.To), now)
		}
	}

	s.snap = snap
	s.clocks.OnSnapshot(snap, now)
	s.derived = snap.Timers

	// Captures are not individually delivered; set-difference against the
	// snapshot's occupancy is the only cleanup for removed pieces. Delta
	// payloads that omit the board block carry no occupancy to reconcile
	// against.
	if s.decay != nil && snap.Board != nil {
		occupied := make(map[string]bool, len(snap.Board))
		for sq := range snap.Board {
			occupied[string(sq)] = true
		}
		s.decay.Engine().ReconcileOccupancy(occupied)
	}
	if s.pocket != nil {
		s.pocket.Sync(snap.Pockets, snap.ActiveColor, now)
	}
	s.budget.Sync(snap.Budget)

	// The next snapshot is the confirmation an in-flight intent waits on.
	s.coord.Release("snapshot")

	if out := s.classify.OnSnapshot(snap); out != nil {
		s.emitOutcome(*out)
		return
	}

	// Six-pointer terminal check: a pure function of the adopted snapshot,
	// independent of event arrival order.
	if s.cfg.Variant == game.VariantSixPointer && snap.Budget != nil && s.budget.Exhausted() {
		if out := s.classify.RecordLocal(budget.ResolvePoints(s.budget.Points()), "move-budget"); out != nil {
			s.emitOutcome(*out)
		}
	}
}

// adoptClocks applies a timer-only update without disturbing the rest of
// the state. Ignored until a full snapshot has arrived.
func (s *Session) adoptClocks(p *protocol.ClockUpdatePayload) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		log.Debug().Msg("clock update before first snapshot, ignoring")
		return
	}
	if _, over := s.classify.Final(); over {
		return
	}

	snap := *s.snap
	if w := firstFloat(p.Timers.WhitePtr(), p.WhiteMS); w != nil {
		snap.Timers.White = protocol.SafeTimer(*w)
	}
	if b := firstFloat(p.Timers.BlackPtr(), p.BlackMS); b != nil {
		snap.Timers.Black = protocol.SafeTimer(*b)
	}
	if c := protocol.ParseColor(p.Turn); c.Valid() {
		snap.ActiveColor = c
	}
	// The server's own update instant beats our receive time as the sync
	// point; transit latency otherwise inflates the active clock.
	snap.TurnStart = now
	if p.UpdatedAt != nil {
		if ms := protocol.SafeTimer(*p.UpdatedAt); ms > 0 {
			snap.TurnStart = time.UnixMilli(ms)
		}
	}

	s.snap = &snap
	s.clocks.OnSnapshot(&snap, now)
	s.derived = snap.Timers
	s.coord.Release("clock-update")
}

func (s *Session) handleGameEnd(p *protocol.GameEndPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sideToMove := game.Color("")
	if p.State != nil {
		// Some end events carry a final state; adopt its terminal block
		// semantics only for winner inference.
		sideToMove = protocol.Normalize(p.State, s.clk.Now()).ActiveColor
	} else if s.snap != nil {
		sideToMove = s.snap.ActiveColor
	}

	if out := s.classify.OnEndEvent(p, sideToMove); out != nil {
		s.emitOutcome(*out)
	}
}

func (s *Session) handleNotice(t protocol.EventType, p *protocol.NoticePayload) {
	level := "warning"
	if t == protocol.EventTypeError {
		level = "error"
	}
	log.Warn().
		Str("level", level).
		Str("code", p.Code).
		Str("message", p.Message).
		Msg("game service notice")

	// A rejection of the in-flight move restores turn eligibility.
	s.coord.Release(level)

	if s.listener != nil {
		s.listener.OnNotice(level, p.Code, p.Message)
	}
}

// tick recomputes derived state at one instant: predicted clocks, expired
// ephemeral timers, and a local timeout outcome when a clock hits zero.
func (s *Session) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return
	}
	if _, over := s.classify.Final(); over {
		return
	}

	derived, timeout := s.clocks.Tick(now)
	s.derived = derived

	if s.decay != nil {
		s.decay.Engine().ExpireDue(now)
	}
	if s.pocket != nil {
		s.pocket.ExpireDue(now)
	}

	if timeout != nil {
		if out := s.classify.OnLocalTimeout(timeout.Flagged); out != nil {
			s.emitOutcome(*out)
		}
	}
}

// emitOutcome forwards a terminal outcome upward. Caller holds the mutex.
func (s *Session) emitOutcome(out game.Outcome) {
	if s.listener != nil {
		s.listener.OnOutcome(out)
	}
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
