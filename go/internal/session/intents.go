package session

import (
	"time"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/intent"
	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

// gate adapts the session's derived state to the coordinator's eligibility
// checks. The coordinator calls these without holding the session mutex.
type gate Session

func (g *gate) IsLocalTurn() bool {
	s := (*Session)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap != nil && s.snap.ActiveColor == s.cfg.LocalColor
}

func (g *gate) SourceLocked(key string) bool {
	s := (*Session)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decay != nil && s.decay.FrozenAt(game.Square(key)) {
		return true
	}
	if s.pocket != nil && !s.pocket.Droppable(key) {
		return true
	}
	return false
}

func (g *gate) BudgetOK() bool {
	s := (*Session)(g)
	if s.cfg.Variant != game.VariantSixPointer {
		return true
	}
	return s.budget.Remaining(s.cfg.LocalColor) > 0
}

// SubmitMove gates and emits a board move intent. The source square must
// not hold a frozen piece and it must be the local player's turn.
func (s *Session) SubmitMove(from, to game.Square, promotion game.PieceKind) error {
	if _, over := s.classify.Final(); over {
		return intent.ErrSessionOver
	}
	msg := protocol.NewMoveMessage(string(from), string(to), string(promotion))
	return s.coord.Submit(msg, string(from), s.clk.Now())
}

// SubmitDrop gates and emits a pocket drop intent. The pocket piece must
// still be droppable.
func (s *Session) SubmitDrop(kind game.PieceKind, destination game.Square, pieceID string) error {
	if _, over := s.classify.Final(); over {
		return intent.ErrSessionOver
	}
	msg := protocol.NewDropMessage(string(kind), string(destination), pieceID)
	return s.coord.Submit(msg, pieceID, s.clk.Now())
}

// RequestMoves asks the service for the legal moves from one square. A
// query, not a move: it bypasses the coordinator and may be sent even
// while a move awaits confirmation.
func (s *Session) RequestMoves(square game.Square) error {
	if _, over := s.classify.Final(); over {
		return intent.ErrSessionOver
	}
	return s.sender.Send(protocol.NewMovesRequestMessage(string(square)))
}

// Resign sends the resign signal. Fire-and-forget; the terminal snapshot
// or end event that follows settles the session.
func (s *Session) Resign() error {
	if _, over := s.classify.Final(); over {
		return intent.ErrSessionOver
	}
	return s.sender.Send(protocol.NewResignMessage())
}

// OfferDraw sends a draw offer.
func (s *Session) OfferDraw() error {
	if _, over := s.classify.Final(); over {
		return intent.ErrSessionOver
	}
	return s.sender.Send(protocol.NewDrawOfferMessage())
}

// AwaitingFor reports how long the in-flight intent, if any, has been
// waiting for server confirmation. There is no client-side timeout on that
// wait; callers surface long waits as a liveness problem.
func (s *Session) AwaitingFor() (time.Duration, bool) {
	return s.coord.StuckFor(s.clk.Now())
}
