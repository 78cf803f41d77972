package outcome

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

// The game service signals the end of a session in three shapes: a
// terminal flag embedded in a snapshot, a dedicated end event, and — for
// flag falls detected before the server confirms — a timeout raised by the
// local clock reconciler. The classifier folds all of them into a single
// outcome record. Priority across shapes: local timeout, then snapshot
// flag, then end event; the session applies signals in that order within
// one adoption. Only the first terminal signal counts, every later one is
// ignored.

// Classifier normalizes terminal signals into one idempotent outcome.
type Classifier struct {
	mu    sync.Mutex
	final *game.Outcome
}

// New returns a classifier with no outcome yet.
func New() *Classifier {
	return &Classifier{}
}

// Final returns the recorded outcome, if the session has ended.
func (c *Classifier) Final() (game.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return game.Outcome{}, false
	}
	return *c.final, true
}

func (c *Classifier) record(out game.Outcome, source string) *game.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final != nil {
		log.Debug().Str("source", source).Msg("terminal signal after session end ignored")
		return nil
	}
	if out.Message == "" {
		out.Message = displayMessage(out)
	}
	c.final = &out
	log.Info().
		Str("source", source).
		Str("result", string(out.Result)).
		Str("reason", out.Reason).
		Msg("game over")
	return c.final
}

// RecordLocal records an outcome produced locally, such as move-budget
// points resolution. Returns the outcome if this signal ended the session.
func (c *Classifier) RecordLocal(out game.Outcome, source string) *game.Outcome {
	return c.record(out, source)
}

// OnLocalTimeout records a timeout detected by the clock reconciler.
// Returns the outcome if this signal ended the session, nil otherwise.
func (c *Classifier) OnLocalTimeout(flagged game.Color) *game.Outcome {
	winner := flagged.Opponent()
	return c.record(game.Outcome{
		Result: game.ResultTimeout,
		Winner: game.WinnerOrNil(winner),
		Reason: fmt.Sprintf("%s ran out of time", flagged),
	}, "local-timeout")
}

// OnSnapshot records the terminal flag embedded in a snapshot, if any.
func (c *Classifier) OnSnapshot(s *game.Snapshot) *game.Outcome {
	if s.Terminal == nil {
		return nil
	}
	t := s.Terminal
	out := game.Outcome{
		Result:  parseResult(t.Result, t.Reason),
		Reason:  firstNonEmpty(t.Reason, t.Result),
		Message: t.Message,
	}
	out.Winner = resolveWinner(t.Winner, t.WinnerSide, out.Result, s.ActiveColor)
	return c.record(out, "snapshot")
}

// OnEndEvent records a dedicated end event. sideToMove is the active color
// of the last known snapshot, used to infer a winner from a checkmate
// payload that names neither side.
func (c *Classifier) OnEndEvent(p *protocol.GameEndPayload, sideToMove game.Color) *game.Outcome {
	out := game.Outcome{
		Result:   parseResult(p.Result, firstNonEmpty(p.EndReason, p.Reason)),
		Reason:   firstNonEmpty(p.EndReason, p.Reason, p.Result),
		Message:  p.Message,
		LastMove: p.Move,
	}
	if mover := protocol.ParseColor(p.Mover); mover.Valid() {
		out.LastMover = mover
	}
	if p.WhitePoints != nil && p.BlackPoints != nil {
		out.Points = &game.PointsPair{White: *p.WhitePoints, Black: *p.BlackPoints}
	}

	winner := resolveWinner(protocol.ParseColor(p.Winner), protocol.ParseColor(p.WinnerColor), out.Result, sideToMove)
	if winner == nil {
		if loser := protocol.ParseColor(p.Loser); loser.Valid() {
			winner = game.WinnerOrNil(loser.Opponent())
		}
	}
	out.Winner = winner
	return c.record(out, "end-event")
}

// resolveWinner applies the winner resolution order: the literal winner
// field, then the alias color field, then — for checkmates — the side to
// move is the side that was mated, so its opponent won. Draws and unknown
// results resolve to no winner.
func resolveWinner(literal, alias game.Color, result game.Result, sideToMove game.Color) *game.Color {
	if literal.Valid() {
		return game.WinnerOrNil(literal)
	}
	if alias.Valid() {
		return game.WinnerOrNil(alias)
	}
	if result == game.ResultCheckmate && sideToMove.Valid() {
		return game.WinnerOrNil(sideToMove.Opponent())
	}
	return nil
}

func parseResult(result, reason string) game.Result {
	for _, s := range []string{result, reason} {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "checkmate", "mate":
			return game.ResultCheckmate
		case "timeout", "time", "flag", "flagged":
			return game.ResultTimeout
		case "points", "points_win", "on_points":
			return game.ResultPoints
		case "draw", "stalemate", "1/2-1/2":
			return game.ResultDraw
		case "resignation", "resign", "resigned":
			return game.ResultResignation
		}
	}
	return game.ResultUnknown
}

func displayMessage(out game.Outcome) string {
	switch {
	case out.Result == game.ResultDraw:
		return "Game drawn"
	case out.Winner != nil:
		return fmt.Sprintf("%s wins by %s", titleColor(*out.Winner), out.Result)
	default:
		return "Game over"
	}
}

func titleColor(c game.Color) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
