package session

import (
	"sort"
	"time"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/intent"
)

// DecayView is one decay timer or frozen square in a state view.
type DecayView struct {
	Square      game.Square `json:"square"`
	Owner       game.Color  `json:"owner"`
	RemainingMS int64       `json:"remaining_ms"`
	Frozen      bool        `json:"frozen"`
}

// PocketView is one pocket piece in a state view.
type PocketView struct {
	ID          string         `json:"id"`
	Kind        game.PieceKind `json:"kind"`
	RemainingMS int64          `json:"remaining_ms,omitempty"`
	Droppable   bool           `json:"droppable"`
}

// View is the read model the UI layer polls every tick. It is a copy;
// mutating it has no effect on the engine.
type View struct {
	SessionID   string          `json:"session_id"`
	Variant     game.Variant    `json:"variant"`
	LocalColor  game.Color      `json:"local_color"`
	ActiveColor game.Color      `json:"active_color"`
	Clocks      game.ClockPair  `json:"clocks"`
	MoveCount   int             `json:"move_count"`
	FirstMove   bool            `json:"first_move"`
	Awaiting    bool            `json:"awaiting_confirmation"`
	Decay       []DecayView     `json:"decay,omitempty"`
	Pockets     map[game.Color][]PocketView `json:"pockets,omitempty"`
	Budget      *game.BudgetState `json:"budget,omitempty"`
	Outcome     *game.Outcome   `json:"outcome,omitempty"`
}

// DerivedState assembles the current view under the session mutex.
func (s *Session) DerivedState() View {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:  s.id.String(),
		Variant:    s.cfg.Variant,
		LocalColor: s.cfg.LocalColor,
		Clocks:     s.derived,
	}
	if s.snap != nil {
		v.ActiveColor = s.snap.ActiveColor
		v.MoveCount = s.snap.MoveCount
		v.FirstMove = s.snap.FirstMove
		// Polls land between ticks; predict at read time instead of serving
		// the last tick's values. Once the session is over the clocks hold
		// where they ended.
		if _, over := s.classify.Final(); !over {
			v.Clocks = s.clocks.Predict(now)
		}
	}
	v.Awaiting = s.coord.Phase() == intent.PhaseAwaiting

	if s.decay != nil {
		v.Decay = s.decayView(now)
	}
	if s.pocket != nil && s.snap != nil {
		v.Pockets = s.pocketView(now)
	}
	if s.cfg.Variant == game.VariantSixPointer {
		b := s.budget.State()
		v.Budget = &b
	}
	if out, over := s.classify.Final(); over {
		v.Outcome = &out
	}
	return v
}

func (s *Session) decayView(now time.Time) []DecayView {
	eng := s.decay.Engine()
	var views []DecayView
	for key, t := range eng.Live() {
		views = append(views, DecayView{
			Square:      game.Square(key),
			Owner:       t.Owner,
			RemainingMS: t.Remaining(now).Milliseconds(),
		})
	}
	for key, owner := range eng.Frozen() {
		views = append(views, DecayView{Square: game.Square(key), Owner: owner, Frozen: true})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Square < views[j].Square })
	return views
}

func (s *Session) pocketView(now time.Time) map[game.Color][]PocketView {
	out := make(map[game.Color][]PocketView, len(s.snap.Pockets))
	for color, pieces := range s.snap.Pockets {
		views := make([]PocketView, 0, len(pieces))
		for _, piece := range pieces {
			pv := PocketView{
				ID:        piece.ID,
				Kind:      piece.Kind,
				Droppable: !piece.Unusable && s.pocket.Droppable(piece.ID),
			}
			if rem, ok := s.pocket.Remaining(piece.ID, now); ok {
				pv.RemainingMS = rem.Milliseconds()
			}
			views = append(views, pv)
		}
		out[color] = views
	}
	return out
}
