package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/intent"
	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

type fakeSender struct {
	sent []protocol.ClientMessage
}

func (f *fakeSender) Send(msg protocol.ClientMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

type recordingListener struct {
	outcomes []game.Outcome
	notices  []string
	moves    [][]string
}

func (l *recordingListener) OnOutcome(out game.Outcome) { l.outcomes = append(l.outcomes, out) }
func (l *recordingListener) OnNotice(level, code, message string) {
	l.notices = append(l.notices, level+":"+code)
}
func (l *recordingListener) OnPossibleMoves(square string, moves []string) {
	l.moves = append(l.moves, moves)
}

func mkEvent(t *testing.T, typ protocol.EventType, payload interface{}) protocol.ServerEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.ServerEvent{Type: typ, Data: data}
}

func f(v float64) *float64 { return &v }

func liveState(whiteMS, blackMS float64, turn string, moveCount int) protocol.RawState {
	return protocol.RawState{
		Turn:      turn,
		Timers:    &protocol.RawTimers{White: f(whiteMS), Black: f(blackMS)},
		MoveCount: &moveCount,
	}
}

func newTestSession(t *testing.T, variant game.Variant, local game.Color) (*Session, *fakeSender, *recordingListener, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	sender := &fakeSender{}
	listener := &recordingListener{}
	s := New(DefaultConfig(variant, local), sender, listener, clk)
	t.Cleanup(s.Close)
	return s, sender, listener, clk
}

func TestTimeoutScenario(t *testing.T) {
	s, _, listener, clk := newTestSession(t, game.VariantStandard, game.White)

	// White to move with 5s each, clocks already running.
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(5000, 5000, "white", 4))))

	clk.Advance(6 * time.Second)
	s.tick(clk.Now())

	view := s.DerivedState()
	assert.Equal(t, int64(0), view.Clocks.White)
	require.NotNil(t, view.Outcome)
	assert.Equal(t, game.ResultTimeout, view.Outcome.Result)
	require.NotNil(t, view.Outcome.Winner)
	assert.Equal(t, game.Black, *view.Outcome.Winner)

	// Further ticks raise nothing new.
	clk.Advance(time.Second)
	s.tick(clk.Now())
	assert.Len(t, listener.outcomes, 1)
}

func TestFirstMoveClocksFrozen(t *testing.T) {
	s, _, _, clk := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 0))))

	clk.Advance(time.Minute)
	s.tick(clk.Now())

	view := s.DerivedState()
	assert.True(t, view.FirstMove)
	assert.Equal(t, game.ClockPair{White: 60000, Black: 60000}, view.Clocks)
	assert.Nil(t, view.Outcome)
}

func TestCoordinatorLifecycle(t *testing.T) {
	s, sender, _, _ := newTestSession(t, game.VariantStandard, game.White)

	// No snapshot yet: not our turn.
	assert.ErrorIs(t, s.SubmitMove("e2", "e4", ""), intent.ErrNotYourTurn)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))
	require.NoError(t, s.SubmitMove("e2", "e4", ""))
	assert.Len(t, sender.sent, 1)

	// Locked until the next snapshot confirms.
	assert.ErrorIs(t, s.SubmitMove("d2", "d4", ""), intent.ErrAwaitingConfirmation)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(59000, 60000, "black", 5))))
	assert.False(t, s.DerivedState().Awaiting)

	// Now it's the opponent's turn.
	assert.ErrorIs(t, s.SubmitMove("d2", "d4", ""), intent.ErrNotYourTurn)
}

func TestErrorEventUnlocksCoordinator(t *testing.T) {
	s, sender, listener, _ := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))
	require.NoError(t, s.SubmitMove("e2", "e5", "")) // illegal, server will reject

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeError, protocol.NoticePayload{Code: "illegal_move", Message: "illegal move"})))

	assert.Equal(t, []string{"error:illegal_move"}, listener.notices)

	// Eligibility restored: the retry goes out.
	require.NoError(t, s.SubmitMove("e2", "e4", ""))
	assert.Len(t, sender.sent, 2)
}

func queenMoveApplied(moveCount int) protocol.MoveAppliedPayload {
	state := liveState(60000, 60000, "black", moveCount)
	state.Board = &protocol.RawBoard{Pieces: map[string]protocol.RawPiece{
		"h5": {Color: "white", Piece: "queen"},
		"e8": {Color: "black", Piece: "king"},
		"e1": {Color: "white", Piece: "king"},
	}}
	return protocol.MoveAppliedPayload{
		State: state,
		Move:  &protocol.RawMove{From: "d1", To: "h5", Piece: "queen", Color: "white"},
	}
}

func TestDuplicateSnapshotDoesNotDoubleApplyMove(t *testing.T) {
	s, _, _, _ := newTestSession(t, game.VariantDecay, game.White)

	armed := queenMoveApplied(9)
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeMoveApplied, armed)))

	before := s.decay.Engine().Live()["h5"]

	// The transport may re-deliver; adoption is keyed on move count.
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeMoveApplied, armed)))

	after := s.decay.Engine().Live()["h5"]
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt, "duplicate delivery must not extend the timer")
}

func TestDecayCapturedPieceCleanedUp(t *testing.T) {
	s, _, _, _ := newTestSession(t, game.VariantDecay, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeMoveApplied, queenMoveApplied(9))))
	_, ok := s.decay.Engine().Lookup("h5")
	require.True(t, ok)

	// Next snapshot: the queen is gone from the board. No capture event
	// ever arrives; occupancy reconciliation does the cleanup.
	captured := liveState(60000, 59000, "white", 10)
	captured.Board = &protocol.RawBoard{Pieces: map[string]protocol.RawPiece{
		"e8": {Color: "black", Piece: "king"},
		"e1": {Color: "white", Piece: "king"},
	}}
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, captured)))

	_, ok = s.decay.Engine().Lookup("h5")
	assert.False(t, ok)
	assert.Empty(t, s.decay.Engine().Frozen())
}

func TestDecayFrozenPieceCannotMove(t *testing.T) {
	s, _, _, clk := newTestSession(t, game.VariantDecay, game.White)

	moved := queenMoveApplied(10)
	moved.State.Turn = "white"
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeMoveApplied, moved)))

	clk.Advance(13 * time.Second) // past the major-piece fuse
	s.tick(clk.Now())

	assert.ErrorIs(t, s.SubmitMove("h5", "f7", ""), intent.ErrSourceFrozen)
}

func TestSixPointerBudgetGate(t *testing.T) {
	s, _, listener, _ := newTestSession(t, game.VariantSixPointer, game.White)

	six, four, seven := 6, 4, 7
	state := liveState(60000, 60000, "white", 11)
	state.SixPointer = &protocol.RawBudget{
		White:    protocol.RawSideBudget{MovesPlayed: &six, Points: &four},
		Black:    protocol.RawSideBudget{MovesPlayed: &six, Points: &seven},
		MaxMoves: &six,
	}
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, state)))

	// Both sides exhausted resolves on points at adoption.
	require.Len(t, listener.outcomes, 1)
	out := listener.outcomes[0]
	assert.Equal(t, game.ResultPoints, out.Result)
	require.NotNil(t, out.Winner)
	assert.Equal(t, game.Black, *out.Winner)

	assert.ErrorIs(t, s.SubmitMove("e2", "e4", ""), intent.ErrSessionOver)
}

func TestClockUpdateEvent(t *testing.T) {
	s, _, _, _ := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeClockUpdate, protocol.ClockUpdatePayload{
		Timers: &protocol.RawTimers{White: f(31000), Black: f(42000)},
	})))

	view := s.DerivedState()
	assert.Equal(t, game.ClockPair{White: 31000, Black: 42000}, view.Clocks)
}

func TestClockUpdateUsesServerInstant(t *testing.T) {
	s, _, _, clk := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))

	// The update left the server two seconds ago; the active clock has
	// been running since then, not since we received it.
	sentAt := clk.Now().Add(-2 * time.Second)
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeClockUpdate, protocol.ClockUpdatePayload{
		Timers:    &protocol.RawTimers{White: f(30000), Black: f(30000)},
		Turn:      "white",
		UpdatedAt: f(float64(sentAt.UnixMilli())),
	})))

	s.tick(clk.Now())
	assert.Equal(t, int64(28000), s.DerivedState().Clocks.White)
	assert.Equal(t, int64(30000), s.DerivedState().Clocks.Black)
}

func TestClockUpdateBeforeSnapshotIgnored(t *testing.T) {
	s, _, _, _ := newTestSession(t, game.VariantStandard, game.White)
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeClockUpdate, protocol.ClockUpdatePayload{
		Timers: &protocol.RawTimers{White: f(1000), Black: f(1000)},
	})))
	assert.Equal(t, game.ClockPair{}, s.DerivedState().Clocks)
}

func TestDerivedStateFreshBetweenTicks(t *testing.T) {
	s, _, _, clk := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))

	// No tick has run since the clock advanced; the view must not serve
	// the stale value.
	clk.Advance(1500 * time.Millisecond)
	view := s.DerivedState()
	assert.Equal(t, int64(58500), view.Clocks.White)
	assert.Equal(t, int64(60000), view.Clocks.Black)
}

func TestGameEndEvent(t *testing.T) {
	s, _, listener, _ := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "black", 8))))
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeGameEnded, protocol.GameEndPayload{Result: "checkmate"})))

	require.Len(t, listener.outcomes, 1)
	out := listener.outcomes[0]
	assert.Equal(t, game.ResultCheckmate, out.Result)
	require.NotNil(t, out.Winner)
	assert.Equal(t, game.White, *out.Winner, "black was to move, so black was mated")

	// A late terminal snapshot for the same game changes nothing.
	over := true
	state := liveState(0, 60000, "black", 9)
	state.GameOver = &over
	state.Result = "timeout"
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, state)))
	assert.Len(t, listener.outcomes, 1)
}

func TestPossibleMovesDelivered(t *testing.T) {
	s, sender, listener, _ := newTestSession(t, game.VariantStandard, game.White)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(60000, 60000, "white", 4))))
	require.NoError(t, s.RequestMoves("e2"))
	assert.Len(t, sender.sent, 1)

	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypePossibleMoves, protocol.PossibleMovesPayload{
		Square: "e2", Moves: []string{"e3", "e4"},
	})))
	require.Len(t, listener.moves, 1)
	assert.Equal(t, []string{"e3", "e4"}, listener.moves[0])
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _, _, _ := newTestSession(t, game.VariantStandard, game.White)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Close()
	s.Close() // double teardown is a no-op

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestDisconnectIsFatal(t *testing.T) {
	s, _, listener, _ := newTestSession(t, game.VariantStandard, game.White)
	require.NoError(t, s.HandleEvent(mkEvent(t, protocol.EventTypeFullState, liveState(5000, 5000, "white", 4))))

	s.HandleDisconnect(assert.AnError)
	require.Len(t, listener.notices, 1)

	// No further prediction: Run has to exit, and the session is closed.
	select {
	case <-s.done:
	default:
		t.Fatal("session not closed after disconnect")
	}
}
