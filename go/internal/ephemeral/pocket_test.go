package ephemeral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwizzz/chess-sub000/go/internal/game"
)

func pocketPieces(ids ...string) []game.PocketPiece {
	pieces := make([]game.PocketPiece, len(ids))
	for i, id := range ids {
		pieces[i] = game.PocketPiece{ID: id, Kind: game.Knight}
	}
	return pieces
}

func TestPocketOnlyFrontPieceArmed(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	pockets := map[game.Color][]game.PocketPiece{
		game.White: pocketPieces("w1", "w2", "w3"),
	}
	p.Sync(pockets, game.White, now)

	rem, ok := p.Remaining("w1", now)
	require.True(t, ok)
	assert.Equal(t, PocketBase, rem)

	_, ok = p.Remaining("w2", now)
	assert.False(t, ok, "only the front piece holds a live timer")
	_, ok = p.Remaining("w3", now)
	assert.False(t, ok)
}

func TestPocketOpponentNotArmed(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	pockets := map[game.Color][]game.PocketPiece{
		game.White: pocketPieces("w1"),
		game.Black: pocketPieces("b1"),
	}
	p.Sync(pockets, game.White, now)

	_, ok := p.Remaining("b1", now)
	assert.False(t, ok, "the waiting side's pocket stays unarmed")
}

func TestPocketExpiryMakesNonDroppable(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	pockets := map[game.Color][]game.PocketPiece{game.White: pocketPieces("w1", "w2")}
	p.Sync(pockets, game.White, now)

	expired := p.ExpireDue(now.Add(PocketBase))
	assert.Equal(t, []string{"w1"}, expired)
	assert.False(t, p.Droppable("w1"))
	assert.True(t, p.Droppable("w2"))

	// The successor does not arm mid-turn...
	_, ok := p.Remaining("w2", now)
	assert.False(t, ok)

	// ...only once white is to move again.
	p.Sync(pockets, game.Black, now.Add(11*time.Second))
	_, ok = p.Remaining("w2", now)
	assert.False(t, ok)

	armTime := now.Add(20 * time.Second)
	p.Sync(pockets, game.White, armTime)
	rem, ok := p.Remaining("w2", armTime)
	require.True(t, ok)
	assert.Equal(t, PocketBase, rem)
}

func TestPocketDroppedPieceCleanedUp(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	p.Sync(map[game.Color][]game.PocketPiece{game.White: pocketPieces("w1", "w2")}, game.White, now)

	// w1 was dropped: the next snapshot no longer lists it.
	p.Sync(map[game.Color][]game.PocketPiece{game.White: pocketPieces("w2")}, game.White, now.Add(time.Second))

	_, ok := p.Remaining("w1", now)
	assert.False(t, ok)
	rem, ok := p.Remaining("w2", now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, PocketBase, rem)
}

func TestPocketServerDeadlineWins(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	deadline := now.Add(3 * time.Second)
	p := NewPocketTracker(PocketBase)

	pieces := []game.PocketPiece{{ID: "w1", Kind: game.Rook, ExpiresAt: deadline}}
	p.Sync(map[game.Color][]game.PocketPiece{game.White: pieces}, game.White, now)

	rem, ok := p.Remaining("w1", now)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, rem, "authoritative deadline replaces the local prediction")
}

func TestPocketServerUnusableFlagHeals(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	p.Sync(map[game.Color][]game.PocketPiece{game.White: pocketPieces("w1")}, game.White, now)
	require.True(t, p.Droppable("w1"))

	pieces := []game.PocketPiece{{ID: "w1", Kind: game.Knight, Unusable: true}}
	p.Sync(map[game.Color][]game.PocketPiece{game.White: pieces}, game.White, now.Add(time.Second))

	assert.False(t, p.Droppable("w1"))
	_, ok := p.Remaining("w1", now)
	assert.False(t, ok)
}

func TestPocketSyncIdempotent(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPocketTracker(PocketBase)

	pockets := map[game.Color][]game.PocketPiece{game.White: pocketPieces("w1")}
	p.Sync(pockets, game.White, now)

	// Duplicate delivery a little later must not reset the running timer.
	p.Sync(pockets, game.White, now.Add(4*time.Second))
	rem, ok := p.Remaining("w1", now.Add(4*time.Second))
	require.True(t, ok)
	assert.Equal(t, PocketBase-4*time.Second, rem)
}
