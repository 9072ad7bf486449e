package tourney

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRemovePurgesProgressAndRewards(t *testing.T) {
	ctx := context.Background()
	engine, _, _, _ := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 2})
	require.NoError(t, engine.Ledger.Issue(ctx, PlayerBeneficiary("b"), "weekly_mining", testReward(5, 0)))

	removed, err := engine.Remove(ctx, "Weekly Mining")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, engine.Catalog.ListNames())
	assert.Zero(t, engine.Progress.GetProgress("a", "weekly_mining"))
	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("b")))

	removed, err = engine.Remove(ctx, "weekly_mining")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEngineCreateValidation(t *testing.T) {
	ctx := context.Background()
	engine, _, _, _ := testEngine(t, nil)

	_, err := engine.Create(ctx, nil)
	assert.ErrorIs(t, err, ErrPayloadEmpty)
	_, err = engine.Create(ctx, &CreateRequest{Name: "x", Objective: stoneObjective})
	assert.ErrorIs(t, err, ErrBadInput)
	_, err = engine.Create(ctx, &CreateRequest{Name: "x", Duration: "every tuesday", Objective: stoneObjective})
	assert.ErrorIs(t, err, ErrBadInput)
	_, err = engine.Create(ctx, &CreateRequest{Name: "x", Duration: "daily", Objective: stoneObjective, Target: "guild"})
	assert.ErrorIs(t, err, ErrBadInput)

	end := testNow.Add(3 * time.Hour)
	tournament, err := engine.Create(ctx, &CreateRequest{Name: "Night Shift", EndTime: &end, Objective: zombieObjective, Target: "province"})
	require.NoError(t, err)
	assert.Equal(t, end, tournament.EndTime)
	assert.Equal(t, TargetProvince, tournament.TargetMode)
}

func TestEngineShutdownAndReload(t *testing.T) {
	ctx := context.Background()
	engine, store, clock, _ := testEngine(t, nil)
	require.NoError(t, engine.Start(ctx))
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	_, err := engine.Progress.Increment("a", "weekly_mining", 3)
	require.NoError(t, err)
	require.NoError(t, engine.Ledger.Issue(ctx, PlayerBeneficiary("b"), "old_cup", testReward(9, 0)))
	require.NoError(t, engine.Shutdown(ctx))

	reloaded := NewEngine(&testLoggerImpl{t}, EngineDeps{Store: store, Clock: clock}, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"weekly_mining"}, reloaded.Catalog.ListNames())
	assert.Equal(t, int64(3), reloaded.Progress.GetProgress("a", "weekly_mining"))
	assert.Contains(t, reloaded.Ledger.ListFor(PlayerBeneficiary("b")), "old_cup")
}

func TestEngineLoadMovesCorruptDocumentAside(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	store.SetRaw(rewardsDocument, []byte("{broken"))

	reloaded := NewEngine(&testLoggerImpl{t}, EngineDeps{Store: store, Clock: newTestClock()}, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"weekly_mining"}, reloaded.Catalog.ListNames())

	kept, ok := store.Raw("rewards.corrupt")
	require.True(t, ok)
	assert.Equal(t, "{broken", string(kept))
	_, ok = store.Raw(rewardsDocument)
	assert.False(t, ok)

	// The ledger starts empty and saves normally again.
	require.NoError(t, reloaded.Ledger.Issue(ctx, PlayerBeneficiary("a"), "weekly_mining", testReward(1, 0)))
	_, ok = store.Raw(rewardsDocument)
	assert.True(t, ok)
}

// saveOnlyStore hides the quarantine support of the store it wraps.
type saveOnlyStore struct {
	DocumentStore
}

func TestEngineLoadFailsOnCorruptDocumentItCannotMove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	store.SetRaw(progressDocument, []byte("[1,2"))

	engine := NewEngine(&testLoggerImpl{t}, EngineDeps{Store: saveOnlyStore{store}, Clock: newTestClock()}, nil)
	assert.ErrorIs(t, engine.Load(ctx), ErrDocumentCorrupt)
	_, ok := store.Raw(progressDocument)
	assert.True(t, ok)
}
