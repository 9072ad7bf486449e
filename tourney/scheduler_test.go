package tourney

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createEnded(t *testing.T, engine *Engine, name string, objective Objective, target string) {
	t.Helper()
	_, err := engine.Create(context.Background(), &CreateRequest{
		Name:       name,
		Duration:   "hourly",
		Objective:  objective,
		Target:     target,
		RewardPool: []ItemPayload{ItemPayload(`{"item":"golden_pickaxe"}`)},
		Levels:     3,
	})
	require.NoError(t, err)
}

func TestWeeklyMiningScenario(t *testing.T) {
	ctx := context.Background()
	engine, _, clock, notifier := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "player")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"A": 10, "B": 5})

	assert.Zero(t, engine.Scheduler.RunCycle(ctx), "tournament has not ended yet")
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, engine.Scheduler.RunCycle(ctx))

	a := engine.Ledger.ListFor(PlayerBeneficiary("A"))["weekly_mining"]
	require.NotNil(t, a)
	assert.Equal(t, 0, a.Position)
	assert.Equal(t, int64(10), a.Score)
	assert.Equal(t, 3, a.Levels)
	assert.Equal(t, ObjectiveMineBlock, a.ObjectiveType)
	assert.JSONEq(t, `{"item":"golden_pickaxe"}`, string(a.Items[0]))

	b := engine.Ledger.ListFor(PlayerBeneficiary("B"))["weekly_mining"]
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Position)
	assert.Equal(t, int64(5), b.Score)

	assert.Empty(t, engine.Progress.GetAllProgress("weekly_mining"))
	assert.NotContains(t, engine.Catalog.ListNames(), "weekly_mining")
	assert.Len(t, notifier.byCode(NotificationRewardIssued), 2)

	// A later cycle has nothing left to do.
	assert.Zero(t, engine.Scheduler.RunCycle(ctx))
}

func TestProvinceScenario(t *testing.T) {
	ctx := context.Background()
	engine, _, _, notifier := testEngine(t, map[string][]string{
		"G1": {"A", "B"},
		"G2": {"C"},
	})
	createEnded(t, engine, "province_cup", stoneObjective, "province")
	seedProgress(t, engine.Progress, "province_cup", map[string]int64{"A": 3, "B": 4, "C": 1})

	finalized, err := engine.Finish(ctx, "Province Cup")
	require.NoError(t, err)
	assert.True(t, finalized)

	g1 := engine.Ledger.ListFor(ProvinceBeneficiary("G1"))["province_cup"]
	require.NotNil(t, g1)
	assert.Equal(t, 0, g1.Position)
	assert.Equal(t, int64(7), g1.Score)

	g2 := engine.Ledger.ListFor(ProvinceBeneficiary("G2"))["province_cup"]
	require.NotNil(t, g2)
	assert.Equal(t, 1, g2.Position)
	assert.Equal(t, int64(1), g2.Score)

	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("A")))
	issued := notifier.byCode(NotificationRewardIssued)
	recipients := make([]string, 0, len(issued))
	for _, n := range issued {
		recipients = append(recipients, n.PlayerID)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, recipients)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _, _, _ := testEngine(t, nil)

	finalized, err := engine.Finish(ctx, "never_existed")
	require.NoError(t, err)
	assert.False(t, finalized)

	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"A": 1})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := engine.Finish(ctx, "weekly_mining")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Len(t, engine.Ledger.ListFor(PlayerBeneficiary("A")), 1)
}

func TestFinalizeRewardsTopPositionsAndNotifiesTheRest(t *testing.T) {
	ctx := context.Background()
	engine, _, _, notifier := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	scores := map[string]int64{}
	for i := 1; i <= 8; i++ {
		scores[fmt.Sprintf("p%d", i)] = int64(i)
	}
	seedProgress(t, engine.Progress, "weekly_mining", scores)

	_, err := engine.Finish(ctx, "weekly_mining")
	require.NoError(t, err)

	for i := 3; i <= 8; i++ {
		reward := engine.Ledger.ListFor(PlayerBeneficiary(fmt.Sprintf("p%d", i)))["weekly_mining"]
		require.NotNil(t, reward, "p%d", i)
		assert.Equal(t, 8-i, reward.Position)
	}
	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("p1")))
	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("p2")))

	notPlaced := notifier.byCode(NotificationNotPlaced)
	recipients := make([]string, 0, len(notPlaced))
	for _, n := range notPlaced {
		recipients = append(recipients, n.PlayerID)
	}
	assert.ElementsMatch(t, []string{"p1", "p2"}, recipients)
}

func TestFinalizeWithoutNonPlacingNotifications(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	disabled := false
	engine := NewEngine(&testLoggerImpl{t}, EngineDeps{
		Store:    NewMemoryDocumentStore(),
		Notifier: notifier,
		Clock:    newTestClock(),
	}, &Config{RewardedPositions: 1, NotifyNonPlacing: &disabled})
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 2, "b": 1})

	_, err := engine.Finish(ctx, "weekly_mining")
	require.NoError(t, err)
	assert.Len(t, engine.Ledger.ListFor(PlayerBeneficiary("a")), 1)
	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("b")))
	assert.Empty(t, notifier.byCode(NotificationNotPlaced))
}

func TestCycleDefersProvinceTournamentWhileMembershipNotReady(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	membership := NewPendingMembership()
	engine := NewEngine(&testLoggerImpl{t}, EngineDeps{
		Store:      NewMemoryDocumentStore(),
		Membership: membership,
		Clock:      clock,
	}, &Config{MembershipRetryIntervalMs: 1, MembershipRetryAttempts: 2})

	createEnded(t, engine, "province_cup", stoneObjective, "province")
	createEnded(t, engine, "weekly_mining", stoneObjective, "player")
	seedProgress(t, engine.Progress, "province_cup", map[string]int64{"A": 3})
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"A": 3})
	clock.Advance(2 * time.Hour)

	assert.Equal(t, 1, engine.Scheduler.RunCycle(ctx))
	assert.Equal(t, []string{"province_cup"}, engine.Catalog.ListNames())
	assert.Equal(t, int64(3), engine.Progress.GetProgress("A", "province_cup"))

	membership.Replace(map[string][]string{"G1": {"A"}})
	assert.Equal(t, 1, engine.Scheduler.RunCycle(ctx))
	assert.Empty(t, engine.Catalog.ListNames())
	assert.Len(t, engine.Ledger.ListFor(ProvinceBeneficiary("G1")), 1)
}

func TestFinalizeRunsEffectsThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	var dispatched int32
	dispatcher := func(ctx context.Context, fn func()) {
		atomic.AddInt32(&dispatched, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn()
		}()
		<-done
	}
	engine := NewEngine(&testLoggerImpl{t}, EngineDeps{
		Store:      NewMemoryDocumentStore(),
		Clock:      newTestClock(),
		Dispatcher: dispatcher,
	}, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 1})

	_, err := engine.Finish(ctx, "weekly_mining")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dispatched))
	assert.Len(t, engine.Ledger.ListFor(PlayerBeneficiary("a")), 1)
}

func TestSchedulerStateMachine(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := testEngine(t, nil)
	assert.Equal(t, SchedulerStopped, engine.Scheduler.State())
	assert.ErrorIs(t, engine.Scheduler.Stop(ctx), ErrSchedulerStopped)

	require.NoError(t, engine.Start(ctx))
	assert.Equal(t, SchedulerRunning, engine.Scheduler.State())
	assert.Equal(t, "RUNNING", engine.Scheduler.State().String())
	assert.ErrorIs(t, engine.Start(ctx), ErrSchedulerRunning)

	_, err := engine.Progress.Increment("a", "weekly_mining", 4)
	require.NoError(t, err)
	require.NoError(t, engine.Scheduler.Stop(ctx))
	assert.Equal(t, SchedulerStopped, engine.Scheduler.State())

	// Stop flushes progress synchronously.
	reloaded := NewProgressStore(&testLoggerImpl{t}, store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, int64(4), reloaded.GetProgress("a", "weekly_mining"))

	// A stopped scheduler can be started again.
	require.NoError(t, engine.Start(ctx))
	require.NoError(t, engine.Shutdown(ctx))
	assert.Equal(t, SchedulerStopped, engine.Scheduler.State())
}

func TestSchedulerTimerFinalizesEndedTournaments(t *testing.T) {
	ctx := context.Background()
	engine, _, clock, _ := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 1})
	clock.Advance(2 * time.Hour)

	scheduler := NewScheduler(&testLoggerImpl{t}, SchedulerDeps{
		Catalog:   engine.Catalog,
		Progress:  engine.Progress,
		Ledger:    engine.Ledger,
		Standings: engine.Standings,
		Events:    engine.Events,
		Clock:     clock,
	}, SchedulerConfig{
		CheckInterval:            20 * time.Millisecond,
		AutosaveInterval:         20 * time.Millisecond,
		PlacedBlockResetInterval: 20 * time.Millisecond,
	})
	engine.Events.BlockPlaced("1,64,1")

	require.NoError(t, scheduler.Start(ctx))
	require.Eventually(t, func() bool {
		return len(engine.Catalog.ListNames()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !engine.Events.isPlaced("1,64,1")
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, scheduler.Stop(ctx))

	assert.Len(t, engine.Ledger.ListFor(PlayerBeneficiary("a")), 1)
}

// listedCatalog answers List from a fixed set of definitions, like a cycle racing a redefinition.
type listedCatalog struct {
	Catalog
	listed []*Tournament
}

func (c *listedCatalog) List() []*Tournament {
	return c.listed
}

func TestCycleSkipsTournamentRedefinedWithLaterEnd(t *testing.T) {
	ctx := context.Background()
	engine, _, clock, _ := testEngine(t, nil)
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 1})
	clock.Advance(2 * time.Hour)

	current, err := engine.Catalog.Get("weekly_mining")
	require.NoError(t, err)
	ended := *current
	redefined := *current
	redefined.EndTime = clock.Now().Add(time.Hour)
	require.NoError(t, engine.Catalog.Save(ctx, &redefined))

	scheduler := NewScheduler(&testLoggerImpl{t}, SchedulerDeps{
		Catalog:   &listedCatalog{Catalog: engine.Catalog, listed: []*Tournament{&ended}},
		Progress:  engine.Progress,
		Ledger:    engine.Ledger,
		Standings: engine.Standings,
		Clock:     clock,
	}, SchedulerConfig{})

	assert.Zero(t, scheduler.RunCycle(ctx))
	assert.Equal(t, []string{"weekly_mining"}, engine.Catalog.ListNames())
	assert.Empty(t, engine.Ledger.ListFor(PlayerBeneficiary("a")))
	assert.Equal(t, int64(1), engine.Progress.GetProgress("a", "weekly_mining"))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, scheduler.RunCycle(ctx))
	assert.Len(t, engine.Ledger.ListFor(PlayerBeneficiary("a")), 1)
}

func TestProvinceFinalizeNotifiesPlayersWithoutProvince(t *testing.T) {
	ctx := context.Background()
	engine, _, _, notifier := testEngine(t, map[string][]string{"G1": {"A"}})
	createEnded(t, engine, "province_cup", stoneObjective, "province")
	seedProgress(t, engine.Progress, "province_cup", map[string]int64{"A": 3, "Z": 5})

	finalized, err := engine.Finish(ctx, "province_cup")
	require.NoError(t, err)
	assert.True(t, finalized)
	assert.Len(t, engine.Ledger.ListFor(ProvinceBeneficiary("G1")), 1)

	notPlaced := notifier.byCode(NotificationNotPlaced)
	require.Len(t, notPlaced, 1)
	assert.Equal(t, "Z", notPlaced[0].PlayerID)
	assert.Equal(t, int64(5), notPlaced[0].Notification.Score)
	assert.Equal(t, -1, notPlaced[0].Notification.Position)
}
