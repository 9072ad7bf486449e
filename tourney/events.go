package tourney

import (
	"context"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"
)

// Event is a single qualifying action reported by the game, e.g. a player breaking a STONE block.
type Event struct {
	PlayerID  string    `json:"player_id"`
	Objective Objective `json:"objective"`
	// Location identifies the block position for MINE_BLOCK events. Optional.
	Location string `json:"location,omitempty"`
}

// EventBridge turns game events into progress for every running tournament sharing the event's objective.
// Blocks placed by players do not count when broken again until the placed set is reset.
type EventBridge struct {
	logger   runtime.Logger
	catalog  Catalog
	progress ProgressStore
	clock    clockwork.Clock

	mu     sync.Mutex
	placed map[string]struct{}
}

func NewEventBridge(logger runtime.Logger, catalog Catalog, progress ProgressStore, clock clockwork.Clock) *EventBridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventBridge{
		logger:   logger,
		catalog:  catalog,
		progress: progress,
		clock:    clock,
		placed:   make(map[string]struct{}),
	}
}

// Handle applies an event and returns the names of the tournaments whose progress changed.
func (b *EventBridge) Handle(ctx context.Context, event Event) ([]string, error) {
	if event.PlayerID == "" || event.Objective.Target == "" {
		return nil, ErrBadInput
	}
	if event.Objective.Type == ObjectiveMineBlock && event.Location != "" && b.isPlaced(event.Location) {
		return nil, nil
	}

	now := b.clock.Now()
	updated := make([]string, 0, 1)
	for _, tournament := range b.catalog.FindByObjective(event.Objective.Type, event.Objective.Target) {
		if tournament.Ended(now) {
			continue
		}
		if _, err := b.progress.Increment(event.PlayerID, tournament.Key(), 1); err != nil {
			b.logger.Warn("Failed to record progress for %s in %s: %v", event.PlayerID, tournament.Key(), err)
			continue
		}
		updated = append(updated, tournament.Key())
	}
	return updated, nil
}

// BlockPlaced marks a location as player-built.
func (b *EventBridge) BlockPlaced(location string) {
	if location == "" {
		return
	}
	b.mu.Lock()
	b.placed[location] = struct{}{}
	b.mu.Unlock()
}

// ResetPlacedBlocks forgets every placed location.
func (b *EventBridge) ResetPlacedBlocks() {
	b.mu.Lock()
	b.placed = make(map[string]struct{})
	b.mu.Unlock()
}

func (b *EventBridge) isPlaced(location string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.placed[location]
	return ok
}
