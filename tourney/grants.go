package tourney

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// The RewardGranter applies reward effects to a player. The engine calls it during claims but does not own
// inventories or balances.
type RewardGranter interface {
	// GrantItems returns the items that did not fit.
	GrantItems(ctx context.Context, playerID string, items []ItemPayload) ([]ItemPayload, error)

	GrantCurrency(ctx context.Context, playerID string, amount int64) error

	GrantBonusLevels(ctx context.Context, playerID string, levels int) error
}

// LogGranter only records what would have been granted. The daemon uses it when no game host is attached.
type LogGranter struct {
	logger runtime.Logger
}

func NewLogGranter(logger runtime.Logger) *LogGranter {
	return &LogGranter{logger: logger}
}

func (g *LogGranter) GrantItems(ctx context.Context, playerID string, items []ItemPayload) ([]ItemPayload, error) {
	g.logger.WithField("player", playerID).Info("Granting %d items", len(items))
	return nil, nil
}

func (g *LogGranter) GrantCurrency(ctx context.Context, playerID string, amount int64) error {
	g.logger.WithField("player", playerID).Info("Granting %d currency", amount)
	return nil
}

func (g *LogGranter) GrantBonusLevels(ctx context.Context, playerID string, levels int) error {
	g.logger.WithField("player", playerID).Info("Granting %d levels", levels)
	return nil
}
