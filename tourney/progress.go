package tourney

import (
	"context"
)

// The ProgressStore counts qualifying events per (player, tournament).
type ProgressStore interface {
	// GetProgress returns 0 for unknown players or tournaments.
	GetProgress(playerID, tournament string) int64

	// Increment atomically adds a positive delta and returns the new count.
	Increment(playerID, tournament string, delta int64) (int64, error)

	// GetAllProgress returns a snapshot of every player with recorded progress in the tournament.
	GetAllProgress(tournament string) map[string]int64

	// ClearTournament drops every record for the tournament and any player left with no progress.
	ClearTournament(tournament string)

	Load(ctx context.Context) error

	// Persist writes the full store and returns once the write completed.
	Persist(ctx context.Context) error

	// PersistAsync schedules a background persist. Calls made while one is running are coalesced into a single rerun.
	PersistAsync()

	// Close waits for background persists to finish. PersistAsync is a no-op afterwards.
	Close()
}
