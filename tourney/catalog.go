package tourney

import (
	"context"
)

// The Catalog stores tournament definitions keyed by their normalized name.
type Catalog interface {
	// Load replaces the in-memory definitions with the persisted document. Malformed entries are skipped.
	Load(ctx context.Context) error

	// Save upserts a definition by normalized name and persists the catalog. A duplicate name overwrites.
	Save(ctx context.Context, tournament *Tournament) error

	// Remove deletes a definition by name. Removing an unknown name is not an error.
	Remove(ctx context.Context, name string) error

	// Get returns a definition by name, or ErrTournamentNotFound.
	Get(name string) (*Tournament, error)

	// List returns every definition sorted by normalized name.
	List() []*Tournament

	ListNames() []string

	// FindByObjective returns tournaments whose objective matches both type and target exactly.
	FindByObjective(objectiveType ObjectiveType, target string) []*Tournament
}
