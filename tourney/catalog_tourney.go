package tourney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
)

type TourneyCatalog struct {
	logger runtime.Logger
	store  DocumentStore

	mu          sync.RWMutex
	tournaments map[string]*Tournament

	// Serializes snapshot and save so the newest state is always written last.
	saveMu sync.Mutex
}

func NewCatalog(logger runtime.Logger, store DocumentStore) *TourneyCatalog {
	return &TourneyCatalog{
		logger:      logger,
		store:       store,
		tournaments: make(map[string]*Tournament),
	}
}

func (c *TourneyCatalog) Load(ctx context.Context) error {
	doc, err := c.store.Load(ctx, tournamentsDocument)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			doc = Document{}
		} else {
			return err
		}
	}

	loaded := make(map[string]*Tournament, len(doc))
	for key, raw := range doc {
		tournament := &Tournament{}
		if err := json.Unmarshal(raw, tournament); err != nil {
			c.logger.Warn("Skipping malformed tournament %q: %v", key, err)
			continue
		}
		if tournament.Name == "" {
			tournament.Name = key
		}
		if tournament.TargetMode == "" {
			tournament.TargetMode = TargetPlayer
		}
		loaded[NormalizeName(key)] = tournament
	}

	c.mu.Lock()
	c.tournaments = loaded
	c.mu.Unlock()
	c.logger.Info("Loaded %d tournaments", len(loaded))
	return nil
}

func (c *TourneyCatalog) Save(ctx context.Context, tournament *Tournament) error {
	if tournament == nil {
		return ErrBadInput
	}
	key := tournament.Key()
	if key == "" {
		return ErrTournamentName
	}

	c.mu.Lock()
	c.tournaments[key] = tournament
	c.mu.Unlock()
	return c.persist(ctx)
}

func (c *TourneyCatalog) Remove(ctx context.Context, name string) error {
	key := NormalizeName(name)

	c.mu.Lock()
	if _, ok := c.tournaments[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.tournaments, key)
	c.mu.Unlock()
	return c.persist(ctx)
}

func (c *TourneyCatalog) Get(name string) (*Tournament, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tournament, ok := c.tournaments[NormalizeName(name)]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return tournament, nil
}

func (c *TourneyCatalog) List() []*Tournament {
	c.mu.RLock()
	list := make([]*Tournament, 0, len(c.tournaments))
	for _, tournament := range c.tournaments {
		list = append(list, tournament)
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key() < list[j].Key()
	})
	return list
}

func (c *TourneyCatalog) ListNames() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.tournaments))
	for key := range c.tournaments {
		names = append(names, key)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (c *TourneyCatalog) FindByObjective(objectiveType ObjectiveType, target string) []*Tournament {
	matches := make([]*Tournament, 0, 1)
	for _, tournament := range c.List() {
		if tournament.Objective.Matches(objectiveType, target) {
			matches = append(matches, tournament)
		}
	}
	return matches
}

func (c *TourneyCatalog) snapshot() (Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc := make(Document, len(c.tournaments))
	for key, tournament := range c.tournaments {
		raw, err := json.Marshal(tournament)
		if err != nil {
			c.logger.Error("Failed to marshal tournament %q: %v", key, err)
			return nil, ErrPayloadEncode
		}
		doc[key] = raw
	}
	return doc, nil
}

func (c *TourneyCatalog) persist(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	doc, err := c.snapshot()
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, tournamentsDocument, doc); err != nil {
		c.logger.Error("Failed to persist tournaments: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
