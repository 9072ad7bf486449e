package tourney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/heroiclabs/nakama-common/runtime"
)

const progressShardCount = 64

type progressShard struct {
	sync.Mutex
	players map[string]map[string]int64
}

// TourneyProgress spreads players over fixed shards so increments for unrelated players never contend.
type TourneyProgress struct {
	logger runtime.Logger
	store  DocumentStore
	shards [progressShardCount]*progressShard

	saveMu sync.Mutex

	asyncMu      sync.Mutex
	asyncRunning bool
	asyncPending bool
	closed       bool
	wg           sync.WaitGroup
}

func NewProgressStore(logger runtime.Logger, store DocumentStore) *TourneyProgress {
	p := &TourneyProgress{logger: logger, store: store}
	for i := range p.shards {
		p.shards[i] = &progressShard{players: make(map[string]map[string]int64)}
	}
	return p
}

func (p *TourneyProgress) shard(playerID string) *progressShard {
	return p.shards[xxhash.Sum64String(playerID)%progressShardCount]
}

func (p *TourneyProgress) GetProgress(playerID, tournament string) int64 {
	s := p.shard(playerID)
	s.Lock()
	defer s.Unlock()
	return s.players[playerID][NormalizeName(tournament)]
}

func (p *TourneyProgress) Increment(playerID, tournament string, delta int64) (int64, error) {
	if playerID == "" {
		return 0, fmt.Errorf("%w: player id is empty", ErrBadInput)
	}
	key := NormalizeName(tournament)
	if key == "" {
		return 0, ErrTournamentName
	}
	if delta <= 0 {
		return 0, fmt.Errorf("%w: delta must be positive", ErrBadInput)
	}

	s := p.shard(playerID)
	s.Lock()
	defer s.Unlock()
	progress, ok := s.players[playerID]
	if !ok {
		progress = make(map[string]int64, 1)
		s.players[playerID] = progress
	}
	progress[key] += delta
	return progress[key], nil
}

func (p *TourneyProgress) GetAllProgress(tournament string) map[string]int64 {
	key := NormalizeName(tournament)
	result := make(map[string]int64)
	for _, s := range p.shards {
		s.Lock()
		for playerID, progress := range s.players {
			if count, ok := progress[key]; ok && count > 0 {
				result[playerID] = count
			}
		}
		s.Unlock()
	}
	return result
}

func (p *TourneyProgress) ClearTournament(tournament string) {
	key := NormalizeName(tournament)
	for _, s := range p.shards {
		s.Lock()
		for playerID, progress := range s.players {
			delete(progress, key)
			if len(progress) == 0 {
				delete(s.players, playerID)
			}
		}
		s.Unlock()
	}
}

func (p *TourneyProgress) Load(ctx context.Context) error {
	doc, err := p.store.Load(ctx, progressDocument)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}

	loaded := 0
	for playerID, raw := range doc {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			p.logger.Warn("Skipping malformed progress for player %q: %v", playerID, err)
			continue
		}
		progress := make(map[string]int64, len(entries))
		for tournament, rawCount := range entries {
			var count int64
			if err := json.Unmarshal(rawCount, &count); err != nil || count < 0 {
				p.logger.Warn("Skipping malformed progress %q for player %q", tournament, playerID)
				continue
			}
			if count > 0 {
				progress[NormalizeName(tournament)] = count
			}
		}
		if len(progress) == 0 {
			continue
		}

		s := p.shard(playerID)
		s.Lock()
		s.players[playerID] = progress
		s.Unlock()
		loaded++
	}
	p.logger.Info("Loaded progress for %d players", loaded)
	return nil
}

func (p *TourneyProgress) snapshot() (Document, error) {
	doc := make(Document)
	for _, s := range p.shards {
		s.Lock()
		for playerID, progress := range s.players {
			raw, err := json.Marshal(progress)
			if err != nil {
				s.Unlock()
				return nil, err
			}
			doc[playerID] = raw
		}
		s.Unlock()
	}
	return doc, nil
}

func (p *TourneyProgress) Persist(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	doc, err := p.snapshot()
	if err != nil {
		p.logger.Error("Failed to marshal progress: %v", err)
		return ErrPayloadEncode
	}
	if err := p.store.Save(ctx, progressDocument, doc); err != nil {
		p.logger.Error("Failed to persist progress: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (p *TourneyProgress) PersistAsync() {
	p.asyncMu.Lock()
	defer p.asyncMu.Unlock()
	if p.closed {
		return
	}
	if p.asyncRunning {
		p.asyncPending = true
		return
	}
	p.asyncRunning = true
	p.wg.Add(1)
	go p.persistLoop()
}

func (p *TourneyProgress) persistLoop() {
	defer p.wg.Done()
	for {
		// Errors are already logged by Persist; the next run retries with fresh state.
		_ = p.Persist(context.Background())

		p.asyncMu.Lock()
		if !p.asyncPending {
			p.asyncRunning = false
			p.asyncMu.Unlock()
			return
		}
		p.asyncPending = false
		p.asyncMu.Unlock()
	}
}

func (p *TourneyProgress) Close() {
	p.asyncMu.Lock()
	p.closed = true
	p.asyncMu.Unlock()
	p.wg.Wait()
}
