package tourney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

var ledgerSections = map[string]BeneficiaryKind{
	"players":   BeneficiaryPlayer,
	"provinces": BeneficiaryProvince,
}

// TourneyLedger keeps pending rewards in memory and saves the whole ledger under its lock,
// so the stored document always matches the order mutations were applied in.
type TourneyLedger struct {
	logger     runtime.Logger
	store      DocumentStore
	notifier   Notifier
	membership MembershipResolver

	mu      sync.Mutex
	rewards map[Beneficiary]map[string]*RewardRecord
}

func NewRewardLedger(logger runtime.Logger, store DocumentStore, notifier Notifier, membership MembershipResolver) *TourneyLedger {
	return &TourneyLedger{
		logger:     logger,
		store:      store,
		notifier:   notifier,
		membership: membership,
		rewards:    make(map[Beneficiary]map[string]*RewardRecord),
	}
}

func (l *TourneyLedger) Load(ctx context.Context) error {
	doc, err := l.store.Load(ctx, rewardsDocument)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}

	loaded := make(map[Beneficiary]map[string]*RewardRecord)
	count := 0
	for section, kind := range ledgerSections {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			l.logger.Warn("Skipping malformed %s rewards: %v", section, err)
			continue
		}
		for id, rawEntry := range entries {
			beneficiary := Beneficiary{Kind: kind, ID: id}
			var byTournament map[string]json.RawMessage
			if err := json.Unmarshal(rawEntry, &byTournament); err != nil {
				l.logger.Warn("Skipping malformed rewards for %s: %v", beneficiary, err)
				continue
			}
			for tournament, rawRecord := range byTournament {
				record := &RewardRecord{}
				if err := json.Unmarshal(rawRecord, record); err != nil {
					l.logger.Warn("Skipping malformed reward %q for %s: %v", tournament, beneficiary, err)
					continue
				}
				key := NormalizeName(tournament)
				record.Beneficiary = beneficiary
				if record.Tournament == "" {
					record.Tournament = key
				}
				if record.ID == "" {
					record.ID = uuid.NewString()
				}
				if loaded[beneficiary] == nil {
					loaded[beneficiary] = make(map[string]*RewardRecord)
				}
				loaded[beneficiary][key] = record
				count++
			}
		}
	}

	l.mu.Lock()
	l.rewards = loaded
	l.mu.Unlock()
	l.logger.Info("Loaded %d pending rewards", count)
	return nil
}

func (l *TourneyLedger) Issue(ctx context.Context, beneficiary Beneficiary, tournament string, reward *RewardRecord) error {
	key := NormalizeName(tournament)
	if key == "" {
		return ErrTournamentName
	}
	if beneficiary.ID == "" || reward == nil {
		return ErrBadInput
	}

	record := reward.clone()
	record.Beneficiary = beneficiary
	record.Tournament = key
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	l.mu.Lock()
	byTournament, ok := l.rewards[beneficiary]
	if !ok {
		byTournament = make(map[string]*RewardRecord)
		l.rewards[beneficiary] = byTournament
	}
	previous, existed := byTournament[key]
	byTournament[key] = record
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	if existed && previous.Score != record.Score {
		notifyBeneficiary(ctx, l.logger, l.notifier, l.membership, beneficiary, Notification{
			Code:       NotificationRewardChanged,
			Tournament: key,
			Position:   record.Position,
			Score:      record.Score,
		})
	}
	return err
}

func (l *TourneyLedger) ListFor(beneficiary Beneficiary) map[string]*RewardRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make(map[string]*RewardRecord, len(l.rewards[beneficiary]))
	for tournament, record := range l.rewards[beneficiary] {
		result[tournament] = record.clone()
	}
	return result
}

func (l *TourneyLedger) Claim(ctx context.Context, beneficiary Beneficiary, tournament string) (*RewardRecord, error) {
	key := NormalizeName(tournament)

	l.mu.Lock()
	defer l.mu.Unlock()
	byTournament := l.rewards[beneficiary]
	record, ok := byTournament[key]
	if !ok {
		return nil, ErrRewardNotFound
	}
	delete(byTournament, key)
	if len(byTournament) == 0 {
		delete(l.rewards, beneficiary)
	}

	// The claim stands even if the flush fails; the next successful persist catches up.
	_ = l.persistLocked(ctx)
	return record, nil
}

func (l *TourneyLedger) Restore(ctx context.Context, reward *RewardRecord) error {
	if reward == nil || reward.Beneficiary.ID == "" {
		return ErrBadInput
	}
	key := NormalizeName(reward.Tournament)

	l.mu.Lock()
	defer l.mu.Unlock()
	byTournament, ok := l.rewards[reward.Beneficiary]
	if !ok {
		byTournament = make(map[string]*RewardRecord)
		l.rewards[reward.Beneficiary] = byTournament
	}
	if _, exists := byTournament[key]; exists {
		return nil
	}
	byTournament[key] = reward.clone()
	return l.persistLocked(ctx)
}

func (l *TourneyLedger) RemoveAllFor(ctx context.Context, tournament string) (int, error) {
	key := NormalizeName(tournament)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for beneficiary, byTournament := range l.rewards {
		if _, ok := byTournament[key]; !ok {
			continue
		}
		delete(byTournament, key)
		removed++
		if len(byTournament) == 0 {
			delete(l.rewards, beneficiary)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.persistLocked(ctx)
}

func (l *TourneyLedger) Persist(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked(ctx)
}

// Must be called with l.mu held.
func (l *TourneyLedger) persistLocked(ctx context.Context) error {
	sections := map[BeneficiaryKind]map[string]map[string]*RewardRecord{
		BeneficiaryPlayer:   {},
		BeneficiaryProvince: {},
	}
	for beneficiary, byTournament := range l.rewards {
		section, ok := sections[beneficiary.Kind]
		if !ok {
			continue
		}
		section[beneficiary.ID] = byTournament
	}

	doc := make(Document, len(ledgerSections))
	for name, kind := range ledgerSections {
		raw, err := json.Marshal(sections[kind])
		if err != nil {
			l.logger.Error("Failed to marshal %s rewards: %v", name, err)
			return ErrPayloadEncode
		}
		doc[name] = raw
	}

	if err := l.store.Save(ctx, rewardsDocument, doc); err != nil {
		l.logger.Error("Failed to persist rewards: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
