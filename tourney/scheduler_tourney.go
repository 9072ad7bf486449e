package tourney

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"
)

type TourneyScheduler struct {
	logger     runtime.Logger
	catalog    Catalog
	progress   ProgressStore
	ledger     RewardLedger
	standings  *StandingsEngine
	membership MembershipResolver
	notifier   Notifier
	events     *EventBridge
	clock      clockwork.Clock
	config     SchedulerConfig
	dispatch   Dispatcher

	mu    sync.Mutex
	state SchedulerState
	cron  gocron.Scheduler

	// One check cycle at a time, on top of gocron's singleton mode, so a manual RunCycle cannot overlap a tick.
	cycleMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

type scheduledJob struct {
	name     string
	interval time.Duration
	task     func()
}

// SchedulerDeps are the services a scheduler drives. Events and Notifier are optional.
type SchedulerDeps struct {
	Catalog    Catalog
	Progress   ProgressStore
	Ledger     RewardLedger
	Standings  *StandingsEngine
	Membership MembershipResolver
	Notifier   Notifier
	Events     *EventBridge
	Clock      clockwork.Clock
	Dispatcher Dispatcher
}

func NewScheduler(logger runtime.Logger, deps SchedulerDeps, config SchedulerConfig) *TourneyScheduler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = InlineDispatcher
	}
	return &TourneyScheduler{
		logger:     logger,
		catalog:    deps.Catalog,
		progress:   deps.Progress,
		ledger:     deps.Ledger,
		standings:  deps.Standings,
		membership: deps.Membership,
		notifier:   deps.Notifier,
		events:     deps.Events,
		clock:      deps.Clock,
		config:     config.withDefaults(),
		dispatch:   deps.Dispatcher,
		inflight:   make(map[string]struct{}),
	}
}

func (s *TourneyScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TourneyScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SchedulerRunning {
		return ErrSchedulerRunning
	}

	cron, err := gocron.NewScheduler(gocron.WithStopTimeout(s.config.StopTimeout))
	if err != nil {
		s.logger.Error("Failed to create scheduler: %v", err)
		return ErrInternal
	}

	// Jobs outlive the caller's request, not its values.
	jobCtx := context.WithoutCancel(ctx)
	jobs := []scheduledJob{
		{"tourney-end-check", s.config.CheckInterval, func() { s.RunCycle(jobCtx) }},
		{"tourney-autosave", s.config.AutosaveInterval, s.progress.PersistAsync},
	}
	if s.events != nil {
		jobs = append(jobs, scheduledJob{"tourney-placed-block-reset", s.config.PlacedBlockResetInterval, s.events.ResetPlacedBlocks})
	}

	for _, job := range jobs {
		_, err := cron.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule %s: %v", job.name, err)
			_ = cron.Shutdown()
			return ErrInternal
		}
	}

	cron.Start()
	s.cron = cron
	s.state = SchedulerRunning
	s.logger.Info("Tournament scheduler started, checking every %s", s.config.CheckInterval)
	return nil
}

func (s *TourneyScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SchedulerStopped {
		return ErrSchedulerStopped
	}

	// Shutdown waits for running jobs, so an in-flight finalize completes before we flush.
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Warn("Scheduler shutdown did not finish cleanly: %v", err)
	}
	s.cron = nil
	s.state = SchedulerStopped

	var errs []error
	if err := s.progress.Persist(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.ledger.Persist(ctx); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("Tournament scheduler stopped")
	return errors.Join(errs...)
}

func (s *TourneyScheduler) RunCycle(ctx context.Context) int {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	now := s.clock.Now()
	finalized := 0
	for _, tournament := range s.catalog.List() {
		if !tournament.Ended(now) {
			continue
		}
		ok, err := s.finalize(ctx, tournament.Key(), true)
		if err != nil {
			s.logger.WithField("tournament", tournament.Key()).Warn("Failed to finalize tournament: %v", err)
		}
		if ok {
			finalized++
		}
	}
	return finalized
}

func (s *TourneyScheduler) Finalize(ctx context.Context, name string) (bool, error) {
	return s.finalize(ctx, name, false)
}

// With onlyIfEnded set, the end time is checked again against the current definition,
// which may have been replaced since the cycle listed the catalog.
func (s *TourneyScheduler) finalize(ctx context.Context, name string, onlyIfEnded bool) (bool, error) {
	key := NormalizeName(name)
	if !s.acquire(key) {
		return false, nil
	}
	defer s.release(key)

	tournament, err := s.catalog.Get(key)
	if err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return false, nil
		}
		return false, err
	}
	if onlyIfEnded && !tournament.Ended(s.clock.Now()) {
		return false, nil
	}
	logger := s.logger.WithField("tournament", key)

	var standings []Standing
	select {
	case result := <-s.standings.RankAsync(ctx, key, tournament.TargetMode):
		if result.Err != nil {
			// Left in the catalog, the next cycle retries.
			return false, fmt.Errorf("standings for %s: %w", key, result.Err)
		}
		standings = result.Standings
	case <-ctx.Done():
		return false, ctx.Err()
	}

	placing := standings
	if len(placing) > s.config.RewardedPositions {
		placing = placing[:s.config.RewardedPositions]
	}

	s.dispatch(ctx, func() {
		s.issueRewards(ctx, logger, tournament, placing)
		if s.config.NotifyNonPlacing {
			s.notifyNonPlacing(ctx, logger, tournament, placing)
		}
	})

	if err := s.ledger.Persist(ctx); err != nil {
		logger.Warn("Failed to persist rewards after finalize: %v", err)
	}
	if err := s.progress.Persist(ctx); err != nil {
		logger.Warn("Failed to persist progress after finalize: %v", err)
	}
	s.progress.ClearTournament(key)
	s.progress.PersistAsync()

	if err := s.catalog.Remove(ctx, key); err != nil {
		logger.Error("Failed to persist tournament removal: %v", err)
		return true, err
	}
	logger.Info("Tournament finalized with %d rewarded of %d ranked", len(placing), len(standings))
	return true, nil
}

func (s *TourneyScheduler) issueRewards(ctx context.Context, logger runtime.Logger, tournament *Tournament, placing []Standing) {
	issuedAt := s.clock.Now()
	for position, standing := range placing {
		beneficiary := BeneficiaryFor(tournament.TargetMode, standing.BeneficiaryID)
		reward := &RewardRecord{
			Score:         standing.Score,
			Position:      position,
			Levels:        tournament.Levels,
			Items:         tournament.CopyRewardPool(),
			ObjectiveType: tournament.Objective.Type,
			IssuedAt:      issuedAt,
		}
		if err := s.ledger.Issue(ctx, beneficiary, tournament.Key(), reward); err != nil {
			// The record stays in memory; the persist that follows retries the write.
			logger.Error("Failed to issue reward to %s: %v", beneficiary, err)
		}
		notifyBeneficiary(ctx, logger, s.notifier, s.membership, beneficiary, Notification{
			Code:       NotificationRewardIssued,
			Tournament: tournament.Key(),
			Position:   position,
			Score:      standing.Score,
		})
	}
}

func (s *TourneyScheduler) notifyNonPlacing(ctx context.Context, logger runtime.Logger, tournament *Tournament, placing []Standing) {
	if s.notifier == nil {
		return
	}
	winners := make(map[string]struct{}, len(placing))
	for _, standing := range placing {
		winners[standing.BeneficiaryID] = struct{}{}
	}

	for playerID, score := range s.progress.GetAllProgress(tournament.Key()) {
		placed := false
		switch tournament.TargetMode {
		case TargetProvince:
			// Players outside any province never share a province reward.
			groupID, ok, err := s.provinceOf(ctx, playerID)
			if err != nil {
				logger.Warn("Failed to resolve province of %s: %v", playerID, err)
				continue
			}
			if ok {
				_, placed = winners[groupID]
			}
		default:
			_, placed = winners[playerID]
		}
		if placed {
			continue
		}
		err := s.notifier.Notify(ctx, playerID, Notification{
			Code:       NotificationNotPlaced,
			Tournament: tournament.Key(),
			Position:   -1,
			Score:      score,
		})
		if err != nil {
			logger.Warn("Failed to notify player %s: %v", playerID, err)
		}
	}
}

func (s *TourneyScheduler) provinceOf(ctx context.Context, playerID string) (string, bool, error) {
	if s.membership == nil {
		return "", false, nil
	}
	return s.membership.GroupOf(ctx, playerID)
}

func (s *TourneyScheduler) acquire(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *TourneyScheduler) release(key string) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
}
