package tourney

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"
)

// Engine wires the tournament services together. Everything is constructed explicitly and shared by reference.
type Engine struct {
	logger runtime.Logger
	clock  clockwork.Clock
	store  DocumentStore

	Catalog    *TourneyCatalog
	Progress   *TourneyProgress
	Ledger     *TourneyLedger
	Standings  *StandingsEngine
	Scheduler  *TourneyScheduler
	Events     *EventBridge
	Claims     *ClaimService
	Membership MembershipResolver
}

// EngineDeps are the host-specific collaborators. Only Store is required.
type EngineDeps struct {
	Store      DocumentStore
	Membership MembershipResolver
	Notifier   Notifier
	Granter    RewardGranter
	Bonus      BonusTable
	Clock      clockwork.Clock
	Dispatcher Dispatcher
}

func NewEngine(logger runtime.Logger, deps EngineDeps, config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Membership == nil {
		deps.Membership = NewPendingMembership()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(logger)
	}
	if deps.Granter == nil {
		deps.Granter = NewLogGranter(logger)
	}

	catalog := NewCatalog(logger, deps.Store)
	progress := NewProgressStore(logger, deps.Store)
	ledger := NewRewardLedger(logger, deps.Store, deps.Notifier, deps.Membership)
	standings := NewStandingsEngine(progress, deps.Membership, config.RetryPolicy())
	events := NewEventBridge(logger, catalog, progress, deps.Clock)

	e := &Engine{
		logger:     logger,
		clock:      deps.Clock,
		store:      deps.Store,
		Catalog:    catalog,
		Progress:   progress,
		Ledger:     ledger,
		Standings:  standings,
		Events:     events,
		Membership: deps.Membership,
	}
	e.Scheduler = NewScheduler(logger, SchedulerDeps{
		Catalog:    catalog,
		Progress:   progress,
		Ledger:     ledger,
		Standings:  standings,
		Membership: deps.Membership,
		Notifier:   deps.Notifier,
		Events:     events,
		Clock:      deps.Clock,
		Dispatcher: deps.Dispatcher,
	}, config.SchedulerConfig())
	e.Claims = NewClaimService(logger, ledger, deps.Membership, deps.Bonus, deps.Granter, deps.Notifier)
	return e
}

// Load reads the three persisted documents. Corrupt entries are skipped inside each loader.
// A document that cannot be decoded at all is moved aside when the store supports it, and
// its component starts empty; otherwise the error is returned.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.loadDocument(ctx, tournamentsDocument, e.Catalog.Load); err != nil {
		return fmt.Errorf("load tournaments: %w", err)
	}
	if err := e.loadDocument(ctx, progressDocument, e.Progress.Load); err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if err := e.loadDocument(ctx, rewardsDocument, e.Ledger.Load); err != nil {
		return fmt.Errorf("load rewards: %w", err)
	}
	return nil
}

func (e *Engine) loadDocument(ctx context.Context, name string, load func(context.Context) error) error {
	err := load(ctx)
	if err == nil || !errors.Is(err, ErrDocumentCorrupt) {
		return err
	}
	quarantiner, ok := e.store.(DocumentQuarantiner)
	if !ok {
		return err
	}
	if qErr := quarantiner.Quarantine(ctx, name); qErr != nil {
		return errors.Join(err, qErr)
	}
	e.logger.Error("Document %s is unreadable, moved it to %s and starting empty: %v", name, name+corruptSuffix, err)
	return load(ctx)
}

// CreateRequest describes a new tournament. Duration (hourly, daily, weekly or a cron expression)
// is used when EndTime is not set.
type CreateRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Duration    string        `json:"duration,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Objective   Objective     `json:"objective"`
	Target      string        `json:"target,omitempty"`
	RewardPool  []ItemPayload `json:"reward_pool,omitempty"`
	Levels      int           `json:"levels,omitempty"`
}

func (e *Engine) Create(ctx context.Context, request *CreateRequest) (*Tournament, error) {
	if request == nil {
		return nil, ErrPayloadEmpty
	}
	now := e.clock.Now()

	var endTime time.Time
	switch {
	case request.EndTime != nil:
		endTime = *request.EndTime
	case request.Duration != "":
		var err error
		if endTime, err = EndTimeFor(request.Duration, now); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: end_time or duration is required", ErrBadInput)
	}

	mode, err := ParseTargetMode(request.Target)
	if err != nil {
		return nil, err
	}
	tournament, err := NewTournament(request.Name, request.Description, endTime, request.Objective, mode, request.RewardPool, request.Levels, now)
	if err != nil {
		return nil, err
	}
	if err := e.Catalog.Save(ctx, tournament); err != nil {
		return nil, err
	}
	e.logger.WithField("tournament", tournament.Key()).Info("Tournament created, ends at %s", endTime.Format(time.RFC3339))
	return tournament, nil
}

// Remove deletes a tournament without finishing it: its progress and any pending rewards go with it.
// It reports whether the tournament existed.
func (e *Engine) Remove(ctx context.Context, name string) (bool, error) {
	key := NormalizeName(name)
	_, err := e.Catalog.Get(key)
	existed := err == nil

	if err := e.Catalog.Remove(ctx, key); err != nil {
		return existed, err
	}
	e.Progress.ClearTournament(key)
	e.Progress.PersistAsync()
	if _, err := e.Ledger.RemoveAllFor(ctx, key); err != nil {
		return existed, err
	}
	if existed {
		e.logger.WithField("tournament", key).Info("Tournament removed")
	}
	return existed, nil
}

// Finish finalizes a tournament now, whatever its end time.
func (e *Engine) Finish(ctx context.Context, name string) (bool, error) {
	return e.Scheduler.Finalize(ctx, name)
}

func (e *Engine) Start(ctx context.Context) error {
	return e.Scheduler.Start(ctx)
}

// Shutdown stops the scheduler if it runs, waits for background saves and flushes everything synchronously.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if e.Scheduler.State() == SchedulerRunning {
		if err := e.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.Progress.Close()
	if err := e.Progress.Persist(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.Ledger.Persist(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Init builds an engine on top of Nakama, registers its RPCs and starts the end-check scheduler.
// configFile is optional; when set it is read through the Nakama runtime like other system configs.
func Init(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer, configFile string) (*Engine, error) {
	config := &Config{}
	if configFile != "" {
		data, err := readRuntimeFile(nk, configFile)
		if err != nil {
			logger.Error("Failed to read config file %s: %v", configFile, err)
			return nil, err
		}
		if config, err = ParseConfig(data); err != nil {
			logger.Error("Failed to parse tournament config: %v", err)
			return nil, err
		}
	}

	var bonus BonusTable = NoBonus{}
	if config.BonusTiersFile != "" {
		data, err := readRuntimeFile(nk, config.BonusTiersFile)
		if err != nil {
			logger.Error("Failed to read bonus tiers %s: %v", config.BonusTiersFile, err)
			return nil, err
		}
		table, err := ParseBonusTable(data)
		if err != nil {
			logger.Error("Failed to parse bonus tiers: %v", err)
			return nil, err
		}
		bonus = table
	}

	currencyKey, levelsKey := config.WalletKeys()
	engine := NewEngine(logger, EngineDeps{
		Store:      NewNakamaDocumentStore(nk),
		Membership: NewNakamaMembership(nk),
		Notifier:   NewNakamaNotifier(nk),
		Granter:    NewNakamaRewardGranter(nk, currencyKey, levelsKey),
		Bonus:      bonus,
	}, config)

	if err := engine.Load(ctx); err != nil {
		logger.Error("Failed to load tournament state: %v", err)
		return nil, err
	}
	if err := engine.RegisterRpcs(initializer); err != nil {
		return nil, err
	}
	if err := engine.Start(ctx); err != nil {
		return nil, err
	}
	if err := initializer.RegisterShutdown(func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) {
		if err := engine.Shutdown(ctx); err != nil {
			logger.Error("Failed to flush tournament state on shutdown: %v", err)
		}
	}); err != nil {
		logger.Error("Unable to register shutdown hook: %v", err)
		return nil, err
	}
	return engine, nil
}

func readRuntimeFile(nk runtime.NakamaModule, path string) ([]byte, error) {
	file, err := nk.ReadFile(path)
	if err != nil {
		return nil, ErrFileNotFound
	}
	defer file.Close()
	return io.ReadAll(file)
}
