package tourney

import (
	"context"
	"time"
)

type SchedulerState int32

const (
	SchedulerStopped SchedulerState = iota
	SchedulerRunning
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerRunning:
		return "RUNNING"
	default:
		return "STOPPED"
	}
}

const (
	DefaultCheckInterval            = time.Minute
	DefaultAutosaveInterval         = 5 * time.Minute
	DefaultPlacedBlockResetInterval = 5 * time.Second
	DefaultRewardedPositions        = 6
	DefaultStopTimeout              = 30 * time.Second
)

// SchedulerConfig controls the end-check loop and how finalization pays out.
type SchedulerConfig struct {
	CheckInterval            time.Duration
	AutosaveInterval         time.Duration
	PlacedBlockResetInterval time.Duration
	StopTimeout              time.Duration

	// RewardedPositions is how many leading standings receive a reward.
	RewardedPositions int
	// NotifyNonPlacing sends a notice to participants that finished outside the rewarded positions.
	NotifyNonPlacing bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CheckInterval:            DefaultCheckInterval,
		AutosaveInterval:         DefaultAutosaveInterval,
		PlacedBlockResetInterval: DefaultPlacedBlockResetInterval,
		StopTimeout:              DefaultStopTimeout,
		RewardedPositions:        DefaultRewardedPositions,
		NotifyNonPlacing:         true,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	defaults := DefaultSchedulerConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaults.CheckInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = defaults.AutosaveInterval
	}
	if c.PlacedBlockResetInterval <= 0 {
		c.PlacedBlockResetInterval = defaults.PlacedBlockResetInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaults.StopTimeout
	}
	if c.RewardedPositions <= 0 {
		c.RewardedPositions = defaults.RewardedPositions
	}
	return c
}

// A Dispatcher runs fn wherever reward side effects must happen and returns once fn has finished.
// Standings are computed off that thread; only issuance and notifications go through the dispatcher.
type Dispatcher func(ctx context.Context, fn func())

// InlineDispatcher runs fn on the calling goroutine.
func InlineDispatcher(ctx context.Context, fn func()) {
	fn()
}

// The Scheduler detects ended tournaments and finalizes each of them exactly once.
type Scheduler interface {
	Start(ctx context.Context) error

	// Stop halts the timers, lets in-flight finalization complete, then flushes state synchronously.
	Stop(ctx context.Context) error

	State() SchedulerState

	// RunCycle finalizes every ended tournament and returns how many were finalized.
	RunCycle(ctx context.Context) int

	// Finalize ranks, rewards, clears and removes a tournament regardless of its end time.
	// It reports false without error when the tournament does not exist or is already being finalized.
	Finalize(ctx context.Context, name string) (bool, error)
}
