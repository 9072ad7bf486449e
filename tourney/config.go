package tourney

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultCurrencyKey = "coins"
	DefaultLevelsKey   = "levels"
)

// Config is the plugin configuration file. Zero values fall back to the defaults.
type Config struct {
	CheckIntervalSec    int   `json:"check_interval_sec,omitempty"`
	AutosaveIntervalSec int   `json:"autosave_interval_sec,omitempty"`
	PlacedBlockResetSec int   `json:"placed_block_reset_sec,omitempty"`
	StopTimeoutSec      int   `json:"stop_timeout_sec,omitempty"`
	RewardedPositions   int   `json:"rewarded_positions,omitempty"`
	NotifyNonPlacing    *bool `json:"notify_non_placing,omitempty"`

	// BonusTiersFile is a YAML file with per-position bonus payouts.
	BonusTiersFile string `json:"bonus_tiers_file,omitempty"`
	CurrencyKey    string `json:"currency_key,omitempty"`
	LevelsKey      string `json:"levels_key,omitempty"`

	MembershipRetryIntervalMs int `json:"membership_retry_interval_ms,omitempty"`
	MembershipRetryAttempts   int `json:"membership_retry_attempts,omitempty"`
}

func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if len(data) == 0 {
		return config, nil
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
	}
	if config.RewardedPositions < 0 || config.MembershipRetryAttempts < 0 {
		return nil, fmt.Errorf("%w: negative values are not allowed", ErrBadInput)
	}
	return config, nil
}

func (c *Config) SchedulerConfig() SchedulerConfig {
	sc := SchedulerConfig{
		CheckInterval:            time.Duration(c.CheckIntervalSec) * time.Second,
		AutosaveInterval:         time.Duration(c.AutosaveIntervalSec) * time.Second,
		PlacedBlockResetInterval: time.Duration(c.PlacedBlockResetSec) * time.Second,
		StopTimeout:              time.Duration(c.StopTimeoutSec) * time.Second,
		RewardedPositions:        c.RewardedPositions,
		NotifyNonPlacing:         true,
	}
	if c.NotifyNonPlacing != nil {
		sc.NotifyNonPlacing = *c.NotifyNonPlacing
	}
	return sc.withDefaults()
}

func (c *Config) RetryPolicy() RetryPolicy {
	policy := DefaultMembershipRetry
	if c.MembershipRetryIntervalMs > 0 {
		policy.Interval = time.Duration(c.MembershipRetryIntervalMs) * time.Millisecond
	}
	if c.MembershipRetryAttempts > 0 {
		policy.MaxTries = uint(c.MembershipRetryAttempts)
	}
	return policy
}

func (c *Config) WalletKeys() (currency, levels string) {
	currency, levels = c.CurrencyKey, c.LevelsKey
	if currency == "" {
		currency = DefaultCurrencyKey
	}
	if levels == "" {
		levels = DefaultLevelsKey
	}
	return currency, levels
}
