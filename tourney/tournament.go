package tourney

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/robfig/cron/v3"
)

// ObjectiveType identifies the kind of in-game action that earns tournament progress.
type ObjectiveType string

const (
	ObjectiveMineBlock  ObjectiveType = "MINE_BLOCK"
	ObjectiveKillEntity ObjectiveType = "KILL_ENTITY"
)

// ParseObjectiveType accepts the canonical names as well as the spellings older data files used.
func ParseObjectiveType(value string) (ObjectiveType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mine_block", "mine block", "hak_blok", "hak_block", "hak blok":
		return ObjectiveMineBlock, nil
	case "kill_entity", "kill entity", "dood_mob", "dood mob":
		return ObjectiveKillEntity, nil
	}
	return "", fmt.Errorf("%w: unknown objective type %q", ErrBadInput, value)
}

// Objective is the (type, target) pair a tournament counts progress for, e.g. MINE_BLOCK:STONE.
type Objective struct {
	Type   ObjectiveType `json:"type"`
	Target string        `json:"target"`
}

func (o Objective) String() string {
	return string(o.Type) + ":" + o.Target
}

// Matches reports whether the objective is exactly the given type and target.
func (o Objective) Matches(objectiveType ObjectiveType, target string) bool {
	return o.Type == objectiveType && o.Target == target
}

// DisplayName renders the target the way menus show it, "DIAMOND_ORE" becomes "diamond ore".
func (o Objective) DisplayName() string {
	return strings.ReplaceAll(strings.ToLower(o.Target), "_", " ")
}

// ParseObjective decodes the "TYPE:TARGET" string form.
func ParseObjective(value string) (Objective, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || parts[1] == "" {
		return Objective{}, fmt.Errorf("%w: invalid objective format %q", ErrBadInput, value)
	}
	objectiveType, err := ParseObjectiveType(parts[0])
	if err != nil {
		return Objective{}, err
	}
	return Objective{Type: objectiveType, Target: parts[1]}, nil
}

// UnmarshalJSON accepts both the structured form and the legacy "TYPE:TARGET" string.
func (o *Objective) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		parsed, err := ParseObjective(encoded)
		if err != nil {
			return err
		}
		*o = parsed
		return nil
	}

	var raw struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	objectiveType, err := ParseObjectiveType(raw.Type)
	if err != nil {
		return err
	}
	if raw.Target == "" {
		return fmt.Errorf("%w: objective target is empty", ErrBadInput)
	}
	*o = Objective{Type: objectiveType, Target: raw.Target}
	return nil
}

// TargetMode decides whether standings and rewards are per player or per province.
type TargetMode string

const (
	TargetPlayer   TargetMode = "PLAYER"
	TargetProvince TargetMode = "PROVINCE"
)

func ParseTargetMode(value string) (TargetMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "player", "":
		return TargetPlayer, nil
	case "province", "provincie":
		return TargetProvince, nil
	}
	return "", fmt.Errorf("%w: unknown tournament target %q", ErrBadInput, value)
}

func (m *TargetMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mode, err := ParseTargetMode(raw)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ItemPayload is an opaque reward item. The engine copies it around and never looks inside.
type ItemPayload = json.RawMessage

// Tournament is a named, time-boxed competition.
type Tournament struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	EndTime     time.Time     `json:"end_time"`
	Objective   Objective     `json:"objective"`
	TargetMode  TargetMode    `json:"target_mode"`
	RewardPool  []ItemPayload `json:"reward_pool,omitempty"`
	Levels      int           `json:"levels,omitempty"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
}

// Key is the normalized name used by the catalog, the progress store and the ledger.
func (t *Tournament) Key() string {
	return NormalizeName(t.Name)
}

// Ended reports whether the tournament is due for finalization at now.
func (t *Tournament) Ended(now time.Time) bool {
	return !now.Before(t.EndTime)
}

// CopyRewardPool returns a deep copy of the reward pool so issued rewards never share buffers with the definition.
func (t *Tournament) CopyRewardPool() []ItemPayload {
	if len(t.RewardPool) == 0 {
		return nil
	}
	pool := make([]ItemPayload, 0, len(t.RewardPool))
	for _, item := range t.RewardPool {
		pool = append(pool, append(ItemPayload(nil), item...))
	}
	return pool
}

var nameSubstitutions = map[string]string{" ": "_"}

// NormalizeName lowercases a tournament name and replaces spaces with underscores.
func NormalizeName(name string) string {
	return slug.Substitute(strings.ToLower(strings.TrimSpace(name)), nameSubstitutions)
}

// NewTournament builds a definition, rejecting blank names and end times not after now.
func NewTournament(name, description string, endTime time.Time, objective Objective, mode TargetMode, rewardPool []ItemPayload, levels int, now time.Time) (*Tournament, error) {
	if NormalizeName(name) == "" {
		return nil, ErrTournamentName
	}
	if objective.Type == "" || objective.Target == "" {
		return nil, fmt.Errorf("%w: objective is required", ErrBadInput)
	}
	if !endTime.After(now) {
		return nil, ErrTournamentEnded
	}
	if levels < 0 {
		return nil, fmt.Errorf("%w: levels must not be negative", ErrBadInput)
	}
	if mode == "" {
		mode = TargetPlayer
	}
	return &Tournament{
		Name:        strings.TrimSpace(name),
		Description: description,
		EndTime:     endTime,
		Objective:   objective,
		TargetMode:  mode,
		RewardPool:  rewardPool,
		Levels:      levels,
		CreatedAt:   now,
	}, nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// EndTimeFor resolves a duration keyword (hourly, daily, weekly) or a cron expression to an end time after now.
func EndTimeFor(duration string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(duration)) {
	case "hourly":
		return now.Add(time.Hour), nil
	case "daily":
		return now.Add(24 * time.Hour), nil
	case "weekly":
		return now.Add(7 * 24 * time.Hour), nil
	}

	schedule, err := cronParser.Parse(duration)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid duration %q: %v", ErrBadInput, duration, err)
	}
	return schedule.Next(now), nil
}
