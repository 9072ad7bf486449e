package tourney

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultBonusSection = "default"

// Bonus is the extra payout attached to a final position on top of the tournament's reward pool.
type Bonus struct {
	Currency int64         `json:"currency,omitempty"`
	Items    []ItemPayload `json:"items,omitempty"`
}

// The BonusTable looks up the bonus for an objective type and a 0-indexed final position.
type BonusTable interface {
	LookupBonus(objectiveType ObjectiveType, position int) Bonus
}

type bonusTier struct {
	Eco      *int64                   `yaml:"eco"`
	Diamonds *int64                   `yaml:"diamonds"`
	Items    []map[string]interface{} `yaml:"items"`
}

type bonusFile struct {
	Rewards map[string]map[int]*bonusTier `yaml:"rewards"`
}

// YAMLBonusTable reads tiers shaped as `rewards.<objective>.<place>.{eco, diamonds, items}`, places counted
// from 1. Every field missing for an objective falls back to `rewards.default.<place>`.
type YAMLBonusTable struct {
	tiers map[string]map[int]*bonusTier
}

func ParseBonusTable(data []byte) (*YAMLBonusTable, error) {
	file := &bonusFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("%w: bonus tiers: %v", ErrBadInput, err)
	}

	tiers := make(map[string]map[int]*bonusTier, len(file.Rewards))
	for section, places := range file.Rewards {
		key := defaultBonusSection
		if !strings.EqualFold(section, defaultBonusSection) {
			objectiveType, err := ParseObjectiveType(section)
			if err != nil {
				return nil, err
			}
			key = string(objectiveType)
		}
		tiers[key] = places
	}
	return &YAMLBonusTable{tiers: tiers}, nil
}

func (t *YAMLBonusTable) tier(section string, place int) *bonusTier {
	if places, ok := t.tiers[section]; ok {
		return places[place]
	}
	return nil
}

func (t *YAMLBonusTable) LookupBonus(objectiveType ObjectiveType, position int) Bonus {
	place := position + 1
	specific := t.tier(string(objectiveType), place)
	fallback := t.tier(defaultBonusSection, place)

	pick := func(get func(*bonusTier) *int64) int64 {
		if specific != nil {
			if v := get(specific); v != nil {
				return *v
			}
		}
		if fallback != nil {
			if v := get(fallback); v != nil {
				return *v
			}
		}
		return 0
	}

	bonus := Bonus{Currency: pick(func(b *bonusTier) *int64 { return b.Eco })}
	if diamonds := pick(func(b *bonusTier) *int64 { return b.Diamonds }); diamonds > 0 {
		raw, _ := json.Marshal(map[string]interface{}{"item": "diamond", "count": diamonds})
		bonus.Items = append(bonus.Items, raw)
	}

	items := fallback
	if specific != nil && specific.Items != nil {
		items = specific
	}
	if items != nil {
		for _, item := range items.Items {
			raw, err := json.Marshal(item)
			if err != nil {
				continue
			}
			bonus.Items = append(bonus.Items, raw)
		}
	}
	return bonus
}

// NoBonus is a BonusTable that never pays anything extra.
type NoBonus struct{}

func (NoBonus) LookupBonus(ObjectiveType, int) Bonus {
	return Bonus{}
}
