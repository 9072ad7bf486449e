package tourney

import (
	"context"
	"time"
)

type BeneficiaryKind string

const (
	BeneficiaryPlayer   BeneficiaryKind = "player"
	BeneficiaryProvince BeneficiaryKind = "province"
)

// Beneficiary is the holder of a pending reward, a player or a province.
type Beneficiary struct {
	Kind BeneficiaryKind `json:"kind"`
	ID   string          `json:"id"`
}

func PlayerBeneficiary(playerID string) Beneficiary {
	return Beneficiary{Kind: BeneficiaryPlayer, ID: playerID}
}

func ProvinceBeneficiary(groupID string) Beneficiary {
	return Beneficiary{Kind: BeneficiaryProvince, ID: groupID}
}

// BeneficiaryFor returns the beneficiary a standing belongs to under the given target mode.
func BeneficiaryFor(mode TargetMode, id string) Beneficiary {
	if mode == TargetProvince {
		return ProvinceBeneficiary(id)
	}
	return PlayerBeneficiary(id)
}

func (b Beneficiary) String() string {
	return string(b.Kind) + ":" + b.ID
}

// RewardRecord is a pending, unclaimed tournament reward.
type RewardRecord struct {
	ID            string        `json:"id"`
	Beneficiary   Beneficiary   `json:"-"`
	Tournament    string        `json:"tournament"`
	Score         int64         `json:"score"`
	Position      int           `json:"position"`
	Levels        int           `json:"levels,omitempty"`
	Items         []ItemPayload `json:"items,omitempty"`
	ObjectiveType ObjectiveType `json:"objective_type"`
	IssuedAt      time.Time     `json:"issued_at"`
}

func (r *RewardRecord) clone() *RewardRecord {
	c := *r
	if r.Items != nil {
		c.Items = make([]ItemPayload, 0, len(r.Items))
		for _, item := range r.Items {
			c.Items = append(c.Items, append(ItemPayload(nil), item...))
		}
	}
	return &c
}

// The RewardLedger holds at most one pending reward per beneficiary and tournament.
// Every mutation is flushed to storage before it returns.
type RewardLedger interface {
	Load(ctx context.Context) error

	// Issue inserts or overwrites the pending reward. Overwriting with a different score notifies the beneficiary.
	Issue(ctx context.Context, beneficiary Beneficiary, tournament string, reward *RewardRecord) error

	ListFor(beneficiary Beneficiary) map[string]*RewardRecord

	// Claim removes and returns the pending reward, or ErrRewardNotFound. Concurrent claims for the same key
	// succeed at most once.
	Claim(ctx context.Context, beneficiary Beneficiary, tournament string) (*RewardRecord, error)

	// Restore puts back a claimed reward whose delivery failed. An existing record is kept.
	Restore(ctx context.Context, reward *RewardRecord) error

	// RemoveAllFor purges every pending reward of a tournament and returns how many were dropped.
	RemoveAllFor(ctx context.Context, tournament string) (int, error)

	Persist(ctx context.Context) error
}
