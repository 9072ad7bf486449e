package tourney

import (
	"context"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
)

// ClaimResult is what a successful claim delivered.
type ClaimResult struct {
	Reward   *RewardRecord `json:"reward"`
	Bonus    Bonus         `json:"bonus"`
	Overflow []ItemPayload `json:"overflow,omitempty"`
}

// ClaimService turns a pending ledger entry into granted items, currency and levels.
// A province reward is claimed once, by any member, and paid out to that member.
type ClaimService struct {
	logger     runtime.Logger
	ledger     RewardLedger
	membership MembershipResolver
	bonus      BonusTable
	granter    RewardGranter
	notifier   Notifier
}

func NewClaimService(logger runtime.Logger, ledger RewardLedger, membership MembershipResolver, bonus BonusTable, granter RewardGranter, notifier Notifier) *ClaimService {
	if bonus == nil {
		bonus = NoBonus{}
	}
	return &ClaimService{
		logger:     logger,
		ledger:     ledger,
		membership: membership,
		bonus:      bonus,
		granter:    granter,
		notifier:   notifier,
	}
}

// Beneficiary resolves who a player claims for. For province rewards that is the player's province.
func (c *ClaimService) Beneficiary(ctx context.Context, playerID string, province bool) (Beneficiary, error) {
	if !province {
		return PlayerBeneficiary(playerID), nil
	}
	if c.membership == nil {
		return Beneficiary{}, ErrMembershipNotReady
	}
	groupID, ok, err := c.membership.GroupOf(ctx, playerID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotReady) {
			return Beneficiary{}, err
		}
		return Beneficiary{}, ErrMembershipNotReady
	}
	if !ok {
		return Beneficiary{}, ErrNoProvince
	}
	return ProvinceBeneficiary(groupID), nil
}

// Pending lists the rewards a player can claim, for themselves or for their province.
func (c *ClaimService) Pending(ctx context.Context, playerID string, province bool) (map[string]*RewardRecord, error) {
	beneficiary, err := c.Beneficiary(ctx, playerID, province)
	if err != nil {
		return nil, err
	}
	return c.ledger.ListFor(beneficiary), nil
}

func (c *ClaimService) Claim(ctx context.Context, playerID, tournament string, province bool) (*ClaimResult, error) {
	beneficiary, err := c.Beneficiary(ctx, playerID, province)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithFields(map[string]interface{}{
		"player":      playerID,
		"beneficiary": beneficiary.String(),
		"tournament":  NormalizeName(tournament),
	})

	reward, err := c.ledger.Claim(ctx, beneficiary, tournament)
	if err != nil {
		return nil, err
	}

	bonus := c.bonus.LookupBonus(reward.ObjectiveType, reward.Position)
	items := make([]ItemPayload, 0, len(reward.Items)+len(bonus.Items))
	items = append(items, reward.Items...)
	items = append(items, bonus.Items...)

	overflow, err := c.granter.GrantItems(ctx, playerID, items)
	if err != nil {
		logger.Error("Failed to grant reward items: %v", err)
		if restoreErr := c.ledger.Restore(ctx, reward); restoreErr != nil {
			logger.Error("Failed to restore reward after failed delivery: %v", restoreErr)
		}
		return nil, ErrInternal
	}

	// Items are delivered at this point, so later failures are logged instead of undoing the claim.
	if bonus.Currency > 0 {
		if err := c.granter.GrantCurrency(ctx, playerID, bonus.Currency); err != nil {
			logger.Error("Failed to grant reward currency: %v", err)
		}
	}
	if reward.Levels > 0 {
		if err := c.granter.GrantBonusLevels(ctx, playerID, reward.Levels); err != nil {
			logger.Error("Failed to grant reward levels: %v", err)
		}
	}
	if len(overflow) > 0 {
		logger.Warn("%d reward items did not fit", len(overflow))
	}

	notification := Notification{
		Code:       NotificationRewardClaimed,
		Tournament: reward.Tournament,
		Position:   reward.Position,
		Score:      reward.Score,
	}
	notifyBeneficiary(ctx, logger, c.notifier, c.membership, PlayerBeneficiary(playerID), notification)
	if beneficiary.Kind == BeneficiaryProvince {
		notification.Code = NotificationProvinceClaimed
		notification.ClaimedBy = playerID
		notifyBeneficiary(ctx, logger, c.notifier, c.membership, beneficiary, notification)
	}

	logger.Info("Reward claimed")
	return &ClaimResult{Reward: reward, Bonus: bonus, Overflow: overflow}, nil
}
