package tourney

import (
	"context"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

type NotificationCode int

const (
	NotificationRewardIssued    NotificationCode = 4101
	NotificationRewardChanged   NotificationCode = 4102
	NotificationNotPlaced       NotificationCode = 4103
	NotificationRewardClaimed   NotificationCode = 4104
	NotificationProvinceClaimed NotificationCode = 4105
)

// Notification describes a tournament event for a single player.
type Notification struct {
	Code       NotificationCode
	Tournament string
	Position   int
	Score      int64
	// ClaimedBy is set on province claims, the member who collected the reward.
	ClaimedBy string
}

func (n Notification) Subject() string {
	switch n.Code {
	case NotificationRewardIssued:
		return fmt.Sprintf("You placed #%d in %s", n.Position+1, n.Tournament)
	case NotificationRewardChanged:
		return fmt.Sprintf("Your reward for %s was updated", n.Tournament)
	case NotificationNotPlaced:
		return fmt.Sprintf("%s has ended", n.Tournament)
	case NotificationRewardClaimed:
		return fmt.Sprintf("Reward for %s claimed", n.Tournament)
	case NotificationProvinceClaimed:
		return fmt.Sprintf("Your province reward for %s was claimed", n.Tournament)
	}
	return n.Tournament
}

func (n Notification) Content() map[string]interface{} {
	content := map[string]interface{}{
		"tournament": n.Tournament,
		"position":   n.Position,
		"score":      n.Score,
	}
	if n.ClaimedBy != "" {
		content["claimed_by"] = n.ClaimedBy
	}
	return content
}

// The Notifier delivers notifications to players.
type Notifier interface {
	Notify(ctx context.Context, playerID string, notification Notification) error
}

// LogNotifier writes notifications to the log, for hosts without a notification channel.
type LogNotifier struct {
	logger runtime.Logger
}

func NewLogNotifier(logger runtime.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, playerID string, notification Notification) error {
	n.logger.WithFields(map[string]interface{}{
		"player": playerID,
		"code":   int(notification.Code),
	}).Info("%s", notification.Subject())
	return nil
}

// recipientsOf returns the players a beneficiary's notifications go to.
func recipientsOf(ctx context.Context, membership MembershipResolver, beneficiary Beneficiary) ([]string, error) {
	if beneficiary.Kind != BeneficiaryProvince {
		return []string{beneficiary.ID}, nil
	}
	if membership == nil {
		return nil, ErrMembershipNotReady
	}
	return membership.MembersOf(ctx, beneficiary.ID)
}

// notifyBeneficiary fans a notification out to every recipient. Failures are logged, never returned.
func notifyBeneficiary(ctx context.Context, logger runtime.Logger, notifier Notifier, membership MembershipResolver, beneficiary Beneficiary, notification Notification) {
	if notifier == nil {
		return
	}
	recipients, err := recipientsOf(ctx, membership, beneficiary)
	if err != nil {
		logger.Warn("Failed to resolve recipients of %s: %v", beneficiary, err)
		return
	}
	for _, playerID := range recipients {
		if err := notifier.Notify(ctx, playerID, notification); err != nil {
			logger.Warn("Failed to notify player %s: %v", playerID, err)
		}
	}
}
