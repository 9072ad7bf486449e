package tourney

import (
	"context"
)

// NakamaNotifications is the slice of runtime.NakamaModule used to deliver notifications.
type NakamaNotifications interface {
	NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error
}

// NakamaNotifier sends persistent in-app notifications from the system user.
type NakamaNotifier struct {
	nk NakamaNotifications
}

func NewNakamaNotifier(nk NakamaNotifications) *NakamaNotifier {
	return &NakamaNotifier{nk: nk}
}

func (n *NakamaNotifier) Notify(ctx context.Context, playerID string, notification Notification) error {
	return n.nk.NotificationSend(ctx, playerID, notification.Subject(), notification.Content(), int(notification.Code), "", true)
}
