package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/chorequest/internal/model"
)

// SubscriptionStore is the part of the push store the notifier needs.
type SubscriptionStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	IsPreferenceEnabled(userID int64, notifType string) (bool, error)
	DeleteByEndpoint(endpoint string) error
}

// AdminLister returns the users who receive household-wide notices.
type AdminLister interface {
	ListAdminUserIDs() ([]int64, error)
}

// Notifier turns chore events into push notifications. Delivery is best
// effort: failures are logged and never returned to the request that caused
// the event.
type Notifier struct {
	sender Sender
	subs   SubscriptionStore
	admins AdminLister
	logger *slog.Logger
}

// NewNotifier returns a notifier. A nil sender disables delivery, which is the
// case when no VAPID keys are configured.
func NewNotifier(sender Sender, subs SubscriptionStore, admins AdminLister, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		subs:   subs,
		admins: admins,
		logger: logger.With("component", "push"),
	}
}

// Enabled reports whether notifications are actually delivered.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// NotifyUser sends payload to every device of userID, honoring the user's
// preference for notifType. It returns the number of devices reached.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, notifType string, payload Payload) int {
	if !n.Enabled() {
		return 0
	}

	enabled, err := n.subs.IsPreferenceEnabled(userID, notifType)
	if err != nil {
		n.logger.Error("check preference", "user_id", userID, "type", notifType, "error", err)
		return 0
	}
	if !enabled {
		return 0
	}

	return n.Deliver(ctx, userID, payload)
}

// Deliver sends payload to every device of userID regardless of
// preferences. Devices the push service reports as gone are forgotten.
func (n *Notifier) Deliver(ctx context.Context, userID int64, payload Payload) int {
	if !n.Enabled() {
		return 0
	}
	subs, err := n.subs.ListByUser(userID)
	if err != nil {
		n.logger.Error("list subscriptions", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for i := range subs {
		err := n.sender.Send(ctx, &subs[i], payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrExpired):
			n.logger.Info("removing expired subscription", "user_id", userID, "subscription_id", subs[i].ID)
			if err := n.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				n.logger.Error("delete expired subscription", "error", err)
			}
		default:
			n.logger.Warn("send push", "user_id", userID, "subscription_id", subs[i].ID, "error", err)
		}
	}
	return sent
}

// ChoreAssigned notifies the chore's assignee.
func (n *Notifier) ChoreAssigned(ctx context.Context, c *model.Chore) {
	if c.AssigneeID == nil {
		return
	}
	body := c.Title
	if c.DueDate != nil {
		body = fmt.Sprintf("%s (due %s)", c.Title, c.DueDate.Format("Jan 2"))
	}
	n.NotifyUser(ctx, *c.AssigneeID, model.NotifTypeChoreAssigned, Payload{
		Title: "New Chore Assigned",
		Body:  body,
		URL:   fmt.Sprintf("/chores/%d", c.ID),
		Tag:   fmt.Sprintf("chore-assigned-%d", c.ID),
	})
}

// ChoreCompleted notifies every admin except the one who completed it.
func (n *Notifier) ChoreCompleted(ctx context.Context, c *model.Chore, completedBy int64, completedByName string) {
	if !n.Enabled() {
		return
	}
	admins, err := n.admins.ListAdminUserIDs()
	if err != nil {
		n.logger.Error("list admins", "error", err)
		return
	}

	payload := Payload{
		Title: "Chore Completed",
		Body:  fmt.Sprintf("%s completed %q", completedByName, c.Title),
		URL:   fmt.Sprintf("/chores/%d", c.ID),
		Tag:   fmt.Sprintf("chore-completed-%d", c.ID),
	}
	for _, id := range admins {
		if id == completedBy {
			continue
		}
		n.NotifyUser(ctx, id, model.NotifTypeChoreCompleted, payload)
	}
}
