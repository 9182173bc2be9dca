// Package notify is the outbound notification boundary. Delivery is
// best effort: failures are logged and never block or roll back a
// ledger mutation.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"wekeza.org/internal/obs"
)

// Category tags a notification for client-side grouping.
type Category string

const (
	CategoryWallet  Category = "wallet"
	CategoryRound   Category = "round"
	CategoryGoal    Category = "goal"
	CategoryAccount Category = "account"
)

// Notification is one message to one member.
type Notification struct {
	MemberID string   `json:"member_id"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Category Category `json:"category"`
}

// Notifier delivers notifications. Implementations must be fire and
// forget from the caller's perspective.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. It stands in
// for SMS/push delivery in development and tests.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) {
	entry := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"type":      "notification",
		"member_id": n.MemberID,
		"title":     n.Title,
		"message":   n.Message,
		"category":  string(n.Category),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notification) {}
