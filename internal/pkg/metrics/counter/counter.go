package counter

import (
	"context"
	"strconv"

	"github.com/andreluizvr/textora/internal/pkg/cache"
)

const (
	webhookEventsKey = "billing:counters:webhook_events"
	statusPollsKey   = "billing:counters:status_polls"
)

// AddWebhookEvent increments the received counter for a webhook event type.
func AddWebhookEvent(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookEventsKey, eventType, 1).Err()
}

// AddStatusPoll increments the poll counter for the given day bucket
// (YYYY-MM-DD). The client polls every few seconds while waiting for a
// webhook, so this is the cheapest signal for reconciliation lag.
func AddStatusPoll(day string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, statusPollsKey, day, 1).Err()
}

// Snapshot holds the current counter values for the admin overview.
type Snapshot struct {
	WebhookEvents map[string]int64 `json:"webhook_events"`
	StatusPolls   map[string]int64 `json:"status_polls"`
}

// Read returns the current counters. Missing keys yield empty maps.
func Read() (Snapshot, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	snap := Snapshot{
		WebhookEvents: map[string]int64{},
		StatusPolls:   map[string]int64{},
	}

	events, err := rdb.HGetAll(ctx, webhookEventsKey).Result()
	if err != nil {
		return snap, err
	}
	for field, raw := range events {
		if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			snap.WebhookEvents[field] = n
		}
	}

	polls, err := rdb.HGetAll(ctx, statusPollsKey).Result()
	if err != nil {
		return snap, err
	}
	for field, raw := range polls {
		if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			snap.StatusPolls[field] = n
		}
	}

	return snap, nil
}

// Reset clears both counter hashes.
func Reset() error {
	ctx := context.Background()
	return cache.GetClient().Del(ctx, webhookEventsKey, statusPollsKey).Err()
}
