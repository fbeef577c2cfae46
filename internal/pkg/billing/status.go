package billing

import (
	"strings"

	"github.com/andreluizvr/textora/app/models"
)

// Subscription status transitions are constrained to a monotonic lattice:
//
//	pending -> active -> {past_due <-> active} -> canceled (terminal)
//
// Each transition is applied as a conditional UPDATE whose WHERE clause only
// matches the allowed source states, so two racing writers converge on the
// same terminal row state without locks.

// activationSources lists the states an activation may flip from. Canceled is
// absent: a replayed activation can never resurrect a canceled subscription.
var activationSources = []string{
	models.SubscriptionStatusPending,
	models.SubscriptionStatusPastDue,
}

// pastDueSources lists the states a past-due transition may flip from.
var pastDueSources = []string{
	models.SubscriptionStatusPending,
	models.SubscriptionStatusActive,
}

// cancellationSources lists the states a cancellation may flip from.
var cancellationSources = []string{
	models.SubscriptionStatusPending,
	models.SubscriptionStatusActive,
	models.SubscriptionStatusPastDue,
}

// TranslateProviderStatus maps the processor's status vocabulary onto the
// internal subscription status enum. Anything unknown stays pending so a
// later, more specific event can still move it forward.
func TranslateProviderStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "active", "trialing", "succeeded", "complete":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusPending
	}
}

func isEntitlingStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// deriveProfileState computes the profile plan fields purely from ledger
// rows. Being a function of the *set* of terminal states (not their order)
// is what makes racing webhook/poll/manual writers converge.
func deriveProfileState(subs []models.Subscription, lifetimes []models.LifetimePurchase) (planType, subscriptionStatus string) {
	for _, lp := range lifetimes {
		if lp.Status == models.LifetimeStatusCompleted && lp.UserID != nil {
			return "lifetime", models.ProfileSubscriptionActive
		}
	}

	hasPastDue := false
	hasCanceled := false
	for _, sub := range subs {
		switch sub.Status {
		case models.SubscriptionStatusActive:
			return sub.PlanType, models.ProfileSubscriptionActive
		case models.SubscriptionStatusPastDue:
			hasPastDue = true
		case models.SubscriptionStatusCanceled:
			hasCanceled = true
		}
	}
	if hasPastDue {
		return "pro", models.ProfileSubscriptionPastDue
	}
	if hasCanceled {
		return "free", models.ProfileSubscriptionCanceled
	}
	return "free", models.ProfileSubscriptionNone
}
