package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanLifetime Plan = "lifetime"
	PlanAdmin    Plan = "admin"
)

// Normalize maps arbitrary plan strings to a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPro:
		return PlanPro
	case PlanLifetime:
		return PlanLifetime
	case PlanAdmin:
		return PlanAdmin
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation can pick the best entitlement a user
// holds. Admin outranks everything and is never written by billing code.
func Rank(plan Plan) int {
	switch plan {
	case PlanAdmin:
		return 3
	case PlanLifetime:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// IsPremium reports whether a plan grants paid features.
func IsPremium(plan Plan) bool {
	return Rank(plan) > 0
}

// AllowedFeatures returns which product features are available for a plan:
// unlimited corrections, rewriting presets and the WhatsApp bot channel.
func AllowedFeatures(plan Plan) (unlimited, rewriting, whatsapp bool) {
	switch plan {
	case PlanAdmin, PlanLifetime:
		return true, true, true
	case PlanPro:
		return true, true, false
	default:
		return false, false, false
	}
}
