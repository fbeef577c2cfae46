package billing

import (
	"context"
	"strings"

	"github.com/andreluizvr/textora/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// LinkGuestPurchases binds pending guest rows to a freshly identified user.
// Called once per successful registration/login/OAuth callback. Each pending
// row is claimed with a conditional UPDATE (linked_user_id IS NULL), so two
// concurrent registrations with the same email cannot both consume it: the
// claim and the activation happen together, and a loser of the race simply
// finds nothing left to link.
func (s *Service) LinkGuestPurchases(ctx context.Context, userID uint, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if userID == 0 || email == "" {
		return nil
	}

	pending, err := s.repo.FindPendingGuestSubscriptionsByEmail(email)
	if err != nil {
		return err
	}
	for i := range pending {
		row := &pending[i]
		claimed, err := s.repo.ClaimPendingGuestSubscription(row.ID, userID)
		if err != nil {
			return err
		}
		if !claimed {
			continue // consumed by a concurrent registration
		}

		sub := &models.Subscription{
			UserID:                 &userID,
			Provider:               row.Provider,
			ProviderSubscriptionID: row.ProviderSubscriptionID,
			ProviderCustomerID:     row.ProviderCustomerID,
			CheckoutSessionID:      row.CheckoutSessionID,
			PlanRef:                row.PlanRef,
			PlanType:               row.PlanType,
			Status:                 models.SubscriptionStatusPending,
			AmountCents:            row.AmountCents,
			Currency:               row.Currency,
			IncludesWhatsApp:       row.IncludesWhatsApp,
		}
		if err := s.repo.UpsertSubscription(sub); err != nil {
			return err
		}
		if row.Status != models.SubscriptionStatusActive {
			continue
		}
		result, err := s.Activate(ctx, userID, sub.ID)
		if err != nil {
			return err
		}
		log.Infof("[Billing] Linked guest subscription %s to user %d", row.ProviderSubscriptionID, userID)
		if result == Activated {
			s.notifyPurchase(userID, email, row.PlanType, row.ProviderSubscriptionID, row.IncludesWhatsApp)
		}
	}

	lifetimes, err := s.repo.FindUnlinkedLifetimePurchasesByEmail(email)
	if err != nil {
		return err
	}
	for i := range lifetimes {
		lp := &lifetimes[i]
		claimed, err := s.repo.ClaimLifetimePurchase(lp.ID, userID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		if lp.Status != models.LifetimeStatusCompleted {
			// Claimed but not paid yet; the webhook completes it later.
			continue
		}
		// Completed at webhook time while the account did not exist; the
		// link itself is the activation moment for the new account.
		if _, err := s.CompleteLifetime(ctx, userID, lp.ID); err != nil {
			return err
		}
		log.Infof("[Billing] Linked lifetime purchase %s to user %d", lp.ProviderPaymentIntentID, userID)
		s.notifyPurchase(userID, email, "lifetime", lp.ProviderPaymentIntentID, true)
	}
	return nil
}
