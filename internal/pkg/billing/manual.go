package billing

import (
	"context"
	"errors"

	"github.com/andreluizvr/textora/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ManualActivate is the escape hatch behind "payment approved but not yet
// activated": it re-runs the activation function on demand for the payment
// the client is waiting on. Guest rows matching the caller's email are linked
// first, so a delayed webhook that landed in the pending table still resolves.
func (s *Service) ManualActivate(ctx context.Context, userID uint, paymentID string) (*models.Profile, error) {
	if userID == 0 || paymentID == "" {
		return nil, ErrPurchaseNotFound
	}

	user, err := s.repo.FindUserByID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.LinkGuestPurchases(ctx, userID, user.Email); err != nil {
		// Linking is best effort here; the direct resolution below may still
		// succeed and the next login retries the link.
		log.Warnf("[Billing] Guest link during manual activation failed for user %d: %v", userID, err)
	}

	if err := s.activateByPaymentID(ctx, userID, paymentID); err != nil {
		return nil, err
	}
	return s.repo.GetOrCreateProfile(userID)
}

func (s *Service) activateByPaymentID(ctx context.Context, userID uint, paymentID string) error {
	if pix, err := s.repo.FindPixPaymentByIntent(paymentID); err == nil {
		if pix.Status != models.PixStatusPaid {
			return ErrPaymentNotApproved
		}
		sub, err := s.repo.FindSubscriptionByProviderID("pix:" + paymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubscriptionNotFound
			}
			return err
		}
		_, err = s.Activate(ctx, userID, sub.ID)
		return err
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if lp, err := s.repo.FindLifetimePurchaseByPaymentIntent(paymentID); err == nil {
		if lp.UserID != nil && *lp.UserID != userID {
			return ErrNoLinkedUser
		}
		// Completion is set at webhook time when the provider confirms
		// payment; anything else is not ours to grant.
		if lp.Status != models.LifetimeStatusCompleted {
			return ErrPaymentNotApproved
		}
		_, err = s.CompleteLifetime(ctx, userID, lp.ID)
		return err
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	sub, err := s.repo.FindSubscriptionByProviderID(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub, err = s.repo.FindSubscriptionByCheckoutSession(paymentID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if tx, txErr := s.repo.FindTransactionByPaymentIntent(paymentID); txErr == nil && tx.SubscriptionID != nil {
			sub, err = s.repo.FindSubscriptionByID(*tx.SubscriptionID)
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPurchaseNotFound
		}
		return err
	}
	if sub.UserID != nil && *sub.UserID != userID {
		return ErrNoLinkedUser
	}
	approved := sub.Status == models.SubscriptionStatusActive ||
		sub.Status == models.SubscriptionStatusPastDue
	if !approved {
		approved, err = s.repo.HasPaidTransactionForSubscription(sub.ID)
		if err != nil {
			return err
		}
	}
	if !approved {
		return ErrPaymentNotApproved
	}
	_, err = s.Activate(ctx, userID, sub.ID)
	return err
}
