package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/cache"
	"github.com/andreluizvr/textora/internal/pkg/entitlements"
	"gorm.io/gorm"
)

const (
	verificationCachePrefix = "payment_status:"
	verificationCacheTTL    = 30 * time.Second
)

// VerifyPayment answers the client poller. The opaque id is whatever payment
// identifier the frontend holds: a PIX/lifetime payment intent, an invoice, a
// checkout session or a provider subscription id. Terminal (ready) results
// are cached briefly so multiple open tabs do not hammer the ledger.
func (s *Service) VerifyPayment(ctx context.Context, paymentID string) (VerificationStatus, error) {
	_ = ctx
	if paymentID == "" {
		return VerificationStatus{}, ErrPurchaseNotFound
	}

	if cached, err := cache.Get(verificationCachePrefix + paymentID); err == nil && cached != "" {
		var st VerificationStatus
		if json.Unmarshal([]byte(cached), &st) == nil && st.Ready {
			return st, nil
		}
	}

	st, userID, found, err := s.lookupPayment(paymentID)
	if err != nil {
		return VerificationStatus{}, err
	}
	if !found {
		return VerificationStatus{}, ErrPurchaseNotFound
	}

	if userID != 0 {
		profile, err := s.repo.GetOrCreateProfile(userID)
		if err != nil {
			return VerificationStatus{}, err
		}
		st.ProfileActivated = entitlements.IsPremium(entitlements.Normalize(profile.PlanType))
	}
	st.Ready = st.PaymentApproved && st.ProfileActivated && st.SubscriptionCreated

	if st.Ready {
		if data, err := json.Marshal(st); err == nil {
			_ = cache.Set(verificationCachePrefix+paymentID, string(data), verificationCacheTTL)
		}
	}
	return st, nil
}

// lookupPayment resolves the opaque id across the ledger tables and fills
// the payment/subscription booleans. Resolution order mirrors how specific
// the ids are: pix intent, transaction, lifetime purchase, then subscription.
func (s *Service) lookupPayment(paymentID string) (VerificationStatus, uint, bool, error) {
	var st VerificationStatus

	if pix, err := s.repo.FindPixPaymentByIntent(paymentID); err == nil {
		st.PaymentApproved = pix.Status == models.PixStatusPaid
		userID := uint(0)
		if pix.UserID != nil {
			userID = *pix.UserID
		}
		if sub, err := s.repo.FindSubscriptionByProviderID("pix:" + paymentID); err == nil {
			st.SubscriptionCreated = sub.UserID != nil
			if userID == 0 && sub.UserID != nil {
				userID = *sub.UserID
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return st, 0, false, err
		}
		return st, userID, true, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, 0, false, err
	}

	if tx, err := s.repo.FindTransactionByPaymentIntent(paymentID); err == nil {
		return s.statusFromTransaction(tx)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, 0, false, err
	}
	if tx, err := s.repo.FindTransactionByInvoiceID(paymentID); err == nil {
		return s.statusFromTransaction(tx)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, 0, false, err
	}

	if lp, err := s.repo.FindLifetimePurchaseByPaymentIntent(paymentID); err == nil {
		st.PaymentApproved = lp.Status == models.LifetimeStatusCompleted
		st.SubscriptionCreated = lp.UserID != nil
		userID := uint(0)
		if lp.UserID != nil {
			userID = *lp.UserID
		}
		return st, userID, true, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, 0, false, err
	}

	sub, err := s.repo.FindSubscriptionByProviderID(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub, err = s.repo.FindSubscriptionByCheckoutSession(paymentID)
	}
	if err == nil {
		st.PaymentApproved = sub.Status == models.SubscriptionStatusActive
		st.SubscriptionCreated = sub.UserID != nil
		userID := uint(0)
		if sub.UserID != nil {
			userID = *sub.UserID
		}
		return st, userID, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, 0, false, err
	}

	// A guest purchase is visible to the poller before any user exists.
	return st, 0, false, nil
}

func (s *Service) statusFromTransaction(tx *models.PaymentTransaction) (VerificationStatus, uint, bool, error) {
	st := VerificationStatus{
		PaymentApproved: tx.Status == models.TransactionStatusPaid,
	}
	userID := uint(0)
	if tx.UserID != nil {
		userID = *tx.UserID
	}
	if tx.SubscriptionID != nil {
		sub, err := s.repo.FindSubscriptionByID(*tx.SubscriptionID)
		if err == nil {
			st.SubscriptionCreated = sub.UserID != nil
			if userID == 0 && sub.UserID != nil {
				userID = *sub.UserID
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return st, 0, false, err
		}
	}
	return st, userID, true, nil
}
