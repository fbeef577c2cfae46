package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Event handlers. All of them follow the same shape: dedup by external id,
// branch guest vs. authenticated, insert the ledger row, then delegate the
// cross-cutting state flip to the activation functions. Handlers run as
// independent request-scoped units; a returned error fails the webhook
// request and the processor retries, which is safe because of the dedup.

// HandleCheckoutCompleted processes a finished recurring-plan checkout.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompletedEvent) error {
	if ev.ProviderSubscriptionID == "" {
		return errors.New("checkout event without subscription id")
	}

	// Dedup: a replay that finds the row already past pending performs no
	// insert and no duplicate activation call. A pending row means the first
	// delivery failed between insert and activation, so the retry falls
	// through and the idempotent upsert + activation below finish the job.
	if existing, err := s.repo.FindSubscriptionByProviderID(ev.ProviderSubscriptionID); err == nil {
		if existing.Status != models.SubscriptionStatusPending {
			log.Infof("[Billing] Checkout replay for subscription %s ignored (status=%s)",
				ev.ProviderSubscriptionID, existing.Status)
			return nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	userID, guest, err := s.resolveBuyer(ev.UserID, ev.Email, ev.IsGuestCheckout)
	if err != nil {
		return err
	}
	if guest {
		return s.repo.CreatePendingGuestSubscription(&models.PendingGuestSubscription{
			Email:                  ev.Email,
			Provider:               models.PaymentProviderStripe,
			ProviderSubscriptionID: ev.ProviderSubscriptionID,
			ProviderCustomerID:     ev.ProviderCustomerID,
			CheckoutSessionID:      ev.CheckoutSessionID,
			PlanRef:                ev.PlanRef,
			PlanType:               ev.PlanType,
			Status:                 TranslateProviderStatus(ev.PaymentStatus),
			AmountCents:            ev.AmountCents,
			Currency:               ev.Currency,
			IncludesWhatsApp:       ev.IncludesWhatsApp,
		})
	}

	sub := &models.Subscription{
		UserID:                 &userID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: ev.ProviderSubscriptionID,
		ProviderCustomerID:     ev.ProviderCustomerID,
		CheckoutSessionID:      ev.CheckoutSessionID,
		PlanRef:                ev.PlanRef,
		PlanType:               ev.PlanType,
		Status:                 models.SubscriptionStatusPending,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		AmountCents:            ev.AmountCents,
		Currency:               ev.Currency,
		IncludesWhatsApp:       ev.IncludesWhatsApp,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", ev.ProviderSubscriptionID, err)
	}

	if TranslateProviderStatus(ev.PaymentStatus) != models.SubscriptionStatusActive {
		return nil
	}
	result, err := s.Activate(ctx, userID, sub.ID)
	if err != nil {
		return err
	}
	if result == Activated {
		s.notifyPurchase(userID, ev.Email, ev.PlanType, ev.ProviderSubscriptionID, ev.IncludesWhatsApp)
	}
	return nil
}

// HandleInvoicePaid records the charge and re-activates the subscription
// (covers both the initial invoice and dunning recovery).
func (s *Service) HandleInvoicePaid(ctx context.Context, ev InvoicePaidEvent) error {
	sub, err := s.repo.FindSubscriptionByProviderID(ev.ProviderSubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		// Out-of-order delivery: the invoice arrived before the checkout
		// event. Create a skeleton row; checkout will fill in the buyer.
		sub = &models.Subscription{
			Provider:               models.PaymentProviderStripe,
			ProviderSubscriptionID: ev.ProviderSubscriptionID,
			ProviderCustomerID:     ev.ProviderCustomerID,
			PlanRef:                "unknown",
			Status:                 models.SubscriptionStatusPending,
			AmountCents:            ev.AmountCents,
			Currency:               ev.Currency,
		}
		if err := s.repo.UpsertSubscription(sub); err != nil {
			return err
		}
	}

	tx := &models.PaymentTransaction{
		SubscriptionID:          &sub.ID,
		UserID:                  sub.UserID,
		Provider:                models.PaymentProviderStripe,
		ProviderInvoiceID:       ev.ProviderInvoiceID,
		ProviderPaymentIntentID: ev.ProviderPaymentIntentID,
		ProviderChargeID:        ev.ProviderChargeID,
		Status:                  models.TransactionStatusPaid,
		AmountCents:             ev.AmountCents,
		Currency:                ev.Currency,
		PaymentMethod:           ev.PaymentMethod,
		PaidAt:                  ev.PaidAt,
	}
	created, err := s.repo.CreateTransactionIfNotExists(tx)
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Billing] Invoice replay %s ignored", ev.ProviderInvoiceID)
		return nil
	}

	if sub.UserID == nil {
		// Guest purchase still pending linkage; no profile mutation yet.
		return nil
	}
	_, err = s.Activate(ctx, *sub.UserID, sub.ID)
	return err
}

// HandleInvoicePaymentFailed moves the subscription to past due.
func (s *Service) HandleInvoicePaymentFailed(ctx context.Context, ev InvoicePaymentFailedEvent) error {
	sub, err := s.repo.FindSubscriptionByProviderID(ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, ev.ProviderSubscriptionID)
		}
		return err
	}
	userID := uint(0)
	if sub.UserID != nil {
		userID = *sub.UserID
	}
	_, err = s.MarkPastDue(ctx, userID, sub.ID)
	return err
}

// HandleSubscriptionUpdated syncs provider-side mutations (plan change,
// period roll, cancellation scheduled or executed).
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionUpdatedEvent) error {
	sub, err := s.repo.FindSubscriptionByProviderID(ev.ProviderSubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		sub = &models.Subscription{
			Provider:               models.PaymentProviderStripe,
			ProviderSubscriptionID: ev.ProviderSubscriptionID,
			PlanRef:                ev.PlanRef,
			Status:                 models.SubscriptionStatusPending,
		}
	}
	if ev.PlanRef != "" {
		sub.PlanRef = ev.PlanRef
	}
	sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}

	userID := uint(0)
	if sub.UserID != nil {
		userID = *sub.UserID
	}
	switch TranslateProviderStatus(ev.Status) {
	case models.SubscriptionStatusActive:
		if sub.UserID == nil {
			return nil
		}
		_, err = s.Activate(ctx, userID, sub.ID)
	case models.SubscriptionStatusPastDue:
		_, err = s.MarkPastDue(ctx, userID, sub.ID)
	case models.SubscriptionStatusCanceled:
		_, err = s.Cancel(ctx, userID, sub.ID)
	default:
		// pending: the upsert above already refreshed the row
	}
	return err
}

// HandleSubscriptionDeleted cancels a subscription terminally.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, ev SubscriptionDeletedEvent) error {
	sub, err := s.repo.FindSubscriptionByProviderID(ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Never tracked locally; nothing to cancel and a retry would not
			// change that.
			log.Warnf("[Billing] Delete event for unknown subscription %s ignored", ev.ProviderSubscriptionID)
			return nil
		}
		return err
	}
	userID := uint(0)
	if sub.UserID != nil {
		userID = *sub.UserID
	}
	_, err = s.Cancel(ctx, userID, sub.ID)
	return err
}

// HandlePixSucceeded confirms a PIX payment and grants the purchased plan.
func (s *Service) HandlePixSucceeded(ctx context.Context, ev PixSucceededEvent) error {
	pix, err := s.repo.FindPixPaymentByIntent(ev.ProviderPaymentIntentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		// The QR registration never reached us; reconstruct the attempt from
		// the event payload so the ledger stays complete.
		pix = s.pixFromEvent(ev)
		if err := s.repo.CreatePixPayment(pix); err != nil {
			return err
		}
	}
	if pix.IsTerminal() {
		log.Infof("[Billing] PIX replay for intent %s ignored (status=%s)", ev.ProviderPaymentIntentID, pix.Status)
		return nil
	}

	flipped, err := s.repo.UpdatePixStatusCAS(ev.ProviderPaymentIntentID, models.PixStatusPaid,
		[]string{models.PixStatusPending})
	if err != nil {
		return err
	}
	if !flipped {
		// Lost the race against another delivery or the expiry sweeper;
		// terminal states are not revisited.
		return nil
	}

	userID := pixOwner(pix, ev)
	email := firstNonEmptyString(pix.Email, ev.Email)
	if userID == 0 && email != "" {
		if u, err := s.repo.FindUserByEmail(email); err == nil {
			userID = u.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	providerSubID := "pix:" + ev.ProviderPaymentIntentID
	planType := firstNonEmptyString(pix.PlanType, ev.PlanType, "pro")
	if userID == 0 {
		return s.repo.CreatePendingGuestSubscription(&models.PendingGuestSubscription{
			Email:                  email,
			Provider:               models.PaymentProviderStripe,
			ProviderSubscriptionID: providerSubID,
			PlanRef:                "pix",
			PlanType:               planType,
			Status:                 models.SubscriptionStatusActive,
			AmountCents:            ev.AmountCents,
			Currency:               ev.Currency,
		})
	}

	periodEnd := time.Now().AddDate(0, 1, 0)
	sub := &models.Subscription{
		UserID:                 &userID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: providerSubID,
		PlanRef:                "pix",
		PlanType:               planType,
		Status:                 models.SubscriptionStatusPending,
		CurrentPeriodEnd:       &periodEnd,
		AmountCents:            ev.AmountCents,
		Currency:               ev.Currency,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}
	now := time.Now()
	if _, err := s.repo.CreateTransactionIfNotExists(&models.PaymentTransaction{
		SubscriptionID:          &sub.ID,
		UserID:                  &userID,
		Provider:                models.PaymentProviderStripe,
		ProviderInvoiceID:       providerSubID,
		ProviderPaymentIntentID: ev.ProviderPaymentIntentID,
		Status:                  models.TransactionStatusPaid,
		AmountCents:             ev.AmountCents,
		Currency:                ev.Currency,
		PaymentMethod:           "pix",
		PaidAt:                  &now,
	}); err != nil {
		return err
	}

	result, err := s.Activate(ctx, userID, sub.ID)
	if err != nil {
		return err
	}
	if result == Activated {
		s.notifyPurchase(userID, email, planType, ev.ProviderPaymentIntentID, false)
	}
	return nil
}

// HandlePixFailed terminates a PIX attempt without payment.
func (s *Service) HandlePixFailed(ctx context.Context, ev PixFailedEvent) error {
	_ = ctx
	flipped, err := s.repo.UpdatePixStatusCAS(ev.ProviderPaymentIntentID, models.PixStatusFailed,
		[]string{models.PixStatusPending})
	if err != nil {
		return err
	}
	if !flipped {
		log.Infof("[Billing] PIX failure for intent %s ignored (unknown or terminal)", ev.ProviderPaymentIntentID)
	}
	return nil
}

// HandleLifetimeCompleted records a one-time purchase and grants the
// lifetime plan.
func (s *Service) HandleLifetimeCompleted(ctx context.Context, ev LifetimeCompletedEvent) error {
	if ev.ProviderPaymentIntentID == "" {
		return errors.New("lifetime event without payment intent id")
	}

	userID, guest, err := s.resolveBuyer(ev.UserID, ev.Email, ev.UserID == 0)
	if err != nil {
		return err
	}

	lp := &models.LifetimePurchase{
		Email:                   ev.Email,
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: ev.ProviderPaymentIntentID,
		CheckoutSessionID:       ev.CheckoutSessionID,
		AmountCents:             ev.AmountCents,
		Currency:                ev.Currency,
		Status:                  models.LifetimeStatusPending,
		PromoCode:               ev.PromoCode,
	}
	if !guest {
		lp.UserID = &userID
	}
	created, err := s.repo.CreateLifetimePurchaseIfNotExists(lp)
	if err != nil {
		return err
	}
	if !created {
		// Replay. Only a still-pending row needs anything: the first
		// delivery recorded the purchase but never completed it.
		stored, err := s.repo.FindLifetimePurchaseByPaymentIntent(ev.ProviderPaymentIntentID)
		if err != nil {
			return err
		}
		if stored.Status != models.LifetimeStatusPending {
			log.Infof("[Billing] Lifetime replay for intent %s ignored", ev.ProviderPaymentIntentID)
			return nil
		}
		lp = stored
		if stored.UserID != nil {
			userID = *stored.UserID
			guest = false
		}
	}

	if TranslateProviderStatus(ev.PaymentStatus) != models.SubscriptionStatusActive {
		return nil
	}
	if guest {
		// Completed payment for an account that does not exist yet; the
		// linking resolver finishes the job at registration time.
		if _, err := s.repo.CompleteLifetimePurchaseCAS(lp.ID); err != nil {
			return err
		}
		return nil
	}

	result, err := s.CompleteLifetime(ctx, userID, lp.ID)
	if err != nil {
		return err
	}
	if result == Activated {
		s.notifyPurchase(userID, ev.Email, "lifetime", ev.ProviderPaymentIntentID, true)
	}
	return nil
}

// resolveBuyer decides the guest vs. authenticated branch. A guest checkout
// whose email already belongs to a registered user is treated as that user.
func (s *Service) resolveBuyer(eventUserID uint, email string, guestHint bool) (uint, bool, error) {
	if eventUserID != 0 {
		return eventUserID, false, nil
	}
	if !guestHint && email == "" {
		return 0, false, errors.New("event carries neither user id nor email")
	}
	if email != "" {
		u, err := s.repo.FindUserByEmail(email)
		if err == nil {
			return u.ID, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, err
		}
	}
	return 0, true, nil
}

func (s *Service) pixFromEvent(ev PixSucceededEvent) *models.PixPayment {
	p := &models.PixPayment{
		Email:                   ev.Email,
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: ev.ProviderPaymentIntentID,
		PlanType:                firstNonEmptyString(ev.PlanType, "pro"),
		AmountCents:             ev.AmountCents,
		Currency:                ev.Currency,
		Status:                  models.PixStatusPending,
		ExpiresAt:               time.Now().Add(PixExpiry),
	}
	if ev.UserID != 0 {
		uid := ev.UserID
		p.UserID = &uid
	}
	return p
}

func pixOwner(pix *models.PixPayment, ev PixSucceededEvent) uint {
	if pix.UserID != nil {
		return *pix.UserID
	}
	return ev.UserID
}

func firstNonEmptyString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
