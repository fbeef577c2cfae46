package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/andreluizvr/textora/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Sentinel errors surfaced to callers. Webhook handlers log them and rely on
// the processor's retry policy; the manual activation endpoint translates
// them into user-visible error codes.
var (
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrPurchaseNotFound     = errors.New("billing: purchase not found")
	ErrPaymentNotApproved   = errors.New("billing: payment not approved yet")
	ErrNoLinkedUser         = errors.New("billing: purchase has no linked user")
)

// ActivationResult describes the outcome of an idempotent state transition.
type ActivationResult int

const (
	// Activated means this call performed the flip.
	Activated ActivationResult = iota
	// AlreadyDone means the row was already in the target state (no-op success).
	AlreadyDone
	// Superseded means a more authoritative terminal state (cancellation) won.
	Superseded
)

// Notifier receives fire-and-forget side effects. Implementations must never
// block activation; failures are logged by the caller and retried out of band.
type Notifier interface {
	PurchaseCompleted(userID uint, email, planType, paymentRef string)
	CompanionActivation(userID uint, planType string)
}

// Service implements the subscription activation reconciliation engine: the
// event handlers, the idempotent activation function, the guest linking
// resolver and the verification query all live here.
type Service struct {
	repo     Repository
	notifier Notifier
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, notifier Notifier) *Service {
	return NewService(NewRepository(db), notifier)
}

// Activate flips a subscription to active and reconciles the owning user's
// profile. Safe to call an arbitrary number of times for the same id: webhook
// retries and manual clicks racing each other all converge on one row state.
func (s *Service) Activate(ctx context.Context, userID, subscriptionID uint) (ActivationResult, error) {
	_ = ctx
	if subscriptionID == 0 {
		return Superseded, ErrSubscriptionNotFound
	}

	flipped, err := s.repo.UpdateSubscriptionStatusCAS(subscriptionID, models.SubscriptionStatusActive, activationSources)
	if err != nil {
		return Superseded, err
	}

	result := Activated
	if !flipped {
		sub, err := s.repo.FindSubscriptionByID(subscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Superseded, ErrSubscriptionNotFound
			}
			return Superseded, err
		}
		switch sub.Status {
		case models.SubscriptionStatusActive:
			result = AlreadyDone
		case models.SubscriptionStatusCanceled:
			// Cancellation is terminal; the replayed activation must not
			// resurrect it. Still reconcile so the profile reflects reality.
			result = Superseded
		default:
			result = AlreadyDone
		}
	}

	if err := s.reconcileProfile(userID); err != nil {
		return result, err
	}
	return result, nil
}

// Cancel moves a subscription to its terminal state and downgrades the
// profile unless another entitling purchase keeps it premium.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID uint) (ActivationResult, error) {
	_ = ctx
	flipped, err := s.repo.UpdateSubscriptionStatusCAS(subscriptionID, models.SubscriptionStatusCanceled, cancellationSources)
	if err != nil {
		return Superseded, err
	}
	result := Activated
	if !flipped {
		// Either already canceled (replay) or the row is gone.
		if _, err := s.repo.FindSubscriptionByID(subscriptionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Superseded, ErrSubscriptionNotFound
			}
			return Superseded, err
		}
		result = AlreadyDone
	}
	if err := s.reconcileProfile(userID); err != nil {
		return result, err
	}
	return result, nil
}

// MarkPastDue records a failed renewal. Past-due keeps the plan entitling but
// visible as degraded; a later successful invoice flips it back to active.
func (s *Service) MarkPastDue(ctx context.Context, userID, subscriptionID uint) (ActivationResult, error) {
	_ = ctx
	flipped, err := s.repo.UpdateSubscriptionStatusCAS(subscriptionID, models.SubscriptionStatusPastDue, pastDueSources)
	if err != nil {
		return Superseded, err
	}
	result := Activated
	if !flipped {
		sub, err := s.repo.FindSubscriptionByID(subscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Superseded, ErrSubscriptionNotFound
			}
			return Superseded, err
		}
		if sub.Status == models.SubscriptionStatusCanceled {
			result = Superseded
		} else {
			result = AlreadyDone
		}
	}
	if err := s.reconcileProfile(userID); err != nil {
		return result, err
	}
	return result, nil
}

// CompleteLifetime marks a one-time purchase as completed and upgrades the
// owner's profile to the lifetime plan.
func (s *Service) CompleteLifetime(ctx context.Context, userID, purchaseID uint) (ActivationResult, error) {
	_ = ctx
	flipped, err := s.repo.CompleteLifetimePurchaseCAS(purchaseID)
	if err != nil {
		return Superseded, err
	}
	result := Activated
	if !flipped {
		result = AlreadyDone
	}
	if err := s.reconcileProfile(userID); err != nil {
		return result, err
	}
	return result, nil
}

// reconcileProfile derives the profile plan fields from the ledger and
// writes them with a single conditional UPDATE. Because the derivation is a
// pure function of stored row states, concurrent callers converge.
func (s *Service) reconcileProfile(userID uint) error {
	if userID == 0 {
		return nil // guest rows have no profile yet
	}

	if _, err := s.repo.GetOrCreateProfile(userID); err != nil {
		return err
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return err
	}
	lifetimes, err := s.repo.ListLifetimePurchasesByUser(userID)
	if err != nil {
		return err
	}

	planType, subStatus := deriveProfileState(subs, lifetimes)
	changed, err := s.repo.UpdateProfileStateCAS(userID, planType, subStatus)
	if err != nil {
		return err
	}
	if changed {
		log.Infof("[Billing] Profile reconciled for user %d: plan=%s status=%s", userID, planType, subStatus)
	}
	return nil
}

// notifyPurchase dispatches the fire-and-forget purchase side effects.
// Failures never propagate: partial success is acceptable and must be
// visible in logs, not in the activation result.
func (s *Service) notifyPurchase(userID uint, email, planType, paymentRef string, includesWhatsApp bool) {
	if s.notifier == nil {
		return
	}
	s.notifier.PurchaseCompleted(userID, email, planType, paymentRef)
	if includesWhatsApp {
		s.notifier.CompanionActivation(userID, planType)
	}
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
