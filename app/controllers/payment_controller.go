package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/andreluizvr/textora/internal/pkg/billing"
	"github.com/andreluizvr/textora/internal/pkg/env"
	"github.com/andreluizvr/textora/internal/pkg/metrics/counter"
	"github.com/andreluizvr/textora/internal/pkg/security"
	"github.com/andreluizvr/textora/internal/pkg/shortener"
	"github.com/andreluizvr/textora/internal/pkg/usercontext"
)

// HandlePaymentStatus returns the reconciliation snapshot for a payment.
// The client app polls this endpoint after the user completes checkout.
func HandlePaymentStatus(c *fiber.Ctx) error {
	paymentID := strings.TrimSpace(c.Params("id"))
	if paymentID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing payment id")
	}

	if cntErr := counter.AddStatusPoll(time.Now().Format("2006-01-02")); cntErr != nil {
		log.Debugf("[Payment] Failed to count status poll: %v", cntErr)
	}

	svc := billingService()
	status, err := svc.VerifyPayment(c.Context(), paymentID)
	if err != nil {
		log.Errorf("[Payment] Status lookup failed for %s: %v", paymentID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Status lookup failed")
	}

	return c.JSON(status)
}

// HandlePaymentActivate is the manual fallback for the "I paid but nothing
// happened" case. It links any guest purchases for the caller first, then
// tries to activate the named payment directly.
func HandlePaymentActivate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Login required")
	}

	paymentID := strings.TrimSpace(c.Params("id"))
	if paymentID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing payment id")
	}

	svc := billingService()
	profile, err := svc.ManualActivate(c.Context(), userCtx.UserID, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPurchaseNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "No purchase found for this payment id")
		case errors.Is(err, billing.ErrPaymentNotApproved):
			return jsonError(c, fiber.StatusConflict, "payment_not_approved", "Payment has not been approved yet")
		case errors.Is(err, billing.ErrNoLinkedUser):
			return jsonError(c, fiber.StatusForbidden, "forbidden", "Payment belongs to a different account")
		default:
			log.Errorf("[Payment] Manual activation failed for user %d, payment %s: %v", userCtx.UserID, paymentID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
		}
	}

	// Session plan cache is now stale, let the next request rebuild it.
	return c.JSON(fiber.Map{
		"activated":           true,
		"plan_type":           profile.PlanType,
		"subscription_status": profile.SubscriptionStatus,
	})
}

// HandleClaimPayment activates a purchase from the signed link in the
// confirmation email. The HMAC token carries the user and payment identity,
// so no session is required.
func HandleClaimPayment(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing claim token")
	}

	secret := env.GetEnv("APP_SECRET", "")
	if secret == "" {
		log.Error("[Payment] APP_SECRET not configured, cannot verify claim tokens")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Claim links are not available")
	}

	claims, err := security.VerifyClaimToken(token, secret)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_token", "Claim link is invalid or expired")
	}

	svc := billingService()
	profile, err := svc.ManualActivate(c.Context(), claims.UserID, claims.PaymentID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPurchaseNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "No purchase found for this claim link")
		case errors.Is(err, billing.ErrPaymentNotApproved):
			return jsonError(c, fiber.StatusConflict, "payment_not_approved", "Payment has not been approved yet")
		case errors.Is(err, billing.ErrNoLinkedUser):
			return jsonError(c, fiber.StatusForbidden, "forbidden", "Payment belongs to a different account")
		default:
			log.Errorf("[Payment] Claim activation failed for user %d, payment %s: %v", claims.UserID, claims.PaymentID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
		}
	}

	return c.JSON(fiber.Map{
		"activated":           true,
		"plan_type":           profile.PlanType,
		"subscription_status": profile.SubscriptionStatus,
	})
}

type registerPixRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	PlanType        string `json:"plan_type"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Email           string `json:"email"`
}

// HandleRegisterPixPayment records a PIX payment intent the client just
// created, so the reconciliation window starts before the webhook arrives.
func HandleRegisterPixPayment(c *fiber.Ctx) error {
	var req registerPixRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	userCtx := usercontext.GetUserContext(c)
	email := strings.TrimSpace(req.Email)
	if !userCtx.IsLoggedIn && email == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Guest payments require an email")
	}

	svc := billingService()
	pix, err := svc.RegisterPixPayment(c.Context(), userCtx.UserID, email, req.PaymentIntentID, req.PlanType, req.AmountCents, req.Currency)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPixPayment) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		log.Errorf("[Payment] PIX registration failed for intent %s: %v", req.PaymentIntentID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "PIX registration failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_intent_id": pix.ProviderPaymentIntentID,
		// Short order reference for support requests and receipts.
		"reference":  shortener.EncodeID(pix.ID),
		"status":     pix.Status,
		"expires_at": pix.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
