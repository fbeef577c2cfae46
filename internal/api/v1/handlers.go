package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/andreluizvr/textora/app/controllers"
)

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetPaymentStatus returns the reconciliation snapshot the client polls.
// Payment ids are unguessable processor identifiers, so this endpoint is
// public: guests poll it before they have an account.
func (s *APIServer) GetPaymentStatus(c *fiber.Ctx) error {
	return controllers.HandlePaymentStatus(c)
}

// PostPaymentActivate is the authenticated manual-activation fallback.
func (s *APIServer) PostPaymentActivate(c *fiber.Ctx) error {
	return controllers.HandlePaymentActivate(c)
}

// PostPixPayment registers a PIX payment intent for reconciliation.
func (s *APIServer) PostPixPayment(c *fiber.Ctx) error {
	return controllers.HandleRegisterPixPayment(c)
}

// GetUserProfile returns account information for the authenticated user.
// Security is enforced via session or API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetUserPurchases lists the caller's subscriptions and lifetime purchases.
func (s *APIServer) GetUserPurchases(c *fiber.Ctx) error {
	return controllers.HandleGetUserPurchases(c)
}

// PostUserAPIKey issues a fresh API key for the caller.
func (s *APIServer) PostUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleIssueAPIKey(c)
}

// DeleteUserAPIKey revokes the caller's API key.
func (s *APIServer) DeleteUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleRevokeAPIKey(c)
}
