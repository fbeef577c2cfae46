package apiv1

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/andreluizvr/textora/internal/pkg/middleware"
	"github.com/andreluizvr/textora/internal/pkg/usercontext"
)

// RegisterHandlers wires the v1 endpoints onto the given router group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	apiKeyAuth := apiKeyIfPresent()

	router.Get("/ping", s.GetPing)

	// Payment reconciliation endpoints used by the client poller
	router.Get("/payments/:id/status", s.GetPaymentStatus)
	router.Post("/payments/:id/activate", apiKeyAuth, middleware.RequireAPISessionAuth, s.PostPaymentActivate)
	router.Post("/payments/pix", apiKeyAuth, s.PostPixPayment)

	// Account endpoints
	router.Get("/user/profile", apiKeyAuth, middleware.RequireAPISessionAuth, s.GetUserProfile)
	router.Get("/user/purchases", apiKeyAuth, middleware.RequireAPISessionAuth, s.GetUserPurchases)
	router.Post("/user/api-key", middleware.RequireAPISessionAuth, s.PostUserAPIKey)
	router.Delete("/user/api-key", middleware.RequireAPISessionAuth, s.DeleteUserAPIKey)
}

// apiKeyIfPresent upgrades the request with API key auth when a key is
// supplied and no session is active. Requests without a key pass through
// untouched so session auth keeps working.
func apiKeyIfPresent() fiber.Handler {
	keyAuth := middleware.APIKeyAuthMiddleware()
	return func(c *fiber.Ctx) error {
		if usercontext.IsLoggedIn(c) {
			return c.Next()
		}
		hasKey := strings.TrimSpace(c.Get("X-API-Key")) != "" ||
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.Get("Authorization"))), "bearer ")
		if !hasKey {
			return c.Next()
		}
		return keyAuth(c)
	}
}
