package router

import (
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/andreluizvr/textora/app/controllers"
	"github.com/andreluizvr/textora/app/repository"
	"github.com/andreluizvr/textora/internal/pkg/constants"
	"github.com/andreluizvr/textora/internal/pkg/middleware"
	"github.com/andreluizvr/textora/internal/pkg/oauth"
	"github.com/andreluizvr/textora/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Auth
	app.Post("/register", controllers.HandleRegister)
	app.Get(constants.ActivateRoute, controllers.HandleActivateAccount)
	app.Post("/login", controllers.HandleLogin)
	app.Post("/logout", middleware.RequireAuth, controllers.HandleLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Self-service activation from the purchase email (HMAC-signed token)
	app.Get(constants.PaymentClaimRoute, controllers.HandleClaimPayment)

	// Payment processor webhooks (no session, signature-verified in controller)
	app.Post(constants.WebhookRoute, controllers.HandlePaymentWebhook)
}

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	factory := repository.GetGlobalFactory()
	billingController := controllers.NewAdminBillingController(
		factory.GetBillingRepository(),
		factory.GetUserRepository(),
	)
	queueController := controllers.NewAdminQueueController(factory.GetQueueRepository())

	adminGroup := app.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/billing", billingController.HandleBillingOverview)
	adminGroup.Get("/billing/subscriptions", billingController.HandleListSubscriptions)
	adminGroup.Get("/billing/transactions", billingController.HandleListTransactions)
	adminGroup.Get("/billing/webhook-events", billingController.HandleListWebhookEvents)
	adminGroup.Get("/billing/lifetime-purchases", billingController.HandleListLifetimePurchases)
	adminGroup.Get("/billing/pix/expiring", billingController.HandleListExpiringPix)

	adminGroup.Get("/queues", queueController.HandleQueueStats)
	adminGroup.Get("/queues/keys", queueController.HandleQueueKeys)
	adminGroup.Delete("/queues/keys/:key", queueController.HandleQueueKeyDelete)
}
