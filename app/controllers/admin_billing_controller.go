package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/andreluizvr/textora/app/repository"
	"github.com/andreluizvr/textora/internal/pkg/metrics/counter"
	"github.com/andreluizvr/textora/internal/pkg/statistics"
)

// AdminBillingController serves the billing operations views: subscription
// state, stuck webhook events, unclaimed guest purchases.
type AdminBillingController struct {
	billingRepo repository.BillingRepository
	userRepo    repository.UserRepository
}

// NewAdminBillingController creates a new admin billing controller with repositories
func NewAdminBillingController(billingRepo repository.BillingRepository, userRepo repository.UserRepository) *AdminBillingController {
	return &AdminBillingController{
		billingRepo: billingRepo,
		userRepo:    userRepo,
	}
}

// HandleBillingOverview returns aggregate billing state for the dashboard.
func (abc *AdminBillingController) HandleBillingOverview(c *fiber.Ctx) error {
	statusCounts, err := abc.billingRepo.CountSubscriptionsByStatus()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count subscriptions")
	}

	userCount, err := abc.userRepo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	pendingGuests, err := abc.billingRepo.ListPendingGuestSubscriptions(100)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load guest purchases")
	}

	// Events older than an hour that never finished processing have
	// exhausted provider retries and need a manual replay.
	stuck, err := abc.billingRepo.ListUnprocessedWebhookEvents(time.Now().Add(-1*time.Hour), 100)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load webhook events")
	}

	stats := statistics.GetStatisticsData()

	counters, err := counter.Read()
	if err != nil {
		// Counters are best-effort, the overview is still useful without them.
		counters = counter.Snapshot{}
	}

	return c.JSON(fiber.Map{
		"users":                   userCount,
		"subscriptions_by_status": statusCounts,
		"active_subscriptions":    stats.ActiveSubscriptions,
		"payments_today":          stats.TodayPayments,
		"unclaimed_guest_count":   len(pendingGuests),
		"stuck_webhook_events":    stuck,
		"pending_guest_purchases": pendingGuests,
		"counters":                counters,
	})
}

// HandleListSubscriptions returns a paginated subscription list with owners.
func (abc *AdminBillingController) HandleListSubscriptions(c *fiber.Ctx) error {
	offset, limit := paginationParams(c)

	subs, err := abc.billingRepo.ListSubscriptions(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscriptions")
	}

	items := make([]fiber.Map, 0, len(subs))
	for _, entry := range subs {
		item := fiber.Map{"subscription": entry.Subscription}
		if entry.User != nil {
			item["user"] = fiber.Map{
				"id":    entry.User.ID,
				"name":  entry.User.Name,
				"email": entry.User.Email,
			}
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{"subscriptions": items, "offset": offset, "limit": limit})
}

// HandleListTransactions returns the most recent payment transactions.
func (abc *AdminBillingController) HandleListTransactions(c *fiber.Ctx) error {
	_, limit := paginationParams(c)

	txs, err := abc.billingRepo.ListRecentTransactions(limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load transactions")
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// HandleListWebhookEvents returns the most recent webhook events.
func (abc *AdminBillingController) HandleListWebhookEvents(c *fiber.Ctx) error {
	_, limit := paginationParams(c)

	events, err := abc.billingRepo.ListRecentWebhookEvents(limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load webhook events")
	}
	return c.JSON(fiber.Map{"webhook_events": events})
}

// HandleListLifetimePurchases returns a paginated lifetime purchase list.
func (abc *AdminBillingController) HandleListLifetimePurchases(c *fiber.Ctx) error {
	offset, limit := paginationParams(c)

	purchases, err := abc.billingRepo.ListLifetimePurchases(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load lifetime purchases")
	}
	return c.JSON(fiber.Map{"lifetime_purchases": purchases, "offset": offset, "limit": limit})
}

// HandleListExpiringPix returns pending PIX payments close to their window.
func (abc *AdminBillingController) HandleListExpiringPix(c *fiber.Ctx) error {
	_, limit := paginationParams(c)

	rows, err := abc.billingRepo.ListExpiringPixPayments(10*time.Minute, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load PIX payments")
	}
	return c.JSON(fiber.Map{"pix_payments": rows})
}

func paginationParams(c *fiber.Ctx) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	limit, _ = strconv.Atoi(c.Query("limit", "50"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}
