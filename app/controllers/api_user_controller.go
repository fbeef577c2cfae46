package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/app/repository"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/entitlements"
	"github.com/andreluizvr/textora/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user (API key or session).
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	db := database.GetDB()
	if db == nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}
	profile, err := models.GetOrCreateProfile(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load profile")
	}

	plan := entitlements.Normalize(profile.PlanType)
	unlimited, rewriting, whatsapp := entitlements.AllowedFeatures(plan)

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"plan":                 string(plan),
		"subscription_status":  profile.SubscriptionStatus,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"api_key_last_used_at": formatTimePtr(profile.APIKeyLastUsedAt),
		"features": fiber.Map{
			"unlimited_documents": unlimited,
			"ai_rewriting":        rewriting,
			"whatsapp_companion":  whatsapp,
		},
	})
}

// HandleGetUserPurchases lists the caller's subscriptions and lifetime purchases.
func HandleGetUserPurchases(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	db := database.GetDB()
	var subs []models.Subscription
	if err := db.Where("user_id = ?", userCtx.UserID).Order("created_at DESC").Find(&subs).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscriptions")
	}
	var lifetimes []models.LifetimePurchase
	if err := db.Where("user_id = ?", userCtx.UserID).Order("created_at DESC").Find(&lifetimes).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load purchases")
	}

	return c.JSON(fiber.Map{
		"subscriptions":      subs,
		"lifetime_purchases": lifetimes,
	})
}

// HandleIssueAPIKey generates a new API key for the caller. The raw secret
// is returned exactly once.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	db := database.GetDB()
	profile, err := models.GetOrCreateProfile(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load profile")
	}

	rawKey, err := profile.IssueAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}
	if err := db.Save(profile).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	return c.JSON(fiber.Map{
		"api_key":    rawKey,
		"prefix":     profile.APIKeyPrefix,
		"created_at": formatTimePtr(profile.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey revokes the caller's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	db := database.GetDB()
	profile, err := models.GetOrCreateProfile(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load profile")
	}

	profile.RevokeAPIKey()
	if err := db.Save(profile).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to revoke API key")
	}

	return c.JSON(fiber.Map{"revoked": true})
}
