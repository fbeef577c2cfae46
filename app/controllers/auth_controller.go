package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/constants"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/env"
	"github.com/andreluizvr/textora/internal/pkg/hcaptcha"
	"github.com/andreluizvr/textora/internal/pkg/mail"
	"github.com/andreluizvr/textora/internal/pkg/session"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new account. The account starts inactive until
// the emailed activation link is used; guest purchases made with the same
// email are linked once the account activates.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	if env.GetEnv("HCAPTCHA_SECRET", "") != "" {
		valid, err := hcaptcha.Verify(req.CaptchaToken)
		if err != nil || !valid {
			log.Warnf("[Auth] Captcha validation failed: %v", err)
			return jsonError(c, fiber.StatusBadRequest, "captcha_failed", "Captcha validation failed, please try again")
		}
	}

	user, err := models.CreateUser(req.Username, strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", fmt.Sprintf("Invalid registration data: %s", err))
	}

	if err := user.GenerateActivationToken(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	db := database.GetDB()
	if err := db.Create(user).Error; err != nil {
		return jsonError(c, fiber.StatusConflict, "conflict", "An account with this email already exists")
	}

	go sendActivationMail(user.Email, user.Name, user.ActivationToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      user.ID,
		"email":   user.Email,
		"status":  user.Status,
		"message": "Check your inbox for the activation link",
	})
}

// HandleActivateAccount flips an inactive account to active and links any
// guest purchases made with the account email.
func HandleActivateAccount(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing activation token")
	}

	db := database.GetDB()
	var user models.User
	if err := db.Where("activation_token = ?", token).First(&user).Error; err != nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Invalid activation token")
	}

	updates := map[string]interface{}{
		"status":           models.STATUS_ACTIVE,
		"activation_token": "",
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	linkGuestPurchases(c, user.ID, user.Email)

	return c.JSON(fiber.Map{"activated": true})
}

// HandleLogin authenticates with email and password and opens a session.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	db := database.GetDB()
	var user models.User
	// Deliberately the same error for unknown email and wrong password.
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid credentials")
	}
	if !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid credentials")
	}
	if user.Status == models.STATUS_DISABLED {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Account disabled")
	}

	if err := openUserSession(c, &user); err != nil {
		log.Errorf("[Auth] Session open failed for user %d: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}

	db.Model(&user).Update("last_login_at", time.Now())

	// Guest purchases may have arrived since the last login.
	linkGuestPurchases(c, user.ID, user.Email)

	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Name,
		"is_admin": user.Role == models.ROLE_ADMIN,
	})
}

// HandleLogout destroys the current session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	c.Locals(FROM_PROTECTED, false)
	return c.JSON(fiber.Map{"logged_out": true})
}

// openUserSession writes the identity keys and caches the plan so the
// middleware does not hit the database on every request.
func openUserSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return err
	}

	if profile, err := models.GetOrCreateProfile(database.GetDB(), user.ID); err == nil && profile != nil {
		plan := profile.PlanType
		if plan == "" {
			plan = "free"
		}
		_ = session.SetSessionValue(c, "user_plan", plan)
	}
	return nil
}

// linkGuestPurchases claims purchases made before the account existed.
// Best-effort: a failure here is retried on the next login.
func linkGuestPurchases(c *fiber.Ctx, userID uint, email string) {
	svc := billingService()
	if err := svc.LinkGuestPurchases(c.Context(), userID, email); err != nil {
		log.Errorf("[Auth] Guest purchase linking failed for user %d: %v", userID, err)
	}
}

func sendActivationMail(email, name, token string) {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "https://textora.com.br"), "/")
	link := fmt.Sprintf("%s%s?token=%s", base, constants.ActivateRoute, token)

	body := fmt.Sprintf(`<h2>Welcome to Textora, %s!</h2>
<p>Confirm your email address to activate your account:</p>
<p><a href="%s">Activate account</a></p>
<p>If you did not sign up, you can ignore this email.</p>`, name, link)

	if err := mail.SendMail(email, "Activate your Textora account", body); err != nil {
		log.Errorf("[Auth] Failed to send activation mail to %s: %v", email, err)
	}
}
