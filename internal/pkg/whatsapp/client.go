package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/andreluizvr/textora/internal/pkg/env"
)

// The WhatsApp companion runs as a separate service; plan activations are
// pushed to it over its internal HTTP API.

type activationRequest struct {
	UserID   uint   `json:"user_id"`
	PlanType string `json:"plan_type"`
	Number   string `json:"number,omitempty"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IsConfigured reports whether the companion service endpoint is set.
func IsConfigured() bool {
	return env.GetEnv("WHATSAPP_API_URL", "") != ""
}

// ActivateEntitlement tells the companion service a user's plan now includes
// WhatsApp access.
func ActivateEntitlement(ctx context.Context, userID uint, planType, number string) error {
	baseURL := env.GetEnv("WHATSAPP_API_URL", "")
	if baseURL == "" {
		return fmt.Errorf("WHATSAPP_API_URL is not set")
	}

	body, err := json.Marshal(activationRequest{
		UserID:   userID,
		PlanType: planType,
		Number:   number,
	})
	if err != nil {
		return fmt.Errorf("failed to encode activation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/internal/entitlements/activate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build activation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := env.GetEnv("WHATSAPP_API_KEY", ""); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to companion API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("companion API returned status %d", resp.StatusCode)
	}

	var response apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode companion API response: %w", err)
	}
	if !response.Success {
		msg := "companion activation failed"
		if response.Error != "" {
			msg = msg + ": " + response.Error
		}
		return fmt.Errorf("%s", msg)
	}

	return nil
}
