package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	ProfileSubscriptionNone     = "none"
	ProfileSubscriptionActive   = "active"
	ProfileSubscriptionPastDue  = "past_due"
	ProfileSubscriptionCanceled = "canceled"
)

// Profile stores per-user plan state. It is the single source of truth the
// rest of the product reads; only the billing activation/cancellation
// functions write PlanType and SubscriptionStatus.
type Profile struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	UserID             uint           `gorm:"uniqueIndex" json:"user_id"`
	PlanType           string         `gorm:"type:varchar(50);default:'free'" json:"plan_type"`
	SubscriptionStatus string         `gorm:"type:varchar(32);default:'none'" json:"subscription_status"`
	APIKeyHash         string         `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix       string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt    *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt   *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt    *time.Time     `json:"api_key_revoked_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "txa_"

// GetOrCreateProfile returns existing profile state or creates defaults
func GetOrCreateProfile(db *gorm.DB, userID uint) (*Profile, error) {
	var p Profile
	if err := db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			p = Profile{UserID: userID, PlanType: "free", SubscriptionStatus: ProfileSubscriptionNone}
			if err := db.Create(&p).Error; err != nil {
				return nil, err
			}
			return &p, nil
		}
		return nil, err
	}
	return &p, nil
}

// HasActiveAPIKey reports whether the user has an active API key configured
func (p *Profile) HasActiveAPIKey() bool {
	return p != nil && p.APIKeyHash != "" && p.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (p *Profile) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	p.APIKeyHash = hash
	p.APIKeyPrefix = prefix
	p.APIKeyCreatedAt = &now
	p.APIKeyRevokedAt = nil
	p.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (p *Profile) RevokeAPIKey() {
	p.APIKeyHash = ""
	p.APIKeyPrefix = ""
	now := time.Now()
	p.APIKeyRevokedAt = &now
	p.APIKeyLastUsedAt = nil
}

// TouchAPIKeyUsage updates the last-used timestamp metadata.
func (p *Profile) TouchAPIKeyUsage() {
	now := time.Now()
	p.APIKeyLastUsedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := apiKeyEncoding.EncodeToString(b)
	encoded = strings.ToLower(encoded)
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
