package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotificationEmail   JobType = "notification_email"
	JobTypeCompanionActivation JobType = "companion_activation"
	JobTypeWebhookArchive      JobType = "webhook_archive"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// NotificationEmailJobPayload carries the purchase-completed email data.
// PaymentRef is the provider payment identifier, used to mint the signed
// claim link embedded in the email.
type NotificationEmailJobPayload struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	PlanType   string `json:"plan_type"`
	PaymentRef string `json:"payment_ref"`
}

// ToMap converts the payload to a map for storage
func (p NotificationEmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     p.UserID,
		"email":       p.Email,
		"plan_type":   p.PlanType,
		"payment_ref": p.PaymentRef,
	}
}

// FromMap creates a payload from a map
func NotificationEmailJobPayloadFromMap(data map[string]interface{}) (*NotificationEmailJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload NotificationEmailJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// CompanionActivationJobPayload carries the WhatsApp companion entitlement
// activation. Companion activation is an isolated side effect: its failure
// never blocks or reverts the primary plan activation.
type CompanionActivationJobPayload struct {
	UserID   uint   `json:"user_id"`
	PlanType string `json:"plan_type"`
}

// ToMap converts the payload to a map for storage
func (p CompanionActivationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   p.UserID,
		"plan_type": p.PlanType,
	}
}

// FromMap creates a payload from a map
func CompanionActivationJobPayloadFromMap(data map[string]interface{}) (*CompanionActivationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload CompanionActivationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// WebhookArchiveJobPayload identifies a stored webhook event whose raw
// payload should be copied to long-term object storage.
type WebhookArchiveJobPayload struct {
	WebhookEventID  uint   `json:"webhook_event_id"`
	Provider        string `json:"provider"`
	ProviderEventID string `json:"provider_event_id"`
	EventType       string `json:"event_type"`
}

// ToMap converts the payload to a map for storage
func (p WebhookArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"webhook_event_id":  p.WebhookEventID,
		"provider":          p.Provider,
		"provider_event_id": p.ProviderEventID,
		"event_type":        p.EventType,
	}
}

// FromMap creates a payload from a map
func WebhookArchiveJobPayloadFromMap(data map[string]interface{}) (*WebhookArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookArchiveJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
