package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationEmailPayloadRoundTrip(t *testing.T) {
	payload := NotificationEmailJobPayload{
		UserID:     42,
		Email:      "alice@example.com",
		PlanType:   "pro",
		PaymentRef: "sub_123",
	}

	restored, err := NotificationEmailJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestCompanionActivationPayloadRoundTrip(t *testing.T) {
	payload := CompanionActivationJobPayload{UserID: 42, PlanType: "lifetime"}

	restored, err := CompanionActivationJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestWebhookArchivePayloadRoundTrip(t *testing.T) {
	payload := WebhookArchiveJobPayload{
		WebhookEventID:  7,
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "invoice.paid",
	}

	restored, err := WebhookArchiveJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestJobLifecycleMarkers(t *testing.T) {
	job := &Job{
		ID:         "test-job",
		Type:       JobTypeNotificationEmail,
		Status:     JobStatusPending,
		MaxRetries: 2,
		CreatedAt:  time.Now(),
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("smtp timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsFailed("smtp timeout")
	assert.Equal(t, 2, job.RetryCount)
	assert.False(t, job.IsRetryable(), "retries exhausted")

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}
