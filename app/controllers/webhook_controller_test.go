package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andreluizvr/textora/app/models"
)

func TestDispatchIgnoresUnhandledEvents(t *testing.T) {
	// Nil means the normalizer deliberately skipped the event type; the
	// delivery must still be acknowledged.
	assert.NoError(t, dispatchWebhookEvent(context.Background(), nil, nil))

	// An unexpected payload type is logged and acknowledged, not retried.
	assert.NoError(t, dispatchWebhookEvent(context.Background(), nil, struct{ X int }{1}))
}

func TestShouldReprocessWebhookEvent(t *testing.T) {
	now := time.Now()

	// First delivery died between recording and marking: the redelivery
	// must run the handler instead of being acked as a duplicate.
	assert.True(t, shouldReprocessWebhookEvent(&models.WebhookEvent{}))

	// First delivery ran but the handler failed and answered 5xx.
	assert.True(t, shouldReprocessWebhookEvent(&models.WebhookEvent{
		ProcessedAt:     &now,
		ProcessingError: "activation failed",
	}))

	// Processed cleanly: the redelivery really is a duplicate.
	assert.False(t, shouldReprocessWebhookEvent(&models.WebhookEvent{
		ProcessedAt: &now,
	}))
}
