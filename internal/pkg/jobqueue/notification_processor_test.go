package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPurchaseEmail(t *testing.T) {
	subject, body := buildPurchaseEmail("Ana", "pro", "")
	assert.Contains(t, subject, "Textora Pro")
	assert.Contains(t, body, "Hello Ana")
	assert.NotContains(t, body, "activate it manually")

	_, body = buildPurchaseEmail("", "lifetime", "https://textora.com.br/payments/claim?token=abc")
	assert.Contains(t, body, "Hello,")
	assert.Contains(t, body, "https://textora.com.br/payments/claim?token=abc")
}

func TestBuildClaimLink(t *testing.T) {
	// No user or payment, no link regardless of configuration.
	assert.Empty(t, buildClaimLink(0, "sub_123"))
	assert.Empty(t, buildClaimLink(42, ""))

	// No APP_SECRET configured, the email goes out without a link.
	assert.Empty(t, buildClaimLink(42, "sub_123"))

	t.Setenv("APP_SECRET", "test-secret")
	link := buildClaimLink(42, "sub_123")
	assert.Contains(t, link, "/payments/claim?token=")
}
