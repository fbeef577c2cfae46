package constants

// Static route constants
const (
	ActivateRoute     = "/activate"
	PaymentClaimRoute = "/payments/claim"
	WebhookRoute      = "/webhooks/payments"
)
