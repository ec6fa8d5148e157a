package domain

import "time"

type PaymentEnvironment string

const (
	EnvironmentLive    PaymentEnvironment = "live"
	EnvironmentSandbox PaymentEnvironment = "sandbox"
)

func (e PaymentEnvironment) Valid() bool {
	return e == EnvironmentLive || e == EnvironmentSandbox
}

// PaymentAccount is a tenant's connected account at the payment provider for
// one environment.
type PaymentAccount struct {
	TenantID           string
	Environment        PaymentEnvironment
	ConnectedAccountID string
	OnboardingComplete bool
}

type CheckoutRequest struct {
	CartID     string
	TenantID   string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	SessionID   string    `json:"session_id"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
