package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/internal/payment"
	"github.com/fjod/commerce-core/pkg/circuitbreaker"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MetadataValueLimit is the provider's ceiling on a single metadata value.
const MetadataValueLimit = 500

// CartReader returns the stored cart, never a cached copy.
type CartReader interface {
	LoadCart(ctx context.Context, cartID, tenantID string) (*domain.Cart, error)
}

type CartHydrator interface {
	Hydrate(ctx context.Context, cart *domain.Cart) (*domain.HydratedCart, error)
}

type CheckoutService struct {
	carts       CartReader
	hydrator    CartHydrator
	accounts    repository.PaymentAccountRepository
	payment     *PaymentHandler
	feeRate     decimal.Decimal
	environment domain.PaymentEnvironment
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

type CheckoutConfig struct {
	FeeRate     decimal.Decimal
	Environment domain.PaymentEnvironment
}

func NewCheckoutService(
	carts CartReader,
	hydrator CartHydrator,
	accounts repository.PaymentAccountRepository,
	payment *PaymentHandler,
	cfg CheckoutConfig,
	log zerolog.Logger,
	m *metrics.Metrics,
) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		hydrator:    hydrator,
		accounts:    accounts,
		payment:     payment,
		feeRate:     cfg.FeeRate,
		environment: cfg.Environment,
		log:         log.With().Str("component", "checkout").Logger(),
		metrics:     m,
	}
}

// BuildSession prices the cart from the catalog and opens a provider-hosted
// checkout session routed to the tenant's connected account.
func (s *CheckoutService) BuildSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	session, err := s.buildSession(ctx, req)
	if err != nil {
		s.metrics.CheckoutSession(string(domain.KindOf(err)))
		return nil, err
	}
	s.metrics.CheckoutSession("created")
	return session, nil
}

func (s *CheckoutService) buildSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	if err := validateRedirectURL("success_url", req.SuccessURL); err != nil {
		return nil, err
	}
	if err := validateRedirectURL("cancel_url", req.CancelURL); err != nil {
		return nil, err
	}

	account, err := s.readyAccount(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.LoadCart(ctx, req.CartID, req.TenantID)
	if err != nil {
		return nil, err
	}

	hydrated, err := s.hydrator.Hydrate(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(hydrated.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	params := payment.SessionParams{
		ConnectedAccountID: account.ConnectedAccountID,
		Environment:        string(s.environment),
		Currency:           hydrated.Currency,
		LineItems:          make([]payment.LineItem, 0, len(hydrated.Lines)),
		PlatformFeeCents:   PlatformFee(hydrated.SubtotalCents, s.feeRate),
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
		Metadata: map[string]string{
			"cart_id": truncateValue(cart.ID, MetadataValueLimit),
			"items":   itemsMetadata(hydrated.Lines),
		},
	}
	for _, line := range hydrated.Lines {
		params.LineItems = append(params.LineItems, payment.LineItem{
			Name:            lineName(line),
			UnitAmountCents: line.UnitPriceCents,
			Quantity:        line.Quantity,
		})
	}

	paymentCtx, cancel := context.WithTimeout(ctx, s.payment.timeout)
	defer cancel()
	session, err := s.payment.provider.CreateCheckoutSession(paymentCtx, params)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrRejected):
			s.log.Warn().Err(err).
				Str("tenant_id", req.TenantID).
				Str("cart_id", req.CartID).
				Msg("payment provider rejected checkout session")
			return nil, domain.PaymentRejected(err)
		case circuitbreaker.IsOpen(err):
			s.log.Warn().Str("tenant_id", req.TenantID).Msg("payment provider circuit open, checkout refused")
		default:
			s.log.Error().Err(err).
				Str("tenant_id", req.TenantID).
				Str("cart_id", req.CartID).
				Msg("payment provider failed to create checkout session")
		}
		return nil, domain.Upstream("payment provider", err)
	}

	s.log.Info().
		Str("tenant_id", req.TenantID).
		Str("cart_id", req.CartID).
		Str("session_id", session.ID).
		Int64("subtotal_cents", hydrated.SubtotalCents).
		Int64("platform_fee_cents", params.PlatformFeeCents).
		Msg("checkout session created")

	return &domain.CheckoutSession{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func (s *CheckoutService) readyAccount(ctx context.Context, tenantID string) (*domain.PaymentAccount, error) {
	account, err := s.accounts.GetPaymentAccount(ctx, tenantID, s.environment)
	if errors.Is(err, domain.ErrPaymentAccountNotConfigured) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load payment account: %w", err)
	}
	if account.ConnectedAccountID == "" {
		return nil, domain.ErrPaymentAccountNotConfigured
	}
	if !account.OnboardingComplete {
		return nil, domain.ErrPaymentAccountSetupIncomplete
	}
	return account, nil
}

// PlatformFee is round(subtotal * rate) in cents, halves rounded away from zero.
func PlatformFee(subtotalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(rate).Round(0).IntPart()
}

type itemSummary struct {
	ProductID string `json:"p"`
	VariantID string `json:"v,omitempty"`
	Quantity  int    `json:"q"`
	Price     int64  `json:"pr"`
}

// itemsMetadata summarizes lines for reconciliation. It is lossy once it
// exceeds the provider ceiling.
func itemsMetadata(lines []domain.HydratedLine) string {
	summary := make([]itemSummary, 0, len(lines))
	for _, line := range lines {
		s := itemSummary{ProductID: line.Product.ID, Quantity: line.Quantity, Price: line.UnitPriceCents}
		if line.Variant != nil {
			s.VariantID = line.Variant.ID
		}
		summary = append(summary, s)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return ""
	}
	return truncateValue(string(data), MetadataValueLimit)
}

func truncateValue(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func lineName(line domain.HydratedLine) string {
	if line.Variant != nil && line.Variant.Title != "" {
		return line.Product.Name + " - " + line.Variant.Title
	}
	return line.Product.Name
}

func validateRedirectURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewValidationError("%s must be an absolute http(s) URL", field)
	}
	return nil
}
