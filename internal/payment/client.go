package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/commerce-core/pkg/circuitbreaker"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrRejected means the provider refused the request itself. It does not
// count against the circuit breaker.
var ErrRejected = errors.New("payment provider rejected request")

type LineItem struct {
	Name            string `json:"name"`
	UnitAmountCents int64  `json:"unit_amount"`
	Quantity        int    `json:"quantity"`
}

type SessionParams struct {
	ConnectedAccountID string            `json:"-"`
	Environment        string            `json:"-"`
	Currency           string            `json:"currency"`
	LineItems          []LineItem        `json:"line_items"`
	PlatformFeeCents   int64             `json:"application_fee_amount"`
	SuccessURL         string            `json:"success_url"`
	CancelURL          string            `json:"cancel_url"`
	Metadata           map[string]string `json:"metadata"`
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// sessionResponse is the provider's wire shape; expiry is epoch seconds.
type sessionResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Session]
	log        zerolog.Logger
}

func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[*Session](circuitbreaker.Settings{
			Name: "payment-provider",
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRejected)
			},
		}, log),
		log: log,
	}
}

// CreateCheckoutSession asks the provider for a hosted checkout session on
// behalf of the connected account. The deadline comes from ctx.
func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	return c.breaker.Execute(func() (*Session, error) {
		return c.createSession(ctx, params)
	})
}

func (c *Client) createSession(ctx context.Context, params SessionParams) (*Session, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal session params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Connected-Account", params.ConnectedAccountID)
	req.Header.Set("X-Environment", params.Environment)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call payment provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("payment provider returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("payment provider rejected checkout session")
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var session sessionResponse
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("decode provider session: %w", err)
	}
	if session.ID == "" || session.URL == "" || session.ExpiresAt <= 0 {
		return nil, errors.New("payment provider returned an incomplete session")
	}
	return &Session{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: time.Unix(session.ExpiresAt, 0).UTC(),
	}, nil
}
