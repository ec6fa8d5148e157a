package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() SessionParams {
	return SessionParams{
		ConnectedAccountID: "acct_1",
		Environment:        "sandbox",
		Currency:           "usd",
		LineItems:          []LineItem{{Name: "Tailored shirt", UnitAmountCents: 4500, Quantity: 2}},
		PlatformFeeCents:   450,
		SuccessURL:         "https://shop.example/ok",
		CancelURL:          "https://shop.example/cancel",
		Metadata:           map[string]string{"cart_id": "c1"},
	}
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "acct_1", r.Header.Get("X-Connected-Account"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1","expires_at":1760000000}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "sk_test", zerolog.Nop())
	session, err := client.CreateCheckoutSession(context.Background(), testParams())

	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, time.Date(2025, time.October, 9, 8, 53, 20, 0, time.UTC), session.ExpiresAt)
	assert.Equal(t, float64(450), got["application_fee_amount"])
	assert.NotContains(t, got, "ConnectedAccountID")
}

func TestCreateCheckoutSession_RejectedDoesNotTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", zerolog.Nop())
	for i := 0; i < 8; i++ {
		_, err := client.CreateCheckoutSession(context.Background(), testParams())
		assert.ErrorIs(t, err, ErrRejected)
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestCreateCheckoutSession_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", zerolog.Nop())
	for i := 0; i < 8; i++ {
		_, err := client.CreateCheckoutSession(context.Background(), testParams())
		assert.Error(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestCreateCheckoutSession_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, "sk_test", zerolog.Nop())
	_, err := client.CreateCheckoutSession(ctx, testParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateCheckoutSession_IncompleteSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", zerolog.Nop())
	_, err := client.CreateCheckoutSession(context.Background(), testParams())
	assert.ErrorContains(t, err, "incomplete session")
}

func TestCreateCheckoutSession_MissingExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", zerolog.Nop())
	_, err := client.CreateCheckoutSession(context.Background(), testParams())
	assert.ErrorContains(t, err, "incomplete session")
}
