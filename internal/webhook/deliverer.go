package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

type DelivererConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RequestTimeout  time.Duration
}

// Deliverer consumes delivery jobs and POSTs them to subscribers. Delivery is
// at least once: a job is committed only after it was delivered or
// dead-lettered, and the next job is not fetched before that.
type Deliverer struct {
	reader  MessageReader
	dlq     MessageWriter
	subs    repository.SubscriptionReader
	client  *http.Client
	cfg     DelivererConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDeliverer(reader MessageReader, dlq MessageWriter, subs repository.SubscriptionReader, cfg DelivererConfig, log zerolog.Logger, m *metrics.Metrics) *Deliverer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Deliverer{
		reader: reader,
		dlq:    dlq,
		subs:   subs,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.RequestTimeout,
		},
		cfg:     cfg,
		log:     log.With().Str("component", "webhook-deliverer").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

func (d *Deliverer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Msg("error reading delivery job")
			continue
		}

		// Committing a later offset would skip this job, so it is retried
		// in place until it is handled or the worker stops.
		if err := d.processUntilHandled(ctx, msg); err != nil {
			return
		}

		if err := d.reader.CommitMessages(ctx, msg); err != nil {
			d.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit delivery job")
		}
	}
}

func (d *Deliverer) processUntilHandled(ctx context.Context, msg kafka.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.process(ctx, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.log.Error().Err(err).
				Int64("offset", msg.Offset).
				Dur("retry_in", next).
				Msg("delivery job not handled, retrying")
		}),
	)
	return err
}

// process returns an error only when the job could be neither delivered nor
// dead-lettered.
func (d *Deliverer) process(ctx context.Context, msg kafka.Message) error {
	var job domain.DeliveryJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		d.log.Error().Err(err).Int64("offset", msg.Offset).Msg("undecodable delivery job, dead-lettering")
		return d.deadLetter(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers})
	}

	sub, err := d.subs.GetSubscription(ctx, job.TenantID, job.SubscriptionID)
	switch {
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		return d.discard(ctx, job, "subscription no longer exists")
	case err != nil:
		return fmt.Errorf("load subscription %s: %w", job.SubscriptionID, err)
	case !sub.Active:
		return d.discard(ctx, job, "subscription is inactive")
	}
	job.URL = sub.URL

	err = d.Deliver(ctx, &job, sub.Secret)
	if err == nil {
		d.metrics.WebhookDelivery("delivered")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	outcome := "exhausted"
	if IsPermanent(err) {
		outcome = "rejected"
	}
	d.metrics.WebhookDelivery(outcome)
	d.log.Warn().Err(err).
		Str("job_id", job.ID).
		Str("subscription_id", job.SubscriptionID).
		Int("attempts", job.Attempt).
		Msg("webhook delivery failed, dead-lettering")

	job.LastError = err.Error()
	dead, err := jobMessage(job)
	if err != nil {
		return err
	}
	return d.deadLetter(ctx, dead)
}

// discard dead-letters a job whose subscription can no longer receive it.
func (d *Deliverer) discard(ctx context.Context, job domain.DeliveryJob, reason string) error {
	d.metrics.WebhookDelivery("orphaned")
	d.log.Warn().
		Str("job_id", job.ID).
		Str("subscription_id", job.SubscriptionID).
		Msg(reason + ", dead-lettering")

	job.LastError = reason
	dead, err := jobMessage(job)
	if err != nil {
		return err
	}
	return d.deadLetter(ctx, dead)
}

func (d *Deliverer) deadLetter(ctx context.Context, msg kafka.Message) error {
	if err := d.dlq.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}

// Deliver POSTs the job signed with secret, with retries. It updates
// job.Attempt with the number of attempts made.
func (d *Deliverer) Deliver(ctx context.Context, job *domain.DeliveryJob, secret string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		job.Attempt++
		return struct{}{}, d.post(ctx, job, secret)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func (d *Deliverer) post(ctx context.Context, job *domain.DeliveryJob, secret string) error {
	timestamp := d.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.EventName)
	req.Header.Set(HeaderDelivery, job.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderSignature, Sign(secret, timestamp, job.Payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{Code: resp.StatusCode}
	if !retryableStatus(resp.StatusCode) {
		return backoff.Permanent(statusErr)
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, convErr := strconv.Atoi(ra); convErr == nil && secs > 0 {
			return backoff.RetryAfter(secs)
		}
	}
	return statusErr
}

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("subscriber responded %d", e.Code)
}

func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// Sign returns the signature header value for body sent at timestamp:
// "sha256=" followed by the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret string, timestamp int64, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

// IsPermanent reports whether err came from a subscriber response that will
// not succeed on retry.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !retryableStatus(se.Code)
}
