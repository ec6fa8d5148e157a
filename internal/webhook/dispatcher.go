package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type DispatcherConfig struct {
	BufferSize     int
	Workers        int
	EnqueueTimeout time.Duration
}

// Dispatcher fans domain events out to webhook subscribers. Publish never
// blocks the caller; a full buffer drops the event.
type Dispatcher struct {
	subs    repository.SubscriptionRepository
	queue   JobQueue
	events  chan domain.Event
	cfg     DispatcherConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDispatcher(subs repository.SubscriptionRepository, queue JobQueue, cfg DispatcherConfig, log zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}
	return &Dispatcher{
		subs:    subs,
		queue:   queue,
		events:  make(chan domain.Event, cfg.BufferSize),
		cfg:     cfg,
		log:     log.With().Str("component", "webhook-dispatcher").Logger(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Publish(event domain.Event) {
	select {
	case d.events <- event:
		d.metrics.WebhookEvent("accepted")
	default:
		d.metrics.WebhookEvent("dropped")
		d.log.Warn().
			Str("event_id", event.ID).
			Str("event", event.Name).
			Str("tenant_id", event.TenantID).
			Msg("webhook buffer full, event dropped")
	}
}

// Run processes published events until ctx is cancelled, then drains what is
// already buffered and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.handle(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.events:
					d.handle(ev)
				default:
					return
				}
			}
		}
	}
}

// handle runs detached from any request context with its own short deadline.
func (d *Dispatcher) handle(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EnqueueTimeout)
	defer cancel()

	if err := d.enqueueEvent(ctx, ev); err != nil {
		d.metrics.WebhookEvent("failed")
		d.log.Error().Err(err).
			Str("event_id", ev.ID).
			Str("event", ev.Name).
			Str("tenant_id", ev.TenantID).
			Msg("failed to enqueue webhook deliveries")
		return
	}
	d.metrics.WebhookEvent("enqueued")
}

// Enqueue places one delivery job per matching active subscription on the
// queue. No matching subscription is not an error.
func (d *Dispatcher) Enqueue(ctx context.Context, tenantID, eventName string, payload map[string]any) error {
	return d.enqueueEvent(ctx, domain.Event{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       eventName,
		OccurredAt: d.now(),
		Payload:    payload,
	})
}

func (d *Dispatcher) enqueueEvent(ctx context.Context, ev domain.Event) error {
	subs, err := d.subs.ListActiveSubscriptions(ctx, ev.TenantID, ev.Name)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	jobs := make([]domain.DeliveryJob, 0, len(subs))
	for _, sub := range subs {
		if sub.TenantID != ev.TenantID || !sub.Matches(ev.Name) {
			continue
		}
		jobs = append(jobs, domain.DeliveryJob{
			ID:             uuid.NewString(),
			EventID:        ev.ID,
			SubscriptionID: sub.ID,
			TenantID:       ev.TenantID,
			URL:            sub.URL,
			EventName:      ev.Name,
			Payload:        body,
			CreatedAt:      d.now(),
		})
	}
	if len(jobs) == 0 {
		return nil
	}

	if err := d.queue.EnqueueJobs(ctx, jobs); err != nil {
		return err
	}

	d.log.Debug().
		Str("event_id", ev.ID).
		Str("event", ev.Name).
		Int("jobs", len(jobs)).
		Msg("webhook deliveries enqueued")
	return nil
}
