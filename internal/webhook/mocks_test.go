package webhook

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/segmentio/kafka-go"
)

type MockSubscriptions struct {
	mu    sync.Mutex
	Subs  []domain.WebhookSubscription
	Err   error
	Calls int
}

func (m *MockSubscriptions) ListActiveSubscriptions(_ context.Context, tenantID, _ string) ([]domain.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.WebhookSubscription
	for _, s := range m.Subs {
		if s.TenantID == tenantID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockSubscriptions) GetSubscription(_ context.Context, tenantID, subscriptionID string) (*domain.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.Subs {
		if s.ID == subscriptionID && s.TenantID == tenantID {
			sub := s
			return &sub, nil
		}
	}
	return nil, repository.ErrSubscriptionNotFound
}

func (m *MockSubscriptions) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func (m *MockSubscriptions) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

type MockQueue struct {
	mu   sync.Mutex
	Jobs []domain.DeliveryJob
	Err  error
}

func (m *MockQueue) EnqueueJobs(_ context.Context, jobs []domain.DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Jobs = append(m.Jobs, jobs...)
	return nil
}

func (m *MockQueue) jobs() []domain.DeliveryJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeliveryJob(nil), m.Jobs...)
}

// MockWriter always fails with Err when it is set. Otherwise the first
// FailWrites calls fail with errBroker.
type MockWriter struct {
	mu         sync.Mutex
	Messages   []kafka.Message
	Err        error
	FailWrites int
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	if w.FailWrites > 0 {
		w.FailWrites--
		return errBroker
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error { return nil }

func (w *MockWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.Messages...)
}

// MockReader serves queued messages and then blocks until ctx is done.
type MockReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	Committed []kafka.Message
}

func NewMockReader(msgs ...kafka.Message) *MockReader {
	return &MockReader{pending: msgs}
}

func (r *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *MockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Committed = append(r.Committed, msgs...)
	return nil
}

func (r *MockReader) Close() error { return nil }

func (r *MockReader) committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Committed)
}

func (r *MockReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.Committed))
	for _, m := range r.Committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

var errBroker = errors.New("broker unavailable")
