package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	DeliveriesTopic = "webhook-deliveries"
	DeadLetterTopic = "webhook-deliveries-dlq"
)

// JobQueue hands delivery jobs to the delivery workers.
type JobQueue interface {
	EnqueueJobs(ctx context.Context, jobs []domain.DeliveryJob) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// KafkaQueue writes one message per job, keyed by subscription so a
// subscriber's deliveries stay ordered within a partition.
type KafkaQueue struct {
	writer MessageWriter
}

func NewKafkaQueue(writer MessageWriter) *KafkaQueue {
	return &KafkaQueue{writer: writer}
}

func (q *KafkaQueue) EnqueueJobs(ctx context.Context, jobs []domain.DeliveryJob) error {
	if len(jobs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(jobs))
	for _, job := range jobs {
		msg, err := jobMessage(job)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := q.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write delivery jobs: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

func jobMessage(job domain.DeliveryJob) (kafka.Message, error) {
	value, err := json.Marshal(job)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal delivery job %s: %w", job.ID, err)
	}
	return kafka.Message{
		Key:   []byte(job.SubscriptionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(job.EventName)},
			{Key: "tenant_id", Value: []byte(job.TenantID)},
		},
	}, nil
}
