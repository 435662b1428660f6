// Package events publishes gesture-console lifecycle events to Kafka so
// downstream consumers (dashboards, notification workers) can react to
// submission decisions and training outcomes without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is the JSON payload written to the topic. Events with the same
// adminId key land on the same partition, preserving per-admin order.
type Event struct {
	Type         string    `json:"type"`
	AdminID      string    `json:"adminId,omitempty"`
	SubmissionID string    `json:"submissionId,omitempty"`
	RunID        string    `json:"runId,omitempty"`
	Status       string    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	SubmissionChanged(ctx context.Context, adminID, submissionID uuid.UUID, status, detail string)
	TrainingRunFinished(ctx context.Context, runID uuid.UUID, status, detail string)
	Close() error
}

// KafkaPublisher writes events through a kafka-go Writer with bounded
// retries. Publishing is best-effort: failures are logged, never propagated,
// so an unavailable broker cannot fail a pipeline run.
type KafkaPublisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

func (p *KafkaPublisher) publish(ctx context.Context, key string, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal event: %v", err)
		return
	}
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now().UTC()}

	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	log.Printf("[events] publish %s after %d attempts: %v", ev.Type, p.maxAttempts, err)
}

func (p *KafkaPublisher) SubmissionChanged(ctx context.Context, adminID, submissionID uuid.UUID, status, detail string) {
	p.publish(ctx, adminID.String(), Event{
		Type:         "submission.changed",
		AdminID:      adminID.String(),
		SubmissionID: submissionID.String(),
		Status:       status,
		Detail:       detail,
		At:           time.Now().UTC(),
	})
}

func (p *KafkaPublisher) TrainingRunFinished(ctx context.Context, runID uuid.UUID, status, detail string) {
	p.publish(ctx, runID.String(), Event{
		Type:   "training.finished",
		RunID:  runID.String(),
		Status: status,
		Detail: detail,
		At:     time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher drops all events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) SubmissionChanged(context.Context, uuid.UUID, uuid.UUID, string, string) {}
func (NopPublisher) TrainingRunFinished(context.Context, uuid.UUID, string, string)         {}
func (NopPublisher) Close() error                                                           { return nil }
