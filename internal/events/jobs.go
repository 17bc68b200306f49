package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// JobQueue hands analysis jobs to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job *AnalysisJob) error
	Close() error
}

// WatermillJobQueue publishes jobs as JSON messages on a topic.
type WatermillJobQueue struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewWatermillJobQueue(publisher message.Publisher, topic string, logger *slog.Logger) *WatermillJobQueue {
	return &WatermillJobQueue{publisher: publisher, topic: topic, logger: logger}
}

func (q *WatermillJobQueue) Enqueue(ctx context.Context, job *AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis job: %w", err)
	}
	msg := message.NewMessage(job.JobID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(EventAnalysisRequested))
	msg.Metadata.Set("document_id", fmt.Sprint(job.DocumentID))

	if err := q.publisher.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("failed to enqueue analysis job: %w", err)
	}
	q.logger.Info("Enqueued analysis job",
		"job_id", job.JobID,
		"document_id", job.DocumentID,
		"topic", q.topic)
	return nil
}

func (q *WatermillJobQueue) Close() error {
	return q.publisher.Close()
}

// NewKafkaSubscriber creates a consumer-group subscriber for the job topic.
func NewKafkaSubscriber(brokers []string, consumerGroup string, logger *slog.Logger) (message.Subscriber, error) {
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         consumerGroup,
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}
	return subscriber, nil
}

// MockJobQueue records enqueued jobs (for testing)
type MockJobQueue struct {
	mu   sync.Mutex
	Jobs []AnalysisJob
	Err  error
}

func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{}
}

func (m *MockJobQueue) Enqueue(_ context.Context, job *AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Jobs = append(m.Jobs, *job)
	return nil
}

func (m *MockJobQueue) Close() error { return nil }

func (m *MockJobQueue) GetJobs() []AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AnalysisJob, len(m.Jobs))
	copy(out, m.Jobs)
	return out
}
