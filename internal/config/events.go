package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/SAP-F-2025/forecast-service/internal/events"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled           bool   `env:"EVENTS_ENABLED" envDefault:"true"`
	Publisher         string `env:"EVENTS_PUBLISHER" envDefault:"kafka"` // kafka or mock
	KafkaBrokers      string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	NotificationTopic string `env:"NOTIFICATION_TOPIC" envDefault:"notifications"`
	AnalysisJobTopic  string `env:"ANALYSIS_JOB_TOPIC" envDefault:"analysis.requested"`
	ConsumerGroup     string `env:"WORKER_CONSUMER_GROUP" envDefault:"forecast-worker"`
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// UsesKafka reports whether events and jobs travel over Kafka.
func (c *EventConfig) UsesKafka() bool {
	return c.Enabled && c.Publisher == "kafka"
}

// CreateEventPublisher creates an event publisher based on configuration
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, using mock publisher")
		return events.NewMockEventPublisher(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.NotificationTopic)

		return events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.NotificationTopic,
			Logger:       logger,
		})
	case "mock":
		logger.Info("Using mock event publisher")
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher type, falling back to mock", "publisher", c.Publisher)
		return events.NewMockEventPublisher(logger), nil
	}
}

// JobTransport is the pub/sub pair carrying analysis jobs.
type JobTransport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// InProcess is true when jobs never leave this process, so the server must run its own worker.
	InProcess bool
}

func (t *JobTransport) Close() error {
	pubErr := t.Publisher.Close()
	if t.InProcess {
		return pubErr
	}
	if err := t.Subscriber.Close(); err != nil {
		return err
	}
	return pubErr
}

// CreateJobTransport returns Kafka pub/sub for the job topic, or an in-process channel otherwise.
func (c *EventConfig) CreateJobTransport(logger *slog.Logger) (*JobTransport, error) {
	if !c.UsesKafka() {
		logger.Info("Using in-process job queue")
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          true,
		}, watermill.NewSlogLogger(logger))
		return &JobTransport{Publisher: ch, Subscriber: ch, InProcess: true}, nil
	}

	brokers := c.GetKafkaBrokers()
	pub, err := events.NewKafkaPublisher(brokers, logger)
	if err != nil {
		return nil, err
	}
	sub, err := events.NewKafkaSubscriber(brokers, c.ConsumerGroup, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("job transport: %w", err)
	}
	logger.Info("Using Kafka job queue",
		"brokers", c.KafkaBrokers,
		"topic", c.AnalysisJobTopic,
		"consumer_group", c.ConsumerGroup)
	return &JobTransport{Publisher: pub, Subscriber: sub}, nil
}
