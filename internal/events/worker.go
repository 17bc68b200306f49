package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// JobProcessor runs analysis jobs. NotifyFailure is used when Process never returned.
type JobProcessor interface {
	Process(ctx context.Context, documentID uint, userID string) error
	NotifyFailure(ctx context.Context, documentID uint, userID string, cause error)
}

type WorkerConfig struct {
	Topic      string
	Subscriber message.Subscriber
	Processor  JobProcessor
	Logger     *slog.Logger
}

// Worker consumes analysis jobs from a topic and runs them one message at a time.
type Worker struct {
	router    *message.Router
	processor JobProcessor
	logger    *slog.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, watermill.NewSlogLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	w := &Worker{router: router, processor: cfg.Processor, logger: cfg.Logger}
	router.AddNoPublisherHandler("analysis_worker", cfg.Topic, cfg.Subscriber, w.handle)
	return w, nil
}

// Run blocks until ctx is cancelled or the router is closed.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running is closed once the router has subscribed.
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

func (w *Worker) Close() error {
	return w.router.Close()
}

// handle acks every decodable job: run failures are terminal and already reported.
func (w *Worker) handle(msg *message.Message) (err error) {
	var job AnalysisJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.logger.Error("Dropping malformed analysis job", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	ctx := msg.Context()
	logger := w.logger.With("job_id", job.JobID, "document_id", job.DocumentID)

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic during analysis: %v", r)
			logger.Error("Analysis job panicked", "panic", r)
			w.processor.NotifyFailure(ctx, job.DocumentID, job.RequestingUserID, cause)
			err = nil
		}
	}()

	start := time.Now()
	if procErr := w.processor.Process(ctx, job.DocumentID, job.RequestingUserID); procErr != nil {
		logger.Warn("Analysis job failed", "duration", time.Since(start), "error", procErr)
		return nil
	}
	logger.Info("Analysis job completed", "duration", time.Since(start))
	return nil
}
