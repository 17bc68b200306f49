package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis jobs from Kafka",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Events.UsesKafka() {
		return errors.New("worker needs EVENTS_PUBLISHER=kafka; the server runs jobs in-process otherwise")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	worker, err := a.newWorker()
	if err != nil {
		return err
	}
	logger.Info("Analysis worker starting",
		"topic", cfg.Events.AnalysisJobTopic,
		"consumer_group", cfg.Events.ConsumerGroup)
	return worker.Run(ctx)
}
