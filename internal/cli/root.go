package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SAP-F-2025/forecast-service/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "forecastd",
	Short:         "Formative assessment forecasting service",
	Long:          "forecastd ingests formative assessment scores, forecasts each student's next result and aggregates score statistics.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level with text output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd, cfg), nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	var handler slog.Handler
	switch {
	case debug:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	case cfg.IsProduction():
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(handler).With("service", "forecast-service")
	slog.SetDefault(logger)
	return logger
}
