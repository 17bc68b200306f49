package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SAP-F-2025/forecast-service/internal/ingest"
	"github.com/SAP-F-2025/forecast-service/internal/services"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze DOCUMENT_ID",
	Short: "Run the forecasting pipeline for a document",
	Long:  "Run the forecasting pipeline synchronously, or queue it with --async. --report writes an xlsx workbook of the results.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("async", false, "Queue the run instead of waiting for it")
	analyzeCmd.Flags().String("report", "", "Write forecasts and statistics to this xlsx file")
	analyzeCmd.Flags().String("user", "", "Requesting user id for the completion event")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid document id %q", args[0])
	}
	documentID := uint(id)

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	user, _ := cmd.Flags().GetString("user")
	if async, _ := cmd.Flags().GetBool("async"); async {
		resp, err := a.analysis.Submit(ctx, &services.SubmitRequest{DocumentID: documentID, RequestingUserID: user})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}

	summary, err := a.analysis.Run(ctx, documentID, user)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("report")
	if path == "" {
		return nil
	}
	return writeReport(cmd, a, documentID, path)
}

func writeReport(cmd *cobra.Command, a *app, documentID uint, path string) error {
	ctx := cmd.Context()
	forecasts, err := a.results.GetForecasts(ctx, documentID)
	if err != nil {
		return err
	}
	stats, err := a.results.GetStatistics(ctx, documentID)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ingest.WriteReport(f, forecasts, stats); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.logger.Info("Report written", "document_id", documentID, "path", path)
	return nil
}
