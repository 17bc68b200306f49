package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/ingest"
	"github.com/SAP-F-2025/forecast-service/internal/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Load a CSV or XLSX score sheet into a document",
	Long: "Load a one-row-per-student score sheet. Assessment columns are named <prefix><N>[:<max>], " +
		"e.g. fa1:50. A new document is created unless --document is given.",
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Uint("document", 0, "Existing document id to load into")
	ingestCmd.Flags().String("title", "", "Title of the new document (defaults to the file name)")
	ingestCmd.Flags().String("start-date", "", "Date of the first assessment, YYYY-MM-DD")
	ingestCmd.Flags().Float64("post-test-max", 0, "Maximum score of the post-test")
	ingestCmd.Flags().String("sheet", "", "Worksheet to read from an xlsx file (defaults to the first)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := readTable(cmd, path, f)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	docID, _ := cmd.Flags().GetUint("document")
	if docID == 0 {
		req, err := createRequestFromFlags(cmd, path)
		if err != nil {
			return err
		}
		doc, err := a.analysis.CreateDocument(ctx, req)
		if err != nil {
			return err
		}
		docID = doc.ID
	}

	summary, err := a.analysis.Ingest(ctx, docID, table)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

func readTable(cmd *cobra.Command, path string, r io.Reader) (*analytics.WideTable, error) {
	format, err := ingest.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == ingest.FormatXLSX {
		sheet, _ := cmd.Flags().GetString("sheet")
		return ingest.ReadXLSX(r, sheet)
	}
	return ingest.ReadCSV(r)
}

func createRequestFromFlags(cmd *cobra.Command, path string) (*services.CreateDocumentRequest, error) {
	title, _ := cmd.Flags().GetString("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	req := &services.CreateDocumentRequest{Title: title}

	if v, _ := cmd.Flags().GetString("start-date"); v != "" {
		start, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, fmt.Errorf("invalid --start-date: %w", err)
		}
		req.TestStartDate = &start
	}
	if v, _ := cmd.Flags().GetFloat64("post-test-max"); v > 0 {
		req.PostTestMaxScore = &v
	}
	return req, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
