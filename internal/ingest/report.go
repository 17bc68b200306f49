package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/forecast-service/internal/services"
)

const (
	SheetForecasts   = "Forecasts"
	SheetDocument    = "Summary"
	SheetAssessments = "Assessments"
	SheetStudents    = "Students"
	SheetInsights    = "Insights"
)

var (
	forecastHeader   = []interface{}{"Student Code", "Name", "Test Number", "Date", "Predicted Score", "Max Score", "Passing Threshold", "Status", "Method"}
	summaryHeader    = []interface{}{"Metric", "Value"}
	assessmentHeader = []interface{}{"Test Number", "Mean", "Median", "Mode", "Std Dev", "Min", "Max", "Max Score", "Passing Threshold", "Passing Rate", "Failing Rate", "Scores"}
	studentHeader    = []interface{}{"Student Code", "Name", "Mean", "Median", "Mode", "Std Dev", "Min", "Max", "Passing Rate", "Failing Rate", "Scores"}
	insightHeader    = []interface{}{"Category", "Severity", "Message"}
)

// WriteReport renders forecasts and statistics of one document as an xlsx workbook.
// stats may be nil when the document has not been processed.
func WriteReport(w io.Writer, forecasts *services.ForecastsResponse, stats *services.StatisticsResponse) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetForecasts); err != nil {
		return err
	}
	rows := make([][]interface{}, 0)
	if forecasts != nil {
		for _, fc := range forecasts.Forecasts {
			rows = append(rows, []interface{}{
				fc.StudentCode, fc.Name, fc.TestNumber, fc.Date.Format("2006-01-02"),
				fc.PredictedScore, fc.MaxScore, fc.PassingThreshold, string(fc.PredictedStatus), string(fc.Method),
			})
		}
	}
	if err := writeSheet(f, SheetForecasts, forecastHeader, rows, bold); err != nil {
		return err
	}

	if stats != nil {
		if err := writeStatistics(f, stats, bold); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeStatistics(f *excelize.File, stats *services.StatisticsResponse, bold int) error {
	var summary [][]interface{}
	if d := stats.Document; d != nil {
		summary = [][]interface{}{
			{"Students", d.TotalStudents},
			{"Scores", d.TotalScores},
			{"Mean", d.Mean},
			{"Median", d.Median},
			{"Mode", d.Mode},
			{"Std Dev", d.StandardDeviation},
			{"Min", d.Minimum},
			{"Max", d.Maximum},
			{"Mean Passing Threshold", d.MeanPassingThreshold},
		}
	}
	if err := addSheet(f, SheetDocument, summaryHeader, summary, bold); err != nil {
		return err
	}

	assessments := make([][]interface{}, 0, len(stats.Assessments))
	for _, a := range stats.Assessments {
		assessments = append(assessments, []interface{}{
			a.TestNumber, a.Mean, a.Median, a.Mode, a.StandardDeviation, a.Minimum, a.Maximum,
			a.MaxScore, a.PassingThreshold, a.PassingRate, a.FailingRate, a.TotalScores,
		})
	}
	if err := addSheet(f, SheetAssessments, assessmentHeader, assessments, bold); err != nil {
		return err
	}

	students := make([][]interface{}, 0, len(stats.Students))
	for _, s := range stats.Students {
		code, name := fmt.Sprint(s.StudentID), ""
		if s.Student != nil {
			code, name = s.Student.Code, s.Student.FullName()
		}
		students = append(students, []interface{}{
			code, name, s.Mean, s.Median, s.Mode, s.StandardDeviation, s.Minimum, s.Maximum,
			s.PassingRate, s.FailingRate, s.TotalScores,
		})
	}
	if err := addSheet(f, SheetStudents, studentHeader, students, bold); err != nil {
		return err
	}

	if len(stats.Insights) == 0 {
		return nil
	}
	insights := make([][]interface{}, 0, len(stats.Insights))
	for _, in := range stats.Insights {
		insights = append(insights, []interface{}{in.Category, string(in.Severity), in.Message})
	}
	if stats.Narrative != nil && stats.Narrative.Summary != "" {
		insights = append(insights, []interface{}{"narrative", "info", stats.Narrative.Summary})
	}
	return addSheet(f, SheetInsights, insightHeader, insights, bold)
}

func addSheet(f *excelize.File, name string, header []interface{}, rows [][]interface{}, bold int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", name, err)
	}
	return writeSheet(f, name, header, rows, bold)
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, bold int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
