package models

import "time"

type IngestSummary struct {
	DocumentID      uint          `json:"document_id"`
	TotalRows       int           `json:"total_rows"`
	RecordsUpserted int           `json:"records_upserted"`
	StudentsCreated int           `json:"students_created"`
	MappingsCreated int           `json:"mappings_created"`
	ImputedScores   int           `json:"imputed_scores"`
	ProcessingTime  time.Duration `json:"processing_time"`
}

type AnalysisSummary struct {
	DocumentID      uint           `json:"document_id"`
	Method          ForecastMethod `json:"method"`
	Students        int            `json:"students"`
	Forecasts       int            `json:"forecasts"`
	SkippedStudents []string       `json:"skipped_students,omitempty"`
	ProcessingTime  time.Duration  `json:"processing_time"`
}

// AllModels lists every persisted model, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&AnalysisDocument{},
		&Student{},
		&TestTopic{},
		&TopicMapping{},
		&AssessmentRecord{},
		&Forecast{},
		&ActualPostTest{},
		&DocumentStatistic{},
		&AssessmentStatistic{},
		&StudentStatistic{},
		&DocumentInsight{},
	}
}
