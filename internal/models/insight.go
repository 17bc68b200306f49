package models

import (
	"time"

	"gorm.io/datatypes"
)

type InsightSeverity string

const (
	SeverityInfo     InsightSeverity = "info"
	SeverityWarning  InsightSeverity = "warning"
	SeverityCritical InsightSeverity = "critical"
)

// Insight is one rule-based observation about a document's results.
type Insight struct {
	Category string          `json:"category"`
	Severity InsightSeverity `json:"severity"`
	Message  string          `json:"message"`
}

type DocumentInsight struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	DocumentID uint           `json:"document_id" gorm:"not null;uniqueIndex"`
	Insights   datatypes.JSON `json:"insights" gorm:"type:jsonb"`  // []Insight
	Narrative  datatypes.JSON `json:"narrative" gorm:"type:jsonb"` // insights.Narrative

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
