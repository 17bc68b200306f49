package models

import (
	"time"

	"gorm.io/gorm"
)

// AnalysisDocument is one uploaded batch of formative-assessment scores for a section.
type AnalysisDocument struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	Title     string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	SectionID *uint   `json:"section_id" gorm:"index"`
	TeacherID *string `json:"teacher_id" gorm:"size:100;index"`

	// Anchors inferred weekly assessment dates.
	TestStartDate *time.Time `json:"test_start_date"`
	// Max score of the summative post-test, used by the feature regressor.
	PostTestMaxScore *float64 `json:"post_test_max_score" validate:"omitempty,gt=0"`

	Processed bool `json:"processed" gorm:"default:false;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	TopicMappings []TopicMapping     `json:"topic_mappings,omitempty" gorm:"foreignKey:DocumentID"`
	Records       []AssessmentRecord `json:"-" gorm:"foreignKey:DocumentID"`
}

func (AnalysisDocument) TableName() string {
	return "analysis_documents"
}

// StartDate returns the anchor used for inferred assessment dates.
func (d *AnalysisDocument) StartDate() time.Time {
	if d.TestStartDate != nil {
		return d.TestStartDate.UTC().Truncate(24 * time.Hour)
	}
	if d.CreatedAt.IsZero() {
		return time.Time{}
	}
	return d.CreatedAt.UTC().Truncate(24 * time.Hour)
}
