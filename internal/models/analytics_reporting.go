package models

import "time"

// DescriptiveStats holds the summary fields shared by every statistic level.
type DescriptiveStats struct {
	Mean              float64 `json:"mean"`
	Median            float64 `json:"median"`
	Mode              float64 `json:"mode"`
	StandardDeviation float64 `json:"standard_deviation"`
	Minimum           float64 `json:"minimum"`
	Maximum           float64 `json:"maximum"`
}

type DocumentStatistic struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	DocumentID uint `json:"document_id" gorm:"not null;uniqueIndex"`

	DescriptiveStats `gorm:"embedded"`

	TotalStudents        int     `json:"total_students"`
	TotalScores          int     `json:"total_scores"`
	MeanPassingThreshold float64 `json:"mean_passing_threshold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AssessmentStatistic struct {
	ID         uint  `json:"id" gorm:"primaryKey"`
	DocumentID uint  `json:"document_id" gorm:"not null;uniqueIndex:idx_assessment_statistic_key,priority:1"`
	TestNumber int   `json:"test_number" gorm:"not null;uniqueIndex:idx_assessment_statistic_key,priority:2"`
	TopicID    *uint `json:"topic_id" gorm:"index"`

	DescriptiveStats `gorm:"embedded"`

	MaxScore         float64 `json:"max_score"`
	PassingThreshold float64 `json:"passing_threshold"`
	PassingRate      float64 `json:"passing_rate"` // 0 - 100
	FailingRate      float64 `json:"failing_rate"` // 0 - 100
	TotalScores      int     `json:"total_scores"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StudentStatistic struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	DocumentID uint `json:"document_id" gorm:"not null;uniqueIndex:idx_student_statistic_key,priority:1"`
	StudentID  uint `json:"student_id" gorm:"not null;uniqueIndex:idx_student_statistic_key,priority:2;index"`

	DescriptiveStats `gorm:"embedded"`

	PassingRate float64 `json:"passing_rate"` // 0 - 100
	FailingRate float64 `json:"failing_rate"` // 0 - 100
	TotalScores int     `json:"total_scores"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}
