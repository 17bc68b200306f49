package models

import "time"

type TestTopic struct {
	ID       uint     `json:"id" gorm:"primaryKey"`
	Name     string   `json:"name" gorm:"not null;size:200;uniqueIndex"`
	MaxScore *float64 `json:"max_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TopicMapping links one assessment slot of a document to its topic.
type TopicMapping struct {
	ID         uint     `json:"id" gorm:"primaryKey"`
	DocumentID uint     `json:"document_id" gorm:"not null;uniqueIndex:idx_topic_mapping_doc_test,priority:1"`
	TestNumber int      `json:"test_number" gorm:"not null;uniqueIndex:idx_topic_mapping_doc_test,priority:2" validate:"min=1"`
	TopicID    uint     `json:"topic_id" gorm:"not null;index"`
	MaxScore   *float64 `json:"max_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Topic *TestTopic `json:"topic,omitempty" gorm:"foreignKey:TopicID"`
}

// ResolvedMaxScore returns the mapping max score, then the topic max score.
func (m *TopicMapping) ResolvedMaxScore() (float64, bool) {
	if m.MaxScore != nil && *m.MaxScore > 0 {
		return *m.MaxScore, true
	}
	if m.Topic != nil && m.Topic.MaxScore != nil && *m.Topic.MaxScore > 0 {
		return *m.Topic.MaxScore, true
	}
	return 0, false
}

// AssessmentRecord is one student's score on one formative assessment.
type AssessmentRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DocumentID uint      `json:"document_id" gorm:"not null;uniqueIndex:idx_assessment_record_key,priority:1"`
	StudentID  uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_assessment_record_key,priority:2;index"`
	TestNumber int       `json:"test_number" gorm:"not null;uniqueIndex:idx_assessment_record_key,priority:3" validate:"min=1"`
	Score      float64   `json:"score" gorm:"not null" validate:"gte=0"`
	MaxScore   float64   `json:"max_score" gorm:"not null" validate:"gt=0"`
	Date       time.Time `json:"date" gorm:"type:date"`

	NormalizedScore  float64 `json:"normalized_score"`
	PassingThreshold float64 `json:"passing_threshold"`
	Imputed          bool    `json:"imputed" gorm:"default:false"`

	TopicMappingID *uint `json:"topic_mapping_id" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Student      *Student      `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	TopicMapping *TopicMapping `json:"topic_mapping,omitempty" gorm:"foreignKey:TopicMappingID"`
}
