package models

import "time"

type Student struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	Code      string  `json:"code" gorm:"not null;size:64;uniqueIndex" validate:"required,student_code"` // LRN or school-issued id
	FirstName string  `json:"first_name" gorm:"size:100"`
	LastName  string  `json:"last_name" gorm:"size:100"`
	Section   *string `json:"section" gorm:"size:100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Student) FullName() string {
	switch {
	case s.FirstName == "" && s.LastName == "":
		return s.Code
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}
