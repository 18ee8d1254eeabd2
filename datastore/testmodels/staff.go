package testmodels

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Employee is the entity most tests query against.
type Employee struct {

	// Unique identifier of the employee.
	ID uint `gorm:"primaryKey" json:"Id"`

	// Display name.
	// Required: true
	Name string `validate:"required" json:"Name"`

	// Age in years.
	Age int `json:"Age"`

	// Foreign key of the boss, if any.
	BossID *uint `json:"BossId,omitempty"`

	// Boss of this employee.
	Boss *Employee `gorm:"foreignKey:BossID" json:"Boss,omitempty"`

	// Vacancies taken by this employee.
	Vacancies []Vacancy `gorm:"foreignKey:EmployeeID" json:"Vacancies,omitempty"`

	// Skills as free-form tags.
	Skills []string `gorm:"serializer:json" json:"Skills,omitempty"`
}

// Vacancy is a period of leave.
type Vacancy struct {
	ID uint `gorm:"primaryKey" json:"Id"`

	// Format: date-time
	StartDate time.Time `json:"StartDate"`

	// Format: date-time
	EndDate time.Time `json:"EndDate"`

	EmployeeID uint `json:"EmployeeId"`
}

// Department uses string formats from go-openapi for its identity and timestamps.
type Department struct {

	// Unique identifier, assigned on Add when empty.
	// Format: uuid
	ID strfmt.UUID `json:"Id"`

	// Required: true
	Name string `validate:"required" json:"Name"`

	// Timestamp when the department was founded.
	// Format: date-time
	FoundedAt strfmt.DateTime `json:"FoundedAt"`
}

// Named is implemented by entities that carry a display name.
type Named interface {
	DisplayName() string
}

func (e *Employee) DisplayName() string   { return e.Name }
func (d *Department) DisplayName() string { return d.Name }

// Office has at most one desk; the desk row carries the reference.
type Office struct {
	ID uint `gorm:"primaryKey" json:"Id"`

	Floor int `json:"Floor"`

	// Desk placed in this office, if any.
	Desk *Desk `gorm:"foreignKey:OfficeID" json:"Desk,omitempty"`
}

type Desk struct {
	ID uint `gorm:"primaryKey" json:"Id"`

	Label string `json:"Label"`

	OfficeID uint `json:"OfficeId"`
}
