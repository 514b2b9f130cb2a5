package schoolyear

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trucvy/vietschool/core"
)

// Status is the derived lifecycle state of a school year.
type Status string

const (
	StatusActive   Status = "active"
	StatusUpcoming Status = "upcoming"
	StatusArchived Status = "archived"
)

type (
	SchoolYear struct {
		ID        int    `json:"id"`
		Name      string `json:"name"` // "2025-2026"
		StartYear int    `json:"start_year,omitempty"`
		EndYear   int    `json:"end_year,omitempty"`
		// IsCurrent mirrors IsActive; legacy clients still read it.
		IsCurrent      bool       `json:"is_current"`
		IsActive       bool       `json:"is_active"`
		EnrollmentOpen bool       `json:"enrollment_open"`
		TransitionDate *time.Time `json:"transition_date,omitempty"`
		CreatedAt      time.Time  `json:"created_at"` // UTC
	}

	// WithStats decorates a year with its derived status and counts for
	// admin views.
	WithStats struct {
		SchoolYear
		Status                Status `json:"status"`
		ClassCount            int    `json:"class_count"`
		EnrolledStudentsCount int    `json:"enrolled_students_count"`
	}
)

// Status derives the lifecycle state of the year at `now`:
// an explicitly active year is active; otherwise a future transition date
// means upcoming, an end year in the past means archived, and anything else
// is upcoming.
func (y *SchoolYear) Status(now time.Time) Status {
	if y.IsActive {
		return StatusActive
	}
	today := dateOnly(now)
	if y.TransitionDate != nil && dateOnly(*y.TransitionDate).After(today) {
		return StatusUpcoming
	}
	if y.EndYear != 0 && y.EndYear < today.Year() {
		return StatusArchived
	}
	return StatusUpcoming
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseYearLabel splits a "YYYY-YYYY" label into its start and end years;
// anything else parses as (0, 0).
func ParseYearLabel(name string) (startYear, endYear int) {
	parts := strings.Split(name, "-")
	if len(parts) != 2 {
		return 0, 0
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0
	}
	return start, end
}

// YearLabel renders the canonical label for a start year.
func YearLabel(startYear int) string {
	return fmt.Sprintf("%d-%d", startYear, startYear+1)
}

// NewSchoolYear contains information needed to create a school year. Start
// and end years default to the parsed name; the transition date defaults to
// July 1st of the start year.
type NewSchoolYear struct {
	Name           string     `json:"name" validate:"required,yearlabel"`
	StartYear      int        `json:"start_year"`
	EndYear        int        `json:"end_year"`
	IsCurrent      bool       `json:"is_current"`
	IsActive       bool       `json:"is_active"`
	EnrollmentOpen bool       `json:"enrollment_open"`
	TransitionDate *time.Time `json:"transition_date"`
}

func (ny *NewSchoolYear) Validate(validate *validator.Validate) error {
	ny.Name = core.CleanString(ny.Name)
	return validate.Struct(ny)
}

// UpdateSchoolYear defines what may be modified on a school year; nil fields
// are left untouched. Setting IsActive deactivates every other year and
// keeps IsCurrent in sync.
type UpdateSchoolYear struct {
	Name           *string    `json:"name" validate:"omitempty,yearlabel"`
	StartYear      *int       `json:"start_year"`
	EndYear        *int       `json:"end_year"`
	IsActive       *bool      `json:"is_active"`
	EnrollmentOpen *bool      `json:"enrollment_open"`
	TransitionDate *time.Time `json:"transition_date"`
}

func (uy *UpdateSchoolYear) Validate(validate *validator.Validate) error {
	if uy.Name != nil {
		name := core.CleanString(*uy.Name)
		uy.Name = &name
	}
	return validate.Struct(uy)
}

// TransitionRequest asks to make another year the active one.
type TransitionRequest struct {
	NewActiveYearID int `json:"new_active_year_id" validate:"required"`
}

func (tr TransitionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(tr)
}

// TransitionResult reports a completed transition.
type TransitionResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	PreviousActiveYearID *int   `json:"previous_active_year_id"`
	NewActiveYearID      int    `json:"new_active_year_id"`
}

// AutoCreateCheck reports whether a new school year should be created.
type AutoCreateCheck struct {
	ShouldCreate            bool   `json:"should_create"`
	Reason                  string `json:"reason"`
	CurrentMonth            int    `json:"current_month,omitempty"`
	ExistingYearID          int    `json:"existing_year_id,omitempty"`
	SuggestedName           string `json:"suggested_name,omitempty"`
	SuggestedStartYear      int    `json:"suggested_start_year,omitempty"`
	SuggestedEndYear        int    `json:"suggested_end_year,omitempty"`
	SuggestedTransitionDate string `json:"suggested_transition_date,omitempty"`
}

// TransitionCheck reports whether the pending year's transition date has
// passed.
type TransitionCheck struct {
	ShouldTransition    bool   `json:"should_transition"`
	Reason              string `json:"reason"`
	YearID              int    `json:"year_id,omitempty"`
	YearName            string `json:"year_name,omitempty"`
	TransitionDate      string `json:"transition_date,omitempty"`
	UpcomingYearID      int    `json:"upcoming_year_id,omitempty"`
	UpcomingYearName    string `json:"upcoming_year_name,omitempty"`
	DaysUntilTransition *int   `json:"days_until_transition,omitempty"`
}
