package class

import (
	"github.com/go-playground/validator/v10"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/family"
)

type (
	Program struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	Class struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		ProgramID    int      `json:"program_id"`
		SchoolYearID int      `json:"school_year_id"`
		Program      *Program `json:"program,omitempty"`
		// EnrollmentCount is derived; repositories populate it on reads.
		EnrollmentCount int `json:"enrollment_count"`
	}

	Enrollment struct {
		ID        string `json:"id"`
		StudentID string `json:"student_id"`
		ClassID   string `json:"class_id"`
	}

	// RosterStudent is an enrolled student with the family name resolved for
	// roster views and CSV exports.
	RosterStudent struct {
		family.Student
		FamilyName string `json:"family_name,omitempty"`
	}

	RosterEntry struct {
		Enrollment
		Student RosterStudent `json:"student"`
	}

	// WithEnrollments is the class detail view: the class plus its roster.
	WithEnrollments struct {
		Class
		Enrollments []RosterEntry `json:"enrollments"`
	}
)

type NewClass struct {
	Name         string `json:"name" validate:"required"`
	ProgramID    int    `json:"program_id" validate:"required"`
	SchoolYearID int    `json:"school_year_id" validate:"required"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// UpdateClass defines what may be modified on a class; nil fields are left
// untouched.
type UpdateClass struct {
	Name         *string `json:"name"`
	ProgramID    *int    `json:"program_id"`
	SchoolYearID *int    `json:"school_year_id"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		name := core.CleanString(*uc.Name)
		uc.Name = &name
	}
	return validate.Struct(uc)
}

type NewEnrollment struct {
	StudentID string `json:"student_id" validate:"required"`
}

func (ne NewEnrollment) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

type NewProgram struct {
	Name string `json:"name" validate:"required"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	return validate.Struct(np)
}

// QueryFilter holds the class list query params.
type QueryFilter struct {
	SchoolYearID int    `query:"school_year_id"`
	ProgramID    int    `query:"program_id"`
	Search       string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Match applies the in-memory part of the filter (program and folded search
// on class and program name); the school year is the cache key and is pushed
// down to the repository.
func (qf *QueryFilter) Match(cls Class) bool {
	if qf.ProgramID != 0 && cls.ProgramID != qf.ProgramID {
		return false
	}
	if qf.Search == "" {
		return true
	}
	if core.Matches(cls.Name, qf.Search) {
		return true
	}
	return cls.Program != nil && core.Matches(cls.Program.Name, qf.Search)
}
