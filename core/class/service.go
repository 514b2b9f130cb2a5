package class

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/schoolyear"
)

var (
	// errors
	ErrNotFound           = errors.New("class not found")
	ErrProgramNotFound    = errors.New("program not found")
	ErrYearNotFound       = errors.New("school year not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("student already enrolled in this class")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClassesByYear returns the classes of a school year (0 for
		// all years) with Program and EnrollmentCount populated.
		QueryClassesByYear(ctx context.Context, yearID int) ([]Class, error)
		GetClassByID(ctx context.Context, id string) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// DeleteClass removes the class and its enrollments.
		DeleteClass(ctx context.Context, id string) error

		GetClassRoster(ctx context.Context, classID string) ([]RosterEntry, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, classID, studentID string) (Enrollment, error)
		DeleteEnrollment(ctx context.Context, classID, studentID string) error

		QueryAllPrograms(ctx context.Context) ([]Program, error)
		GetProgramByID(ctx context.Context, id int) (Program, error)
		CreateProgram(ctx context.Context, p Program) (Program, error)
	}

	// YearProvider verifies that a referenced school year exists; the
	// school year repository implements it.
	YearProvider interface {
		GetSchoolYearByID(ctx context.Context, id int) (schoolyear.SchoolYear, error)
	}

	// StudentProvider verifies that a referenced student exists; the family
	// repository implements it.
	StudentProvider interface {
		GetStudentByID(ctx context.Context, id string) (family.Student, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewClass) (Class, error)
		// Query serves the paginated class list from the per-year cache.
		Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Class], error)
		GetByID(ctx context.Context, id string) (WithEnrollments, error)
		Update(ctx context.Context, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, id string) error

		Enroll(ctx context.Context, classID string, ne NewEnrollment) (Enrollment, error)
		Unenroll(ctx context.Context, classID, studentID string) error
		// ExportRosterCSV writes the class roster as CSV and returns the
		// suggested file name.
		ExportRosterCSV(ctx context.Context, classID string, w io.Writer) (string, error)

		Programs(ctx context.Context) ([]Program, error)
		CreateProgram(ctx context.Context, np NewProgram) (Program, error)
	}

	service struct {
		repo     Repository
		years    YearProvider
		students StudentProvider
		cache    *core.ListCache[int, Class]
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, years YearProvider, students StudentProvider) Service {
	return &service{
		repo:     repo,
		years:    years,
		students: students,
		cache:    core.NewListCache[int, Class](),
	}
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	if _, err := svc.repo.GetProgramByID(ctx, nc.ProgramID); err != nil {
		return Class{}, core.NewValidationError(ErrProgramNotFound,
			core.FieldError{Field: "program_id", Error: ErrProgramNotFound.Error()})
	}
	if _, err := svc.years.GetSchoolYearByID(ctx, nc.SchoolYearID); err != nil {
		return Class{}, core.NewValidationError(ErrYearNotFound,
			core.FieldError{Field: "school_year_id", Error: ErrYearNotFound.Error()})
	}

	created, err := svc.repo.CreateClass(ctx, Class{
		Name:         nc.Name,
		ProgramID:    nc.ProgramID,
		SchoolYearID: nc.SchoolYearID,
	})
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}
	svc.invalidate(created.SchoolYearID)
	return created, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Class], error) {
	yearID := 0
	if filter != nil {
		yearID = filter.SchoolYearID
	}
	entry, err := svc.cache.Load(yearID, forceRefresh, func() ([]Class, error) {
		return svc.repo.QueryClassesByYear(ctx, yearID)
	})
	if err != nil {
		return core.Page[Class]{}, errors.Wrap(err, "querying classes")
	}

	classes := entry.Items
	if filter != nil && (filter.ProgramID != 0 || filter.Search != "") {
		filtered := make([]Class, 0, len(classes))
		for _, cls := range classes {
			if filter.Match(cls) {
				filtered = append(filtered, cls)
			}
		}
		classes = filtered
	} else {
		classes = append([]Class(nil), classes...)
	}

	sort.SliceStable(classes, func(i, j int) bool {
		return core.CompareFold(classes[i].Name, classes[j].Name) < 0
	})

	pg.Clean()
	return core.NewPage(classes, pg), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (WithEnrollments, error) {
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return WithEnrollments{}, err
	}
	roster, err := svc.repo.GetClassRoster(ctx, id)
	if err != nil {
		return WithEnrollments{}, errors.Wrap(err, "loading roster")
	}
	if roster == nil {
		roster = []RosterEntry{}
	}
	cls.EnrollmentCount = len(roster)
	return WithEnrollments{Class: cls, Enrollments: roster}, nil
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	prevYearID := cls.SchoolYearID

	if uc.Name != nil {
		cls.Name = *uc.Name
	}
	if uc.ProgramID != nil {
		if _, err = svc.repo.GetProgramByID(ctx, *uc.ProgramID); err != nil {
			return Class{}, core.NewValidationError(ErrProgramNotFound,
				core.FieldError{Field: "program_id", Error: ErrProgramNotFound.Error()})
		}
		cls.ProgramID = *uc.ProgramID
	}
	if uc.SchoolYearID != nil {
		if _, err = svc.years.GetSchoolYearByID(ctx, *uc.SchoolYearID); err != nil {
			return Class{}, core.NewValidationError(ErrYearNotFound,
				core.FieldError{Field: "school_year_id", Error: ErrYearNotFound.Error()})
		}
		cls.SchoolYearID = *uc.SchoolYearID
	}

	updated, err := svc.repo.UpdateClass(ctx, cls)
	if err != nil {
		return Class{}, errors.Wrap(err, "updating class")
	}
	svc.invalidate(prevYearID)
	if updated.SchoolYearID != prevYearID {
		svc.invalidate(updated.SchoolYearID)
	}
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteClass(ctx, id); err != nil {
		return err
	}
	svc.invalidate(cls.SchoolYearID)
	return nil
}

func (svc *service) Enroll(ctx context.Context, classID string, ne NewEnrollment) (Enrollment, error) {
	cls, err := svc.repo.GetClassByID(ctx, classID)
	if err != nil {
		return Enrollment{}, err
	}
	if _, err = svc.students.GetStudentByID(ctx, ne.StudentID); err != nil {
		return Enrollment{}, ErrStudentNotFound
	}
	if _, err = svc.repo.GetEnrollment(ctx, classID, ne.StudentID); err == nil {
		return Enrollment{}, core.NewValidationError(ErrAlreadyEnrolled,
			core.FieldError{Field: "student_id", Error: ErrAlreadyEnrolled.Error()})
	} else if errors.Cause(err) != ErrEnrollmentNotFound {
		return Enrollment{}, errors.Wrap(err, "checking enrollment")
	}

	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{ClassID: classID, StudentID: ne.StudentID})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	svc.invalidate(cls.SchoolYearID)
	return enr, nil
}

func (svc *service) Unenroll(ctx context.Context, classID, studentID string) error {
	cls, err := svc.repo.GetClassByID(ctx, classID)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteEnrollment(ctx, classID, studentID); err != nil {
		return err
	}
	svc.invalidate(cls.SchoolYearID)
	return nil
}

func (svc *service) ExportRosterCSV(ctx context.Context, classID string, w io.Writer) (string, error) {
	detail, err := svc.GetByID(ctx, classID)
	if err != nil {
		return "", err
	}

	programName := "N/A"
	if detail.Program != nil {
		programName = detail.Program.Name
	}

	cw := csv.NewWriter(w)
	records := [][]string{
		{"Class Name:", detail.Name},
		{"Program:", programName},
		{"Total Students:", strconv.Itoa(len(detail.Enrollments))},
		{},
		{"First Name", "Last Name", "Middle Name", "Saint Name", "Date of Birth",
			"Gender", "Grade Level", "School", "Family Name", "Notes"},
	}
	for _, entry := range detail.Enrollments {
		s := entry.Student
		dob := ""
		if !s.DateOfBirth.IsZero() {
			dob = s.DateOfBirth.Format("2006-01-02")
		}
		grade := ""
		if s.GradeLevel != nil {
			grade = strconv.Itoa(*s.GradeLevel)
		}
		records = append(records, []string{
			s.FirstName, s.LastName, s.MiddleName, s.SaintName, dob,
			s.Gender, grade, s.AmericanSchool, s.FamilyName, s.Notes,
		})
	}
	if err = cw.WriteAll(records); err != nil {
		return "", errors.Wrap(err, "writing roster csv")
	}

	filename := fmt.Sprintf("%s_roster.csv", strings.ReplaceAll(detail.Name, " ", "_"))
	return filename, nil
}

func (svc *service) Programs(ctx context.Context) ([]Program, error) {
	programs, err := svc.repo.QueryAllPrograms(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	sort.SliceStable(programs, func(i, j int) bool {
		return core.CompareFold(programs[i].Name, programs[j].Name) < 0
	})
	return programs, nil
}

func (svc *service) CreateProgram(ctx context.Context, np NewProgram) (Program, error) {
	return svc.repo.CreateProgram(ctx, Program{Name: np.Name})
}

// invalidate drops both the year's entry and the all-years entry.
func (svc *service) invalidate(yearID int) {
	svc.cache.Invalidate(yearID)
	if yearID != 0 {
		svc.cache.Invalidate(0)
	}
}
