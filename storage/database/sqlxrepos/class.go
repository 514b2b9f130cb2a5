package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trucvy/vietschool/core/class"
)

type (
	classRow struct {
		ID              string      `db:"id"`
		Name            string      `db:"name"`
		ProgramID       int         `db:"program_id"`
		SchoolYearID    int         `db:"school_year_id"`
		ProgramName     null.String `db:"program_name"`
		EnrollmentCount int         `db:"enrollment_count"`
	}

	rosterRow struct {
		EnrollmentID string `db:"enrollment_id"`
		ClassID      string `db:"class_id"`
		studentRow
		FamilyName string `db:"family_name"`
	}
)

func (r classRow) unrow() class.Class {
	cls := class.Class{
		ID:              r.ID,
		Name:            r.Name,
		ProgramID:       r.ProgramID,
		SchoolYearID:    r.SchoolYearID,
		EnrollmentCount: r.EnrollmentCount,
	}
	if r.ProgramName.Valid {
		cls.Program = &class.Program{ID: r.ProgramID, Name: r.ProgramName.String}
	}
	return cls
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

const classSelect = `
	SELECT c.id, c.name, c.program_id, c.school_year_id, p.name AS program_name,
	       (SELECT COUNT(*) FROM enrollment e WHERE e.class_id = c.id) AS enrollment_count
	FROM class c
	JOIN program p ON p.id = c.program_id`

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cls.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO class (id, name, program_id, school_year_id)
		VALUES ($1, $2, $3, $4)`, cls.ID, cls.Name, cls.ProgramID, cls.SchoolYearID)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return repo.GetClassByID(ctx, cls.ID)
}

func (repo *classRepository) QueryClassesByYear(ctx context.Context, yearID int) ([]class.Class, error) {
	query := classSelect
	var args []interface{}
	if yearID != 0 {
		query += ` WHERE c.school_year_id = $1`
		args = append(args, yearID)
	}

	var rows []classRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.unrow())
	}
	return classes, nil
}

func (repo *classRepository) GetClassByID(ctx context.Context, id string) (class.Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	if err := repo.db.GetContext(ctx, &row, classSelect+` WHERE c.id = $1`, id); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class")
	}
	return row.unrow(), nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE class SET name = $2, program_id = $3, school_year_id = $4
		WHERE id = $1`, cls.ID, cls.Name, cls.ProgramID, cls.SchoolYearID)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return repo.GetClassByID(ctx, cls.ID)
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	// enrollments go with it via ON DELETE CASCADE
	res, err := repo.db.ExecContext(ctx, `DELETE FROM class WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return class.ErrNotFound
	}
	return nil
}

func (repo *classRepository) GetClassRoster(ctx context.Context, classID string) ([]class.RosterEntry, error) {
	var rows []rosterRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT e.id AS enrollment_id, e.class_id,
		       s.id, s.family_id, s.first_name, s.last_name, s.middle_name, s.saint_name,
		       s.date_of_birth, s.gender, s.grade_level, s.american_school, s.notes,
		       f.family_name
		FROM enrollment e
		JOIN student s ON s.id = e.student_id
		JOIN family f ON f.id = s.family_id
		WHERE e.class_id = $1
		ORDER BY s.last_name, s.first_name`, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}

	roster := make([]class.RosterEntry, 0, len(rows))
	for _, row := range rows {
		roster = append(roster, class.RosterEntry{
			Enrollment: class.Enrollment{
				ID:        row.EnrollmentID,
				StudentID: row.studentRow.ID,
				ClassID:   row.ClassID,
			},
			Student: class.RosterStudent{
				Student:    row.studentRow.unrow(),
				FamilyName: row.FamilyName,
			},
		})
	}
	return roster, nil
}

func (repo *classRepository) CreateEnrollment(ctx context.Context, enr class.Enrollment) (class.Enrollment, error) {
	enr.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO enrollment (id, class_id, student_id)
		VALUES ($1, $2, $3)`, enr.ID, enr.ClassID, enr.StudentID)
	if err != nil {
		return class.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *classRepository) GetEnrollment(ctx context.Context, classID, studentID string) (class.Enrollment, error) {
	var row struct {
		ID        string `db:"id"`
		ClassID   string `db:"class_id"`
		StudentID string `db:"student_id"`
	}
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, class_id, student_id FROM enrollment
		WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return class.Enrollment{}, trapNoRowsErr(err, class.ErrEnrollmentNotFound, "finding enrollment")
	}
	return class.Enrollment{ID: row.ID, ClassID: row.ClassID, StudentID: row.StudentID}, nil
}

func (repo *classRepository) DeleteEnrollment(ctx context.Context, classID, studentID string) error {
	res, err := repo.db.ExecContext(ctx, `
		DELETE FROM enrollment WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return class.ErrEnrollmentNotFound
	}
	return nil
}

func (repo *classRepository) QueryAllPrograms(ctx context.Context) ([]class.Program, error) {
	var programs []class.Program
	if err := repo.db.SelectContext(ctx, &programs, `SELECT id, name FROM program`); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	return programs, nil
}

func (repo *classRepository) GetProgramByID(ctx context.Context, id int) (class.Program, error) {
	var p class.Program
	if err := repo.db.GetContext(ctx, &p, `SELECT id, name FROM program WHERE id = $1`, id); err != nil {
		return class.Program{}, trapNoRowsErr(err, class.ErrProgramNotFound, "finding program")
	}
	return p, nil
}

func (repo *classRepository) CreateProgram(ctx context.Context, p class.Program) (class.Program, error) {
	err := repo.db.GetContext(ctx, &p.ID, `INSERT INTO program (name) VALUES ($1) RETURNING id`, p.Name)
	if err != nil {
		return class.Program{}, errors.Wrap(err, "inserting program")
	}
	return p, nil
}

// ClassCountForYear and EnrollmentCountForYear back the school year stats.

func (repo *classRepository) ClassCountForYear(ctx context.Context, yearID int) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class WHERE school_year_id = $1`, yearID)
	if err != nil {
		return 0, errors.Wrap(err, "counting classes")
	}
	return count, nil
}

func (repo *classRepository) EnrollmentCountForYear(ctx context.Context, yearID int) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM enrollment e
		JOIN class c ON c.id = e.class_id
		WHERE c.school_year_id = $1`, yearID)
	if err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return count, nil
}
