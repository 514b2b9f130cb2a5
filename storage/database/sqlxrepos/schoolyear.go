package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trucvy/vietschool/core/schoolyear"
)

type schoolYearRow struct {
	ID             int       `db:"id"`
	Name           string    `db:"name"`
	StartYear      int       `db:"start_year"`
	EndYear        int       `db:"end_year"`
	IsCurrent      bool      `db:"is_current"`
	IsActive       bool      `db:"is_active"`
	EnrollmentOpen bool      `db:"enrollment_open"`
	TransitionDate null.Time `db:"transition_date"`
	CreatedAt      null.Time `db:"created_at"`
}

func (r schoolYearRow) unrow() schoolyear.SchoolYear {
	return schoolyear.SchoolYear{
		ID:             r.ID,
		Name:           r.Name,
		StartYear:      r.StartYear,
		EndYear:        r.EndYear,
		IsCurrent:      r.IsCurrent,
		IsActive:       r.IsActive,
		EnrollmentOpen: r.EnrollmentOpen,
		TransitionDate: timePtr(r.TransitionDate),
		CreatedAt:      r.CreatedAt.Time,
	}
}

func newSchoolYearRow(year schoolyear.SchoolYear) schoolYearRow {
	return schoolYearRow{
		ID:             year.ID,
		Name:           year.Name,
		StartYear:      year.StartYear,
		EndYear:        year.EndYear,
		IsCurrent:      year.IsCurrent,
		IsActive:       year.IsActive,
		EnrollmentOpen: year.EnrollmentOpen,
		TransitionDate: nullTimeFromPtr(year.TransitionDate),
		CreatedAt:      null.NewTime(year.CreatedAt.UTC(), !year.CreatedAt.IsZero()),
	}
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTimeFromPtr(p *time.Time) null.Time {
	if p == nil {
		return null.Time{}
	}
	return null.TimeFrom(*p)
}

type schoolYearRepository struct {
	db *sqlx.DB
}

var _ schoolyear.Repository = (*schoolYearRepository)(nil) // interface compliance check

func NewSchoolYearRepository(db *sqlx.DB) *schoolYearRepository {
	return &schoolYearRepository{db: db}
}

func (repo *schoolYearRepository) CreateSchoolYear(ctx context.Context, year schoolyear.SchoolYear) (schoolyear.SchoolYear, error) {
	row := newSchoolYearRow(year)
	query, args, err := repo.db.BindNamed(`
		INSERT INTO school_year (name, start_year, end_year, is_current, is_active, enrollment_open, transition_date, created_at)
		VALUES (:name, :start_year, :end_year, :is_current, :is_active, :enrollment_open, :transition_date, :created_at)
		RETURNING id`, row)
	if err != nil {
		return schoolyear.SchoolYear{}, errors.Wrap(err, "inserting school year")
	}
	if err = repo.db.GetContext(ctx, &row.ID, query, args...); err != nil {
		return schoolyear.SchoolYear{}, errors.Wrap(err, "inserting school year")
	}
	return row.unrow(), nil
}

func (repo *schoolYearRepository) QueryAllSchoolYears(ctx context.Context) ([]schoolyear.SchoolYear, error) {
	var rows []schoolYearRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM school_year ORDER BY start_year DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying school years")
	}
	years := make([]schoolyear.SchoolYear, 0, len(rows))
	for _, row := range rows {
		years = append(years, row.unrow())
	}
	return years, nil
}

func (repo *schoolYearRepository) GetSchoolYearByID(ctx context.Context, id int) (schoolyear.SchoolYear, error) {
	var row schoolYearRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM school_year WHERE id = $1`, id); err != nil {
		return schoolyear.SchoolYear{}, trapNoRowsErr(err, schoolyear.ErrYearNotFound, "finding school year")
	}
	return row.unrow(), nil
}

func (repo *schoolYearRepository) GetSchoolYearByName(ctx context.Context, name string) (schoolyear.SchoolYear, error) {
	var row schoolYearRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM school_year WHERE name = $1`, name); err != nil {
		return schoolyear.SchoolYear{}, trapNoRowsErr(err, schoolyear.ErrYearNotFound, "finding school year by name")
	}
	return row.unrow(), nil
}

func (repo *schoolYearRepository) UpdateSchoolYear(ctx context.Context, year schoolyear.SchoolYear) (schoolyear.SchoolYear, error) {
	row := newSchoolYearRow(year)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE school_year
		SET name = :name, start_year = :start_year, end_year = :end_year, is_current = :is_current,
		    is_active = :is_active, enrollment_open = :enrollment_open, transition_date = :transition_date
		WHERE id = :id`, row)
	if err != nil {
		return schoolyear.SchoolYear{}, errors.Wrap(err, "updating school year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schoolyear.SchoolYear{}, schoolyear.ErrYearNotFound
	}
	return year, nil
}

func (repo *schoolYearRepository) DeleteSchoolYear(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM school_year WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting school year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schoolyear.ErrYearNotFound
	}
	return nil
}
