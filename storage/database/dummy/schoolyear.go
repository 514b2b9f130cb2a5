package dummydb

import (
	"context"

	"github.com/trucvy/vietschool/core/schoolyear"
)

type schoolYearRepository struct {
	db *schoolYearTable
}

var _ schoolyear.Repository = (*schoolYearRepository)(nil) // interface compliance check

func NewSchoolYearRepository(db *DB) *schoolYearRepository {
	return &schoolYearRepository{db: db.schoolYear}
}

func (repo *schoolYearRepository) CreateSchoolYear(_ context.Context, year schoolyear.SchoolYear) (schoolyear.SchoolYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.serial++
	year.ID = repo.db.serial
	repo.db.table[year.ID] = &year
	return year, nil
}

func (repo *schoolYearRepository) QueryAllSchoolYears(_ context.Context) ([]schoolyear.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	years := make([]schoolyear.SchoolYear, 0, len(repo.db.table))
	for _, year := range repo.db.table {
		years = append(years, *year)
	}
	return years, nil
}

func (repo *schoolYearRepository) GetSchoolYearByID(_ context.Context, id int) (schoolyear.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if year, ok := repo.db.table[id]; ok {
		return *year, nil
	}
	return schoolyear.SchoolYear{}, schoolyear.ErrYearNotFound
}

func (repo *schoolYearRepository) GetSchoolYearByName(_ context.Context, name string) (schoolyear.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, year := range repo.db.table {
		if year.Name == name {
			return *year, nil
		}
	}
	return schoolyear.SchoolYear{}, schoolyear.ErrYearNotFound
}

func (repo *schoolYearRepository) UpdateSchoolYear(_ context.Context, year schoolyear.SchoolYear) (schoolyear.SchoolYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[year.ID]; !ok {
		return schoolyear.SchoolYear{}, schoolyear.ErrYearNotFound
	}
	repo.db.table[year.ID] = &year
	return year, nil
}

func (repo *schoolYearRepository) DeleteSchoolYear(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return schoolyear.ErrYearNotFound
	}
	delete(repo.db.table, id)
	return nil
}
