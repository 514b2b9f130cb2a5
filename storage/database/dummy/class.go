package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
)

type classRepository struct {
	db       *classTable
	families *familyTable
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db.class, families: db.family}
}

func (repo *classRepository) enrollmentCount(classID string) int {
	count := 0
	for _, enr := range repo.db.enrollments {
		if enr.ClassID == classID {
			count++
		}
	}
	return count
}

// withDetails resolves the program and enrollment count for reads.
func (repo *classRepository) withDetails(cls class.Class) class.Class {
	if p, ok := repo.db.programs[cls.ProgramID]; ok {
		prog := *p
		cls.Program = &prog
	}
	cls.EnrollmentCount = repo.enrollmentCount(cls.ID)
	return cls
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return repo.withDetails(cls), nil
}

func (repo *classRepository) QueryClassesByYear(_ context.Context, yearID int) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if yearID != 0 && cls.SchoolYearID != yearID {
			continue
		}
		classes = append(classes, repo.withDetails(*cls))
	}
	return classes, nil
}

func (repo *classRepository) GetClassByID(_ context.Context, id string) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return repo.withDetails(*cls), nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	orig.Name = cls.Name
	orig.ProgramID = cls.ProgramID
	orig.SchoolYearID = cls.SchoolYearID
	return repo.withDetails(*orig), nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	delete(repo.db.classes, id)
	for enrID, enr := range repo.db.enrollments {
		if enr.ClassID == id {
			delete(repo.db.enrollments, enrID)
		}
	}
	return nil
}

func (repo *classRepository) GetClassRoster(_ context.Context, classID string) ([]class.RosterEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.families.RLock()
	defer repo.families.RUnlock()

	var roster []class.RosterEntry
	for _, enr := range repo.db.enrollments {
		if enr.ClassID != classID {
			continue
		}
		entry := class.RosterEntry{Enrollment: *enr}
		if s, famName, ok := repo.findStudent(enr.StudentID); ok {
			entry.Student = class.RosterStudent{Student: s, FamilyName: famName}
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

// callers hold the family lock
func (repo *classRepository) findStudent(id string) (family.Student, string, bool) {
	for _, fam := range repo.families.table {
		for _, s := range fam.Students {
			if s.ID == id {
				return s, fam.FamilyName, true
			}
		}
	}
	return family.Student{}, "", false
}

func (repo *classRepository) CreateEnrollment(_ context.Context, enr class.Enrollment) (class.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *classRepository) GetEnrollment(_ context.Context, classID, studentID string) (class.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, enr := range repo.db.enrollments {
		if enr.ClassID == classID && enr.StudentID == studentID {
			return *enr, nil
		}
	}
	return class.Enrollment{}, class.ErrEnrollmentNotFound
}

func (repo *classRepository) DeleteEnrollment(_ context.Context, classID, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, enr := range repo.db.enrollments {
		if enr.ClassID == classID && enr.StudentID == studentID {
			delete(repo.db.enrollments, id)
			return nil
		}
	}
	return class.ErrEnrollmentNotFound
}

func (repo *classRepository) QueryAllPrograms(_ context.Context) ([]class.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	programs := make([]class.Program, 0, len(repo.db.programs))
	for _, p := range repo.db.programs {
		programs = append(programs, *p)
	}
	return programs, nil
}

func (repo *classRepository) GetProgramByID(_ context.Context, id int) (class.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.programs[id]; ok {
		return *p, nil
	}
	return class.Program{}, class.ErrProgramNotFound
}

func (repo *classRepository) CreateProgram(_ context.Context, p class.Program) (class.Program, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.programSerial++
	p.ID = repo.db.programSerial
	repo.db.programs[p.ID] = &p
	return p, nil
}

// ClassCountForYear and EnrollmentCountForYear back the school year stats.

func (repo *classRepository) ClassCountForYear(_ context.Context, yearID int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, cls := range repo.db.classes {
		if cls.SchoolYearID == yearID {
			count++
		}
	}
	return count, nil
}

func (repo *classRepository) EnrollmentCountForYear(_ context.Context, yearID int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, enr := range repo.db.enrollments {
		if cls, ok := repo.db.classes[enr.ClassID]; ok && cls.SchoolYearID == yearID {
			count++
		}
	}
	return count, nil
}
