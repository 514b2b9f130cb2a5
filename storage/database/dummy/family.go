package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trucvy/vietschool/core/family"
)

type familyRepository struct {
	db *familyTable
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *DB) *familyRepository {
	return &familyRepository{db: db.family}
}

// copy returns a detached copy so callers never mutate stored records.
func copyFamily(fam *family.Family) family.Family {
	cp := *fam
	cp.Guardians = append([]family.Guardian(nil), fam.Guardians...)
	cp.Students = append([]family.Student(nil), fam.Students...)
	cp.EmergencyContacts = append([]family.EmergencyContact(nil), fam.EmergencyContacts...)
	return cp
}

func (repo *familyRepository) CreateFamily(_ context.Context, fam family.Family) (family.Family, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam.ID = uuid.New().String()
	for i := range fam.Guardians {
		fam.Guardians[i].ID = uuid.New().String()
		fam.Guardians[i].FamilyID = fam.ID
	}
	for i := range fam.Students {
		fam.Students[i].ID = uuid.New().String()
		fam.Students[i].FamilyID = fam.ID
	}
	for i := range fam.EmergencyContacts {
		fam.EmergencyContacts[i].ID = uuid.New().String()
		fam.EmergencyContacts[i].FamilyID = fam.ID
	}
	repo.db.table[fam.ID] = &fam
	return copyFamily(&fam), nil
}

func (repo *familyRepository) QueryAllFamilies(_ context.Context) ([]family.Family, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	families := make([]family.Family, 0, len(repo.db.table))
	for _, fam := range repo.db.table {
		families = append(families, copyFamily(fam))
	}
	return families, nil
}

func (repo *familyRepository) GetFamilyByID(_ context.Context, id string) (family.Family, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if fam, ok := repo.db.table[id]; ok {
		return copyFamily(fam), nil
	}
	return family.Family{}, family.ErrNotFound
}

func (repo *familyRepository) UpdateFamily(_ context.Context, fam family.Family) (family.Family, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[fam.ID]
	if !ok {
		return family.Family{}, family.ErrNotFound
	}
	orig.FamilyName = fam.FamilyName
	orig.Address = fam.Address
	orig.City = fam.City
	orig.State = fam.State
	orig.ZipCode = fam.ZipCode
	orig.DioceseID = fam.DioceseID
	orig.UpdatedAt = fam.UpdatedAt
	return copyFamily(orig), nil
}

func (repo *familyRepository) DeleteFamily(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return family.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *familyRepository) CreateGuardian(_ context.Context, g family.Guardian) (family.Guardian, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[g.FamilyID]
	if !ok {
		return family.Guardian{}, family.ErrNotFound
	}
	g.ID = uuid.New().String()
	fam.Guardians = append(fam.Guardians, g)
	return g, nil
}

func (repo *familyRepository) UpdateGuardian(_ context.Context, g family.Guardian) (family.Guardian, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[g.FamilyID]
	if !ok {
		return family.Guardian{}, family.ErrNotFound
	}
	for i := range fam.Guardians {
		if fam.Guardians[i].ID == g.ID {
			fam.Guardians[i] = g
			return g, nil
		}
	}
	return family.Guardian{}, family.ErrChildNotFound
}

func (repo *familyRepository) DeleteGuardian(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[familyID]
	if !ok {
		return family.ErrNotFound
	}
	for i := range fam.Guardians {
		if fam.Guardians[i].ID == id {
			fam.Guardians = append(fam.Guardians[:i], fam.Guardians[i+1:]...)
			return nil
		}
	}
	return family.ErrChildNotFound
}

func (repo *familyRepository) CreateStudent(_ context.Context, s family.Student) (family.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[s.FamilyID]
	if !ok {
		return family.Student{}, family.ErrNotFound
	}
	s.ID = uuid.New().String()
	fam.Students = append(fam.Students, s)
	return s, nil
}

func (repo *familyRepository) GetStudentByID(_ context.Context, id string) (family.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, fam := range repo.db.table {
		for _, s := range fam.Students {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return family.Student{}, family.ErrChildNotFound
}

func (repo *familyRepository) UpdateStudent(_ context.Context, s family.Student) (family.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[s.FamilyID]
	if !ok {
		return family.Student{}, family.ErrNotFound
	}
	for i := range fam.Students {
		if fam.Students[i].ID == s.ID {
			fam.Students[i] = s
			return s, nil
		}
	}
	return family.Student{}, family.ErrChildNotFound
}

func (repo *familyRepository) DeleteStudent(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[familyID]
	if !ok {
		return family.ErrNotFound
	}
	for i := range fam.Students {
		if fam.Students[i].ID == id {
			fam.Students = append(fam.Students[:i], fam.Students[i+1:]...)
			return nil
		}
	}
	return family.ErrChildNotFound
}

func (repo *familyRepository) CreateEmergencyContact(_ context.Context, ec family.EmergencyContact) (family.EmergencyContact, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[ec.FamilyID]
	if !ok {
		return family.EmergencyContact{}, family.ErrNotFound
	}
	ec.ID = uuid.New().String()
	fam.EmergencyContacts = append(fam.EmergencyContacts, ec)
	return ec, nil
}

func (repo *familyRepository) UpdateEmergencyContact(_ context.Context, ec family.EmergencyContact) (family.EmergencyContact, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[ec.FamilyID]
	if !ok {
		return family.EmergencyContact{}, family.ErrNotFound
	}
	for i := range fam.EmergencyContacts {
		if fam.EmergencyContacts[i].ID == ec.ID {
			fam.EmergencyContacts[i] = ec
			return ec, nil
		}
	}
	return family.EmergencyContact{}, family.ErrChildNotFound
}

func (repo *familyRepository) DeleteEmergencyContact(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	fam, ok := repo.db.table[familyID]
	if !ok {
		return family.ErrNotFound
	}
	for i := range fam.EmergencyContacts {
		if fam.EmergencyContacts[i].ID == id {
			fam.EmergencyContacts = append(fam.EmergencyContacts[:i], fam.EmergencyContacts[i+1:]...)
			return nil
		}
	}
	return family.ErrChildNotFound
}
