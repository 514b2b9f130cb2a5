package family

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trucvy/vietschool/core"
)

type fakeRepository struct {
	families map[string]Family
	fetches  int
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository(families ...Family) *fakeRepository {
	repo := &fakeRepository{families: make(map[string]Family)}
	for _, fam := range families {
		if fam.ID == "" {
			fam.ID = uuid.New().String()
		}
		repo.families[fam.ID] = fam
	}
	return repo
}

func (repo *fakeRepository) CreateFamily(_ context.Context, fam Family) (Family, error) {
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
	repo.families[fam.ID] = fam
	return fam, nil
}

func (repo *fakeRepository) QueryAllFamilies(_ context.Context) ([]Family, error) {
	repo.fetches++
	families := make([]Family, 0, len(repo.families))
	for _, fam := range repo.families {
		families = append(families, fam)
	}
	return families, nil
}

func (repo *fakeRepository) GetFamilyByID(_ context.Context, id string) (Family, error) {
	fam, ok := repo.families[id]
	if !ok {
		return Family{}, ErrNotFound
	}
	return fam, nil
}

func (repo *fakeRepository) UpdateFamily(_ context.Context, fam Family) (Family, error) {
	orig, ok := repo.families[fam.ID]
	if !ok {
		return Family{}, ErrNotFound
	}
	orig.FamilyName = fam.FamilyName
	orig.Address = fam.Address
	orig.City = fam.City
	orig.State = fam.State
	orig.ZipCode = fam.ZipCode
	orig.DioceseID = fam.DioceseID
	orig.UpdatedAt = fam.UpdatedAt
	repo.families[orig.ID] = orig
	return orig, nil
}

func (repo *fakeRepository) DeleteFamily(_ context.Context, id string) error {
	if _, ok := repo.families[id]; !ok {
		return ErrNotFound
	}
	delete(repo.families, id)
	return nil
}

func (repo *fakeRepository) CreateGuardian(_ context.Context, g Guardian) (Guardian, error) {
	fam, ok := repo.families[g.FamilyID]
	if !ok {
		return Guardian{}, ErrNotFound
	}
	g.ID = uuid.New().String()
	fam.Guardians = append(fam.Guardians, g)
	repo.families[fam.ID] = fam
	return g, nil
}

func (repo *fakeRepository) UpdateGuardian(_ context.Context, g Guardian) (Guardian, error) {
	fam, ok := repo.families[g.FamilyID]
	if !ok {
		return Guardian{}, ErrNotFound
	}
	for i, orig := range fam.Guardians {
		if orig.ID == g.ID {
			fam.Guardians[i] = g
			repo.families[fam.ID] = fam
			return g, nil
		}
	}
	return Guardian{}, ErrChildNotFound
}

func (repo *fakeRepository) DeleteGuardian(_ context.Context, familyID, id string) error {
	fam, ok := repo.families[familyID]
	if !ok {
		return ErrNotFound
	}
	for i, g := range fam.Guardians {
		if g.ID == id {
			fam.Guardians = append(fam.Guardians[:i], fam.Guardians[i+1:]...)
			repo.families[fam.ID] = fam
			return nil
		}
	}
	return ErrChildNotFound
}

func (repo *fakeRepository) CreateStudent(_ context.Context, s Student) (Student, error) {
	fam, ok := repo.families[s.FamilyID]
	if !ok {
		return Student{}, ErrNotFound
	}
	s.ID = uuid.New().String()
	fam.Students = append(fam.Students, s)
	repo.families[fam.ID] = fam
	return s, nil
}

func (repo *fakeRepository) GetStudentByID(_ context.Context, id string) (Student, error) {
	for _, fam := range repo.families {
		for _, s := range fam.Students {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return Student{}, ErrChildNotFound
}

func (repo *fakeRepository) UpdateStudent(_ context.Context, s Student) (Student, error) {
	fam, ok := repo.families[s.FamilyID]
	if !ok {
		return Student{}, ErrNotFound
	}
	for i, orig := range fam.Students {
		if orig.ID == s.ID {
			fam.Students[i] = s
			repo.families[fam.ID] = fam
			return s, nil
		}
	}
	return Student{}, ErrChildNotFound
}

func (repo *fakeRepository) DeleteStudent(_ context.Context, familyID, id string) error {
	fam, ok := repo.families[familyID]
	if !ok {
		return ErrNotFound
	}
	for i, s := range fam.Students {
		if s.ID == id {
			fam.Students = append(fam.Students[:i], fam.Students[i+1:]...)
			repo.families[fam.ID] = fam
			return nil
		}
	}
	return ErrChildNotFound
}

func (repo *fakeRepository) CreateEmergencyContact(_ context.Context, ec EmergencyContact) (EmergencyContact, error) {
	fam, ok := repo.families[ec.FamilyID]
	if !ok {
		return EmergencyContact{}, ErrNotFound
	}
	ec.ID = uuid.New().String()
	fam.EmergencyContacts = append(fam.EmergencyContacts, ec)
	repo.families[fam.ID] = fam
	return ec, nil
}

func (repo *fakeRepository) UpdateEmergencyContact(_ context.Context, ec EmergencyContact) (EmergencyContact, error) {
	fam, ok := repo.families[ec.FamilyID]
	if !ok {
		return EmergencyContact{}, ErrNotFound
	}
	for i, orig := range fam.EmergencyContacts {
		if orig.ID == ec.ID {
			fam.EmergencyContacts[i] = ec
			repo.families[fam.ID] = fam
			return ec, nil
		}
	}
	return EmergencyContact{}, ErrChildNotFound
}

func (repo *fakeRepository) DeleteEmergencyContact(_ context.Context, familyID, id string) error {
	fam, ok := repo.families[familyID]
	if !ok {
		return ErrNotFound
	}
	for i, ec := range fam.EmergencyContacts {
		if ec.ID == id {
			fam.EmergencyContacts = append(fam.EmergencyContacts[:i], fam.EmergencyContacts[i+1:]...)
			repo.families[fam.ID] = fam
			return nil
		}
	}
	return ErrChildNotFound
}

func TestServiceQuery(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(
		Family{FamilyName: "Gia Đình Nguyễn", City: "San Jose"},
		Family{FamilyName: "Gia Đình Trần", City: "Garden Grove"},
		Family{FamilyName: "Gia Đình Lê", City: "Anaheim"},
	)
	svc := NewService(repo)

	t.Run("paginated and sorted", func(t *testing.T) {
		page, err := svc.Query(ctx, nil, core.Pagination{Page: 1, PageSize: 2}, false)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "Gia Đình Lê", page.Items[0].FamilyName)
		assert.Equal(t, "Gia Đình Nguyễn", page.Items[1].FamilyName)
	})

	t.Run("pages reconstruct the collection", func(t *testing.T) {
		var names []string
		for pg := 1; pg <= 2; pg++ {
			page, err := svc.Query(ctx, nil, core.Pagination{Page: pg, PageSize: 2}, false)
			require.NoError(t, err)
			for _, fam := range page.Items {
				names = append(names, fam.FamilyName)
			}
		}
		assert.Equal(t, []string{"Gia Đình Lê", "Gia Đình Nguyễn", "Gia Đình Trần"}, names)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		page, err := svc.Query(ctx, nil, core.Pagination{Page: 9, PageSize: 10}, false)
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.Total)
	})

	t.Run("diacritic insensitive search", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{Search: "gia dinh tran"}, core.Pagination{Page: 1, PageSize: 10}, false)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Gia Đình Trần", page.Items[0].FamilyName)
	})

	t.Run("descending sort", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{SortBy: "city", SortOrder: "desc"}, core.Pagination{Page: 1, PageSize: 10}, false)
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "San Jose", page.Items[0].City)
	})
}

func TestSortFamilies(t *testing.T) {
	names := func(families []Family) []string {
		out := make([]string, 0, len(families))
		for _, fam := range families {
			out = append(out, fam.ID+":"+fam.FamilyName)
		}
		return out
	}

	t.Run("descending reverses ascending for distinct names", func(t *testing.T) {
		families := []Family{
			{ID: "a", FamilyName: "Trần"},
			{ID: "b", FamilyName: "Ánh"},
			{ID: "c", FamilyName: "Nguyễn"},
		}
		sortFamilies(families, core.DBOrdering{Field: "family_name", Ascending: true})
		assert.Equal(t, []string{"b:Ánh", "c:Nguyễn", "a:Trần"}, names(families))

		sortFamilies(families, core.DBOrdering{Field: "family_name", Ascending: false})
		assert.Equal(t, []string{"a:Trần", "c:Nguyễn", "b:Ánh"}, names(families))
	})

	t.Run("equal folded names keep input order", func(t *testing.T) {
		// "Nguyễn" and "Nguyen" fold to the same key; input order must
		// survive the sort in both directions
		families := []Family{
			{ID: "a", FamilyName: "Nguyễn"},
			{ID: "b", FamilyName: "Nguyen"},
			{ID: "c", FamilyName: "Ánh"},
		}
		sortFamilies(families, core.DBOrdering{Field: "family_name", Ascending: true})
		assert.Equal(t, []string{"c:Ánh", "a:Nguyễn", "b:Nguyen"}, names(families))

		sortFamilies(families, core.DBOrdering{Field: "family_name", Ascending: false})
		assert.Equal(t, []string{"a:Nguyễn", "b:Nguyen", "c:Ánh"}, names(families))
	})
}

func TestServiceQueryCaching(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(Family{FamilyName: "Gia Đình Phạm"})
	svc := NewService(repo)
	pg := core.Pagination{Page: 1, PageSize: 10}

	// repeated reads hit the repository once
	for i := 0; i < 3; i++ {
		_, err := svc.Query(ctx, nil, pg, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.fetches)

	// forced refresh re-fetches
	_, err := svc.Query(ctx, nil, pg, true)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.fetches)

	// a mutation invalidates; next read re-fetches and sees the change
	created, err := svc.Create(ctx, NewFamily{FamilyName: "Gia Đình Võ"})
	require.NoError(t, err)
	page, err := svc.Query(ctx, nil, pg, false)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.fetches)
	assert.Equal(t, 2, page.Total)

	require.NoError(t, svc.Delete(ctx, created.ID))
	page, err = svc.Query(ctx, nil, pg, false)
	require.NoError(t, err)
	assert.Equal(t, 4, repo.fetches)
	assert.Equal(t, 1, page.Total)
}

func TestServiceNestedRecords(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := NewService(repo)

	fam, err := svc.Create(ctx, NewFamily{
		FamilyName: "Gia Đình Hoàng",
		Guardians:  []NewGuardian{{Name: "Hoàng Văn Nam", Relationship: "Father"}},
	})
	require.NoError(t, err)
	require.Len(t, fam.Guardians, 1)

	t.Run("guardians", func(t *testing.T) {
		g, err := svc.AddGuardian(ctx, fam.ID, NewGuardian{Name: "Lê Thị Thu", Relationship: "Mother"})
		require.NoError(t, err)

		g, err = svc.UpdateGuardian(ctx, fam.ID, g.ID, NewGuardian{Name: "Lê Thị Thu", Phone: "555-0101"})
		require.NoError(t, err)
		assert.Equal(t, "555-0101", g.Phone)

		require.NoError(t, svc.RemoveGuardian(ctx, fam.ID, g.ID))
		got, err := svc.GetByID(ctx, fam.ID)
		require.NoError(t, err)
		assert.Len(t, got.Guardians, 1)
	})

	t.Run("students", func(t *testing.T) {
		s, err := svc.AddStudent(ctx, fam.ID, NewStudent{FirstName: "Minh", LastName: "Hoàng"})
		require.NoError(t, err)

		grade := 3
		s, err = svc.UpdateStudent(ctx, fam.ID, s.ID, NewStudent{FirstName: "Minh", LastName: "Hoàng", GradeLevel: &grade})
		require.NoError(t, err)
		require.NotNil(t, s.GradeLevel)
		assert.Equal(t, 3, *s.GradeLevel)

		require.NoError(t, svc.RemoveStudent(ctx, fam.ID, s.ID))
	})

	t.Run("emergency contacts", func(t *testing.T) {
		ec, err := svc.AddEmergencyContact(ctx, fam.ID, NewEmergencyContact{Name: "Cô Mai", Phone: "555-0102"})
		require.NoError(t, err)

		ec, err = svc.UpdateEmergencyContact(ctx, fam.ID, ec.ID, NewEmergencyContact{Name: "Cô Mai", Phone: "555-0103"})
		require.NoError(t, err)
		assert.Equal(t, "555-0103", ec.Phone)

		require.NoError(t, svc.RemoveEmergencyContact(ctx, fam.ID, ec.ID))
	})

	t.Run("missing family", func(t *testing.T) {
		_, err := svc.AddGuardian(ctx, "nope", NewGuardian{Name: "X"})
		assert.Equal(t, ErrNotFound, err)
	})
}
