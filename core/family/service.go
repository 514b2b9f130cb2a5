package family

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
)

var (
	// errors
	ErrNotFound      = errors.New("family not found")
	ErrChildNotFound = errors.New("record not found in this family")
)

// cacheKey is the single key of the family list cache; the whole collection
// is cached and re-filtered per request.
const cacheKey = "families"

type (
	Repository interface {
		CreateFamily(ctx context.Context, fam Family) (Family, error)
		// QueryAllFamilies returns every family with its child collections
		// populated.
		QueryAllFamilies(ctx context.Context) ([]Family, error)
		GetFamilyByID(ctx context.Context, id string) (Family, error)
		UpdateFamily(ctx context.Context, fam Family) (Family, error)
		DeleteFamily(ctx context.Context, id string) error

		CreateGuardian(ctx context.Context, g Guardian) (Guardian, error)
		UpdateGuardian(ctx context.Context, g Guardian) (Guardian, error)
		DeleteGuardian(ctx context.Context, familyID, id string) error

		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudent(ctx context.Context, familyID, id string) error

		CreateEmergencyContact(ctx context.Context, ec EmergencyContact) (EmergencyContact, error)
		UpdateEmergencyContact(ctx context.Context, ec EmergencyContact) (EmergencyContact, error)
		DeleteEmergencyContact(ctx context.Context, familyID, id string) error
	}

	Service interface {
		Create(ctx context.Context, nf NewFamily) (Family, error)
		// Query serves the paginated family list from the cache, filtering
		// and sorting in memory.
		Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Family], error)
		// QueryAll returns the full collection sorted by family name.
		QueryAll(ctx context.Context) ([]Family, error)
		GetByID(ctx context.Context, id string) (Family, error)
		Update(ctx context.Context, origFam Family, uf UpdateFamily) (Family, error)
		Delete(ctx context.Context, id string) error

		AddGuardian(ctx context.Context, familyID string, ng NewGuardian) (Guardian, error)
		UpdateGuardian(ctx context.Context, familyID, id string, ng NewGuardian) (Guardian, error)
		RemoveGuardian(ctx context.Context, familyID, id string) error

		AddStudent(ctx context.Context, familyID string, ns NewStudent) (Student, error)
		UpdateStudent(ctx context.Context, familyID, id string, ns NewStudent) (Student, error)
		RemoveStudent(ctx context.Context, familyID, id string) error

		AddEmergencyContact(ctx context.Context, familyID string, nc NewEmergencyContact) (EmergencyContact, error)
		UpdateEmergencyContact(ctx context.Context, familyID, id string, nc NewEmergencyContact) (EmergencyContact, error)
		RemoveEmergencyContact(ctx context.Context, familyID, id string) error
	}

	service struct {
		repo  Repository
		cache *core.ListCache[string, Family]
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{
		repo:  repo,
		cache: core.NewListCache[string, Family](),
	}
}

func (svc *service) Create(ctx context.Context, nf NewFamily) (Family, error) {
	now := time.Now().UTC()
	fam := Family{
		FamilyName: nf.FamilyName,
		Address:    nf.Address,
		City:       nf.City,
		State:      nf.State,
		ZipCode:    nf.ZipCode,
		DioceseID:  nf.DioceseID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, ng := range nf.Guardians {
		fam.Guardians = append(fam.Guardians, Guardian{
			Name:         ng.Name,
			Email:        ng.Email,
			Phone:        ng.Phone,
			Relationship: ng.Relationship,
		})
	}
	for _, ns := range nf.Students {
		fam.Students = append(fam.Students, newStudent(ns))
	}
	for _, nc := range nf.EmergencyContacts {
		fam.EmergencyContacts = append(fam.EmergencyContacts, EmergencyContact{
			Name:         nc.Name,
			Email:        nc.Email,
			Phone:        nc.Phone,
			Relationship: nc.Relationship,
		})
	}

	created, err := svc.repo.CreateFamily(ctx, fam)
	if err != nil {
		return Family{}, errors.Wrap(err, "creating family")
	}
	created.EnsureChildren()
	svc.cache.Invalidate(cacheKey)
	return created, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Family], error) {
	entry, err := svc.cache.Load(cacheKey, forceRefresh, func() ([]Family, error) {
		return svc.repo.QueryAllFamilies(ctx)
	})
	if err != nil {
		return core.Page[Family]{}, errors.Wrap(err, "querying families")
	}

	families := entry.Items
	if filter != nil && filter.Search != "" {
		filtered := make([]Family, 0, len(families))
		for _, fam := range families {
			if filter.Match(fam) {
				filtered = append(filtered, fam)
			}
		}
		families = filtered
	} else {
		// never sort the cached slice in place
		families = append([]Family(nil), families...)
	}

	ord := core.DBOrdering{Field: "family_name", Ascending: true}
	if filter != nil {
		ord = filter.Ordering()
	}
	sortFamilies(families, ord)

	pg.Clean()
	page := core.NewPage(families, pg)
	for i := range page.Items {
		page.Items[i].EnsureChildren()
	}
	return page, nil
}

func (svc *service) QueryAll(ctx context.Context) ([]Family, error) {
	families, err := svc.repo.QueryAllFamilies(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying families")
	}
	sortFamilies(families, core.DBOrdering{Field: "family_name", Ascending: true})
	for i := range families {
		families[i].EnsureChildren()
	}
	return families, nil
}

func sortFamilies(families []Family, ord core.DBOrdering) {
	sort.SliceStable(families, func(i, j int) bool {
		a, b := families[i], families[j]
		if !ord.Ascending {
			a, b = b, a
		}
		switch ord.Field {
		case "city":
			return core.CompareFold(a.City, b.City) < 0
		case "state":
			return core.CompareFold(a.State, b.State) < 0
		case "zip_code":
			return core.CompareFold(a.ZipCode, b.ZipCode) < 0
		default:
			return core.CompareFold(a.FamilyName, b.FamilyName) < 0
		}
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Family, error) {
	fam, err := svc.repo.GetFamilyByID(ctx, id)
	if err != nil {
		return Family{}, err
	}
	fam.EnsureChildren()
	return fam, nil
}

func (svc *service) Update(ctx context.Context, origFam Family, uf UpdateFamily) (Family, error) {
	fam := Family{
		ID:         origFam.ID,
		FamilyName: uf.FamilyName,
		Address:    uf.Address,
		City:       uf.City,
		State:      uf.State,
		ZipCode:    uf.ZipCode,
		DioceseID:  uf.DioceseID,
		UpdatedAt:  time.Now().UTC(),
	}
	updated, err := svc.repo.UpdateFamily(ctx, fam)
	if err != nil {
		return Family{}, errors.Wrap(err, "updating family")
	}
	updated.EnsureChildren()
	svc.cache.Invalidate(cacheKey)
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteFamily(ctx, id); err != nil {
		return err
	}
	svc.cache.Invalidate(cacheKey)
	return nil
}

// Guardians

func (svc *service) AddGuardian(ctx context.Context, familyID string, ng NewGuardian) (Guardian, error) {
	if _, err := svc.repo.GetFamilyByID(ctx, familyID); err != nil {
		return Guardian{}, err
	}
	g, err := svc.repo.CreateGuardian(ctx, Guardian{
		FamilyID:     familyID,
		Name:         ng.Name,
		Email:        ng.Email,
		Phone:        ng.Phone,
		Relationship: ng.Relationship,
	})
	if err != nil {
		return Guardian{}, errors.Wrap(err, "creating guardian")
	}
	svc.cache.Invalidate(cacheKey)
	return g, nil
}

func (svc *service) UpdateGuardian(ctx context.Context, familyID, id string, ng NewGuardian) (Guardian, error) {
	g, err := svc.repo.UpdateGuardian(ctx, Guardian{
		ID:           id,
		FamilyID:     familyID,
		Name:         ng.Name,
		Email:        ng.Email,
		Phone:        ng.Phone,
		Relationship: ng.Relationship,
	})
	if err != nil {
		return Guardian{}, err
	}
	svc.cache.Invalidate(cacheKey)
	return g, nil
}

func (svc *service) RemoveGuardian(ctx context.Context, familyID, id string) error {
	if err := svc.repo.DeleteGuardian(ctx, familyID, id); err != nil {
		return err
	}
	svc.cache.Invalidate(cacheKey)
	return nil
}

// Students

func newStudent(ns NewStudent) Student {
	return Student{
		FirstName:      ns.FirstName,
		LastName:       ns.LastName,
		MiddleName:     ns.MiddleName,
		SaintName:      ns.SaintName,
		DateOfBirth:    ns.DateOfBirth,
		Gender:         ns.Gender,
		GradeLevel:     ns.GradeLevel,
		AmericanSchool: ns.AmericanSchool,
		Notes:          ns.Notes,
	}
}

func (svc *service) AddStudent(ctx context.Context, familyID string, ns NewStudent) (Student, error) {
	if _, err := svc.repo.GetFamilyByID(ctx, familyID); err != nil {
		return Student{}, err
	}
	s := newStudent(ns)
	s.FamilyID = familyID
	created, err := svc.repo.CreateStudent(ctx, s)
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	svc.cache.Invalidate(cacheKey)
	return created, nil
}

func (svc *service) UpdateStudent(ctx context.Context, familyID, id string, ns NewStudent) (Student, error) {
	s := newStudent(ns)
	s.ID = id
	s.FamilyID = familyID
	updated, err := svc.repo.UpdateStudent(ctx, s)
	if err != nil {
		return Student{}, err
	}
	svc.cache.Invalidate(cacheKey)
	return updated, nil
}

func (svc *service) RemoveStudent(ctx context.Context, familyID, id string) error {
	if err := svc.repo.DeleteStudent(ctx, familyID, id); err != nil {
		return err
	}
	svc.cache.Invalidate(cacheKey)
	return nil
}

// Emergency contacts

func (svc *service) AddEmergencyContact(ctx context.Context, familyID string, nc NewEmergencyContact) (EmergencyContact, error) {
	if _, err := svc.repo.GetFamilyByID(ctx, familyID); err != nil {
		return EmergencyContact{}, err
	}
	ec, err := svc.repo.CreateEmergencyContact(ctx, EmergencyContact{
		FamilyID:     familyID,
		Name:         nc.Name,
		Email:        nc.Email,
		Phone:        nc.Phone,
		Relationship: nc.Relationship,
	})
	if err != nil {
		return EmergencyContact{}, errors.Wrap(err, "creating emergency contact")
	}
	svc.cache.Invalidate(cacheKey)
	return ec, nil
}

func (svc *service) UpdateEmergencyContact(ctx context.Context, familyID, id string, nc NewEmergencyContact) (EmergencyContact, error) {
	ec, err := svc.repo.UpdateEmergencyContact(ctx, EmergencyContact{
		ID:           id,
		FamilyID:     familyID,
		Name:         nc.Name,
		Email:        nc.Email,
		Phone:        nc.Phone,
		Relationship: nc.Relationship,
	})
	if err != nil {
		return EmergencyContact{}, err
	}
	svc.cache.Invalidate(cacheKey)
	return ec, nil
}

func (svc *service) RemoveEmergencyContact(ctx context.Context, familyID, id string) error {
	if err := svc.repo.DeleteEmergencyContact(ctx, familyID, id); err != nil {
		return err
	}
	svc.cache.Invalidate(cacheKey)
	return nil
}
