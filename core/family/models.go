package family

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trucvy/vietschool/core"
)

type (
	Family struct {
		ID         string `json:"id"`
		FamilyName string `json:"family_name"`
		Address    string `json:"address,omitempty"`
		City       string `json:"city,omitempty"`
		State      string `json:"state,omitempty"`
		ZipCode    string `json:"zip_code,omitempty"`
		DioceseID  string `json:"diocese_id,omitempty"`

		Guardians         []Guardian         `json:"guardians"`
		Students          []Student          `json:"students"`
		EmergencyContacts []EmergencyContact `json:"emergency_contacts"`

		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	Guardian struct {
		ID           string `json:"id"`
		FamilyID     string `json:"family_id"`
		Name         string `json:"name"`
		Email        string `json:"email,omitempty"`
		Phone        string `json:"phone,omitempty"`
		Relationship string `json:"relationship_to_family,omitempty"`
	}

	EmergencyContact struct {
		ID           string `json:"id"`
		FamilyID     string `json:"family_id"`
		Name         string `json:"name"`
		Email        string `json:"email,omitempty"`
		Phone        string `json:"phone"`
		Relationship string `json:"relationship_to_family,omitempty"`
	}

	Student struct {
		ID             string    `json:"id"`
		FamilyID       string    `json:"family_id"`
		FirstName      string    `json:"first_name"`
		LastName       string    `json:"last_name"`
		MiddleName     string    `json:"middle_name,omitempty"`
		SaintName      string    `json:"saint_name,omitempty"`
		DateOfBirth    time.Time `json:"date_of_birth"`
		Gender         string    `json:"gender,omitempty"`
		GradeLevel     *int      `json:"grade_level,omitempty"`
		AmericanSchool string    `json:"american_school,omitempty"`
		Notes          string    `json:"notes,omitempty"`
	}
)

// EnsureChildren guarantees the child collections marshal as [] and never null.
func (fam *Family) EnsureChildren() {
	if fam.Guardians == nil {
		fam.Guardians = []Guardian{}
	}
	if fam.Students == nil {
		fam.Students = []Student{}
	}
	if fam.EmergencyContacts == nil {
		fam.EmergencyContacts = []EmergencyContact{}
	}
}

// SearchText builds the folded-search haystack for a family: the family name,
// city, state, guardian names, student first and last names and emergency
// contact names, space joined, blanks skipped.
func (fam *Family) SearchText() string {
	parts := make([]string, 0, 3+len(fam.Guardians)+2*len(fam.Students)+len(fam.EmergencyContacts))
	appendPart := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	appendPart(fam.FamilyName)
	appendPart(fam.City)
	appendPart(fam.State)
	for _, g := range fam.Guardians {
		appendPart(g.Name)
	}
	for _, s := range fam.Students {
		appendPart(s.FirstName)
		appendPart(s.LastName)
	}
	for _, ec := range fam.EmergencyContacts {
		appendPart(ec.Name)
	}
	return strings.Join(parts, " ")
}

// NewFamily contains information needed to register a new Family, optionally
// with its initial guardians, students and emergency contacts.
type NewFamily struct {
	FamilyName string `json:"family_name" validate:"required"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
	DioceseID  string `json:"diocese_id"`

	Guardians         []NewGuardian         `json:"guardians" validate:"dive"`
	Students          []NewStudent          `json:"students" validate:"dive"`
	EmergencyContacts []NewEmergencyContact `json:"emergency_contacts" validate:"dive"`
}

func (nf *NewFamily) Validate(validate *validator.Validate) error {
	nf.FamilyName = core.CleanString(nf.FamilyName)
	nf.City = core.CleanString(nf.City)
	nf.State = core.CleanString(nf.State)
	return validate.Struct(nf)
}

// UpdateFamily defines what information may be provided to modify an existing
// Family; zero values fall back to the original. Child collections are
// managed through their own endpoints.
type UpdateFamily struct {
	FamilyName string `json:"family_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
	DioceseID  string `json:"diocese_id"`
}

func (uf *UpdateFamily) Validate(origFam Family, validate *validator.Validate) error {
	if name := core.CleanString(uf.FamilyName); name != "" {
		uf.FamilyName = name
	} else {
		uf.FamilyName = origFam.FamilyName
	}
	return validate.Struct(uf)
}

type NewGuardian struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship_to_family"`
}

func (ng *NewGuardian) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	return validate.Struct(ng)
}

type NewEmergencyContact struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"required"`
	Relationship string `json:"relationship_to_family"`
}

func (nc *NewEmergencyContact) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	return validate.Struct(nc)
}

type NewStudent struct {
	FirstName      string    `json:"first_name" validate:"required"`
	LastName       string    `json:"last_name" validate:"required"`
	MiddleName     string    `json:"middle_name"`
	SaintName      string    `json:"saint_name"`
	DateOfBirth    time.Time `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	GradeLevel     *int      `json:"grade_level" validate:"omitempty,gte=0,lte=12"`
	AmericanSchool string    `json:"american_school"`
	Notes          string    `json:"notes"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	return validate.Struct(ns)
}

// QueryFilter holds the family list query params. SortBy accepts a Family
// column name; unknown values fall back to family_name.
type QueryFilter struct {
	Search    string `query:"search"`
	SortBy    string `query:"sort_by"`
	SortOrder string `query:"sort_order"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SortBy = core.CleanString(qf.SortBy, true /* lower */)
	qf.SortOrder = core.CleanString(qf.SortOrder, true /* lower */)
}

func (qf *QueryFilter) Ordering() core.DBOrdering {
	field := qf.SortBy
	switch field {
	case "family_name", "city", "state", "zip_code":
	default:
		field = "family_name"
	}
	return core.DBOrdering{Field: field, Ascending: qf.SortOrder != "desc"}
}

// Match applies the search to a single family, folding Vietnamese diacritics
// on the whole haystack.
func (qf *QueryFilter) Match(fam Family) bool {
	return core.Matches(fam.SearchText(), qf.Search)
}
