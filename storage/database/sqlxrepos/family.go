package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trucvy/vietschool/core/family"
)

type (
	familyRow struct {
		ID         string      `db:"id"`
		FamilyName string      `db:"family_name"`
		Address    string      `db:"address"`
		City       string      `db:"city"`
		State      string      `db:"state"`
		ZipCode    string      `db:"zip_code"`
		DioceseID  string      `db:"diocese_id"`
		CreatedAt  null.Time   `db:"created_at"`
		UpdatedAt  null.Time   `db:"updated_at"`
	}

	guardianRow struct {
		ID           string `db:"id"`
		FamilyID     string `db:"family_id"`
		Name         string `db:"name"`
		Email        string `db:"email"`
		Phone        string `db:"phone"`
		Relationship string `db:"relationship"`
	}

	studentRow struct {
		ID             string    `db:"id"`
		FamilyID       string    `db:"family_id"`
		FirstName      string    `db:"first_name"`
		LastName       string    `db:"last_name"`
		MiddleName     string    `db:"middle_name"`
		SaintName      string    `db:"saint_name"`
		DateOfBirth    null.Time `db:"date_of_birth"`
		Gender         string    `db:"gender"`
		GradeLevel     null.Int  `db:"grade_level"`
		AmericanSchool string    `db:"american_school"`
		Notes          string    `db:"notes"`
	}
)

func (r familyRow) unrow() family.Family {
	return family.Family{
		ID:         r.ID,
		FamilyName: r.FamilyName,
		Address:    r.Address,
		City:       r.City,
		State:      r.State,
		ZipCode:    r.ZipCode,
		DioceseID:  r.DioceseID,
		CreatedAt:  r.CreatedAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
}

func newFamilyRow(fam family.Family) familyRow {
	return familyRow{
		ID:         fam.ID,
		FamilyName: fam.FamilyName,
		Address:    fam.Address,
		City:       fam.City,
		State:      fam.State,
		ZipCode:    fam.ZipCode,
		DioceseID:  fam.DioceseID,
		CreatedAt:  null.NewTime(fam.CreatedAt.UTC(), !fam.CreatedAt.IsZero()),
		UpdatedAt:  null.NewTime(fam.UpdatedAt.UTC(), !fam.UpdatedAt.IsZero()),
	}
}

func (r guardianRow) unrowGuardian() family.Guardian {
	return family.Guardian{
		ID:           r.ID,
		FamilyID:     r.FamilyID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Relationship: r.Relationship,
	}
}

func (r guardianRow) unrowContact() family.EmergencyContact {
	return family.EmergencyContact{
		ID:           r.ID,
		FamilyID:     r.FamilyID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Relationship: r.Relationship,
	}
}

func (r studentRow) unrow() family.Student {
	return family.Student{
		ID:             r.ID,
		FamilyID:       r.FamilyID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		MiddleName:     r.MiddleName,
		SaintName:      r.SaintName,
		DateOfBirth:    r.DateOfBirth.Time,
		Gender:         r.Gender,
		GradeLevel:     intPtr(r.GradeLevel),
		AmericanSchool: r.AmericanSchool,
		Notes:          r.Notes,
	}
}

func newStudentRow(s family.Student) studentRow {
	return studentRow{
		ID:             s.ID,
		FamilyID:       s.FamilyID,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		MiddleName:     s.MiddleName,
		SaintName:      s.SaintName,
		DateOfBirth:    null.NewTime(s.DateOfBirth, !s.DateOfBirth.IsZero()),
		Gender:         s.Gender,
		GradeLevel:     nullIntFromPtr(s.GradeLevel),
		AmericanSchool: s.AmericanSchool,
		Notes:          s.Notes,
	}
}

func intPtr(n null.Int) *int {
	if !n.Valid {
		return nil
	}
	v := n.Int
	return &v
}

func nullIntFromPtr(p *int) null.Int {
	if p == nil {
		return null.Int{}
	}
	return null.IntFrom(*p)
}

type familyRepository struct {
	db *sqlx.DB
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *sqlx.DB) *familyRepository {
	return &familyRepository{db: db}
}

func (repo *familyRepository) CreateFamily(ctx context.Context, fam family.Family) (family.Family, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return family.Family{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	fam.ID = uuid.New().String()
	row := newFamilyRow(fam)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO family (id, family_name, address, city, state, zip_code, diocese_id, created_at, updated_at)
		VALUES (:id, :family_name, :address, :city, :state, :zip_code, :diocese_id, :created_at, :updated_at)`, row)
	if err != nil {
		return family.Family{}, errors.Wrap(err, "inserting family")
	}

	for i := range fam.Guardians {
		fam.Guardians[i].ID = uuid.New().String()
		fam.Guardians[i].FamilyID = fam.ID
		if err = insertGuardian(ctx, tx, "guardian", guardianRow(fam.Guardians[i])); err != nil {
			return family.Family{}, errors.Wrap(err, "inserting guardian")
		}
	}
	for i := range fam.Students {
		fam.Students[i].ID = uuid.New().String()
		fam.Students[i].FamilyID = fam.ID
		if err = insertStudent(ctx, tx, newStudentRow(fam.Students[i])); err != nil {
			return family.Family{}, errors.Wrap(err, "inserting student")
		}
	}
	for i := range fam.EmergencyContacts {
		fam.EmergencyContacts[i].ID = uuid.New().String()
		fam.EmergencyContacts[i].FamilyID = fam.ID
		if err = insertGuardian(ctx, tx, "emergency_contact", guardianRow(fam.EmergencyContacts[i])); err != nil {
			return family.Family{}, errors.Wrap(err, "inserting emergency contact")
		}
	}

	if err = tx.Commit(); err != nil {
		return family.Family{}, errors.Wrap(err, "committing family")
	}
	return fam, nil
}

func insertGuardian(ctx context.Context, tx *sqlx.Tx, table string, row guardianRow) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO `+table+` (id, family_id, name, email, phone, relationship)
		VALUES (:id, :family_id, :name, :email, :phone, :relationship)`, row)
	return err
}

func insertStudent(ctx context.Context, tx *sqlx.Tx, row studentRow) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO student (id, family_id, first_name, last_name, middle_name, saint_name,
		                     date_of_birth, gender, grade_level, american_school, notes)
		VALUES (:id, :family_id, :first_name, :last_name, :middle_name, :saint_name,
		        :date_of_birth, :gender, :grade_level, :american_school, :notes)`, row)
	return err
}

func (repo *familyRepository) QueryAllFamilies(ctx context.Context) ([]family.Family, error) {
	var famRows []familyRow
	if err := repo.db.SelectContext(ctx, &famRows, `SELECT * FROM family`); err != nil {
		return nil, errors.Wrap(err, "querying families")
	}

	var guardianRows []guardianRow
	if err := repo.db.SelectContext(ctx, &guardianRows, `SELECT * FROM guardian`); err != nil {
		return nil, errors.Wrap(err, "querying guardians")
	}
	var studentRows []studentRow
	if err := repo.db.SelectContext(ctx, &studentRows, `SELECT * FROM student`); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	var contactRows []guardianRow
	if err := repo.db.SelectContext(ctx, &contactRows, `SELECT * FROM emergency_contact`); err != nil {
		return nil, errors.Wrap(err, "querying emergency contacts")
	}

	byID := make(map[string]*family.Family, len(famRows))
	families := make([]family.Family, 0, len(famRows))
	for _, row := range famRows {
		families = append(families, row.unrow())
	}
	for i := range families {
		byID[families[i].ID] = &families[i]
	}
	for _, row := range guardianRows {
		if fam, ok := byID[row.FamilyID]; ok {
			fam.Guardians = append(fam.Guardians, row.unrowGuardian())
		}
	}
	for _, row := range studentRows {
		if fam, ok := byID[row.FamilyID]; ok {
			fam.Students = append(fam.Students, row.unrow())
		}
	}
	for _, row := range contactRows {
		if fam, ok := byID[row.FamilyID]; ok {
			fam.EmergencyContacts = append(fam.EmergencyContacts, row.unrowContact())
		}
	}
	return families, nil
}

func (repo *familyRepository) GetFamilyByID(ctx context.Context, id string) (family.Family, error) {
	if _, err := uuid.Parse(id); err != nil {
		return family.Family{}, family.ErrNotFound
	}
	var row familyRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM family WHERE id = $1`, id); err != nil {
		return family.Family{}, trapNoRowsErr(err, family.ErrNotFound, "finding family")
	}
	fam := row.unrow()

	var guardianRows []guardianRow
	if err := repo.db.SelectContext(ctx, &guardianRows, `SELECT * FROM guardian WHERE family_id = $1`, id); err != nil {
		return family.Family{}, errors.Wrap(err, "querying guardians")
	}
	for _, g := range guardianRows {
		fam.Guardians = append(fam.Guardians, g.unrowGuardian())
	}

	var studentRows []studentRow
	if err := repo.db.SelectContext(ctx, &studentRows, `SELECT * FROM student WHERE family_id = $1`, id); err != nil {
		return family.Family{}, errors.Wrap(err, "querying students")
	}
	for _, s := range studentRows {
		fam.Students = append(fam.Students, s.unrow())
	}

	var contactRows []guardianRow
	if err := repo.db.SelectContext(ctx, &contactRows, `SELECT * FROM emergency_contact WHERE family_id = $1`, id); err != nil {
		return family.Family{}, errors.Wrap(err, "querying emergency contacts")
	}
	for _, c := range contactRows {
		fam.EmergencyContacts = append(fam.EmergencyContacts, c.unrowContact())
	}
	return fam, nil
}

func (repo *familyRepository) UpdateFamily(ctx context.Context, fam family.Family) (family.Family, error) {
	row := newFamilyRow(fam)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE family
		SET family_name = :family_name, address = :address, city = :city, state = :state,
		    zip_code = :zip_code, diocese_id = :diocese_id, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return family.Family{}, errors.Wrap(err, "updating family")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.Family{}, family.ErrNotFound
	}
	return repo.GetFamilyByID(ctx, fam.ID)
}

func (repo *familyRepository) DeleteFamily(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM family WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting family")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.ErrNotFound
	}
	return nil
}

func (repo *familyRepository) CreateGuardian(ctx context.Context, g family.Guardian) (family.Guardian, error) {
	g.ID = uuid.New().String()
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return family.Guardian{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if err = insertGuardian(ctx, tx, "guardian", guardianRow(g)); err != nil {
		return family.Guardian{}, errors.Wrap(err, "inserting guardian")
	}
	if err = tx.Commit(); err != nil {
		return family.Guardian{}, errors.Wrap(err, "committing guardian")
	}
	return g, nil
}

func (repo *familyRepository) UpdateGuardian(ctx context.Context, g family.Guardian) (family.Guardian, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE guardian
		SET name = :name, email = :email, phone = :phone, relationship = :relationship
		WHERE id = :id AND family_id = :family_id`, guardianRow(g))
	if err != nil {
		return family.Guardian{}, errors.Wrap(err, "updating guardian")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.Guardian{}, family.ErrChildNotFound
	}
	return g, nil
}

func (repo *familyRepository) DeleteGuardian(ctx context.Context, familyID, id string) error {
	return repo.deleteChild(ctx, "guardian", familyID, id)
}

func (repo *familyRepository) CreateStudent(ctx context.Context, s family.Student) (family.Student, error) {
	s.ID = uuid.New().String()
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return family.Student{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if err = insertStudent(ctx, tx, newStudentRow(s)); err != nil {
		return family.Student{}, errors.Wrap(err, "inserting student")
	}
	if err = tx.Commit(); err != nil {
		return family.Student{}, errors.Wrap(err, "committing student")
	}
	return s, nil
}

func (repo *familyRepository) GetStudentByID(ctx context.Context, id string) (family.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return family.Student{}, family.ErrChildNotFound
	}
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE id = $1`, id); err != nil {
		return family.Student{}, trapNoRowsErr(err, family.ErrChildNotFound, "finding student")
	}
	return row.unrow(), nil
}

func (repo *familyRepository) UpdateStudent(ctx context.Context, s family.Student) (family.Student, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE student
		SET first_name = :first_name, last_name = :last_name, middle_name = :middle_name,
		    saint_name = :saint_name, date_of_birth = :date_of_birth, gender = :gender,
		    grade_level = :grade_level, american_school = :american_school, notes = :notes
		WHERE id = :id AND family_id = :family_id`, newStudentRow(s))
	if err != nil {
		return family.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.Student{}, family.ErrChildNotFound
	}
	return s, nil
}

func (repo *familyRepository) DeleteStudent(ctx context.Context, familyID, id string) error {
	return repo.deleteChild(ctx, "student", familyID, id)
}

func (repo *familyRepository) CreateEmergencyContact(ctx context.Context, ec family.EmergencyContact) (family.EmergencyContact, error) {
	ec.ID = uuid.New().String()
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return family.EmergencyContact{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if err = insertGuardian(ctx, tx, "emergency_contact", guardianRow(ec)); err != nil {
		return family.EmergencyContact{}, errors.Wrap(err, "inserting emergency contact")
	}
	if err = tx.Commit(); err != nil {
		return family.EmergencyContact{}, errors.Wrap(err, "committing emergency contact")
	}
	return ec, nil
}

func (repo *familyRepository) UpdateEmergencyContact(ctx context.Context, ec family.EmergencyContact) (family.EmergencyContact, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE emergency_contact
		SET name = :name, email = :email, phone = :phone, relationship = :relationship
		WHERE id = :id AND family_id = :family_id`, guardianRow(ec))
	if err != nil {
		return family.EmergencyContact{}, errors.Wrap(err, "updating emergency contact")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.EmergencyContact{}, family.ErrChildNotFound
	}
	return ec, nil
}

func (repo *familyRepository) DeleteEmergencyContact(ctx context.Context, familyID, id string) error {
	return repo.deleteChild(ctx, "emergency_contact", familyID, id)
}

func (repo *familyRepository) deleteChild(ctx context.Context, table, familyID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND family_id = $2`, id, familyID)
	if err != nil {
		return errors.Wrap(err, "deleting "+table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return family.ErrChildNotFound
	}
	return nil
}
