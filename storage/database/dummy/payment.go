package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trucvy/vietschool/core/payment"
)

type paymentRepository struct {
	db       *paymentTable
	families *familyTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.payment, families: db.family}
}

// withFamilyName resolves the family name for reads.
func (repo *paymentRepository) withFamilyName(p payment.Payment) payment.Payment {
	repo.families.RLock()
	defer repo.families.RUnlock()
	if fam, ok := repo.families.table[p.FamilyID]; ok {
		p.FamilyName = fam.FamilyName
	}
	return p
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	p.ID = uuid.New().String()
	repo.db.table[p.ID] = &p
	repo.db.Unlock()
	return repo.withFamilyName(p), nil
}

func (repo *paymentRepository) QueryPaymentsByYear(_ context.Context, schoolYear string) ([]payment.Payment, error) {
	repo.db.RLock()
	payments := make([]payment.Payment, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		if schoolYear != "" && p.SchoolYear != schoolYear {
			continue
		}
		payments = append(payments, *p)
	}
	repo.db.RUnlock()

	for i := range payments {
		payments[i] = repo.withFamilyName(payments[i])
	}
	return payments, nil
}

func (repo *paymentRepository) QueryPaymentsByFamily(_ context.Context, familyID string) ([]payment.Payment, error) {
	repo.db.RLock()
	var payments []payment.Payment
	for _, p := range repo.db.table {
		if p.FamilyID == familyID {
			payments = append(payments, *p)
		}
	}
	repo.db.RUnlock()

	for i := range payments {
		payments[i] = repo.withFamilyName(payments[i])
	}
	return payments, nil
}

func (repo *paymentRepository) GetPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	repo.db.RLock()
	p, ok := repo.db.table[id]
	repo.db.RUnlock()
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return repo.withFamilyName(*p), nil
}

func (repo *paymentRepository) GetPaymentByFamilyAndYear(_ context.Context, familyID, schoolYear string) (payment.Payment, error) {
	repo.db.RLock()
	for _, p := range repo.db.table {
		if p.FamilyID == familyID && p.SchoolYear == schoolYear {
			found := *p
			repo.db.RUnlock()
			return repo.withFamilyName(found), nil
		}
	}
	repo.db.RUnlock()
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	if _, ok := repo.db.table[p.ID]; !ok {
		repo.db.Unlock()
		return payment.Payment{}, payment.ErrNotFound
	}
	repo.db.table[p.ID] = &p
	repo.db.Unlock()
	return repo.withFamilyName(p), nil
}

func (repo *paymentRepository) DeletePayment(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return payment.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
