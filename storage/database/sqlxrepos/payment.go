package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trucvy/vietschool/core/payment"
)

type paymentRow struct {
	ID            string       `db:"id"`
	FamilyID      string       `db:"family_id"`
	SchoolYear    string       `db:"school_year"`
	AmountDue     null.Float64 `db:"amount_due"`
	AmountPaid    float64      `db:"amount_paid"`
	Status        string       `db:"status"`
	PaymentDate   null.Time    `db:"payment_date"`
	PaymentMethod string       `db:"payment_method"`
	Notes         string       `db:"notes"`
	CreatedAt     null.Time    `db:"created_at"`
	UpdatedAt     null.Time    `db:"updated_at"`
	FamilyName    null.String  `db:"family_name"`
}

func (r paymentRow) unrow() payment.Payment {
	return payment.Payment{
		ID:            r.ID,
		FamilyID:      r.FamilyID,
		SchoolYear:    r.SchoolYear,
		AmountDue:     floatPtr(r.AmountDue),
		AmountPaid:    r.AmountPaid,
		Status:        payment.Status(r.Status),
		PaymentDate:   timePtr(r.PaymentDate),
		PaymentMethod: r.PaymentMethod,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
		FamilyName:    r.FamilyName.String,
	}
}

func newPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		FamilyID:      p.FamilyID,
		SchoolYear:    p.SchoolYear,
		AmountDue:     nullFloatFromPtr(p.AmountDue),
		AmountPaid:    p.AmountPaid,
		Status:        string(p.Status),
		PaymentDate:   nullTimeFromPtr(p.PaymentDate),
		PaymentMethod: p.PaymentMethod,
		Notes:         p.Notes,
		CreatedAt:     null.NewTime(p.CreatedAt.UTC(), !p.CreatedAt.IsZero()),
		UpdatedAt:     null.NewTime(p.UpdatedAt.UTC(), !p.UpdatedAt.IsZero()),
	}
}

func floatPtr(f null.Float64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullFloatFromPtr(p *float64) null.Float64 {
	if p == nil {
		return null.Float64{}
	}
	return null.Float64From(*p)
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

const paymentSelect = `
	SELECT p.id, p.family_id, p.school_year, p.amount_due, p.amount_paid, p.status,
	       p.payment_date, p.payment_method, p.notes, p.created_at, p.updated_at,
	       f.family_name
	FROM payment p
	JOIN family f ON f.id = p.family_id`

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	p.ID = uuid.New().String()
	row := newPaymentRow(p)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO payment (id, family_id, school_year, amount_due, amount_paid, status,
		                     payment_date, payment_method, notes, created_at, updated_at)
		VALUES (:id, :family_id, :school_year, :amount_due, :amount_paid, :status,
		        :payment_date, :payment_method, :notes, :created_at, :updated_at)`, row)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.GetPaymentByID(ctx, p.ID)
}

func (repo *paymentRepository) QueryPaymentsByYear(ctx context.Context, schoolYear string) ([]payment.Payment, error) {
	query := paymentSelect
	var args []interface{}
	if schoolYear != "" {
		query += ` WHERE p.school_year = $1`
		args = append(args, schoolYear)
	}

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.unrow())
	}
	return payments, nil
}

func (repo *paymentRepository) QueryPaymentsByFamily(ctx context.Context, familyID string) ([]payment.Payment, error) {
	var rows []paymentRow
	err := repo.db.SelectContext(ctx, &rows, paymentSelect+` WHERE p.family_id = $1`, familyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying family payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.unrow())
	}
	return payments, nil
}

func (repo *paymentRepository) GetPaymentByID(ctx context.Context, id string) (payment.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	if err := repo.db.GetContext(ctx, &row, paymentSelect+` WHERE p.id = $1`, id); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "finding payment")
	}
	return row.unrow(), nil
}

func (repo *paymentRepository) GetPaymentByFamilyAndYear(ctx context.Context, familyID, schoolYear string) (payment.Payment, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row,
		paymentSelect+` WHERE p.family_id = $1 AND p.school_year = $2`, familyID, schoolYear)
	if err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "finding payment")
	}
	return row.unrow(), nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	row := newPaymentRow(p)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE payment
		SET school_year = :school_year, amount_due = :amount_due, amount_paid = :amount_paid,
		    status = :status, payment_date = :payment_date, payment_method = :payment_method,
		    notes = :notes, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.Payment{}, payment.ErrNotFound
	}
	return repo.GetPaymentByID(ctx, p.ID)
}

func (repo *paymentRepository) DeletePayment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM payment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.ErrNotFound
	}
	return nil
}
