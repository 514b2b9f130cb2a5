package payment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trucvy/vietschool/core"
)

// Status is the derived settlement state of a payment record.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusPartial  Status = "partial"
	StatusUnpaid   Status = "unpaid"
	StatusRefunded Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPaid, StatusPartial, StatusUnpaid, StatusRefunded:
		return true
	}
	return false
}

// ComputeStatus derives the settlement state from the amounts: paid once the
// full (non-zero) amount due is covered, partial when anything was paid,
// unpaid otherwise. Refunds are set explicitly, never derived.
func ComputeStatus(amountDue *float64, amountPaid float64) Status {
	due := 0.0
	if amountDue != nil {
		due = *amountDue
	}
	switch {
	case amountPaid >= due && due > 0:
		return StatusPaid
	case amountPaid > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

type Payment struct {
	ID            string     `json:"id"`
	FamilyID      string     `json:"family_id"`
	SchoolYear    string     `json:"school_year"` // "2025-2026"
	AmountDue     *float64   `json:"amount_due"`
	AmountPaid    float64    `json:"amount_paid"`
	Status        Status     `json:"payment_status"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"` // cash, check, venmo, zelle...
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at"` // UTC

	// FamilyName is resolved on reads for list views and exports.
	FamilyName string `json:"family_name,omitempty"`
}

// NewPayment contains information needed to record a payment. The status is
// always derived from the amounts.
type NewPayment struct {
	FamilyID      string     `json:"family_id" validate:"required"`
	SchoolYear    string     `json:"school_year" validate:"required,yearlabel"`
	AmountDue     *float64   `json:"amount_due" validate:"omitempty,gte=0"`
	AmountPaid    float64    `json:"amount_paid" validate:"gte=0"`
	PaymentDate   *time.Time `json:"payment_date"`
	PaymentMethod string     `json:"payment_method"`
	Notes         string     `json:"notes"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.SchoolYear = core.CleanString(np.SchoolYear)
	np.PaymentMethod = core.CleanString(np.PaymentMethod, true /* lower */)
	return validate.Struct(np)
}

// UpdatePayment defines what may be modified on a payment; nil fields are
// left untouched. Changing either amount re-derives the status; an explicit
// Status (eg. refunded) wins.
type UpdatePayment struct {
	SchoolYear    *string    `json:"school_year" validate:"omitempty,yearlabel"`
	AmountDue     *float64   `json:"amount_due" validate:"omitempty,gte=0"`
	AmountPaid    *float64   `json:"amount_paid" validate:"omitempty,gte=0"`
	Status        *Status    `json:"payment_status" validate:"omitempty,paymentstatus"`
	PaymentDate   *time.Time `json:"payment_date"`
	PaymentMethod *string    `json:"payment_method"`
	Notes         *string    `json:"notes"`
}

func (up *UpdatePayment) Validate(validate *validator.Validate) error {
	if up.SchoolYear != nil {
		year := core.CleanString(*up.SchoolYear)
		up.SchoolYear = &year
	}
	return validate.Struct(up)
}

// MarkPaid is the quick action settling a family's dues for a school year.
type MarkPaid struct {
	SchoolYear    string   `json:"school_year" validate:"required,yearlabel"`
	Amount        *float64 `json:"amount" validate:"omitempty,gte=0"`
	PaymentMethod string   `json:"payment_method"`
	Notes         string   `json:"notes"`
}

func (mp *MarkPaid) Validate(validate *validator.Validate) error {
	mp.SchoolYear = core.CleanString(mp.SchoolYear)
	if mp.PaymentMethod = core.CleanString(mp.PaymentMethod, true /* lower */); mp.PaymentMethod == "" {
		mp.PaymentMethod = "cash"
	}
	return validate.Struct(mp)
}

// QueryFilter holds the payment list query params. Search matches the family
// name, folding Vietnamese diacritics.
type QueryFilter struct {
	SchoolYear string `query:"school_year"`
	Status     string `query:"payment_status"`
	Search     string `query:"search"`
	SortBy     string `query:"sort_by"`
	SortOrder  string `query:"sort_order"`
}

func (qf *QueryFilter) Clean() {
	qf.SchoolYear = core.CleanString(qf.SchoolYear)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
	qf.SortBy = core.CleanString(qf.SortBy, true /* lower */)
	qf.SortOrder = core.CleanString(qf.SortOrder, true /* lower */)
}

// Match applies the in-memory part of the filter; the school year is the
// cache key and is pushed down to the repository.
func (qf *QueryFilter) Match(p Payment) bool {
	if qf.Status != "" && p.Status != Status(qf.Status) {
		return false
	}
	return core.Matches(p.FamilyName, qf.Search)
}

// Ordering defaults to newest first.
func (qf *QueryFilter) Ordering() core.DBOrdering {
	field := qf.SortBy
	switch field {
	case "created_at", "amount_due", "amount_paid", "family_name", "payment_date":
	default:
		field = "created_at"
	}
	return core.DBOrdering{Field: field, Ascending: qf.SortOrder == "asc"}
}

// Summary aggregates payment standing for a school year. Families without a
// payment record yet count as unpaid.
type Summary struct {
	TotalFamilies   int     `json:"total_families"`
	PaidCount       int     `json:"paid_count"`
	PartialCount    int     `json:"partial_count"`
	UnpaidCount     int     `json:"unpaid_count"`
	TotalAmountDue  float64 `json:"total_amount_due"`
	TotalAmountPaid float64 `json:"total_amount_paid"`
}
