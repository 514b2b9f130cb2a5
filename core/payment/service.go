package payment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/family"
)

var (
	// errors
	ErrNotFound       = errors.New("payment not found")
	ErrFamilyNotFound = errors.New("family not found")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		// QueryPaymentsByYear returns the payments of a school year ("" for
		// all years) with FamilyName populated.
		QueryPaymentsByYear(ctx context.Context, schoolYear string) ([]Payment, error)
		QueryPaymentsByFamily(ctx context.Context, familyID string) ([]Payment, error)
		GetPaymentByID(ctx context.Context, id string) (Payment, error)
		GetPaymentByFamilyAndYear(ctx context.Context, familyID, schoolYear string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)
		DeletePayment(ctx context.Context, id string) error
	}

	// FamilyProvider verifies family references and supplies the family
	// count for summaries; the family repository implements it.
	FamilyProvider interface {
		GetFamilyByID(ctx context.Context, id string) (family.Family, error)
		QueryAllFamilies(ctx context.Context) ([]family.Family, error)
	}

	Service interface {
		Create(ctx context.Context, np NewPayment) (Payment, error)
		// Query serves the paginated payment list from the per-year cache.
		Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Payment], error)
		QueryByFamily(ctx context.Context, familyID string) ([]Payment, error)
		GetByID(ctx context.Context, id string) (Payment, error)
		Update(ctx context.Context, id string, up UpdatePayment) (Payment, error)
		Delete(ctx context.Context, id string) error
		// MarkPaid settles a family's dues for a school year, updating the
		// existing record or creating one.
		MarkPaid(ctx context.Context, familyID string, mp MarkPaid) (Payment, error)
		Summary(ctx context.Context, schoolYear string) (Summary, error)
		// ExportCSV writes the filtered payments as CSV and returns the
		// suggested file name.
		ExportCSV(ctx context.Context, schoolYear, status string, w io.Writer) (string, error)

		// EnrolledFamilies reports the families with a student enrolled in
		// the school year (0 for the newest year) and their payment standing.
		EnrolledFamilies(ctx context.Context, yearID int) (EnrolledFamiliesReport, error)
		EnrolledFamiliesSummary(ctx context.Context) (EnrollmentSummary, error)
		// QueryFamiliesWithPayments is the paginated family list annotated
		// with enrollment counts and per-year payment standing.
		QueryFamiliesWithPayments(ctx context.Context, filter *WithPaymentsFilter, pg core.Pagination) (core.Page[FamilyWithPayment], error)
	}

	service struct {
		repo     Repository
		families FamilyProvider
		years    YearProvider
		classes  ClassProvider
		cache    *core.ListCache[string, Payment]
		nowFunc  func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, families FamilyProvider, years YearProvider, classes ClassProvider) Service {
	return &service{
		repo:     repo,
		families: families,
		years:    years,
		classes:  classes,
		cache:    core.NewListCache[string, Payment](),
		nowFunc:  time.Now,
	}
}

func (svc *service) Create(ctx context.Context, np NewPayment) (Payment, error) {
	if _, err := svc.families.GetFamilyByID(ctx, np.FamilyID); err != nil {
		return Payment{}, ErrFamilyNotFound
	}

	now := time.Now().UTC()
	created, err := svc.repo.CreatePayment(ctx, Payment{
		FamilyID:      np.FamilyID,
		SchoolYear:    np.SchoolYear,
		AmountDue:     np.AmountDue,
		AmountPaid:    np.AmountPaid,
		Status:        ComputeStatus(np.AmountDue, np.AmountPaid),
		PaymentDate:   np.PaymentDate,
		PaymentMethod: np.PaymentMethod,
		Notes:         np.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}
	svc.invalidate(created.SchoolYear)
	return created, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, pg core.Pagination, forceRefresh bool) (core.Page[Payment], error) {
	schoolYear := ""
	if filter != nil {
		schoolYear = filter.SchoolYear
	}
	entry, err := svc.cache.Load(schoolYear, forceRefresh, func() ([]Payment, error) {
		return svc.repo.QueryPaymentsByYear(ctx, schoolYear)
	})
	if err != nil {
		return core.Page[Payment]{}, errors.Wrap(err, "querying payments")
	}

	payments := entry.Items
	if filter != nil && (filter.Status != "" || filter.Search != "") {
		filtered := make([]Payment, 0, len(payments))
		for _, p := range payments {
			if filter.Match(p) {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	} else {
		payments = append([]Payment(nil), payments...)
	}

	ord := core.DBOrdering{Field: "created_at", Ascending: false}
	if filter != nil {
		ord = filter.Ordering()
	}
	sortPayments(payments, ord)

	pg.Clean()
	return core.NewPage(payments, pg), nil
}

func sortPayments(payments []Payment, ord core.DBOrdering) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if !ord.Ascending {
			a, b = b, a
		}
		switch ord.Field {
		case "amount_due":
			return deref(a.AmountDue) < deref(b.AmountDue)
		case "amount_paid":
			return a.AmountPaid < b.AmountPaid
		case "family_name":
			return core.CompareFold(a.FamilyName, b.FamilyName) < 0
		case "payment_date":
			return timePtrBefore(a.PaymentDate, b.PaymentDate)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// nil dates sort first
func timePtrBefore(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

func (svc *service) QueryByFamily(ctx context.Context, familyID string) ([]Payment, error) {
	if _, err := svc.families.GetFamilyByID(ctx, familyID); err != nil {
		return nil, ErrFamilyNotFound
	}
	payments, err := svc.repo.QueryPaymentsByFamily(ctx, familyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying family payments")
	}
	// newest school year first
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].SchoolYear > payments[j].SchoolYear
	})
	return payments, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPaymentByID(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, up UpdatePayment) (Payment, error) {
	p, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	prevYear := p.SchoolYear

	if up.SchoolYear != nil {
		p.SchoolYear = *up.SchoolYear
	}
	amountsChanged := false
	if up.AmountDue != nil {
		p.AmountDue = up.AmountDue
		amountsChanged = true
	}
	if up.AmountPaid != nil {
		p.AmountPaid = *up.AmountPaid
		amountsChanged = true
	}
	if amountsChanged {
		p.Status = ComputeStatus(p.AmountDue, p.AmountPaid)
	}
	if up.Status != nil {
		p.Status = *up.Status
	}
	if up.PaymentDate != nil {
		p.PaymentDate = up.PaymentDate
	}
	if up.PaymentMethod != nil {
		p.PaymentMethod = *up.PaymentMethod
	}
	if up.Notes != nil {
		p.Notes = *up.Notes
	}
	p.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdatePayment(ctx, p)
	if err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}
	svc.invalidate(prevYear)
	if updated.SchoolYear != prevYear {
		svc.invalidate(updated.SchoolYear)
	}
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	p, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeletePayment(ctx, id); err != nil {
		return err
	}
	svc.invalidate(p.SchoolYear)
	return nil
}

func (svc *service) MarkPaid(ctx context.Context, familyID string, mp MarkPaid) (Payment, error) {
	if _, err := svc.families.GetFamilyByID(ctx, familyID); err != nil {
		return Payment{}, ErrFamilyNotFound
	}

	now := svc.nowFunc().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	p, err := svc.repo.GetPaymentByFamilyAndYear(ctx, familyID, mp.SchoolYear)
	switch errors.Cause(err) {
	case nil:
		p.Status = StatusPaid
		p.PaymentDate = &today
		p.PaymentMethod = mp.PaymentMethod
		if mp.Amount != nil {
			p.AmountPaid = *mp.Amount
			p.AmountDue = mp.Amount
		} else {
			p.AmountPaid = deref(p.AmountDue)
		}
		if mp.Notes != "" {
			p.Notes = mp.Notes
		}
		p.UpdatedAt = now
		p, err = svc.repo.UpdatePayment(ctx, p)
	case ErrNotFound:
		amount := deref(mp.Amount)
		p, err = svc.repo.CreatePayment(ctx, Payment{
			FamilyID:      familyID,
			SchoolYear:    mp.SchoolYear,
			AmountDue:     &amount,
			AmountPaid:    amount,
			Status:        StatusPaid,
			PaymentDate:   &today,
			PaymentMethod: mp.PaymentMethod,
			Notes:         mp.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	default:
		return Payment{}, errors.Wrap(err, "looking up payment")
	}
	if err != nil {
		return Payment{}, errors.Wrap(err, "marking paid")
	}
	svc.invalidate(p.SchoolYear)
	return p, nil
}

// Summary aggregates the year's payments; families without a record count
// as unpaid.
func (svc *service) Summary(ctx context.Context, schoolYear string) (Summary, error) {
	payments, err := svc.repo.QueryPaymentsByYear(ctx, schoolYear)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying payments")
	}
	families, err := svc.families.QueryAllFamilies(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying families")
	}

	sum := Summary{TotalFamilies: len(families)}
	for _, p := range payments {
		switch p.Status {
		case StatusPaid:
			sum.PaidCount++
		case StatusPartial:
			sum.PartialCount++
		}
		sum.TotalAmountDue += deref(p.AmountDue)
		sum.TotalAmountPaid += p.AmountPaid
	}
	sum.UnpaidCount = sum.TotalFamilies - sum.PaidCount - sum.PartialCount
	return sum, nil
}

func (svc *service) ExportCSV(ctx context.Context, schoolYear, status string, w io.Writer) (string, error) {
	payments, err := svc.repo.QueryPaymentsByYear(ctx, schoolYear)
	if err != nil {
		return "", errors.Wrap(err, "querying payments")
	}
	if status != "" {
		filtered := payments[:0]
		for _, p := range payments {
			if p.Status == Status(status) {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	// newest year then newest record first
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].SchoolYear != payments[j].SchoolYear {
			return payments[i].SchoolYear > payments[j].SchoolYear
		}
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})

	cw := csv.NewWriter(w)
	records := [][]string{
		{"Family Name", "School Year", "Amount Due", "Amount Paid", "Status",
			"Payment Date", "Payment Method", "Notes"},
	}
	for _, p := range payments {
		familyName := p.FamilyName
		if familyName == "" {
			familyName = "Unknown"
		}
		due := ""
		if p.AmountDue != nil {
			due = strconv.FormatFloat(*p.AmountDue, 'f', 2, 64)
		}
		date := ""
		if p.PaymentDate != nil {
			date = p.PaymentDate.Format("2006-01-02")
		}
		records = append(records, []string{
			familyName,
			p.SchoolYear,
			due,
			strconv.FormatFloat(p.AmountPaid, 'f', 2, 64),
			string(p.Status),
			date,
			p.PaymentMethod,
			p.Notes,
		})
	}
	if err = cw.WriteAll(records); err != nil {
		return "", errors.Wrap(err, "writing payments csv")
	}

	yearPart := schoolYear
	if yearPart == "" {
		yearPart = "all"
	}
	filename := fmt.Sprintf("payments_%s_%s.csv", yearPart, svc.nowFunc().Format("20060102"))
	return filename, nil
}

// invalidate drops both the year's entry and the all-years entry.
func (svc *service) invalidate(schoolYear string) {
	svc.cache.Invalidate(schoolYear)
	if schoolYear != "" {
		svc.cache.Invalidate("")
	}
}
