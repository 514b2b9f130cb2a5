package payment

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/schoolyear"
)

type (
	// YearProvider resolves school years for the enrollment reports; the
	// school year repository implements it.
	YearProvider interface {
		GetSchoolYearByID(ctx context.Context, id int) (schoolyear.SchoolYear, error)
		QueryAllSchoolYears(ctx context.Context) ([]schoolyear.SchoolYear, error)
	}

	// ClassProvider supplies a year's classes and their rosters; the class
	// repository implements it.
	ClassProvider interface {
		QueryClassesByYear(ctx context.Context, yearID int) ([]class.Class, error)
		GetClassRoster(ctx context.Context, classID string) ([]class.RosterEntry, error)
	}

	EnrolledClass struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ProgramName string `json:"program_name,omitempty"`
	}

	EnrolledStudent struct {
		ID              string          `json:"id"`
		FirstName       string          `json:"first_name"`
		LastName        string          `json:"last_name"`
		IsEnrolled      bool            `json:"is_enrolled"`
		EnrolledClasses []EnrolledClass `json:"enrolled_classes"`
	}

	// EnrolledFamily is one row of the enrolled-families report: the family
	// with its students' enrollment state and its payment standing for the
	// reported year.
	EnrolledFamily struct {
		ID            string            `json:"id"`
		FamilyName    string            `json:"family_name"`
		Guardians     []family.Guardian `json:"guardians"`
		Students      []EnrolledStudent `json:"students"`
		EnrolledCount int               `json:"enrolled_count"`

		Status        Status     `json:"payment_status"`
		AmountDue     *float64   `json:"amount_due"`
		AmountPaid    float64    `json:"amount_paid"`
		PaymentDate   *time.Time `json:"payment_date,omitempty"`
		PaymentMethod string     `json:"payment_method,omitempty"`
	}

	EnrolledFamiliesReport struct {
		Items          []EnrolledFamily `json:"items"`
		Total          int              `json:"total"`
		SchoolYearID   int              `json:"school_year_id"`
		SchoolYearName string           `json:"school_year_name"`
	}

	EnrollmentSummary struct {
		TotalEnrolledFamilies int     `json:"total_enrolled_families"`
		PaidCount             int     `json:"paid_count"`
		PartialCount          int     `json:"partial_count"`
		UnpaidCount           int     `json:"unpaid_count"`
		TotalAmountDue        float64 `json:"total_amount_due"`
		TotalAmountPaid       float64 `json:"total_amount_paid"`
		SchoolYearName        string  `json:"school_year_name"`
	}

	// FamilyPaymentStatus is a family's standing for one school year on the
	// families-with-payments listing; families without a record show as
	// unpaid.
	FamilyPaymentStatus struct {
		Status     Status   `json:"payment_status"`
		AmountDue  *float64 `json:"amount_due"`
		AmountPaid float64  `json:"amount_paid"`
		SchoolYear string   `json:"school_year"`
	}

	FamilyWithPayment struct {
		family.Family
		// PaymentStatus is only resolved when the query names a school year.
		PaymentStatus      *FamilyPaymentStatus `json:"payment_status"`
		EnrolledClassCount int                  `json:"enrolled_class_count"`
	}
)

// WithPaymentsFilter holds the families-with-payments query params. Search
// matches the family name, city and state, folding Vietnamese diacritics.
// The status filter only applies when a school year is given.
type WithPaymentsFilter struct {
	SchoolYear string `query:"school_year"`
	Status     string `query:"payment_status"`
	Search     string `query:"search"`
	SortBy     string `query:"sort_by"`
	SortOrder  string `query:"sort_order"`
}

func (qf *WithPaymentsFilter) Clean() {
	qf.SchoolYear = core.CleanString(qf.SchoolYear)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
	qf.SortBy = core.CleanString(qf.SortBy, true /* lower */)
	qf.SortOrder = core.CleanString(qf.SortOrder, true /* lower */)
}

func (qf *WithPaymentsFilter) Match(fam family.Family) bool {
	if qf.Search == "" {
		return true
	}
	return core.Matches(fam.FamilyName, qf.Search) ||
		core.Matches(fam.City, qf.Search) ||
		core.Matches(fam.State, qf.Search)
}

// Ordering defaults to family name ascending.
func (qf *WithPaymentsFilter) Ordering() core.DBOrdering {
	field := qf.SortBy
	switch field {
	case "family_name", "city", "created_at":
	default:
		field = "family_name"
	}
	return core.DBOrdering{Field: field, Ascending: qf.SortOrder != "desc"}
}

// EnrolledFamilies reports the families having at least one student enrolled
// in the school year (0 selects the newest year), each with its students'
// enrollment state and its payment standing for that year.
func (svc *service) EnrolledFamilies(ctx context.Context, yearID int) (EnrolledFamiliesReport, error) {
	var year schoolyear.SchoolYear
	if yearID != 0 {
		var err error
		if year, err = svc.years.GetSchoolYearByID(ctx, yearID); err != nil {
			return EnrolledFamiliesReport{}, err
		}
	} else {
		years, err := svc.years.QueryAllSchoolYears(ctx)
		if err != nil {
			return EnrolledFamiliesReport{}, errors.Wrap(err, "querying school years")
		}
		if len(years) == 0 {
			return EnrolledFamiliesReport{}, schoolyear.ErrNotFound
		}
		year = years[0] // newest first
	}

	classes, err := svc.classes.QueryClassesByYear(ctx, year.ID)
	if err != nil {
		return EnrolledFamiliesReport{}, errors.Wrap(err, "querying classes")
	}
	enrolled := make(map[string][]EnrolledClass) // by student ID
	for _, cls := range classes {
		info := EnrolledClass{ID: cls.ID, Name: cls.Name}
		if cls.Program != nil {
			info.ProgramName = cls.Program.Name
		}
		roster, err := svc.classes.GetClassRoster(ctx, cls.ID)
		if err != nil {
			return EnrolledFamiliesReport{}, errors.Wrap(err, "loading class roster")
		}
		for _, entry := range roster {
			enrolled[entry.StudentID] = append(enrolled[entry.StudentID], info)
		}
	}

	families, err := svc.families.QueryAllFamilies(ctx)
	if err != nil {
		return EnrolledFamiliesReport{}, errors.Wrap(err, "querying families")
	}

	report := EnrolledFamiliesReport{
		Items:          []EnrolledFamily{},
		SchoolYearID:   year.ID,
		SchoolYearName: year.Name,
	}
	for _, fam := range families {
		item := EnrolledFamily{
			ID:         fam.ID,
			FamilyName: fam.FamilyName,
			Guardians:  fam.Guardians,
			Students:   []EnrolledStudent{},
			Status:     StatusUnpaid,
		}
		if item.Guardians == nil {
			item.Guardians = []family.Guardian{}
		}
		for _, std := range fam.Students {
			inClasses := enrolled[std.ID]
			if inClasses == nil {
				inClasses = []EnrolledClass{}
			}
			if len(inClasses) > 0 {
				item.EnrolledCount++
			}
			item.Students = append(item.Students, EnrolledStudent{
				ID:              std.ID,
				FirstName:       std.FirstName,
				LastName:        std.LastName,
				IsEnrolled:      len(inClasses) > 0,
				EnrolledClasses: inClasses,
			})
		}
		if item.EnrolledCount == 0 {
			continue
		}

		p, err := svc.repo.GetPaymentByFamilyAndYear(ctx, fam.ID, year.Name)
		switch errors.Cause(err) {
		case nil:
			item.Status = p.Status
			item.AmountDue = p.AmountDue
			item.AmountPaid = p.AmountPaid
			item.PaymentDate = p.PaymentDate
			item.PaymentMethod = p.PaymentMethod
		case ErrNotFound:
			// no record yet, stays unpaid
		default:
			return EnrolledFamiliesReport{}, errors.Wrap(err, "looking up payment")
		}
		report.Items = append(report.Items, item)
	}

	sort.SliceStable(report.Items, func(i, j int) bool {
		return core.CompareFold(report.Items[i].FamilyName, report.Items[j].FamilyName) < 0
	})
	report.Total = len(report.Items)
	return report, nil
}

// EnrolledFamiliesSummary aggregates the payment standing of the newest
// year's enrolled families.
func (svc *service) EnrolledFamiliesSummary(ctx context.Context) (EnrollmentSummary, error) {
	report, err := svc.EnrolledFamilies(ctx, 0)
	if err != nil {
		return EnrollmentSummary{}, err
	}

	sum := EnrollmentSummary{
		TotalEnrolledFamilies: report.Total,
		SchoolYearName:        report.SchoolYearName,
	}
	for _, item := range report.Items {
		switch item.Status {
		case StatusPaid:
			sum.PaidCount++
		case StatusPartial:
			sum.PartialCount++
		default:
			sum.UnpaidCount++
		}
		sum.TotalAmountDue += deref(item.AmountDue)
		sum.TotalAmountPaid += item.AmountPaid
	}
	return sum, nil
}

// QueryFamiliesWithPayments returns the paginated family list, each family
// carrying its total enrollment count and, when the filter names a school
// year, its payment standing for that year.
func (svc *service) QueryFamiliesWithPayments(ctx context.Context, filter *WithPaymentsFilter, pg core.Pagination) (core.Page[FamilyWithPayment], error) {
	families, err := svc.families.QueryAllFamilies(ctx)
	if err != nil {
		return core.Page[FamilyWithPayment]{}, errors.Wrap(err, "querying families")
	}

	// enrollments across all years, counted per student
	classes, err := svc.classes.QueryClassesByYear(ctx, 0)
	if err != nil {
		return core.Page[FamilyWithPayment]{}, errors.Wrap(err, "querying classes")
	}
	enrollments := make(map[string]int) // by student ID
	for _, cls := range classes {
		roster, err := svc.classes.GetClassRoster(ctx, cls.ID)
		if err != nil {
			return core.Page[FamilyWithPayment]{}, errors.Wrap(err, "loading class roster")
		}
		for _, entry := range roster {
			enrollments[entry.StudentID]++
		}
	}

	items := make([]FamilyWithPayment, 0, len(families))
	for _, fam := range families {
		if filter != nil && !filter.Match(fam) {
			continue
		}
		fam.EnsureChildren()

		item := FamilyWithPayment{Family: fam}
		for _, std := range fam.Students {
			item.EnrolledClassCount += enrollments[std.ID]
		}

		if filter != nil && filter.SchoolYear != "" {
			status := FamilyPaymentStatus{Status: StatusUnpaid, SchoolYear: filter.SchoolYear}
			p, err := svc.repo.GetPaymentByFamilyAndYear(ctx, fam.ID, filter.SchoolYear)
			switch errors.Cause(err) {
			case nil:
				status = FamilyPaymentStatus{
					Status:     p.Status,
					AmountDue:  p.AmountDue,
					AmountPaid: p.AmountPaid,
					SchoolYear: p.SchoolYear,
				}
			case ErrNotFound:
				// no record yet, stays unpaid
			default:
				return core.Page[FamilyWithPayment]{}, errors.Wrap(err, "looking up payment")
			}
			item.PaymentStatus = &status
		}
		if filter != nil && filter.Status != "" {
			if item.PaymentStatus == nil || item.PaymentStatus.Status != Status(filter.Status) {
				continue
			}
		}
		items = append(items, item)
	}

	ord := core.DBOrdering{Field: "family_name", Ascending: true}
	if filter != nil {
		ord = filter.Ordering()
	}
	sortFamiliesWithPayments(items, ord)

	pg.Clean()
	return core.NewPage(items, pg), nil
}

func sortFamiliesWithPayments(items []FamilyWithPayment, ord core.DBOrdering) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !ord.Ascending {
			a, b = b, a
		}
		switch ord.Field {
		case "city":
			return core.CompareFold(a.City, b.City) < 0
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return core.CompareFold(a.FamilyName, b.FamilyName) < 0
		}
	})
}
