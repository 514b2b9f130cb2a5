package payment

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/schoolyear"
)

type fakeRepository struct {
	payments map[string]Payment
	families map[string]family.Family
	years    []schoolyear.SchoolYear
	classes  []class.Class
	rosters  map[string][]class.RosterEntry // by class ID
	fetches  int
}

var _ Repository = (*fakeRepository)(nil)
var _ FamilyProvider = (*fakeRepository)(nil)
var _ YearProvider = (*fakeRepository)(nil)
var _ ClassProvider = (*fakeRepository)(nil)

func newFakeRepository(families ...family.Family) *fakeRepository {
	repo := &fakeRepository{
		payments: make(map[string]Payment),
		families: make(map[string]family.Family),
		rosters:  make(map[string][]class.RosterEntry),
	}
	for _, fam := range families {
		if fam.ID == "" {
			fam.ID = uuid.New().String()
		}
		repo.families[fam.ID] = fam
	}
	return repo
}

func (repo *fakeRepository) withFamilyName(p Payment) Payment {
	if fam, ok := repo.families[p.FamilyID]; ok {
		p.FamilyName = fam.FamilyName
	}
	return p
}

func (repo *fakeRepository) CreatePayment(_ context.Context, p Payment) (Payment, error) {
	p.ID = uuid.New().String()
	repo.payments[p.ID] = p
	return repo.withFamilyName(p), nil
}

func (repo *fakeRepository) QueryPaymentsByYear(_ context.Context, schoolYear string) ([]Payment, error) {
	repo.fetches++
	payments := make([]Payment, 0, len(repo.payments))
	for _, p := range repo.payments {
		if schoolYear != "" && p.SchoolYear != schoolYear {
			continue
		}
		payments = append(payments, repo.withFamilyName(p))
	}
	return payments, nil
}

func (repo *fakeRepository) QueryPaymentsByFamily(_ context.Context, familyID string) ([]Payment, error) {
	var payments []Payment
	for _, p := range repo.payments {
		if p.FamilyID == familyID {
			payments = append(payments, repo.withFamilyName(p))
		}
	}
	return payments, nil
}

func (repo *fakeRepository) GetPaymentByID(_ context.Context, id string) (Payment, error) {
	p, ok := repo.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return repo.withFamilyName(p), nil
}

func (repo *fakeRepository) GetPaymentByFamilyAndYear(_ context.Context, familyID, schoolYear string) (Payment, error) {
	for _, p := range repo.payments {
		if p.FamilyID == familyID && p.SchoolYear == schoolYear {
			return repo.withFamilyName(p), nil
		}
	}
	return Payment{}, ErrNotFound
}

func (repo *fakeRepository) UpdatePayment(_ context.Context, p Payment) (Payment, error) {
	if _, ok := repo.payments[p.ID]; !ok {
		return Payment{}, ErrNotFound
	}
	repo.payments[p.ID] = p
	return repo.withFamilyName(p), nil
}

func (repo *fakeRepository) DeletePayment(_ context.Context, id string) error {
	if _, ok := repo.payments[id]; !ok {
		return ErrNotFound
	}
	delete(repo.payments, id)
	return nil
}

func (repo *fakeRepository) GetFamilyByID(_ context.Context, id string) (family.Family, error) {
	fam, ok := repo.families[id]
	if !ok {
		return family.Family{}, family.ErrNotFound
	}
	return fam, nil
}

func (repo *fakeRepository) QueryAllFamilies(_ context.Context) ([]family.Family, error) {
	families := make([]family.Family, 0, len(repo.families))
	for _, fam := range repo.families {
		families = append(families, fam)
	}
	return families, nil
}

func newTestService(repo *fakeRepository, now time.Time) *service {
	svc := NewService(repo, repo, repo, repo).(*service)
	svc.nowFunc = func() time.Time { return now }
	return svc
}

var testNow = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"})
	svc := newTestService(repo, testNow)

	t.Run("status derived from amounts", func(t *testing.T) {
		p, err := svc.Create(ctx, NewPayment{FamilyID: "f1", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 50})
		require.NoError(t, err)
		assert.Equal(t, StatusPartial, p.Status)
		assert.Equal(t, "Gia Đình Nguyễn", p.FamilyName)
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := svc.Create(ctx, NewPayment{FamilyID: "nope", SchoolYear: "2025-2026"})
		assert.Equal(t, ErrFamilyNotFound, err)
	})
}

func TestServiceQuery(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(
		family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"},
		family.Family{ID: "f2", FamilyName: "Gia Đình Trần"},
	)
	svc := newTestService(repo, testNow)

	_, err := svc.Create(ctx, NewPayment{FamilyID: "f1", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 200})
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewPayment{FamilyID: "f2", SchoolYear: "2025-2026", AmountDue: amount(200)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewPayment{FamilyID: "f1", SchoolYear: "2024-2025", AmountDue: amount(150), AmountPaid: 150})
	require.NoError(t, err)

	pg := core.Pagination{Page: 1, PageSize: 10}

	t.Run("per year", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{SchoolYear: "2025-2026"}, pg, false)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{SchoolYear: "2025-2026", Status: "unpaid"}, pg, false)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Gia Đình Trần", page.Items[0].FamilyName)
	})

	t.Run("search folds family name", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{Search: "gia dinh tran"}, pg, false)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "f2", page.Items[0].FamilyID)
	})

	t.Run("family name ordering", func(t *testing.T) {
		page, err := svc.Query(ctx, &QueryFilter{SortBy: "family_name", SortOrder: "asc"}, pg, false)
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "Gia Đình Nguyễn", page.Items[0].FamilyName)
		assert.Equal(t, "Gia Đình Trần", page.Items[2].FamilyName)
	})

	t.Run("cache hit and invalidation", func(t *testing.T) {
		fetches := repo.fetches
		_, err := svc.Query(ctx, &QueryFilter{SchoolYear: "2025-2026"}, pg, false)
		require.NoError(t, err)
		assert.Equal(t, fetches, repo.fetches)

		_, err = svc.Create(ctx, NewPayment{FamilyID: "f2", SchoolYear: "2024-2025"})
		require.NoError(t, err)
		page, err := svc.Query(ctx, &QueryFilter{SchoolYear: "2024-2025"}, pg, false)
		require.NoError(t, err)
		assert.Equal(t, fetches+1, repo.fetches)
		assert.Equal(t, 2, page.Total)
	})
}

func TestServiceUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"})
	svc := newTestService(repo, testNow)

	p, err := svc.Create(ctx, NewPayment{FamilyID: "f1", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 50})
	require.NoError(t, err)

	t.Run("amount change rederives status", func(t *testing.T) {
		paid := 200.0
		updated, err := svc.Update(ctx, p.ID, UpdatePayment{AmountPaid: &paid})
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, updated.Status)
	})

	t.Run("explicit refunded status preserved", func(t *testing.T) {
		refunded := StatusRefunded
		updated, err := svc.Update(ctx, p.ID, UpdatePayment{Status: &refunded})
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, updated.Status)

		// amounts untouched, status stays refunded on later reads
		got, err := svc.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, got.Status)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := svc.Update(ctx, "nope", UpdatePayment{})
		assert.Equal(t, ErrNotFound, err)
	})
}

func TestServiceMarkPaid(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"})
	svc := newTestService(repo, testNow)

	t.Run("creates a record when none exists", func(t *testing.T) {
		p, err := svc.MarkPaid(ctx, "f1", MarkPaid{SchoolYear: "2025-2026", Amount: amount(250), PaymentMethod: "cash"})
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, p.Status)
		assert.Equal(t, 250.0, p.AmountPaid)
		require.NotNil(t, p.PaymentDate)
		assert.Equal(t, time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC), *p.PaymentDate)
	})

	t.Run("updates the existing record", func(t *testing.T) {
		p, err := svc.MarkPaid(ctx, "f1", MarkPaid{SchoolYear: "2025-2026", PaymentMethod: "zelle"})
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, p.Status)
		assert.Equal(t, "zelle", p.PaymentMethod)
		// no amount given: the outstanding due is settled in full
		assert.Equal(t, 250.0, p.AmountPaid)

		payments, err := svc.QueryByFamily(ctx, "f1")
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := svc.MarkPaid(ctx, "nope", MarkPaid{SchoolYear: "2025-2026"})
		assert.Equal(t, ErrFamilyNotFound, err)
	})
}

func TestServiceSummary(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(
		family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"},
		family.Family{ID: "f2", FamilyName: "Gia Đình Trần"},
		family.Family{ID: "f3", FamilyName: "Gia Đình Lê"},
	)
	svc := newTestService(repo, testNow)

	_, err := svc.Create(ctx, NewPayment{FamilyID: "f1", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 200})
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewPayment{FamilyID: "f2", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 80})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, "2025-2026")
	require.NoError(t, err)
	assert.Equal(t, Summary{
		TotalFamilies:   3,
		PaidCount:       1,
		PartialCount:    1,
		UnpaidCount:     1, // f3 has no record yet
		TotalAmountDue:  400,
		TotalAmountPaid: 280,
	}, sum)
}

func TestServiceExportCSV(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository(family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn"})
	svc := newTestService(repo, testNow)

	_, err := svc.Create(ctx, NewPayment{
		FamilyID:   "f1",
		SchoolYear: "2025-2026",
		AmountDue:  amount(200),
		AmountPaid: 80,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	filename, err := svc.ExportCSV(ctx, "2025-2026", "", &buf)
	require.NoError(t, err)
	assert.Equal(t, "payments_2025-2026_20260110.csv", filename)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Family Name,School Year,Amount Due,Amount Paid,Status,Payment Date,Payment Method,Notes", lines[0])
	assert.Contains(t, lines[1], "Gia Đình Nguyễn,2025-2026,200.00,80.00,partial")

	t.Run("status filter", func(t *testing.T) {
		var out bytes.Buffer
		_, err := svc.ExportCSV(ctx, "2025-2026", "paid", &out)
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 1)
	})
}
