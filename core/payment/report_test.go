package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/schoolyear"
)

func (repo *fakeRepository) GetSchoolYearByID(_ context.Context, id int) (schoolyear.SchoolYear, error) {
	for _, year := range repo.years {
		if year.ID == id {
			return year, nil
		}
	}
	return schoolyear.SchoolYear{}, schoolyear.ErrYearNotFound
}

// fixtures are listed newest first, matching the repository contract
func (repo *fakeRepository) QueryAllSchoolYears(_ context.Context) ([]schoolyear.SchoolYear, error) {
	return repo.years, nil
}

func (repo *fakeRepository) QueryClassesByYear(_ context.Context, yearID int) ([]class.Class, error) {
	classes := make([]class.Class, 0, len(repo.classes))
	for _, cls := range repo.classes {
		if yearID != 0 && cls.SchoolYearID != yearID {
			continue
		}
		classes = append(classes, cls)
	}
	return classes, nil
}

func (repo *fakeRepository) GetClassRoster(_ context.Context, classID string) ([]class.RosterEntry, error) {
	return repo.rosters[classID], nil
}

func (repo *fakeRepository) enroll(classID, studentID string) {
	repo.rosters[classID] = append(repo.rosters[classID], class.RosterEntry{
		Enrollment: class.Enrollment{ID: uuid.New().String(), StudentID: studentID, ClassID: classID},
	})
}

// Two school years; the Lê family's only enrollment is in the older one.
func newReportFixture(t *testing.T) (*fakeRepository, *service) {
	t.Helper()

	repo := newFakeRepository(
		family.Family{ID: "f1", FamilyName: "Gia Đình Nguyễn", Students: []family.Student{
			{ID: "s1", FamilyID: "f1", FirstName: "Minh", LastName: "Nguyễn"},
			{ID: "s2", FamilyID: "f1", FirstName: "Lan", LastName: "Nguyễn"},
		}},
		family.Family{ID: "f2", FamilyName: "Gia Đình Trần", Students: []family.Student{
			{ID: "s3", FamilyID: "f2", FirstName: "Huy", LastName: "Trần"},
		}},
		family.Family{ID: "f3", FamilyName: "Gia Đình Lê", Students: []family.Student{
			{ID: "s4", FamilyID: "f3", FirstName: "An", LastName: "Lê"},
		}},
	)
	repo.years = []schoolyear.SchoolYear{
		{ID: 2, Name: "2025-2026", StartYear: 2025, EndYear: 2026},
		{ID: 1, Name: "2024-2025", StartYear: 2024, EndYear: 2025},
	}
	repo.classes = []class.Class{
		{ID: "c1", Name: "Ấu Nhi Cấp 1", SchoolYearID: 2, Program: &class.Program{ID: 1, Name: "TNTT (VEYM)"}},
		{ID: "c2", Name: "Grade 1", SchoolYearID: 2, Program: &class.Program{ID: 2, Name: "Việt Ngữ"}},
		{ID: "c3", Name: "Grade 2", SchoolYearID: 1, Program: &class.Program{ID: 2, Name: "Việt Ngữ"}},
	}
	repo.enroll("c1", "s1")
	repo.enroll("c2", "s1")
	repo.enroll("c2", "s3")
	repo.enroll("c3", "s4")

	svc := newTestService(repo, testNow)
	_, err := svc.Create(context.Background(), NewPayment{
		FamilyID: "f1", SchoolYear: "2025-2026", AmountDue: amount(200), AmountPaid: 80,
	})
	require.NoError(t, err)
	return repo, svc
}

func TestServiceEnrolledFamilies(t *testing.T) {
	ctx := context.Background()
	_, svc := newReportFixture(t)

	t.Run("newest year by default", func(t *testing.T) {
		report, err := svc.EnrolledFamilies(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, report.SchoolYearID)
		assert.Equal(t, "2025-2026", report.SchoolYearName)

		// the Lê family has no enrollment this year and is left out
		require.Equal(t, 2, report.Total)
		assert.Equal(t, "Gia Đình Nguyễn", report.Items[0].FamilyName)
		assert.Equal(t, "Gia Đình Trần", report.Items[1].FamilyName)

		nguyen := report.Items[0]
		assert.Equal(t, 1, nguyen.EnrolledCount)
		require.Len(t, nguyen.Students, 2)
		assert.True(t, nguyen.Students[0].IsEnrolled)
		require.Len(t, nguyen.Students[0].EnrolledClasses, 2)
		assert.Equal(t, "TNTT (VEYM)", nguyen.Students[0].EnrolledClasses[0].ProgramName)
		assert.False(t, nguyen.Students[1].IsEnrolled)
		assert.Empty(t, nguyen.Students[1].EnrolledClasses)

		assert.Equal(t, StatusPartial, nguyen.Status)
		assert.Equal(t, 80.0, nguyen.AmountPaid)

		// no payment record yet
		tran := report.Items[1]
		assert.Equal(t, StatusUnpaid, tran.Status)
		assert.Nil(t, tran.AmountDue)
		assert.Zero(t, tran.AmountPaid)
	})

	t.Run("explicit year id", func(t *testing.T) {
		report, err := svc.EnrolledFamilies(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "2024-2025", report.SchoolYearName)
		require.Equal(t, 1, report.Total)
		assert.Equal(t, "Gia Đình Lê", report.Items[0].FamilyName)
		assert.Equal(t, StatusUnpaid, report.Items[0].Status)
	})

	t.Run("unknown year id", func(t *testing.T) {
		_, err := svc.EnrolledFamilies(ctx, 99)
		assert.Equal(t, schoolyear.ErrYearNotFound, err)
	})

	t.Run("no school years configured", func(t *testing.T) {
		empty := newTestService(newFakeRepository(), testNow)
		_, err := empty.EnrolledFamilies(ctx, 0)
		assert.Equal(t, schoolyear.ErrNotFound, err)
	})
}

func TestServiceEnrolledFamiliesSummary(t *testing.T) {
	ctx := context.Background()
	_, svc := newReportFixture(t)

	sum, err := svc.EnrolledFamiliesSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentSummary{
		TotalEnrolledFamilies: 2,
		PaidCount:             0,
		PartialCount:          1,
		UnpaidCount:           1,
		TotalAmountDue:        200,
		TotalAmountPaid:       80,
		SchoolYearName:        "2025-2026",
	}, sum)
}

func TestServiceFamiliesWithPayments(t *testing.T) {
	ctx := context.Background()
	_, svc := newReportFixture(t)
	pg := core.Pagination{Page: 1, PageSize: 10}

	t.Run("annotates enrollment counts", func(t *testing.T) {
		page, err := svc.QueryFamiliesWithPayments(ctx, &WithPaymentsFilter{}, pg)
		require.NoError(t, err)
		require.Equal(t, 3, page.Total)

		// folded family name ascending, counting enrollments across years
		assert.Equal(t, "Gia Đình Lê", page.Items[0].FamilyName)
		assert.Equal(t, 1, page.Items[0].EnrolledClassCount)
		assert.Equal(t, "Gia Đình Nguyễn", page.Items[1].FamilyName)
		assert.Equal(t, 2, page.Items[1].EnrolledClassCount)
		assert.Equal(t, "Gia Đình Trần", page.Items[2].FamilyName)
		assert.Equal(t, 1, page.Items[2].EnrolledClassCount)

		// no school year given, standing not resolved
		assert.Nil(t, page.Items[0].PaymentStatus)
	})

	t.Run("school year resolves standing", func(t *testing.T) {
		page, err := svc.QueryFamiliesWithPayments(ctx, &WithPaymentsFilter{SchoolYear: "2025-2026"}, pg)
		require.NoError(t, err)
		require.Equal(t, 3, page.Total)

		nguyen := page.Items[1]
		require.NotNil(t, nguyen.PaymentStatus)
		assert.Equal(t, StatusPartial, nguyen.PaymentStatus.Status)
		assert.Equal(t, 80.0, nguyen.PaymentStatus.AmountPaid)
		assert.Equal(t, "2025-2026", nguyen.PaymentStatus.SchoolYear)

		// families without a record default to unpaid
		tran := page.Items[2]
		require.NotNil(t, tran.PaymentStatus)
		assert.Equal(t, StatusUnpaid, tran.PaymentStatus.Status)
		assert.Nil(t, tran.PaymentStatus.AmountDue)
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := svc.QueryFamiliesWithPayments(ctx,
			&WithPaymentsFilter{SchoolYear: "2025-2026", Status: "partial"}, pg)
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, "Gia Đình Nguyễn", page.Items[0].FamilyName)
	})

	t.Run("search folds family name", func(t *testing.T) {
		page, err := svc.QueryFamiliesWithPayments(ctx, &WithPaymentsFilter{Search: "gia dinh tran"}, pg)
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, "f2", page.Items[0].ID)
	})
}
