package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/payment"
	"github.com/trucvy/vietschool/core/schoolyear"
	"github.com/trucvy/vietschool/core/user"
)

func TestPaymentAPICreate(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	parent := env.createUser(t, "Phụ Huynh", "parent@test.vn", "S3cr3t!!", user.RoleUser, true)
	adminToken := env.getToken(t, admin)

	fam := env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Nguyễn"})

	t.Run("status derives from the amounts", func(t *testing.T) {
		body := []byte(`{
			"family_id": "` + fam.ID + `",
			"school_year": "2025-2026",
			"amount_due": 200,
			"amount_paid": 80
		}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var pmt payment.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &pmt); err != nil {
			t.Fatalf("unmarshalling Payment: %v", err)
		}
		if pmt.Status != payment.StatusPartial || pmt.FamilyName != "Gia Đình Nguyễn" {
			t.Errorf("unexpected payment: %+v", pmt)
		}
	})

	t.Run("unknown family is a 400", func(t *testing.T) {
		body := []byte(`{"family_id": "ghost", "school_year": "2025-2026"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("payments are admin only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments", env.getToken(t, parent))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})
}

func TestPaymentAPIQueryAndSummary(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	ctx := context.Background()
	nguyen := env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Nguyễn"})
	tran := env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Trần"})
	env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Lê"})

	due := 200.0
	mkPayment := func(familyID string, paid float64) payment.Payment {
		pmt, err := env.paySvc.Create(ctx, payment.NewPayment{
			FamilyID:   familyID,
			SchoolYear: "2025-2026",
			AmountDue:  &due,
			AmountPaid: paid,
		})
		if err != nil {
			t.Fatalf("creating payment: %v", err)
		}
		return pmt
	}
	partial := mkPayment(nguyen.ID, 80)
	mkPayment(tran.ID, 200)

	path := func(params url.Values) string { return "/v1/payments?" + params.Encode() }

	t.Run("filter by status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet,
			path(url.Values{"school_year": {"2025-2026"}, "payment_status": {"partial"}}), adminToken)
		env.server.ServeHTTP(rec, req)

		var page core.Page[payment.Payment]
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling Page: %v", err)
		}
		if page.Total != 1 || page.Items[0].ID != partial.ID {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("search folds the family name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet,
			path(url.Values{"search": {"gia dinh tran"}}), adminToken)
		env.server.ServeHTTP(rec, req)

		var page core.Page[payment.Payment]
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling Page: %v", err)
		}
		if page.Total != 1 || page.Items[0].FamilyID != tran.ID {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("summary counts families without a record as unpaid", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/summary?school_year=2025-2026", adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marshalObj(t, payment.Summary{
				TotalFamilies:   3,
				PaidCount:       1,
				PartialCount:    1,
				UnpaidCount:     1,
				TotalAmountDue:  400,
				TotalAmountPaid: 280,
			}),
		}, rec)
	})

	t.Run("export CSV", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/export/csv?school_year=2025-2026", adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		if disp := rec.Header().Get("Content-Disposition"); !strings.Contains(disp, "payments_2025-2026_") {
			t.Errorf("Content-Disposition = %q", disp)
		}
		body := rec.Body.String()
		if !strings.HasPrefix(body, "Family Name,School Year,Amount Due,Amount Paid,Status,Payment Date,Payment Method,Notes") {
			t.Errorf("unexpected csv header:\n%s", body)
		}
		if !strings.Contains(body, "Gia Đình Nguyễn,2025-2026,200.00,80.00,partial") {
			t.Errorf("csv missing partial row:\n%s", body)
		}
	})
}

func TestPaymentAPIMarkPaid(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	fam := env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Nguyễn"})

	t.Run("creates the record when none exists", func(t *testing.T) {
		body := []byte(`{"school_year": "2025-2026", "amount": 250}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mark-paid/"+fam.ID, adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var pmt payment.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &pmt); err != nil {
			t.Fatalf("unmarshalling Payment: %v", err)
		}
		if pmt.Status != payment.StatusPaid || pmt.AmountPaid != 250 || pmt.PaymentMethod != "cash" {
			t.Errorf("unexpected payment: %+v", pmt)
		}
		if pmt.PaymentDate == nil {
			t.Error("expected a payment date")
		}
	})

	t.Run("settles the existing record on repeat", func(t *testing.T) {
		body := []byte(`{"school_year": "2025-2026", "payment_method": "zelle"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mark-paid/"+fam.ID, adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var pmt payment.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &pmt); err != nil {
			t.Fatalf("unmarshalling Payment: %v", err)
		}
		if pmt.PaymentMethod != "zelle" || pmt.Status != payment.StatusPaid {
			t.Errorf("unexpected payment: %+v", pmt)
		}

		// still a single record for the family and year
		pmts, err := env.paySvc.QueryByFamily(context.Background(), fam.ID)
		if err != nil {
			t.Fatalf("querying family payments: %v", err)
		}
		if len(pmts) != 1 {
			t.Errorf("records = %d; want 1", len(pmts))
		}
	})

	t.Run("unknown family is a 404", func(t *testing.T) {
		body := []byte(`{"school_year": "2025-2026"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mark-paid/ghost", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
		}
	})
}

func TestPaymentAPIUpdateAndDelete(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	fam := env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Nguyễn"})
	due := 200.0
	pmt, err := env.paySvc.Create(context.Background(), payment.NewPayment{
		FamilyID:   fam.ID,
		SchoolYear: "2025-2026",
		AmountDue:  &due,
		AmountPaid: 80,
	})
	if err != nil {
		t.Fatalf("creating payment: %v", err)
	}

	t.Run("amount change recomputes the status", func(t *testing.T) {
		body := []byte(`{"amount_paid": 200}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/payments/"+pmt.ID, adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated payment.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling Payment: %v", err)
		}
		if updated.Status != payment.StatusPaid {
			t.Errorf("status = %q", updated.Status)
		}
	})

	t.Run("an explicit refund sticks", func(t *testing.T) {
		body := []byte(`{"payment_status": "refunded"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/payments/"+pmt.ID, adminToken, body)
		env.server.ServeHTTP(rec, req)

		var updated payment.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling Payment: %v", err)
		}
		if updated.Status != payment.StatusRefunded {
			t.Errorf("status = %q", updated.Status)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/payments/"+pmt.ID, adminToken)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/payments/"+pmt.ID, adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"}),
		}, rec)
	})
}

func TestPaymentAPIEnrolledFamilies(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	ctx := context.Background()
	year := env.createYear(t, schoolyear.NewSchoolYear{Name: "2025-2026"})
	prg, err := env.clsSvc.CreateProgram(ctx, class.NewProgram{Name: "Việt Ngữ"})
	if err != nil {
		t.Fatalf("creating program: %v", err)
	}
	cls, err := env.clsSvc.Create(ctx, class.NewClass{Name: "Grade 1", ProgramID: prg.ID, SchoolYearID: year.ID})
	if err != nil {
		t.Fatalf("creating class: %v", err)
	}

	nguyen := env.createFamily(t, family.NewFamily{
		FamilyName: "Gia Đình Nguyễn",
		Students:   []family.NewStudent{{FirstName: "Minh", LastName: "Nguyễn"}},
	})
	env.createFamily(t, family.NewFamily{FamilyName: "Gia Đình Trần"}) // nobody enrolled
	if _, err = env.clsSvc.Enroll(ctx, cls.ID, class.NewEnrollment{StudentID: nguyen.Students[0].ID}); err != nil {
		t.Fatalf("enrolling student: %v", err)
	}

	due := 200.0
	_, err = env.paySvc.Create(ctx, payment.NewPayment{
		FamilyID:   nguyen.ID,
		SchoolYear: "2025-2026",
		AmountDue:  &due,
		AmountPaid: 80,
	})
	if err != nil {
		t.Fatalf("creating payment: %v", err)
	}

	t.Run("report", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/enrolled-families", adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var report payment.EnrolledFamiliesReport
		if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
			t.Fatalf("unmarshalling EnrolledFamiliesReport: %v", err)
		}
		if report.Total != 1 || report.SchoolYearName != "2025-2026" {
			t.Fatalf("unexpected report: %+v", report)
		}
		item := report.Items[0]
		if item.FamilyName != "Gia Đình Nguyễn" || item.EnrolledCount != 1 {
			t.Errorf("unexpected item: %+v", item)
		}
		if len(item.Students) != 1 || !item.Students[0].IsEnrolled {
			t.Fatalf("unexpected students: %+v", item.Students)
		}
		if classes := item.Students[0].EnrolledClasses; len(classes) != 1 || classes[0].ProgramName != "Việt Ngữ" {
			t.Errorf("unexpected enrolled classes: %+v", item.Students[0].EnrolledClasses)
		}
		if item.Status != payment.StatusPartial || item.AmountPaid != 80 {
			t.Errorf("unexpected standing: %+v", item)
		}
	})

	t.Run("summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/enrolled-families/summary", adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marshalObj(t, payment.EnrollmentSummary{
				TotalEnrolledFamilies: 1,
				PartialCount:          1,
				TotalAmountDue:        200,
				TotalAmountPaid:       80,
				SchoolYearName:        "2025-2026",
			}),
		}, rec)
	})

	t.Run("unknown year is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/enrolled-families?school_year_id=999", adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"}),
		}, rec)
	})
}
