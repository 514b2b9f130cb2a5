package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/schoolyear"
	"github.com/trucvy/vietschool/core/user"
)

func TestClassAPICreate(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	year := env.createYear(t, schoolyear.NewSchoolYear{Name: "2025-2026"})

	var prg class.Program
	t.Run("create program", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/programs", adminToken, []byte(`{"name": "Giáo Lý"}`))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &prg); err != nil {
			t.Fatalf("unmarshalling Program: %v", err)
		}
		if prg.ID == 0 {
			t.Error("expected a program ID")
		}
	})

	t.Run("create class", func(t *testing.T) {
		body := marshalObj(t, class.NewClass{Name: "Giáo Lý 3A", ProgramID: prg.ID, SchoolYearID: year.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var cls class.Class
		if err := json.Unmarshal(rec.Body.Bytes(), &cls); err != nil {
			t.Fatalf("unmarshalling Class: %v", err)
		}
		if cls.Program == nil || cls.Program.Name != "Giáo Lý" {
			t.Errorf("unexpected class: %+v", cls)
		}
	})

	t.Run("unknown program is a 400", func(t *testing.T) {
		body := marshalObj(t, class.NewClass{Name: "Việt Ngữ 1", ProgramID: 999, SchoolYearID: year.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("unknown year is a 400", func(t *testing.T) {
		body := marshalObj(t, class.NewClass{Name: "Việt Ngữ 1", ProgramID: prg.ID, SchoolYearID: 999})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}

func TestClassAPIQuery(t *testing.T) {
	env := setup(t)

	usr := env.createUser(t, "Phụ Huynh", "parent@test.vn", "S3cr3t!!", user.RoleUser, true)
	token := env.getToken(t, usr)

	ctx := context.Background()
	year1 := env.createYear(t, schoolyear.NewSchoolYear{Name: "2024-2025"})
	year2 := env.createYear(t, schoolyear.NewSchoolYear{Name: "2025-2026"})

	giaoLy, err := env.clsSvc.CreateProgram(ctx, class.NewProgram{Name: "Giáo Lý"})
	if err != nil {
		t.Fatalf("creating program: %v", err)
	}
	vietNgu, err := env.clsSvc.CreateProgram(ctx, class.NewProgram{Name: "Việt Ngữ"})
	if err != nil {
		t.Fatalf("creating program: %v", err)
	}

	mk := func(name string, programID, yearID int) class.Class {
		cls, err := env.clsSvc.Create(ctx, class.NewClass{Name: name, ProgramID: programID, SchoolYearID: yearID})
		if err != nil {
			t.Fatalf("creating class %q: %v", name, err)
		}
		return cls
	}
	gl3a := mk("Giáo Lý 3A", giaoLy.ID, year1.ID)
	vn1 := mk("Việt Ngữ 1", vietNgu.ID, year1.ID)
	mk("Giáo Lý 4A", giaoLy.ID, year2.ID)

	path := func(params url.Values) string { return "/v1/classes?" + params.Encode() }

	decodePage := func(t *testing.T, data []byte) core.Page[class.Class] {
		t.Helper()
		var page core.Page[class.Class]
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshalling Page: %v", err)
		}
		return page
	}

	t.Run("filter by year", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet,
			path(url.Values{"school_year_id": {itoa(year1.ID)}}), token)
		env.server.ServeHTTP(rec, req)

		page := decodePage(t, rec.Body.Bytes())
		if page.Total != 2 || page.Items[0].ID != gl3a.ID || page.Items[1].ID != vn1.ID {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("filter by program", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet,
			path(url.Values{"school_year_id": {itoa(year1.ID)}, "program_id": {itoa(vietNgu.ID)}}), token)
		env.server.ServeHTTP(rec, req)

		page := decodePage(t, rec.Body.Bytes())
		if page.Total != 1 || page.Items[0].ID != vn1.ID {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("search folds diacritics on class and program names", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path(url.Values{"search": {"viet ngu"}}), token)
		env.server.ServeHTTP(rec, req)

		page := decodePage(t, rec.Body.Bytes())
		if page.Total != 1 || page.Items[0].ID != vn1.ID {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("programs list is sorted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/programs", token)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK, wantData: marshalList(t, giaoLy, vietNgu),
		}, rec)
	})
}

func TestClassAPIEnrollments(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin Nguyễn", "admin@test.vn", "S3cr3t!!", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	ctx := context.Background()
	year := env.createYear(t, schoolyear.NewSchoolYear{Name: "2025-2026"})
	prg, err := env.clsSvc.CreateProgram(ctx, class.NewProgram{Name: "Giáo Lý"})
	if err != nil {
		t.Fatalf("creating program: %v", err)
	}
	cls, err := env.clsSvc.Create(ctx, class.NewClass{Name: "Giáo Lý 3A", ProgramID: prg.ID, SchoolYearID: year.ID})
	if err != nil {
		t.Fatalf("creating class: %v", err)
	}

	fam := env.createFamily(t, family.NewFamily{
		FamilyName: "Gia Đình Nguyễn",
		Students: []family.NewStudent{{
			FirstName:   "Ánh",
			LastName:    "Nguyễn",
			SaintName:   "Maria",
			DateOfBirth: time.Date(2017, time.March, 9, 0, 0, 0, 0, time.UTC),
		}},
	})
	std := fam.Students[0]

	t.Run("enroll", func(t *testing.T) {
		body := marshalObj(t, class.NewEnrollment{StudentID: std.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes/"+cls.ID+"/enrollments", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
	})

	t.Run("duplicate enrollment is a 400", func(t *testing.T) {
		body := marshalObj(t, class.NewEnrollment{StudentID: std.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes/"+cls.ID+"/enrollments", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("unknown student is a 404", func(t *testing.T) {
		body := marshalObj(t, class.NewEnrollment{StudentID: "ghost"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes/"+cls.ID+"/enrollments", adminToken, body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
		}
	})

	t.Run("detail carries the roster", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes/"+cls.ID, adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var detail class.WithEnrollments
		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
			t.Fatalf("unmarshalling WithEnrollments: %v", err)
		}
		if detail.EnrollmentCount != 1 || len(detail.Enrollments) != 1 {
			t.Fatalf("unexpected detail: %+v", detail)
		}
		entry := detail.Enrollments[0]
		if entry.Student.FirstName != "Ánh" || entry.Student.FamilyName != "Gia Đình Nguyễn" {
			t.Errorf("unexpected roster entry: %+v", entry)
		}
	})

	t.Run("roster CSV export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes/"+cls.ID+"/export/csv", adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		if disp := rec.Header().Get("Content-Disposition"); !strings.Contains(disp, "Giáo_Lý_3A_roster.csv") {
			t.Errorf("Content-Disposition = %q", disp)
		}
		body := rec.Body.String()
		for _, want := range []string{
			"Class Name:,Giáo Lý 3A",
			"First Name,Last Name,Middle Name,Saint Name,Date of Birth",
			"Ánh,Nguyễn,,Maria,2017-03-09",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("csv missing %q in:\n%s", want, body)
			}
		}
	})

	t.Run("unenroll", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/classes/"+cls.ID+"/enrollments/"+std.ID, adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodDelete, "/v1/classes/"+cls.ID+"/enrollments/"+std.ID, adminToken)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
		}
	})
}
