package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/payment"
	"github.com/trucvy/vietschool/core/schoolyear"
	"github.com/trucvy/vietschool/core/user"
	emailsvc "github.com/trucvy/vietschool/services/email"
	dummydb "github.com/trucvy/vietschool/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type noopLogger struct{}

func (noopLogger) Enable(bool)                  {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

type testEnv struct {
	conf *core.Config

	usrRepo user.Repository

	usrSvc  user.Service
	famSvc  family.Service
	yearSvc schoolyear.Service
	clsSvc  class.Service
	paySvc  payment.Service

	server Server
}

func testConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "VietSchool",
		SecretKey:                 []byte("secret"),
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		YearAutoCreateMonths:      []time.Month{time.January, time.February},
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := testConfig()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	famRepo := dummydb.NewFamilyRepository(db)
	yearRepo := dummydb.NewSchoolYearRepository(db)
	clsRepo := dummydb.NewClassRepository(db)
	payRepo := dummydb.NewPaymentRepository(db)

	logger := noopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	env := &testEnv{
		conf:    conf,
		usrRepo: usrRepo,
		usrSvc:  user.NewServiceMock(conf, usrRepo, mailSvc, logger),
		famSvc:  family.NewService(famRepo),
		yearSvc: schoolyear.NewService(conf, yearRepo, clsRepo),
		clsSvc:  class.NewService(clsRepo, yearRepo, famRepo),
		paySvc:  payment.NewService(payRepo, famRepo, yearRepo, clsRepo),
	}

	validate, translator := core.NewValidator()
	user.RegisterValidators(conf, validate, translator)
	payment.RegisterValidators(validate, translator)

	env.server = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    env.usrSvc,
		FamilySvc:  env.famSvc,
		YearSvc:    env.yearSvc,
		ClassSvc:   env.clsSvc,
		PaymentSvc: env.paySvc,
		Validate:   validate,
		Translator: translator,
	})
	return env
}

func (env *testEnv) createUser(t *testing.T, name, email, pwd string, role user.Role, active bool) user.User {
	t.Helper()

	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	usr.SetActive(active)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	created, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return created
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := GenerateToken(env.conf, GetUserClaims(env.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func itoa(i int) string { return strconv.Itoa(i) }

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()

	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshalList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
