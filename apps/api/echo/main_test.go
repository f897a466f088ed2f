package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	echoapi "github.com/rtemis/reimbursement/apps/api/echo"
	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
	"github.com/rtemis/reimbursement/core/fee"
	"github.com/rtemis/reimbursement/core/user"
	emailsvc "github.com/rtemis/reimbursement/services/email"
	exportsvc "github.com/rtemis/reimbursement/services/export"
	logsvc "github.com/rtemis/reimbursement/services/logger"
	"github.com/rtemis/reimbursement/storage/cache"
	"github.com/rtemis/reimbursement/storage/database/inmem"
)

const (
	year     = "2024_25"
	udise    = "09123456789"
	password = "Rte-Secret#2024"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf    *core.Config
	app     *echoapi.Server
	mailSvc *emailsvc.ConsoleServiceMock
	school  fee.School

	schoolAdmin user.User
	beo         user.User
	deo         user.User
	state       user.User
	admin       user.User
	inactive    user.User
}

func setup(t *testing.T, approvalLevel string) fixture {
	t.Helper()
	ctx := context.Background()

	conf := core.NewTestConfig()
	conf.Reimbursement.ApprovalLevel = approvalLevel
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)

	f := fixture{conf: conf, mailSvc: emailsvc.NewConsoleServiceMock(conf, logger)}
	f.school = createSchoolData(t, schoolRepo)

	createUser := func(name, uname, email string, active bool, roles ...string) user.User {
		now := time.Now().UTC()
		usr := user.User{
			ID: uuid.New().String(), Name: name, Username: uname, Email: email,
			IsActive: active, Roles: roles, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, usr.SetPassword(password))
		usr, err := usrRepo.CreateUser(ctx, usr)
		require.NoError(t, err)
		return usr
	}
	f.schoolAdmin = createUser("Sunrise Admin", udise, "principal@sunrise.in", true, user.RoleSchoolAdmin)
	f.beo = createUser("Block Officer", "beo", "beo@up.gov.in", true, user.RoleBlockAdmin)
	f.deo = createUser("District Officer", "deo", "deo@up.gov.in", true, user.RoleDistrictAdmin)
	f.state = createUser("State Officer", "state", "state@up.gov.in", true, user.RoleStateAdmin)
	f.admin = createUser("App Admin", "admin", "admin@rte.in", true, user.RoleAppAdmin)
	f.inactive = createUser("Former Officer", "former", "former@up.gov.in", false, user.RoleBlockAdmin)

	exporter := exportsvc.NewXLSXExporter()
	usrSvc := user.NewService(usrRepo, validate)
	feeSvc := fee.NewService(schoolRepo, cache.NewMemoryCache(time.Minute), logger, conf)
	claimSvc := claim.NewService(claim.Deps{
		Repo:     inmemdb.NewClaimRepository(db),
		Reports:  feeSvc,
		Contacts: usrSvc,
		MailSvc:  f.mailSvc,
		Exporter: exporter,
		Logger:   logger,
		Validate: validate,
		Settings: conf.Reimbursement,
	})

	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		FeeSvc:     feeSvc,
		ClaimSvc:   claimSvc,
		Exporter:   exporter,
		Validate:   validate,
		Translator: translator,
	})
	return f
}

// createSchoolData creates a CBSE school with two class 3 students: both are reimbursed 1000.
func createSchoolData(t *testing.T, repo fee.Repository) fee.School {
	ctx := context.Background()
	school, err := repo.CreateSchool(ctx, fee.School{
		ID:           uuid.New().String(),
		UDISECode:    udise,
		AcademicYear: year,
		Name:         "Sunrise Public School",
		Email:        "office@sunrise.in",
		BoardType:    "cbse",
		EducationDetails: []fee.EducationDetail{
			{EducationType: "co-ed", Medium: "english", EducationLevel: "primary", Fees: []fee.ClassFee{{Class: 3, Amount: 1200}}},
		},
	})
	require.NoError(t, err)

	_, err = repo.CreateStateFee(ctx, fee.StateFee{
		ID: uuid.New().String(), AcademicYear: year, PaymentHead: core.CentralHead, BoardType: "cbse",
		EducationLevel: "primary", TuitionFee: 1000, AdditionalFees: map[string]float64{"uniform": 100},
	})
	require.NoError(t, err)

	for _, name := range []string{"Asha", "Vikram"} {
		_, err = repo.CreateStudent(ctx, fee.Student{
			ID: uuid.New().String(), SchoolID: school.ID, AcademicYear: year, Name: name, ParentName: "Parent of " + name,
			CurrentClass: 3, EntryClass: 3, Medium: "english", Gender: fee.GenderBoy,
		})
		require.NoError(t, err)
	}
	return school
}

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
	return req, httptest.NewRecorder()
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (f fixture) token(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func (f fixture) do(t *testing.T, method, path string, usr user.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		data = marshalObj(t, body)
	}
	req, rec := newAuthRequest(method, path, f.token(t, usr), data)
	f.app.ServeHTTP(rec, req)
	return rec
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
