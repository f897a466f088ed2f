package claim_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
	"github.com/rtemis/reimbursement/core/fee"
	"github.com/rtemis/reimbursement/core/user"
	"github.com/rtemis/reimbursement/services/email"
	"github.com/rtemis/reimbursement/services/export"
	"github.com/rtemis/reimbursement/services/logger"
	"github.com/rtemis/reimbursement/storage/cache"
	"github.com/rtemis/reimbursement/storage/database/inmem"
)

const year = "2024_25"

type fixture struct {
	svc      *claim.Service
	repo     claim.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	school   fee.School
	other    fee.School
	schoolUs user.User
	otherUs  user.User
	admin    user.User
	block    user.User
	district user.User
	state    user.User
}

func setup(t *testing.T, approvalLevel string) fixture {
	t.Helper()
	ctx := context.Background()

	conf := core.NewTestConfig()
	conf.Reimbursement.ApprovalLevel = approvalLevel
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	claimRepo := inmemdb.NewClaimRepository(db)

	newUser := func(uname, email string, roles ...string) user.User {
		usr, err := usrRepo.CreateUser(ctx, user.User{
			ID: uuid.New().String(), Name: uname, Username: uname, Email: email, IsActive: true, Roles: roles,
		})
		require.NoError(t, err)
		return usr
	}
	newSchool := func(udise, name string) fee.School {
		school, err := schoolRepo.CreateSchool(ctx, fee.School{
			ID: uuid.New().String(), UDISECode: udise, AcademicYear: year, Name: name, BoardType: "cbse", Email: "office@" + udise + ".test",
			EducationDetails: []fee.EducationDetail{
				{EducationType: "co-ed", Medium: "english", EducationLevel: "primary", Fees: []fee.ClassFee{{Class: 3, Amount: 1200}, {Class: 4, Amount: 800}}},
			},
		})
		require.NoError(t, err)
		return school
	}

	f := fixture{
		school:   newSchool("09123456789", "Sunrise Public School"),
		other:    newSchool("09000000001", "Hill View School"),
		schoolUs: newUser("09123456789", "head@sunrise.test", user.RoleSchoolAdmin),
		otherUs:  newUser("09000000001", "head@hillview.test", user.RoleSchoolAdmin),
		admin:    newUser("admin", "admin@rte.test", user.RoleAppAdmin),
		block:    newUser("beo", "beo@rte.test", user.RoleBlockAdmin),
		district: newUser("deo", "deo@rte.test", user.RoleDistrictAdmin),
		state:    newUser("state", "state@rte.test", user.RoleStateAdmin),
	}

	_, err := schoolRepo.CreateStateFee(ctx, fee.StateFee{
		ID: uuid.New().String(), AcademicYear: year, PaymentHead: core.CentralHead, BoardType: "cbse",
		EducationLevel: "primary", TuitionFee: 1000, AdditionalFees: map[string]float64{"uniform": 100},
	})
	require.NoError(t, err)
	for _, st := range []fee.Student{
		{Name: "Asha", CurrentClass: 3, EntryClass: 3, Medium: "english", Gender: fee.GenderGirl},
		{Name: "Vikram", CurrentClass: 4, EntryClass: 3, Medium: "english", Gender: fee.GenderBoy},
	} {
		st.ID = uuid.New().String()
		st.SchoolID = f.school.ID
		st.AcademicYear = year
		_, err = schoolRepo.CreateStudent(ctx, st)
		require.NoError(t, err)
	}

	f.repo = claimRepo
	f.mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	f.svc = claim.NewService(claim.Deps{
		Repo:     claimRepo,
		Reports:  fee.NewService(schoolRepo, cache.NewMemoryCache(time.Minute), logger, conf),
		Contacts: user.NewService(usrRepo, validate),
		MailSvc:  f.mailSvc,
		Exporter: exportsvc.NewXLSXExporter(),
		Logger:   logger,
		Validate: validate,
		Settings: conf.Reimbursement,
	})
	return f
}

func (f fixture) submit(t *testing.T) claim.Claim {
	t.Helper()
	c, err := f.svc.Create(context.Background(), f.schoolUs, claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead})
	require.NoError(t, err)
	f.mailSvc.Reset()
	return c
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)

	c, err := f.svc.Create(ctx, f.schoolUs, claim.NewClaim{
		AcademicYear: year, PaymentHead: core.CentralHead, AdditionalFees: []string{"uniform"},
	})
	require.NoError(t, err)
	assert.Equal(t, claim.StateSubmitted, c.Status)
	assert.Equal(t, f.school.ID, c.SchoolID)
	assert.Equal(t, f.school.UDISECode, c.UDISECode)
	assert.True(t, c.Published)
	assert.Equal(t, f.schoolUs.ID, c.CreatedBy)
	assert.Equal(t, 2000.0, c.Total) // (1000 + 100) + (800 + 100)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Reimbursement claim submitted", sent[0].Subject)
	assert.Len(t, sent[0].To, 2)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "reimbursement_09123456789_2024_25_central_head.xlsx", sent[0].Attachments[0].Filename)

	t.Run("duplicate", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.schoolUs, claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead})
		assert.Equal(t, claim.ErrClaimExists, err)

		exists, err := f.svc.CheckExisting(ctx, claim.ExistingFilter{AcademicYear: year, PaymentHead: core.CentralHead, Published: true})
		require.NoError(t, err)
		assert.True(t, exists)

		ids, err := f.svc.GetExisting(ctx, claim.ExistingFilter{AcademicYear: year, PaymentHead: core.CentralHead, SchoolID: f.school.ID, Published: true})
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID}, ids)
	})

	t.Run("other payment head", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.schoolUs, claim.NewClaim{AcademicYear: year, PaymentHead: core.StateHead})
		assert.NoError(t, err)
	})
}

func TestNewClaim_Clean(t *testing.T) {
	nc := claim.NewClaim{AcademicYear: " 2024_25 ", PaymentHead: "central_head", AdditionalFees: []string{"uniform", " uniform", "", "books"}}
	nc.Clean()
	assert.Equal(t, "2024_25", nc.AcademicYear)
	assert.Equal(t, []string{"uniform", "books"}, nc.AdditionalFees)
}

// barrierLoader holds every LoadStudentData call until `arrived` calls are waiting.
type barrierLoader struct {
	claim.ReportLoader
	arrived *sync.WaitGroup
}

func (l barrierLoader) LoadStudentData(ctx context.Context, usr user.User, params fee.ReportParams) (fee.Report, error) {
	l.arrived.Done()
	l.arrived.Wait()
	return l.ReportLoader.LoadStudentData(ctx, usr, params)
}

func TestService_Create_concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)

	const submissions = 2
	deps := f.svc.Deps
	arrived := new(sync.WaitGroup)
	arrived.Add(submissions)
	deps.Reports = &barrierLoader{ReportLoader: deps.Reports, arrived: arrived}
	svc := claim.NewService(deps)

	errs := make([]error, submissions)
	var wg sync.WaitGroup
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, f.schoolUs, claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead})
		}(i)
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, claim.ErrClaimExists, err)
	}
	assert.Equal(t, 1, created)

	ids, err := svc.GetExisting(ctx, claim.ExistingFilter{AcademicYear: year, PaymentHead: core.CentralHead, SchoolID: f.school.ID, Published: true})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestService_Create_errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)

	tests := []struct {
		name    string
		usr     user.User
		nc      claim.NewClaim
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "authority", usr: f.block, nc: claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead},
			wantErr: func(t *testing.T, err error) { assert.Equal(t, claim.ErrForbidden, err) },
		},
		{
			name: "bad year", usr: f.schoolUs, nc: claim.NewClaim{AcademicYear: "2024", PaymentHead: core.CentralHead},
			wantErr: func(t *testing.T, err error) {
				_, ok := errors.Cause(err).(validator.ValidationErrors)
				assert.True(t, ok, "%v", err)
			},
		},
		{
			name: "bad payment head", usr: f.schoolUs, nc: claim.NewClaim{AcademicYear: year, PaymentHead: "district_head"},
			wantErr: func(t *testing.T, err error) {
				_, ok := errors.Cause(err).(validator.ValidationErrors)
				assert.True(t, ok, "%v", err)
			},
		},
		{
			name: "admin without school", usr: f.admin, nc: claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead},
			wantErr: func(t *testing.T, err error) { assert.True(t, core.IsValidationError(err), "%v", err) },
		},
		{
			name: "admin unknown school", usr: f.admin, nc: claim.NewClaim{SchoolID: uuid.New().String(), AcademicYear: year, PaymentHead: core.CentralHead},
			wantErr: func(t *testing.T, err error) { assert.True(t, core.IsValidationError(err), "%v", err) },
		},
		{
			name: "school missing for the year", usr: f.schoolUs, nc: claim.NewClaim{AcademicYear: "2023_24", PaymentHead: core.CentralHead},
			wantErr: func(t *testing.T, err error) { assert.True(t, core.IsValidationError(err), "%v", err) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.usr, tt.nc)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}

	t.Run("admin for a school", func(t *testing.T) {
		c, err := f.svc.Create(ctx, f.admin, claim.NewClaim{SchoolID: f.other.ID, AcademicYear: year, PaymentHead: core.CentralHead})
		require.NoError(t, err)
		assert.Equal(t, f.other.ID, c.SchoolID)
		assert.Equal(t, 0.0, c.Total)
	})
}

func TestService_visibility(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)
	c := f.submit(t)

	_, err := f.svc.Get(ctx, f.otherUs, c.ID)
	assert.Equal(t, claim.ErrNotFound, err)
	_, err = f.svc.Get(ctx, f.block, "not-a-uuid")
	assert.Equal(t, claim.ErrNotFound, err)

	got, err := f.svc.Get(ctx, f.block, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	claims, err := f.svc.Query(ctx, f.otherUs, claim.QueryFilter{UDISECode: f.school.UDISECode})
	require.NoError(t, err)
	assert.Empty(t, claims)

	claims, err = f.svc.Query(ctx, f.schoolUs, claim.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []claim.Claim{c}, claims)

	claims, err = f.svc.Query(ctx, f.state, claim.QueryFilter{Statuses: []string{"submitted", "bogus"}})
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestService_dualApproval(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)
	c := f.submit(t)

	states, err := f.svc.AvailableTransitions(ctx, f.block, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []claim.State{claim.StateApprovedByBEO, claim.StateRejected}, states)

	states, err = f.svc.AvailableTransitions(ctx, f.district, c.ID)
	require.NoError(t, err)
	assert.Empty(t, states)

	// district cannot skip the block level
	_, err = f.svc.Transition(ctx, f.district, c.ID, claim.NewTransition{To: "approved_by_beo"})
	assert.Equal(t, claim.ErrTransitionNotAllowed, err)

	c, err = f.svc.Transition(ctx, f.block, c.ID, claim.NewTransition{To: "approved_by_beo", Comment: " looks good "})
	require.NoError(t, err)
	assert.Equal(t, claim.StateApprovedByBEO, c.Status)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, `moved from "submitted" to "approved by beo"`)
	assert.Contains(t, sent[0].TextContent, "Comment: looks good")

	c, err = f.svc.Transition(ctx, f.district, c.ID, claim.NewTransition{To: "reimbursement_claim_workflow_approved_by_deo"})
	require.NoError(t, err)
	assert.Equal(t, claim.StateApprovedByDEO, c.Status)

	// payments are never regular transitions
	_, err = f.svc.Transition(ctx, f.state, c.ID, claim.NewTransition{To: "payment_completed"})
	assert.Equal(t, claim.ErrTransitionNotAllowed, err)
	_, err = f.svc.RecordPayment(ctx, f.district, c.ID, claim.NewPayment{Status: "payment_pending"})
	assert.Equal(t, claim.ErrForbidden, err)

	c, err = f.svc.RecordPayment(ctx, f.state, c.ID, claim.NewPayment{Status: "payment_pending"})
	require.NoError(t, err)
	assert.Equal(t, claim.StatePaymentPending, c.Status)

	c, err = f.svc.RecordPayment(ctx, f.state, c.ID, claim.NewPayment{Status: "payment_completed"})
	require.NoError(t, err)
	assert.Equal(t, claim.StatePaymentCompleted, c.Status)

	_, err = f.svc.RecordPayment(ctx, f.state, c.ID, claim.NewPayment{Status: "payment_pending"})
	assert.Equal(t, claim.ErrTransitionNotAllowed, err)

	history, err := f.svc.History(ctx, f.schoolUs, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, want := range []claim.State{claim.StateApprovedByBEO, claim.StateApprovedByDEO, claim.StatePaymentPending, claim.StatePaymentCompleted} {
		assert.Equal(t, want, history[i].To)
		assert.False(t, history[i].Forced)
	}
	assert.Equal(t, "looks good", history[0].Comment)
	assert.Equal(t, f.block.ID, history[0].UserID)
}

func TestService_singleApproval(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalSingle)
	c := f.submit(t)

	states, err := f.svc.AvailableTransitions(ctx, f.district, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []claim.State{claim.StateApprovedByBEO, claim.StateRejected, claim.StateReset}, states)

	_, err = f.svc.Transition(ctx, f.block, c.ID, claim.NewTransition{To: "approved_by_beo"})
	assert.Equal(t, claim.ErrTransitionNotAllowed, err)

	c, err = f.svc.Transition(ctx, f.district, c.ID, claim.NewTransition{To: "approved_by_beo"})
	require.NoError(t, err)
	c, err = f.svc.Transition(ctx, f.district, c.ID, claim.NewTransition{To: "submitted", Comment: "missing students"})
	require.NoError(t, err)
	assert.Equal(t, claim.StateSubmitted, c.Status)
	c, err = f.svc.Transition(ctx, f.district, c.ID, claim.NewTransition{To: "reset"})
	require.NoError(t, err)
	assert.Equal(t, claim.StateReset, c.Status)

	history, err := f.svc.History(ctx, f.district, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Forced) // also in the single level table
	assert.True(t, history[1].Forced)
	assert.True(t, history[2].Forced)

	t.Run("resubmit", func(t *testing.T) {
		_, err := f.svc.Resubmit(ctx, f.block, c.ID, "")
		assert.Equal(t, claim.ErrForbidden, err)
		_, err = f.svc.Resubmit(ctx, f.otherUs, c.ID, "")
		assert.Equal(t, claim.ErrNotFound, err)

		c, err := f.svc.Resubmit(ctx, f.schoolUs, c.ID, "fixed")
		require.NoError(t, err)
		assert.Equal(t, claim.StateSubmitted, c.Status)
		assert.Equal(t, 1800.0, c.Total)

		_, err = f.svc.Resubmit(ctx, f.schoolUs, c.ID, "")
		assert.Equal(t, claim.ErrTransitionNotAllowed, err)
	})
}

func TestService_rejectAndResubmit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)
	c := f.submit(t)

	c, err := f.svc.Transition(ctx, f.block, c.ID, claim.NewTransition{To: "rejected", Comment: "wrong fees"})
	require.NoError(t, err)
	assert.Equal(t, claim.StateRejected, c.Status)

	states, err := f.svc.AvailableTransitions(ctx, f.block, c.ID)
	require.NoError(t, err)
	assert.Empty(t, states)

	c, err = f.svc.Resubmit(ctx, f.schoolUs, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, claim.StateSubmitted, c.Status)

	_, err = f.svc.Transition(ctx, f.block, c.ID, claim.NewTransition{To: "unknown"})
	_, ok := errors.Cause(err).(validator.ValidationErrors)
	assert.True(t, ok, "%v", err)
}

func TestRepository_UpdateStatus_stale(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.ApprovalDual)
	c := f.submit(t)

	c.Status = claim.StateApprovedByDEO
	_, err := f.repo.UpdateStatus(ctx, c, claim.HistoryEntry{ClaimID: c.ID, From: claim.StateApprovedByBEO, To: claim.StateApprovedByDEO})
	assert.Equal(t, claim.ErrStaleClaim, err)
}
