package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/rtemis/reimbursement/apps/api/echo"
	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
	"github.com/rtemis/reimbursement/core/user"
)

var newCentralClaim = claim.NewClaim{AcademicYear: year, PaymentHead: core.CentralHead}

func (f fixture) createClaim(t *testing.T) claim.Claim {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/claims", f.schoolAdmin, newCentralClaim)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c claim.Claim
	unmarshal(t, rec, &c)
	return c
}

func (f fixture) transitions(t *testing.T, id string, usr user.User) []claim.State {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/v1/claims/"+id+"/transitions", usr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.TransitionsResponse
	unmarshal(t, rec, &resp)
	return resp.Transitions
}

func (f fixture) move(t *testing.T, id string, usr user.User, to claim.State, wantCode int) claim.Claim {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/claims/"+id+"/transitions", usr, claim.NewTransition{To: string(to), Comment: "checked"})
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	var c claim.Claim
	if wantCode == http.StatusOK {
		unmarshal(t, rec, &c)
	}
	return c
}

func Test_claimApi_create(t *testing.T) {
	f := setup(t, core.ApprovalDual)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/claims", marshalObj(t, newCentralClaim))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)}, rec)
	})

	t.Run("invalid", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/claims", f.schoolAdmin, claim.NewClaim{AcademicYear: "2024-25"})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"academic_year": "academic year must look like 2024_25",
				"payment_head":  "this field is required",
			}),
		}, rec)
	})

	t.Run("authorities cannot claim", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/claims", f.beo, newCentralClaim)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("no school for the year", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/claims", f.schoolAdmin, claim.NewClaim{AcademicYear: "2023_24", PaymentHead: core.CentralHead})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		unmarshal(t, rec, &fields)
		assert.Contains(t, fields, "academic_year")
	})

	t.Run("submitted", func(t *testing.T) {
		f.mailSvc.Reset()
		c := f.createClaim(t)
		assert.Equal(t, f.school.ID, c.SchoolID)
		assert.Equal(t, udise, c.UDISECode)
		assert.Equal(t, claim.StateSubmitted, c.Status)
		assert.True(t, c.Published)
		assert.Equal(t, 2000.0, c.Total)
		assert.Equal(t, f.schoolAdmin.ID, c.CreatedBy)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Len(t, sent[0].To, 2)
		require.Len(t, sent[0].Attachments, 1)
		assert.Equal(t, "reimbursement_09123456789_2024_25_central_head.xlsx", sent[0].Attachments[0].Filename)
	})

	t.Run("duplicate", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/claims", f.schoolAdmin, newCentralClaim)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marshalObj(t, map[string]string{"payment_head": claim.ErrClaimExists.Error()}),
		}, rec)
	})

	t.Run("existing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/claims/existing?academic_year=2024_25&payment_head=central_head", f.schoolAdmin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.ExistingResponse
		unmarshal(t, rec, &resp)
		assert.True(t, resp.Exists)
		assert.Len(t, resp.IDs, 1)

		rec = f.do(t, http.MethodGet, "/v1/claims/existing?academic_year=2024_25&payment_head=state_head", f.schoolAdmin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &resp)
		assert.False(t, resp.Exists)
	})
}

func Test_claimApi_retrieve(t *testing.T) {
	f := setup(t, core.ApprovalDual)
	c := f.createClaim(t)

	notFound := marshalObj(t, httpErr{Error: claim.ErrNotFound.Error()})
	tests := []httpTest{
		{name: "school admin", path: "/v1/claims/" + c.ID, token: f.token(t, f.schoolAdmin), wantCode: http.StatusOK, wantData: marshalObj(t, c)},
		{name: "authority", path: "/v1/claims/" + c.ID, token: f.token(t, f.deo), wantCode: http.StatusOK, wantData: marshalObj(t, c)},
		{name: "unknown", path: "/v1/claims/" + uuid.New().String(), token: f.token(t, f.deo), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "invalid id", path: "/v1/claims/lol", token: f.token(t, f.deo), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("query", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/claims", f.schoolAdmin, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalObj(t, []claim.Claim{c})}, rec)

		rec = f.do(t, http.MethodGet, "/v1/claims?status=rejected", f.beo, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)

		rec = f.do(t, http.MethodGet, "/v1/claims?status=submitted&ordering=-created_at", f.beo, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalObj(t, []claim.Claim{c})}, rec)
	})
}

func Test_claimApi_dualApproval(t *testing.T) {
	f := setup(t, core.ApprovalDual)
	c := f.createClaim(t)

	assert.Equal(t, []claim.State{claim.StateApprovedByBEO, claim.StateRejected}, f.transitions(t, c.ID, f.beo))
	assert.Empty(t, f.transitions(t, c.ID, f.deo))
	assert.Empty(t, f.transitions(t, c.ID, f.schoolAdmin))

	f.move(t, c.ID, f.deo, claim.StateApprovedByBEO, http.StatusForbidden)
	rec := f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/transitions", f.beo, claim.NewTransition{To: "bogus"})
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"to": "unknown claim status"})}, rec)

	c = f.move(t, c.ID, f.beo, claim.StateApprovedByBEO, http.StatusOK)
	assert.Equal(t, claim.StateApprovedByBEO, c.Status)

	assert.Equal(t, []claim.State{claim.StateApprovedByDEO, claim.StateRejected}, f.transitions(t, c.ID, f.deo))
	c = f.move(t, c.ID, f.deo, claim.StateApprovedByDEO, http.StatusOK)
	assert.Equal(t, claim.StateApprovedByDEO, c.Status)

	// payments are recorded on their own, by the payment approver only
	assert.Equal(t, []claim.State{claim.StateRejected}, f.transitions(t, c.ID, f.state))
	f.move(t, c.ID, f.state, claim.StatePaymentCompleted, http.StatusForbidden)

	rec = f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/payment", f.deo, claim.NewPayment{Status: string(claim.StatePaymentPending)})
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"})}, rec)

	for _, status := range []claim.State{claim.StatePaymentPending, claim.StatePaymentCompleted} {
		rec = f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/payment", f.state, claim.NewPayment{Status: string(status)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &c)
		assert.Equal(t, status, c.Status)
	}

	rec = f.do(t, http.MethodGet, "/v1/claims/"+c.ID+"/history", f.schoolAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []claim.HistoryEntry
	unmarshal(t, rec, &history)
	require.Len(t, history, 4)
	wantTo := []claim.State{claim.StateApprovedByBEO, claim.StateApprovedByDEO, claim.StatePaymentPending, claim.StatePaymentCompleted}
	for i, entry := range history {
		assert.Equal(t, wantTo[i], entry.To)
		assert.False(t, entry.Forced)
	}
	assert.Equal(t, f.beo.ID, history[0].UserID)
	assert.Equal(t, "checked", history[0].Comment)
}

func Test_claimApi_rejectAndResubmit(t *testing.T) {
	f := setup(t, core.ApprovalDual)
	c := f.createClaim(t)

	c = f.move(t, c.ID, f.beo, claim.StateRejected, http.StatusOK)
	assert.Equal(t, claim.StateRejected, c.Status)
	assert.Empty(t, f.transitions(t, c.ID, f.beo))

	rec := f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/resubmit", f.beo, echoapi.CommentRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.mailSvc.Reset()
	rec = f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/resubmit", f.schoolAdmin, echoapi.CommentRequest{Comment: "fixed the fees"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &c)
	assert.Equal(t, claim.StateSubmitted, c.Status)
	assert.Len(t, f.mailSvc.SentMessages(), 1)

	rec = f.do(t, http.MethodPost, "/v1/claims/"+c.ID+"/resubmit", f.schoolAdmin, echoapi.CommentRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_claimApi_singleApproval(t *testing.T) {
	f := setup(t, core.ApprovalSingle)
	c := f.createClaim(t)

	assert.Empty(t, f.transitions(t, c.ID, f.beo))
	assert.Equal(t,
		[]claim.State{claim.StateApprovedByBEO, claim.StateRejected, claim.StateReset},
		f.transitions(t, c.ID, f.deo),
	)

	c = f.move(t, c.ID, f.deo, claim.StateApprovedByBEO, http.StatusOK)
	assert.Equal(t,
		[]claim.State{claim.StateSubmitted, claim.StateApprovedByDEO, claim.StateRejected},
		f.transitions(t, c.ID, f.deo),
	)
	c = f.move(t, c.ID, f.deo, claim.StateApprovedByDEO, http.StatusOK)
	assert.Equal(t, claim.StateApprovedByDEO, c.Status)

	rec := f.do(t, http.MethodGet, "/v1/claims/"+c.ID+"/history", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []claim.HistoryEntry
	unmarshal(t, rec, &history)
	require.Len(t, history, 2)
	assert.True(t, history[0].Forced)
	assert.True(t, history[1].Forced)
}
