package claim

import (
	"time"

	"github.com/rtemis/reimbursement/core"
)

// Claim is the reimbursement claim of a school for an academic year and payment head.
type Claim struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	UDISECode      string    `json:"udise_code"`
	AcademicYear   string    `json:"academic_year"`
	PaymentHead    string    `json:"payment_head"`
	AdditionalFees []string  `json:"additional_fees"`
	Status         State     `json:"status"`
	Published      bool      `json:"published"`
	Total          float64   `json:"total"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// HistoryEntry records one status change of a claim.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ClaimID   string    `json:"claim_id"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Forced    bool      `json:"forced"`
	Comment   string    `json:"comment,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// ExistingFilter finds the claims of a school for an academic year and payment head.
// An empty SchoolID matches every school.
type ExistingFilter struct {
	AcademicYear string
	PaymentHead  string
	SchoolID     string
	Published    bool
}

type QueryFilter struct {
	SchoolID     string   `query:"school_id"`
	UDISECode    string   `query:"udise_code"`
	AcademicYear string   `query:"academic_year"`
	PaymentHead  string   `query:"payment_head"`
	Statuses     []string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.SchoolID = core.CleanString(qf.SchoolID)
	qf.UDISECode = core.CleanString(qf.UDISECode)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.PaymentHead = core.CleanString(qf.PaymentHead)
	statuses := make([]string, 0, len(qf.Statuses))
	for _, s := range qf.Statuses {
		if st, ok := ParseState(s); ok {
			statuses = append(statuses, string(st))
		}
	}
	qf.Statuses = statuses
}

// NewClaim contains information needed to submit a claim.
type NewClaim struct {
	SchoolID       string   `json:"school_id" validate:"omitempty,uuid"`
	AcademicYear   string   `json:"academic_year" validate:"required,academicyear"`
	PaymentHead    string   `json:"payment_head" validate:"required,paymenthead"`
	AdditionalFees []string `json:"additional_fees" validate:"omitempty,max=20,dive,required,alphanum_"`
}

func (nc *NewClaim) Clean() {
	nc.SchoolID = core.CleanString(nc.SchoolID)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	nc.PaymentHead = core.CleanString(nc.PaymentHead)
	nc.AdditionalFees = core.CleanStrings(nc.AdditionalFees)
}

// NewTransition moves a claim to another workflow state.
type NewTransition struct {
	To      string `json:"to" validate:"required,claimstate"`
	Comment string `json:"comment" validate:"max=1000"`
}

func (nt *NewTransition) Clean() {
	nt.To = core.CleanString(nt.To, true /* lower */)
	nt.Comment = core.CleanString(nt.Comment)
}

// NewPayment records the payment status of an approved claim.
type NewPayment struct {
	Status  string `json:"status" validate:"required,oneof=payment_pending payment_completed"`
	Comment string `json:"comment" validate:"max=1000"`
}

func (np *NewPayment) Clean() {
	np.Status = core.CleanString(np.Status, true /* lower */)
	np.Comment = core.CleanString(np.Comment)
}
