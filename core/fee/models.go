package fee

import (
	"strings"
	"time"

	"github.com/rtemis/reimbursement/core"
)

// Student genders.
const (
	GenderBoy         = "boy"
	GenderGirl        = "girl"
	GenderTransgender = "transgender"
)

// Student types.
const (
	TypeNew = "New"
	TypeOld = "Old"
)

type (
	// SchoolFeeKey identifies the fees a school declared for one education detail.
	SchoolFeeKey struct {
		EducationType  string `json:"education_type"`
		Medium         string `json:"medium"`
		EducationLevel string `json:"education_level"`
	}

	// SchoolFeeEntry maps classes to the total fee declared for SchoolFeeKey.
	SchoolFeeEntry struct {
		SchoolFeeKey
		Fees map[int]float64 `json:"fees"`
	}

	// SchoolFees are the declared fees of a school, in declaration order.
	SchoolFees []SchoolFeeEntry

	// GovernmentFeeEntry is the fee the government reimburses for an education level.
	GovernmentFeeEntry struct {
		EducationLevel string             `json:"education_level"`
		TuitionFee     float64            `json:"tuition_fee"`
		AdditionalFees map[string]float64 `json:"additional_fees"`
	}

	ClassFee struct {
		Class  int     `json:"class"`
		Amount float64 `json:"amount"`
	}

	EducationDetail struct {
		EducationType  string     `json:"education_type"`
		Medium         string     `json:"medium"`
		EducationLevel string     `json:"education_level"`
		Fees           []ClassFee `json:"fees"`
	}

	// School is the school record of one academic year.
	School struct {
		ID               string            `json:"id"`
		UDISECode        string            `json:"udise_code"`
		AcademicYear     string            `json:"academic_year"`
		Name             string            `json:"name"`
		BoardType        string            `json:"board_type"`
		Email            string            `json:"email,omitempty"`
		EducationDetails []EducationDetail `json:"education_details"`
		CreatedAt        time.Time         `json:"created_at"`
	}

	// StateFee is a government fee declaration for (academic year, payment head, board type).
	StateFee struct {
		ID             string             `json:"id"`
		AcademicYear   string             `json:"academic_year"`
		PaymentHead    string             `json:"payment_head"`
		BoardType      string             `json:"board_type"`
		EducationLevel string             `json:"education_level"`
		TuitionFee     float64            `json:"tuition_fee"`
		AdditionalFees map[string]float64 `json:"additional_fees"`
	}

	Student struct {
		ID           string    `json:"id"`
		SchoolID     string    `json:"school_id"`
		AcademicYear string    `json:"academic_year"`
		Name         string    `json:"name"`
		ParentName   string    `json:"parent_name"`
		CurrentClass int       `json:"current_class"`
		EntryClass   int       `json:"entry_class"`
		Medium       string    `json:"medium"`
		Gender       string    `json:"gender"`
		CreatedAt    time.Time `json:"created_at"`
	}

	StudentFilter struct {
		AcademicYear string
		Classes      []int
		SchoolID     string
	}

	// ReportParams select the students and fees of a reimbursement report.
	ReportParams struct {
		SchoolID          string   `query:"school_id" validate:"omitempty,uuid"`
		AcademicYear      string   `query:"academic_year" validate:"required,academicyear"`
		ApprovalAuthority string   `query:"approval_authority" validate:"required,paymenthead"`
		AdditionalFees    []string `query:"fee" validate:"omitempty,max=20,dive,required,alphanum_"`
	}

	FeeAmount struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}

	Row struct {
		SlNo             int         `json:"slno"`
		StudentName      string      `json:"student_name"`
		ParentName       string      `json:"parent_name"`
		CurrentClass     string      `json:"current_class"`
		Type             string      `json:"type"`
		Medium           string      `json:"medium"`
		SchoolTuitionFee float64     `json:"school_tuition_fee"`
		AdditionalFees   []FeeAmount `json:"additional_fees"`
		GovernmentFee    float64     `json:"government_fee"`
		Total            string      `json:"total"`
	}

	Column struct {
		Key   string `json:"key"`
		Label string `json:"label"`
	}

	Report struct {
		SchoolID string   `json:"school_id,omitempty"`
		Header   []Column `json:"header"`
		Rows     []Row    `json:"rows"`
	}
)

// String is the `<education_type>_<medium>_<education_level>` form of the key.
func (k SchoolFeeKey) String() string {
	return k.EducationType + "_" + k.Medium + "_" + k.EducationLevel
}

// Type is "Old" when the student was admitted in another class than the current one.
func (s Student) Type() string {
	if s.EntryClass != s.CurrentClass {
		return TypeOld
	}
	return TypeNew
}

// Clean trims params and drops empty or repeated additional fee selectors.
func (p *ReportParams) Clean() {
	p.SchoolID = strings.TrimSpace(p.SchoolID)
	p.AcademicYear = strings.TrimSpace(p.AcademicYear)
	p.ApprovalAuthority = strings.TrimSpace(p.ApprovalAuthority)
	p.AdditionalFees = core.CleanStrings(p.AdditionalFees)
}

// Total sums the row totals of the report.
func (r Report) Total() float64 {
	var total float64
	for _, row := range r.Rows {
		total += ParseAmount(row.Total)
	}
	return total
}
