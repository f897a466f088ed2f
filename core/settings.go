package core

const (
	ApprovalSingle = "single"
	ApprovalDual   = "dual"

	CentralHead = "central_head"
	StateHead   = "state_head"
)

// PaymentHeadList lists the known payment heads.
var PaymentHeadList = []string{CentralHead, StateHead}

type (
	PaymentHeads struct {
		EnableStateHead bool  `json:"enable_state_head"`
		StateClassList  []int `json:"state_class_list"`
	}

	// ReimbursementSettings are the process-wide claim approval settings.
	ReimbursementSettings struct {
		ApprovalLevel   string       `json:"approval_level"`
		PaymentApprover string       `json:"payment_approver"`
		PaymentHeads    PaymentHeads `json:"payment_heads"`
	}

	ClassLevel struct {
		Key   int    `json:"key" mapstructure:"key"`
		Label string `json:"label" mapstructure:"label"`
	}

	// SchoolSettings hold the ordered school options: class levels and education types.
	SchoolSettings struct {
		ClassLevels      []ClassLevel `json:"class_levels"`
		EducationTypes   []string     `json:"education_types"`
		CentralMinClass  int          `json:"central_min_class"`
		CentralLastClass string       `json:"central_last_class"`
	}
)

// IsSingleLevel reports whether single level approval is configured. Anything else is dual.
func (s ReimbursementSettings) IsSingleLevel() bool {
	return s.ApprovalLevel == ApprovalSingle
}

// ApproverRole is the role name of the configured payment approver, e.g. "state_admin".
func (s ReimbursementSettings) ApproverRole() string {
	approver := s.PaymentApprover
	if approver == "" {
		approver = "state"
	}
	return approver + "_admin"
}

// ClassKeys returns the configured class keys in order.
func (s SchoolSettings) ClassKeys() []int {
	keys := make([]int, 0, len(s.ClassLevels))
	for _, cl := range s.ClassLevels {
		keys = append(keys, cl.Key)
	}
	return keys
}

// ClassLabel returns the label of the class with the given key.
func (s SchoolSettings) ClassLabel(key int) (string, bool) {
	for _, cl := range s.ClassLevels {
		if cl.Key == key {
			return cl.Label, true
		}
	}
	return "", false
}

func IsPaymentHead(head string) bool {
	for _, h := range PaymentHeadList {
		if h == head {
			return true
		}
	}
	return false
}
