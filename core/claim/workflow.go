package claim

import (
	"strings"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/user"
)

// States of the reimbursement claim workflow.
const (
	StateSubmitted        State = "submitted"
	StateApprovedByBEO    State = "approved_by_beo"
	StateApprovedByDEO    State = "approved_by_deo"
	StateRejected         State = "rejected"
	StatePaymentPending   State = "payment_pending"
	StatePaymentCompleted State = "payment_completed"
	StateReset            State = "reset"
)

const workflowID = "reimbursement_claim_workflow"

var AllStates = []State{
	StateSubmitted, StateApprovedByBEO, StateApprovedByDEO, StateRejected,
	StatePaymentPending, StatePaymentCompleted, StateReset,
}

// State is a short workflow state name, e.g. "approved_by_beo".
type State string

// ParseState accepts both the short and the qualified form ("reimbursement_claim_workflow_submitted").
func ParseState(s string) (State, bool) {
	st := State(strings.TrimPrefix(core.CleanString(s, true /* lower */), workflowID+"_"))
	return st, st.Valid()
}

func (s State) Valid() bool {
	for _, st := range AllStates {
		if s == st {
			return true
		}
	}
	return false
}

// SID is the qualified state id used by the workflow, e.g. "reimbursement_claim_workflow_submitted".
func (s State) SID() string {
	return workflowID + "_" + string(s)
}

type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// ID is the qualified transition id, e.g. "reimbursement_claim_workflow_approved_by_deo_payment_completed".
func (t Transition) ID() string {
	return workflowID + "_" + string(t.From) + "_" + string(t.To)
}

type stateGraph map[State][]State

func (g stateGraph) has(t Transition) bool {
	for _, to := range g[t.From] {
		if to == t.To {
			return true
		}
	}
	return false
}

var (
	// defaultTransitions is the dual level workflow graph.
	defaultTransitions = stateGraph{
		StateSubmitted:      {StateApprovedByBEO, StateRejected},
		StateApprovedByBEO:  {StateApprovedByDEO, StateRejected},
		StateApprovedByDEO:  {StatePaymentPending, StatePaymentCompleted, StateRejected},
		StatePaymentPending: {StatePaymentCompleted},
		StateRejected:       {StateSubmitted},
		StateReset:          {StateSubmitted},
	}

	// singleLevelTransitions are executed by force when single level approval is configured:
	// one authority walks the claim through both approval steps and may reset or send it back.
	singleLevelTransitions = stateGraph{
		StateSubmitted:     {StateApprovedByBEO, StateRejected, StateReset},
		StateApprovedByBEO: {StateApprovedByDEO, StateRejected, StateSubmitted},
	}

	// paymentApprovalTransitions are never offered as workflow options; payments are recorded on their own.
	paymentApprovalTransitions = []Transition{
		{From: StateApprovedByDEO, To: StatePaymentCompleted},
		{From: StateApprovedByDEO, To: StatePaymentPending},
		{From: StatePaymentPending, To: StatePaymentCompleted},
	}
)

// paymentApproverRole stands for "<payment_approver>_admin" in updatePermissions.
const paymentApproverRole = "{payment_approver}_admin"

// updatePermissions is the role x approval level matrix of the states a role may move a claim out of.
var updatePermissions = map[string]map[string][]State{
	user.RoleDistrictAdmin: {
		core.ApprovalSingle: {StateSubmitted, StateApprovedByBEO},
		core.ApprovalDual:   {StateApprovedByBEO},
	},
	user.RoleBlockAdmin: {
		core.ApprovalDual: {StateSubmitted},
	},
	paymentApproverRole: {
		core.ApprovalSingle: {StateApprovedByDEO, StatePaymentPending},
		core.ApprovalDual:   {StateApprovedByDEO, StatePaymentPending},
	},
}

func approvalLevel(settings core.ReimbursementSettings) string {
	if settings.IsSingleLevel() {
		return core.ApprovalSingle
	}
	return core.ApprovalDual
}

// Allowed reports whether a claim may move from `from` to `to`: the pair must be in the default
// graph, or in the single level table when single level approval is configured.
func Allowed(from, to State, settings core.ReimbursementSettings) bool {
	t := Transition{From: from, To: to}
	if defaultTransitions.has(t) {
		return true
	}
	return settings.IsSingleLevel() && singleLevelTransitions.has(t)
}

// ProcessSingleLevelApproval reports whether the transition must be forced, overriding the default graph.
func ProcessSingleLevelApproval(t Transition) bool {
	return singleLevelTransitions.has(t)
}

// IsPaymentTransition reports whether t is one of the payment approval transitions.
func IsPaymentTransition(t Transition) bool {
	for _, pt := range paymentApprovalTransitions {
		if pt == t {
			return true
		}
	}
	return false
}

// DisablePaymentApprovalTransitions removes the payment approval transitions from options,
// keyed by transition id.
func DisablePaymentApprovalTransitions(options map[string]Transition) {
	for _, t := range paymentApprovalTransitions {
		delete(options, t.ID())
	}
}

// CanUpdate reports whether a user holding roles may change the status of a claim in state.
func CanUpdate(roles []string, state State, settings core.ReimbursementSettings) bool {
	level := approvalLevel(settings)
	approverRole := settings.ApproverRole()

	for _, role := range roles {
		if role == approverRole && statesContain(updatePermissions[paymentApproverRole][level], state) {
			return true
		}
		if statesContain(updatePermissions[role][level], state) {
			return true
		}
	}
	return false
}

// Options returns the transitions out of `from`, keyed by transition id, in the configured mode.
func Options(from State, settings core.ReimbursementSettings) map[string]Transition {
	options := make(map[string]Transition)
	for _, to := range defaultTransitions[from] {
		t := Transition{From: from, To: to}
		options[t.ID()] = t
	}
	if settings.IsSingleLevel() {
		for _, to := range singleLevelTransitions[from] {
			t := Transition{From: from, To: to}
			options[t.ID()] = t
		}
	}
	return options
}

// ExposedTransitions returns the target states offered to a user for a claim in state `from`.
// Nothing is offered when the user cannot update the claim; payment transitions are never offered.
func ExposedTransitions(roles []string, from State, settings core.ReimbursementSettings) []State {
	if !CanUpdate(roles, from, settings) {
		return []State{}
	}
	options := Options(from, settings)
	DisablePaymentApprovalTransitions(options)

	states := make([]State, 0, len(options))
	for _, to := range AllStates { // keep a stable order
		if _, ok := options[Transition{From: from, To: to}.ID()]; ok {
			states = append(states, to)
		}
	}
	return states
}

func statesContain(states []State, state State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
