package claim

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/fee"
	"github.com/rtemis/reimbursement/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("claim not found")
	ErrForbidden            = errors.New("permission denied")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrClaimExists          = errors.New("a claim already exists for this school, academic year and payment head")
	ErrStaleClaim           = errors.New("the claim status changed in the meantime")
	errNoSchool             = errors.New("no school found for this academic year")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateClaim(ctx context.Context, c Claim) (Claim, error)
		GetClaim(ctx context.Context, id string) (Claim, error)
		QueryClaims(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Claim, error)
		// ExistingClaimIDs returns the ids of the claims matching filter.
		ExistingClaimIDs(ctx context.Context, filter ExistingFilter) ([]string, error)
		// UpdateStatus saves the status and total of c and appends entry to its history.
		// It fails with ErrStaleClaim when the stored status is no longer entry.From.
		UpdateStatus(ctx context.Context, c Claim, entry HistoryEntry) (Claim, error)
		History(ctx context.Context, claimID string) ([]HistoryEntry, error)
	}

	// ReportLoader computes the reimbursement reports claims are made of.
	ReportLoader interface {
		LoadStudentData(ctx context.Context, usr user.User, params fee.ReportParams) (fee.Report, error)
		ResolveSchoolID(ctx context.Context, usr user.User, schoolID, academicYear string) (string, bool, error)
		GetSchool(ctx context.Context, id string) (fee.School, error)
		InvalidateSchool(ctx context.Context, schoolID string)
	}

	// Contacts finds who to notify about the claims of a school.
	Contacts interface {
		SchoolContacts(ctx context.Context, udiseCode string) ([]mail.Address, error)
	}

	// Exporter renders a report as a spreadsheet.
	Exporter interface {
		Export(report fee.Report, title string) (*bytes.Buffer, error)
	}

	Deps struct {
		Repo     Repository
		Reports  ReportLoader
		Contacts Contacts
		MailSvc  core.EmailService
		Exporter Exporter
		Logger   core.Logger
		Validate *validator.Validate
		Settings core.ReimbursementSettings
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Reports, "Reports"),
		vala.IsNotNil(deps.Contacts, "Contacts"),
		vala.IsNotNil(deps.MailSvc, "MailSvc"),
		vala.IsNotNil(deps.Exporter, "Exporter"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
	).CheckAndPanic()
	return &Service{Deps: deps}
}

// schoolOnly reports whether usr acts for their own school only.
func schoolOnly(usr user.User) bool {
	return usr.IsSchoolAdmin() && !usr.IsAdmin() && !usr.HasAnyRole(user.AuthorityRoles...)
}

func canAccess(usr user.User, c Claim) bool {
	return !schoolOnly(usr) || c.UDISECode == usr.UDISECode()
}

// CheckExisting reports whether a claim matching filter exists.
func (svc *Service) CheckExisting(ctx context.Context, filter ExistingFilter) (bool, error) {
	ids, err := svc.Repo.ExistingClaimIDs(ctx, filter)
	if err != nil {
		return false, errors.Wrap(err, "querying existing claims")
	}
	return len(ids) > 0, nil
}

// GetExisting returns the ids of the claims matching filter.
func (svc *Service) GetExisting(ctx context.Context, filter ExistingFilter) ([]string, error) {
	ids, err := svc.Repo.ExistingClaimIDs(ctx, filter)
	return ids, errors.Wrap(err, "querying existing claims")
}

// Create submits the claim of a school. School admins claim for their own school;
// app admins must name the school.
func (svc *Service) Create(ctx context.Context, usr user.User, nc NewClaim) (Claim, error) {
	nc.Clean()
	if err := svc.Validate.Struct(nc); err != nil {
		return Claim{}, err
	}
	if !(schoolOnly(usr) || usr.IsAdmin()) {
		return Claim{}, ErrForbidden
	}

	schoolID, ok, err := svc.Reports.ResolveSchoolID(ctx, usr, nc.SchoolID, nc.AcademicYear)
	if err != nil {
		return Claim{}, errors.Wrap(err, "resolving school")
	}
	if !ok {
		return Claim{}, core.NewFieldError("academic_year", errNoSchool)
	}
	if schoolID == "" {
		return Claim{}, core.NewFieldError("school_id", errors.New("this field is required"))
	}
	school, err := svc.Reports.GetSchool(ctx, schoolID)
	if err != nil {
		if errors.Cause(err) == fee.ErrSchoolNotFound {
			return Claim{}, core.NewFieldError("school_id", fee.ErrSchoolNotFound)
		}
		return Claim{}, errors.Wrap(err, "getting school")
	}

	exists, err := svc.CheckExisting(ctx, ExistingFilter{
		AcademicYear: nc.AcademicYear,
		PaymentHead:  nc.PaymentHead,
		SchoolID:     school.ID,
		Published:    true,
	})
	if err != nil {
		return Claim{}, err
	}
	if exists {
		return Claim{}, ErrClaimExists
	}

	svc.Reports.InvalidateSchool(ctx, school.ID)
	report, err := svc.Reports.LoadStudentData(ctx, usr, fee.ReportParams{
		SchoolID:          school.ID,
		AcademicYear:      nc.AcademicYear,
		ApprovalAuthority: nc.PaymentHead,
		AdditionalFees:    nc.AdditionalFees,
	})
	if err != nil {
		return Claim{}, errors.Wrap(err, "loading student data")
	}

	now := NowFunc().UTC()
	c, err := svc.Repo.CreateClaim(ctx, Claim{
		ID:             uuid.New().String(),
		SchoolID:       school.ID,
		UDISECode:      school.UDISECode,
		AcademicYear:   nc.AcademicYear,
		PaymentHead:    nc.PaymentHead,
		AdditionalFees: nc.AdditionalFees,
		Status:         StateSubmitted,
		Published:      true,
		Total:          report.Total(),
		CreatedBy:      usr.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		if errors.Cause(err) == ErrClaimExists {
			return Claim{}, ErrClaimExists
		}
		return Claim{}, errors.Wrap(err, "creating claim")
	}

	svc.notifySubmitted(ctx, c, school, report)
	return c, nil
}

// Get returns a claim visible to usr.
func (svc *Service) Get(ctx context.Context, usr user.User, id string) (Claim, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Claim{}, ErrNotFound
	}
	c, err := svc.Repo.GetClaim(ctx, id)
	if err != nil {
		return Claim{}, err
	}
	if !canAccess(usr, c) {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

// Query lists the claims visible to usr.
func (svc *Service) Query(ctx context.Context, usr user.User, filter QueryFilter, orderings ...core.DBOrdering) ([]Claim, error) {
	filter.Clean()
	if schoolOnly(usr) {
		filter.UDISECode = usr.UDISECode()
	}
	return svc.Repo.QueryClaims(ctx, filter, orderings...)
}

// History returns the status changes of a claim, oldest first.
func (svc *Service) History(ctx context.Context, usr user.User, id string) ([]HistoryEntry, error) {
	c, err := svc.Get(ctx, usr, id)
	if err != nil {
		return nil, err
	}
	return svc.Repo.History(ctx, c.ID)
}

// AvailableTransitions returns the states usr may move the claim to.
func (svc *Service) AvailableTransitions(ctx context.Context, usr user.User, id string) ([]State, error) {
	c, err := svc.Get(ctx, usr, id)
	if err != nil {
		return nil, err
	}
	return ExposedTransitions(usr.Roles, c.Status, svc.Settings), nil
}

// Transition moves a claim along the approval workflow on behalf of an approving authority.
func (svc *Service) Transition(ctx context.Context, usr user.User, id string, nt NewTransition) (Claim, error) {
	nt.Clean()
	if err := svc.Validate.Struct(nt); err != nil {
		return Claim{}, err
	}
	to, _ := ParseState(nt.To)

	c, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Claim{}, err
	}
	if !statesContain(ExposedTransitions(usr.Roles, c.Status, svc.Settings), to) {
		return Claim{}, ErrTransitionNotAllowed
	}

	t := Transition{From: c.Status, To: to}
	forced := svc.Settings.IsSingleLevel() && ProcessSingleLevelApproval(t)
	return svc.apply(ctx, usr, c, t, forced, nt.Comment)
}

// RecordPayment sets the payment status of an approved claim. Only the payment approver may do so.
func (svc *Service) RecordPayment(ctx context.Context, usr user.User, id string, np NewPayment) (Claim, error) {
	np.Clean()
	if err := svc.Validate.Struct(np); err != nil {
		return Claim{}, err
	}
	to, _ := ParseState(np.Status)

	c, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Claim{}, err
	}
	if !usr.HasRole(svc.Settings.ApproverRole()) {
		return Claim{}, ErrForbidden
	}

	t := Transition{From: c.Status, To: to}
	if !CanUpdate(usr.Roles, c.Status, svc.Settings) || !IsPaymentTransition(t) || !Allowed(t.From, t.To, svc.Settings) {
		return Claim{}, ErrTransitionNotAllowed
	}
	return svc.apply(ctx, usr, c, t, false, np.Comment)
}

// Resubmit sends a rejected or reset claim back for approval, with a recomputed total.
func (svc *Service) Resubmit(ctx context.Context, usr user.User, id, comment string) (Claim, error) {
	c, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Claim{}, err
	}
	if !(schoolOnly(usr) || usr.IsAdmin()) {
		return Claim{}, ErrForbidden
	}
	if !Allowed(c.Status, StateSubmitted, svc.Settings) || !(c.Status == StateRejected || c.Status == StateReset) {
		return Claim{}, ErrTransitionNotAllowed
	}

	svc.Reports.InvalidateSchool(ctx, c.SchoolID)
	report, err := svc.Reports.LoadStudentData(ctx, usr, fee.ReportParams{
		SchoolID:          c.SchoolID,
		AcademicYear:      c.AcademicYear,
		ApprovalAuthority: c.PaymentHead,
		AdditionalFees:    c.AdditionalFees,
	})
	if err != nil {
		return Claim{}, errors.Wrap(err, "loading student data")
	}
	c.Total = report.Total()
	return svc.apply(ctx, usr, c, Transition{From: c.Status, To: StateSubmitted}, false, core.CleanString(comment))
}

func (svc *Service) apply(ctx context.Context, usr user.User, c Claim, t Transition, forced bool, comment string) (Claim, error) {
	now := NowFunc().UTC()
	c.Status = t.To
	c.UpdatedAt = now

	updated, err := svc.Repo.UpdateStatus(ctx, c, HistoryEntry{
		ClaimID:   c.ID,
		From:      t.From,
		To:        t.To,
		Forced:    forced,
		Comment:   comment,
		UserID:    usr.ID,
		CreatedAt: now,
	})
	if err != nil {
		if errors.Cause(err) == ErrStaleClaim {
			return Claim{}, err
		}
		return Claim{}, errors.Wrap(err, "updating claim status")
	}

	svc.Logger.Info(fmt.Sprintf("claim %s: %s -> %s (forced: %t)", c.ID, t.From, t.To, forced), usr)
	svc.notifyStatus(ctx, updated, t, comment)
	return updated, nil
}

type statusMailData struct {
	SchoolName   string
	AcademicYear string
	PaymentHead  string
	From         string
	To           string
	Comment      string
}

func (svc *Service) recipients(ctx context.Context, c Claim, school fee.School) []mail.Address {
	addrs, err := svc.Contacts.SchoolContacts(ctx, c.UDISECode)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("finding contacts of school %s: %v", c.UDISECode, err), err)
		addrs = nil
	}
	if school.Email != "" {
		addrs = append(addrs, mail.Address{Name: school.Name, Address: school.Email})
	}
	return addrs
}

func (svc *Service) notifyStatus(ctx context.Context, c Claim, t Transition, comment string) {
	school, err := svc.Reports.GetSchool(ctx, c.SchoolID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("getting school %s: %v", c.SchoolID, err), err)
		return
	}
	to := svc.recipients(ctx, c, school)
	if len(to) == 0 {
		return
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Reimbursement claim " + humanize(t.To),
		TemplateName: "claim_status",
		TemplateData: statusMailData{
			SchoolName:   school.Name,
			AcademicYear: strings.ReplaceAll(c.AcademicYear, "_", "-"),
			PaymentHead:  humanize(State(c.PaymentHead)),
			From:         humanize(t.From),
			To:           humanize(t.To),
			Comment:      comment,
		},
	})
}

func (svc *Service) notifySubmitted(ctx context.Context, c Claim, school fee.School, report fee.Report) {
	to := svc.recipients(ctx, c, school)
	if len(to) == 0 {
		return
	}
	year := strings.ReplaceAll(c.AcademicYear, "_", "-")
	msg := &core.EmailMessage{
		To:      to,
		Subject: "Reimbursement claim submitted",
		BodyStr: fmt.Sprintf(
			"The reimbursement claim of %s for %s (%s) was submitted for a total of %s. The student details are attached.",
			school.Name, year, humanize(State(c.PaymentHead)), fee.FormatAmount(c.Total),
		),
	}
	content, err := svc.Exporter.Export(report, school.Name+" "+year)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("exporting report of claim %s: %v", c.ID, err), err)
	} else {
		msg.Attachments = append(msg.Attachments, core.Attachment{
			Content:     content,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Filename:    fmt.Sprintf("reimbursement_%s_%s_%s.xlsx", c.UDISECode, c.AcademicYear, c.PaymentHead),
		})
	}
	svc.MailSvc.SendMessages(msg)
}

// humanize turns "approved_by_beo" into "approved by beo".
func humanize(s State) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
