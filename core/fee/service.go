package fee

import (
	"context"
	"fmt"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/user"
)

// DefaultChunkSize is the number of student records loaded at once.
const DefaultChunkSize = 100

var (
	ErrSchoolNotFound = errors.New("school not found")
	ErrSchoolExists   = errors.New("a school with this UDISE code already exists for this academic year")
)

type (
	Repository interface {
		GetSchool(ctx context.Context, id string) (School, error)
		// FindSchool returns the school record of a UDISE code for an academic year.
		FindSchool(ctx context.Context, udiseCode, academicYear string) (School, error)
		QueryStateFees(ctx context.Context, academicYear, paymentHead string) ([]StateFee, error)
		StudentIDs(ctx context.Context, filter StudentFilter) ([]string, error)
		GetStudents(ctx context.Context, ids []string) ([]Student, error)

		CreateSchool(ctx context.Context, school School) (School, error)
		CreateStateFee(ctx context.Context, fee StateFee) (StateFee, error)
		CreateStudent(ctx context.Context, student Student) (Student, error)
	}

	// ReportCache stores computed reports. Implementations must be safe for concurrent use.
	ReportCache interface {
		Get(ctx context.Context, key string) (Report, bool)
		Set(ctx context.Context, key string, report Report)
		InvalidateSchool(ctx context.Context, schoolID string)
	}

	Service struct {
		repo          Repository
		cache         ReportCache
		logger        core.Logger
		school        core.SchoolSettings
		reimbursement core.ReimbursementSettings
		chunkSize     int
	}
)

// NopCache is the ReportCache used when no cache is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (Report, bool) { return Report{}, false }
func (NopCache) Set(context.Context, string, Report)        {}
func (NopCache) InvalidateSchool(context.Context, string)   {}

var _ ReportCache = NopCache{}

func NewService(repo Repository, cache ReportCache, logger core.Logger, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:          repo,
		cache:         cache,
		logger:        logger,
		school:        conf.School,
		reimbursement: conf.Reimbursement,
		chunkSize:     DefaultChunkSize,
	}
}

// ClassList returns the classes reimbursed by a payment head; empty when unrestricted.
func (svc *Service) ClassList(approvalAuthority string) []int {
	return ClassList(approvalAuthority, svc.school, svc.reimbursement)
}

func (svc *Service) TableHeading(additionalFees []string) []Column {
	return TableHeading(additionalFees)
}

// GetSchoolDetails returns the school record of a UDISE code for an academic year.
func (svc *Service) GetSchoolDetails(ctx context.Context, udiseCode, academicYear string) (School, error) {
	return svc.repo.FindSchool(ctx, udiseCode, academicYear)
}

func (svc *Service) GetSchool(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, id)
}

// SchoolFeeDetails returns the fees declared by a school. Unknown schools have no fees.
func (svc *Service) SchoolFeeDetails(ctx context.Context, schoolID string) (SchoolFees, error) {
	if schoolID == "" {
		return SchoolFees{}, nil
	}
	school, err := svc.repo.GetSchool(ctx, schoolID)
	if err != nil {
		if errors.Cause(err) == ErrSchoolNotFound {
			return SchoolFees{}, nil
		}
		return nil, errors.Wrap(err, "getting school")
	}
	return school.Fees(), nil
}

// StateDefinedFees returns the government fees of a payment head for the board type of a school.
func (svc *Service) StateDefinedFees(ctx context.Context, academicYear, paymentHead, schoolID string) ([]GovernmentFeeEntry, error) {
	entries := make([]GovernmentFeeEntry, 0)
	if schoolID == "" {
		return entries, nil
	}
	school, err := svc.repo.GetSchool(ctx, schoolID)
	if err != nil {
		if errors.Cause(err) == ErrSchoolNotFound {
			return entries, nil
		}
		return nil, errors.Wrap(err, "getting school")
	}

	stateFees, err := svc.repo.QueryStateFees(ctx, academicYear, paymentHead)
	if err != nil {
		return nil, errors.Wrap(err, "querying state fees")
	}
	for _, sf := range stateFees {
		if sf.BoardType != school.BoardType {
			continue
		}
		entries = append(entries, GovernmentFeeEntry{
			EducationLevel: sf.EducationLevel,
			TuitionFee:     sf.TuitionFee,
			AdditionalFees: sf.AdditionalFees,
		})
	}
	return entries, nil
}

// StudentList returns the ids of the students of a school and academic year in the given classes.
func (svc *Service) StudentList(ctx context.Context, academicYear string, classes []int, schoolID string) ([]string, error) {
	return svc.repo.StudentIDs(ctx, StudentFilter{AcademicYear: academicYear, Classes: classes, SchoolID: schoolID})
}

// ResolveSchoolID returns the school a report is computed for. School admins are always bound to their
// own school, found by UDISE code and academic year; ok is false when it does not exist.
func (svc *Service) ResolveSchoolID(ctx context.Context, usr user.User, schoolID, academicYear string) (string, bool, error) {
	if !usr.IsSchoolAdmin() || usr.HasAnyRole(user.AuthorityRoles...) || usr.IsAdmin() {
		return schoolID, true, nil
	}

	school, err := svc.repo.FindSchool(ctx, usr.UDISECode(), academicYear)
	if err != nil {
		if errors.Cause(err) == ErrSchoolNotFound {
			svc.logger.Info(
				fmt.Sprintf(
					"There is no school found for the school with UDISE code: %s and academic year: %s",
					usr.UDISECode(), strings.ReplaceAll(academicYear, "_", "-"),
				),
				usr,
			)
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "finding school")
	}
	return school.ID, true, nil
}

// LoadStudentData computes the reimbursement report of a school: one row per student of the
// classes reimbursed by the payment head, with the lesser of the school and government fees
// plus the selected additional fees.
func (svc *Service) LoadStudentData(ctx context.Context, usr user.User, params ReportParams) (Report, error) {
	params.Clean()
	report := Report{Header: TableHeading(params.AdditionalFees), Rows: []Row{}}

	schoolID, ok, err := svc.ResolveSchoolID(ctx, usr, params.SchoolID, params.AcademicYear)
	if err != nil || !ok {
		return report, err
	}
	report.SchoolID = schoolID

	key := cacheKey(schoolID, params)
	if cached, ok := svc.cache.Get(ctx, key); ok {
		return cached, nil
	}

	classes := ReportClasses(params.ApprovalAuthority, svc.school, svc.reimbursement)
	ids, err := svc.StudentList(ctx, params.AcademicYear, classes, schoolID)
	if err != nil {
		return report, errors.Wrap(err, "listing students")
	}

	schoolFees, err := svc.SchoolFeeDetails(ctx, schoolID)
	if err != nil {
		return report, err
	}
	govFees, err := svc.StateDefinedFees(ctx, params.AcademicYear, params.ApprovalAuthority, schoolID)
	if err != nil {
		return report, err
	}

	slno := 1
	for _, chunk := range core.Chunk(ids, svc.chunkSize) {
		students, err := svc.repo.GetStudents(ctx, chunk)
		if err != nil {
			return report, errors.Wrap(err, "loading students")
		}
		for _, student := range students {
			report.Rows = append(report.Rows, svc.studentRow(slno, student, schoolFees, govFees, params.AdditionalFees))
			slno++
		}
	}

	svc.cache.Set(ctx, key, report)
	return report, nil
}

func (svc *Service) studentRow(slno int, student Student, schoolFees SchoolFees, govFees []GovernmentFeeEntry, selected []string) Row {
	priorities := GenderPriorities(student.Gender, svc.school.EducationTypes)

	schoolFee, key, found := SchoolTuitionFee(schoolFees, priorities, student.Medium, student.CurrentClass)
	level := key.EducationLevel
	if !found {
		level = EducationLevel(schoolFees, priorities)
	}

	govEntry, _ := GovernmentFee(govFees, level)
	additional := AdditionalFeeAmounts(govEntry, selected)

	label, _ := svc.school.ClassLabel(student.CurrentClass)
	return Row{
		SlNo:             slno,
		StudentName:      student.Name,
		ParentName:       student.ParentName,
		CurrentClass:     core.UCWords(label),
		Type:             student.Type(),
		Medium:           student.Medium,
		SchoolTuitionFee: schoolFee,
		AdditionalFees:   additional,
		GovernmentFee:    govEntry.TuitionFee,
		Total:            FormatAmount(RowTotal(schoolFee, govEntry.TuitionFee, additional)),
	}
}

// InvalidateSchool drops the cached reports of a school.
func (svc *Service) InvalidateSchool(ctx context.Context, schoolID string) {
	svc.cache.InvalidateSchool(ctx, schoolID)
}

// CacheKeyPrefix is the prefix of the cached reports of a school.
func CacheKeyPrefix(schoolID string) string {
	return "report:" + schoolID + ":"
}

func cacheKey(schoolID string, params ReportParams) string {
	return CacheKeyPrefix(schoolID) + params.AcademicYear + ":" + params.ApprovalAuthority + ":" + strings.Join(params.AdditionalFees, ",")
}
