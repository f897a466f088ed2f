package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rtemis/reimbursement/core/fee"
)

const (
	schoolColumns   = "id, udise_code, academic_year, name, board_type, email, created_at"
	stateFeeColumns = "id, academic_year, payment_head, board_type, education_level, tuition_fee, additional_fees"
	studentColumns  = "id, school_id, academic_year, name, parent_name, current_class, entry_class, medium, gender, created_at"
)

type (
	schoolRow struct {
		ID           string      `db:"id"`
		UDISECode    string      `db:"udise_code"`
		AcademicYear string      `db:"academic_year"`
		Name         string      `db:"name"`
		BoardType    string      `db:"board_type"`
		Email        null.String `db:"email"`
		CreatedAt    time.Time   `db:"created_at"`
	}

	schoolFeeRow struct {
		SchoolID       string  `db:"school_id"`
		EducationType  string  `db:"education_type"`
		Medium         string  `db:"medium"`
		EducationLevel string  `db:"education_level"`
		Class          int     `db:"class"`
		TotalFee       float64 `db:"total_fee"`
		Position       int     `db:"position"`
	}

	stateFeeRow struct {
		ID             string     `db:"id"`
		AcademicYear   string     `db:"academic_year"`
		PaymentHead    string     `db:"payment_head"`
		BoardType      string     `db:"board_type"`
		EducationLevel string     `db:"education_level"`
		TuitionFee     float64    `db:"tuition_fee"`
		AdditionalFees feeAmounts `db:"additional_fees"`
		Position       int        `db:"position"`
	}

	studentRow struct {
		ID           string    `db:"id"`
		SchoolID     string    `db:"school_id"`
		AcademicYear string    `db:"academic_year"`
		Name         string    `db:"name"`
		ParentName   string    `db:"parent_name"`
		CurrentClass int       `db:"current_class"`
		EntryClass   int       `db:"entry_class"`
		Medium       string    `db:"medium"`
		Gender       string    `db:"gender"`
		CreatedAt    time.Time `db:"created_at"`
	}
)

// feeAmounts maps additional fee names to amounts, stored as JSONB.
type feeAmounts map[string]float64

func (f feeAmounts) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

func (f *feeAmounts) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*f = feeAmounts{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("feeAmounts: cannot scan %T", src)
	}
	return json.Unmarshal(data, f)
}

type schoolRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) fee.Repository {
	return &schoolRepository{db: db}
}

func (r schoolRow) school(fees []schoolFeeRow) fee.School {
	school := fee.School{
		ID:               r.ID,
		UDISECode:        r.UDISECode,
		AcademicYear:     r.AcademicYear,
		Name:             r.Name,
		BoardType:        r.BoardType,
		Email:            r.Email.String,
		EducationDetails: make([]fee.EducationDetail, 0),
		CreatedAt:        r.CreatedAt.UTC(),
	}

	// fees are ordered by position: group consecutive rows of the same detail
	index := make(map[fee.SchoolFeeKey]int)
	for _, f := range fees {
		key := fee.SchoolFeeKey{EducationType: f.EducationType, Medium: f.Medium, EducationLevel: f.EducationLevel}
		i, ok := index[key]
		if !ok {
			i = len(school.EducationDetails)
			index[key] = i
			school.EducationDetails = append(school.EducationDetails, fee.EducationDetail{
				EducationType: f.EducationType, Medium: f.Medium, EducationLevel: f.EducationLevel, Fees: make([]fee.ClassFee, 0),
			})
		}
		school.EducationDetails[i].Fees = append(school.EducationDetails[i].Fees, fee.ClassFee{Class: f.Class, Amount: f.TotalFee})
	}
	return school
}

func (repo *schoolRepository) loadSchool(ctx context.Context, query string, args ...interface{}) (fee.School, error) {
	var row schoolRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		return fee.School{}, trapNoRowsErr(err, fee.ErrSchoolNotFound, "finding school")
	}
	fees := make([]schoolFeeRow, 0)
	err := repo.db.SelectContext(ctx, &fees,
		`SELECT school_id, education_type, medium, education_level, class, total_fee, position
		FROM school_fees WHERE school_id = $1 ORDER BY position, class`,
		row.ID,
	)
	if err != nil {
		return fee.School{}, errors.Wrap(err, "loading school fees")
	}
	return row.school(fees), nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string) (fee.School, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fee.School{}, fee.ErrSchoolNotFound
	}
	return repo.loadSchool(ctx, "SELECT "+schoolColumns+" FROM schools WHERE id = $1", id)
}

func (repo *schoolRepository) FindSchool(ctx context.Context, udiseCode, academicYear string) (fee.School, error) {
	return repo.loadSchool(ctx,
		"SELECT "+schoolColumns+" FROM schools WHERE udise_code = $1 AND academic_year = $2",
		udiseCode, academicYear,
	)
}

func (repo *schoolRepository) QueryStateFees(ctx context.Context, academicYear, paymentHead string) ([]fee.StateFee, error) {
	rows := make([]stateFeeRow, 0)
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT "+stateFeeColumns+", position FROM state_fees WHERE academic_year = $1 AND payment_head = $2 ORDER BY position, id",
		academicYear, paymentHead,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying state fees")
	}
	fees := make([]fee.StateFee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, fee.StateFee{
			ID:             r.ID,
			AcademicYear:   r.AcademicYear,
			PaymentHead:    r.PaymentHead,
			BoardType:      r.BoardType,
			EducationLevel: r.EducationLevel,
			TuitionFee:     r.TuitionFee,
			AdditionalFees: r.AdditionalFees,
		})
	}
	return fees, nil
}

func (repo *schoolRepository) StudentIDs(ctx context.Context, filter fee.StudentFilter) ([]string, error) {
	ids := make([]string, 0)
	if _, err := uuid.Parse(filter.SchoolID); err != nil {
		return ids, nil
	}

	q := "SELECT id FROM students WHERE school_id = ? AND academic_year = ?"
	args := []interface{}{filter.SchoolID, filter.AcademicYear}
	if len(filter.Classes) > 0 {
		q += " AND current_class IN (?)"
		args = append(args, filter.Classes)
	}
	q += " ORDER BY current_class, created_at, id"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building students query")
	}
	if err = repo.db.SelectContext(ctx, &ids, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	return ids, nil
}

// GetStudents returns the students in the order of ids; unknown ids are skipped.
func (repo *schoolRepository) GetStudents(ctx context.Context, ids []string) ([]fee.Student, error) {
	students := make([]fee.Student, 0, len(ids))
	if len(ids) == 0 {
		return students, nil
	}

	q, args, err := sqlx.In("SELECT "+studentColumns+" FROM students WHERE id IN (?)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "building students query")
	}
	rows := make([]studentRow, 0, len(ids))
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "loading students")
	}

	byID := make(map[string]studentRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			continue
		}
		students = append(students, fee.Student{
			ID:           r.ID,
			SchoolID:     r.SchoolID,
			AcademicYear: r.AcademicYear,
			Name:         r.Name,
			ParentName:   r.ParentName,
			CurrentClass: r.CurrentClass,
			EntryClass:   r.EntryClass,
			Medium:       r.Medium,
			Gender:       r.Gender,
			CreatedAt:    r.CreatedAt.UTC(),
		})
	}
	return students, nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, school fee.School) (fee.School, error) {
	if school.ID == "" {
		school.ID = uuid.New().String()
	}
	if school.CreatedAt.IsZero() {
		school.CreatedAt = time.Now().UTC()
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return fee.School{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.NamedExecContext(ctx,
		"INSERT INTO schools ("+schoolColumns+") VALUES (:id, :udise_code, :academic_year, :name, :board_type, :email, :created_at)",
		schoolRow{
			ID:           school.ID,
			UDISECode:    school.UDISECode,
			AcademicYear: school.AcademicYear,
			Name:         school.Name,
			BoardType:    school.BoardType,
			Email:        null.NewString(school.Email, school.Email != ""),
			CreatedAt:    school.CreatedAt.UTC(),
		},
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fee.School{}, fee.ErrSchoolExists
		}
		return fee.School{}, errors.Wrap(err, "inserting school")
	}

	for pos, ed := range school.EducationDetails {
		for _, cf := range ed.Fees {
			_, err = tx.NamedExecContext(ctx,
				`INSERT INTO school_fees (school_id, education_type, medium, education_level, class, total_fee, position)
				VALUES (:school_id, :education_type, :medium, :education_level, :class, :total_fee, :position)`,
				schoolFeeRow{
					SchoolID:       school.ID,
					EducationType:  ed.EducationType,
					Medium:         ed.Medium,
					EducationLevel: ed.EducationLevel,
					Class:          cf.Class,
					TotalFee:       cf.Amount,
					Position:       pos,
				},
			)
			if err != nil {
				return fee.School{}, errors.Wrap(err, "inserting school fee")
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fee.School{}, errors.Wrap(err, "committing school")
	}
	return school, nil
}

func (repo *schoolRepository) CreateStateFee(ctx context.Context, sf fee.StateFee) (fee.StateFee, error) {
	if sf.ID == "" {
		sf.ID = uuid.New().String()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO state_fees (`+stateFeeColumns+`, position)
		VALUES (:id, :academic_year, :payment_head, :board_type, :education_level, :tuition_fee, :additional_fees,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM state_fees))`,
		stateFeeRow{
			ID:             sf.ID,
			AcademicYear:   sf.AcademicYear,
			PaymentHead:    sf.PaymentHead,
			BoardType:      sf.BoardType,
			EducationLevel: sf.EducationLevel,
			TuitionFee:     sf.TuitionFee,
			AdditionalFees: sf.AdditionalFees,
		},
	)
	if err != nil {
		return fee.StateFee{}, errors.Wrap(err, "inserting state fee")
	}
	return sf, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, student fee.Student) (fee.Student, error) {
	if student.ID == "" {
		student.ID = uuid.New().String()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO students (`+studentColumns+`)
		VALUES (:id, :school_id, :academic_year, :name, :parent_name, :current_class, :entry_class, :medium, :gender, :created_at)`,
		studentRow{
			ID:           student.ID,
			SchoolID:     student.SchoolID,
			AcademicYear: student.AcademicYear,
			Name:         student.Name,
			ParentName:   student.ParentName,
			CurrentClass: student.CurrentClass,
			EntryClass:   student.EntryClass,
			Medium:       student.Medium,
			Gender:       student.Gender,
			CreatedAt:    student.CreatedAt.UTC(),
		},
	)
	if err != nil {
		return fee.Student{}, errors.Wrap(err, "inserting student")
	}
	return student, nil
}
