package inmemdb

import (
	"context"
	"sort"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/fee"
)

type schoolRepository struct {
	db *schoolTable
}

var _ fee.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) fee.Repository {
	return &schoolRepository{db: db.school}
}

func (repo *schoolRepository) GetSchool(_ context.Context, id string) (fee.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if school, ok := repo.db.schools[id]; ok {
		return *school, nil
	}
	return fee.School{}, fee.ErrSchoolNotFound
}

func (repo *schoolRepository) FindSchool(_ context.Context, udiseCode, academicYear string) (fee.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, school := range repo.db.schools {
		if school.UDISECode == udiseCode && school.AcademicYear == academicYear {
			return *school, nil
		}
	}
	return fee.School{}, fee.ErrSchoolNotFound
}

func (repo *schoolRepository) QueryStateFees(_ context.Context, academicYear, paymentHead string) ([]fee.StateFee, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fees := make([]fee.StateFee, 0)
	for _, sf := range repo.db.stateFees {
		if sf.AcademicYear == academicYear && sf.PaymentHead == paymentHead {
			fees = append(fees, sf)
		}
	}
	return fees, nil
}

// StudentIDs returns the matching student ids ordered by class, then insertion.
func (repo *schoolRepository) StudentIDs(_ context.Context, filter fee.StudentFilter) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]fee.Student, 0)
	for _, st := range repo.db.students {
		if st.SchoolID != filter.SchoolID || st.AcademicYear != filter.AcademicYear {
			continue
		}
		if len(filter.Classes) > 0 && !core.ContainsInt(filter.Classes, st.CurrentClass) {
			continue
		}
		students = append(students, st)
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].CurrentClass < students[j].CurrentClass })

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

// GetStudents returns the students in the order of ids; unknown ids are skipped.
func (repo *schoolRepository) GetStudents(_ context.Context, ids []string) ([]fee.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byID := make(map[string]fee.Student, len(repo.db.students))
	for _, st := range repo.db.students {
		byID[st.ID] = st
	}
	students := make([]fee.Student, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			students = append(students, st)
		}
	}
	return students, nil
}

func (repo *schoolRepository) CreateSchool(_ context.Context, school fee.School) (fee.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.schools {
		if s.UDISECode == school.UDISECode && s.AcademicYear == school.AcademicYear && s.ID != school.ID {
			return fee.School{}, fee.ErrSchoolExists
		}
	}
	repo.db.schools[school.ID] = &school
	return school, nil
}

func (repo *schoolRepository) CreateStateFee(_ context.Context, sf fee.StateFee) (fee.StateFee, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.stateFees = append(repo.db.stateFees, sf)
	return sf, nil
}

func (repo *schoolRepository) CreateStudent(_ context.Context, student fee.Student) (fee.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.students = append(repo.db.students, student)
	return student, nil
}
