package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
)

// sortableAmount zero pads claim totals (NUMERIC(14, 2), never negative) so they compare as strings.
const sortableAmount = "%015.2f"

type claimRepository struct {
	db *claimTable
}

var _ claim.Repository = (*claimRepository)(nil)

func NewClaimRepository(db *DB) claim.Repository {
	return &claimRepository{db: db.claim}
}

func (repo *claimRepository) CreateClaim(_ context.Context, c claim.Claim) (claim.Claim, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if c.Published {
		for _, other := range repo.db.table {
			if other.Published && other.ID != c.ID && other.SchoolID == c.SchoolID &&
				other.AcademicYear == c.AcademicYear && other.PaymentHead == c.PaymentHead {
				return claim.Claim{}, claim.ErrClaimExists
			}
		}
	}
	c.AdditionalFees = append([]string{}, c.AdditionalFees...)
	repo.db.table[c.ID] = &c
	return c, nil
}

func (repo *claimRepository) GetClaim(_ context.Context, id string) (claim.Claim, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return *c, nil
	}
	return claim.Claim{}, claim.ErrNotFound
}

func (repo *claimRepository) QueryClaims(_ context.Context, filter claim.QueryFilter, orderings ...core.DBOrdering) ([]claim.Claim, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	claims := make([]claim.Claim, 0)
	for _, c := range repo.db.table {
		if filter.SchoolID != "" && c.SchoolID != filter.SchoolID {
			continue
		}
		if filter.UDISECode != "" && c.UDISECode != filter.UDISECode {
			continue
		}
		if filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.PaymentHead != "" && c.PaymentHead != filter.PaymentHead {
			continue
		}
		if len(filter.Statuses) > 0 && !core.ContainsString(filter.Statuses, string(c.Status)) {
			continue
		}
		claims = append(claims, *c)
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(claims, func(i, j int) bool {
		for _, ord := range orderings {
			a, b := claimField(claims[i], ord.Field), claimField(claims[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return claims[i].ID < claims[j].ID
	})
	return claims, nil
}

func claimField(c claim.Claim, field string) string {
	switch field {
	case "academic_year":
		return c.AcademicYear
	case "status":
		return string(c.Status)
	case "udise_code":
		return c.UDISECode
	case "total":
		return fmt.Sprintf(sortableAmount, c.Total)
	case "created_at":
		return c.CreatedAt.UTC().Format(sortableTime)
	case "updated_at":
		return c.UpdatedAt.UTC().Format(sortableTime)
	}
	return ""
}

func (repo *claimRepository) ExistingClaimIDs(_ context.Context, filter claim.ExistingFilter) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for _, c := range repo.db.table {
		if c.AcademicYear != filter.AcademicYear || c.PaymentHead != filter.PaymentHead || c.Published != filter.Published {
			continue
		}
		if filter.SchoolID != "" && c.SchoolID != filter.SchoolID {
			continue
		}
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *claimRepository) UpdateStatus(_ context.Context, c claim.Claim, entry claim.HistoryEntry) (claim.Claim, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[c.ID]
	if !ok {
		return claim.Claim{}, claim.ErrNotFound
	}
	if orig.Status != entry.From {
		return claim.Claim{}, claim.ErrStaleClaim
	}

	orig.Status = c.Status
	orig.Total = c.Total
	orig.UpdatedAt = c.UpdatedAt

	repo.db.pkCount++
	entry.ID = repo.db.pkCount
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	repo.db.history[c.ID] = append(repo.db.history[c.ID], entry)
	return *orig, nil
}

func (repo *claimRepository) History(_ context.Context, claimID string) ([]claim.HistoryEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return append([]claim.HistoryEntry{}, repo.db.history[claimID]...), nil
}
