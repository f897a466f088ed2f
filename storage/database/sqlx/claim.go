package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
)

const (
	claimColumns   = "id, school_id, udise_code, academic_year, payment_head, fees, status, published, total, created_by, created_at, updated_at"
	historyColumns = "id, claim_id, from_state, to_state, forced, comment, user_id, created_at"
)

var claimOrderings = map[string]string{
	"academic_year": "academic_year",
	"status":        "status",
	"udise_code":    "udise_code",
	"total":         "total",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

type (
	claimRow struct {
		ID           string         `db:"id"`
		SchoolID     string         `db:"school_id"`
		UDISECode    string         `db:"udise_code"`
		AcademicYear string         `db:"academic_year"`
		PaymentHead  string         `db:"payment_head"`
		Fees         pq.StringArray `db:"fees"`
		Status       string         `db:"status"`
		Published    bool           `db:"published"`
		Total        float64        `db:"total"`
		CreatedBy    null.String    `db:"created_by"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
	}

	historyRow struct {
		ID        int64       `db:"id"`
		ClaimID   string      `db:"claim_id"`
		FromState string      `db:"from_state"`
		ToState   string      `db:"to_state"`
		Forced    bool        `db:"forced"`
		Comment   null.String `db:"comment"`
		UserID    null.String `db:"user_id"`
		CreatedAt time.Time   `db:"created_at"`
	}
)

func toClaimRow(c claim.Claim) claimRow {
	fees := c.AdditionalFees
	if fees == nil {
		fees = []string{}
	}
	return claimRow{
		ID:           c.ID,
		SchoolID:     c.SchoolID,
		UDISECode:    c.UDISECode,
		AcademicYear: c.AcademicYear,
		PaymentHead:  c.PaymentHead,
		Fees:         fees,
		Status:       string(c.Status),
		Published:    c.Published,
		Total:        c.Total,
		CreatedBy:    null.NewString(c.CreatedBy, c.CreatedBy != ""),
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (r claimRow) claim() claim.Claim {
	return claim.Claim{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		UDISECode:      r.UDISECode,
		AcademicYear:   r.AcademicYear,
		PaymentHead:    r.PaymentHead,
		AdditionalFees: []string(r.Fees),
		Status:         claim.State(r.Status),
		Published:      r.Published,
		Total:          r.Total,
		CreatedBy:      r.CreatedBy.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r historyRow) entry() claim.HistoryEntry {
	return claim.HistoryEntry{
		ID:        r.ID,
		ClaimID:   r.ClaimID,
		From:      claim.State(r.FromState),
		To:        claim.State(r.ToState),
		Forced:    r.Forced,
		Comment:   r.Comment.String,
		UserID:    r.UserID.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type claimRepository struct {
	db *sqlx.DB
}

var _ claim.Repository = (*claimRepository)(nil) // interface compliance check

func NewClaimRepository(db *sqlx.DB) claim.Repository {
	return &claimRepository{db: db}
}

func (repo *claimRepository) CreateClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	row := toClaimRow(c)
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO claims (`+claimColumns+`)
		VALUES (:id, :school_id, :udise_code, :academic_year, :payment_head, :fees, :status, :published, :total,
			:created_by, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return claim.Claim{}, claim.ErrClaimExists
		}
		return claim.Claim{}, errors.Wrap(err, "inserting claim")
	}
	return row.claim(), nil
}

func (repo *claimRepository) getClaim(ctx context.Context, q sqlx.QueryerContext, id string) (claim.Claim, error) {
	if _, err := uuid.Parse(id); err != nil {
		return claim.Claim{}, claim.ErrNotFound
	}
	var row claimRow
	if err := sqlx.GetContext(ctx, q, &row, "SELECT "+claimColumns+" FROM claims WHERE id = $1", id); err != nil {
		return claim.Claim{}, trapNoRowsErr(err, claim.ErrNotFound, "finding claim")
	}
	return row.claim(), nil
}

func (repo *claimRepository) GetClaim(ctx context.Context, id string) (claim.Claim, error) {
	return repo.getClaim(ctx, repo.db, id)
}

func (repo *claimRepository) QueryClaims(ctx context.Context, filter claim.QueryFilter, orderings ...core.DBOrdering) ([]claim.Claim, error) {
	var conds conditions
	if filter.SchoolID != "" {
		if _, err := uuid.Parse(filter.SchoolID); err != nil {
			return []claim.Claim{}, nil
		}
		conds.add("school_id = ?", filter.SchoolID)
	}
	if filter.UDISECode != "" {
		conds.add("udise_code = ?", filter.UDISECode)
	}
	if filter.AcademicYear != "" {
		conds.add("academic_year = ?", filter.AcademicYear)
	}
	if filter.PaymentHead != "" {
		conds.add("payment_head = ?", filter.PaymentHead)
	}
	if len(filter.Statuses) > 0 {
		conds.add("status = ANY(?)", pq.Array(filter.Statuses))
	}

	q := "SELECT " + claimColumns + " FROM claims" + conds.where() +
		" ORDER BY " + core.OrderBy(orderings, claimOrderings, "created_at DESC") + ", id"

	rows := make([]claimRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, conds.args...); err != nil {
		return nil, errors.Wrap(err, "querying claims")
	}
	claims := make([]claim.Claim, 0, len(rows))
	for _, r := range rows {
		claims = append(claims, r.claim())
	}
	return claims, nil
}

func (repo *claimRepository) ExistingClaimIDs(ctx context.Context, filter claim.ExistingFilter) ([]string, error) {
	var conds conditions
	conds.add("academic_year = ?", filter.AcademicYear)
	conds.add("payment_head = ?", filter.PaymentHead)
	conds.add("published = ?", filter.Published)
	if filter.SchoolID != "" {
		conds.add("school_id::text = ?", filter.SchoolID)
	}

	ids := make([]string, 0)
	if err := repo.db.SelectContext(ctx, &ids, "SELECT id FROM claims"+conds.where()+" ORDER BY id", conds.args...); err != nil {
		return nil, errors.Wrap(err, "querying existing claims")
	}
	return ids, nil
}

// UpdateStatus only updates the claim if its stored status is still entry.From.
func (repo *claimRepository) UpdateStatus(ctx context.Context, c claim.Claim, entry claim.HistoryEntry) (claim.Claim, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return claim.Claim{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE claims SET status = $1, total = $2, updated_at = $3 WHERE id = $4 AND status = $5",
		string(c.Status), c.Total, c.UpdatedAt.UTC(), c.ID, string(entry.From),
	)
	if err != nil {
		return claim.Claim{}, errors.Wrap(err, "updating claim status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return claim.Claim{}, errors.Wrap(err, "updating claim status")
	}
	if n == 0 {
		if _, err = repo.getClaim(ctx, tx, c.ID); err != nil {
			return claim.Claim{}, err
		}
		return claim.Claim{}, claim.ErrStaleClaim
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO claim_transitions (claim_id, from_state, to_state, forced, comment, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, string(entry.From), string(entry.To), entry.Forced,
		null.NewString(entry.Comment, entry.Comment != ""), null.NewString(entry.UserID, entry.UserID != ""),
		createdAt.UTC(),
	)
	if err != nil {
		return claim.Claim{}, errors.Wrap(err, "inserting claim transition")
	}

	updated, err := repo.getClaim(ctx, tx, c.ID)
	if err != nil {
		return claim.Claim{}, err
	}
	if err = tx.Commit(); err != nil {
		return claim.Claim{}, errors.Wrap(err, "committing claim status")
	}
	return updated, nil
}

func (repo *claimRepository) History(ctx context.Context, claimID string) ([]claim.HistoryEntry, error) {
	entries := make([]claim.HistoryEntry, 0)
	if _, err := uuid.Parse(claimID); err != nil {
		return entries, nil
	}

	rows := make([]historyRow, 0)
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT "+historyColumns+" FROM claim_transitions WHERE claim_id = $1 ORDER BY created_at, id",
		claimID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying claim history")
	}
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}
