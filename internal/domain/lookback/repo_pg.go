package lookback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type lookbackRepoPG struct{ pool *pgxpool.Pool }

func NewLookbackRepoPG(pool *pgxpool.Pool) Repository {
	return &lookbackRepoPG{pool: pool}
}

func (r *lookbackRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const caseCols = `id, case_number, branch_id, donor_id, trigger, note, status,
	opened_by, opened_at, closed_by, closed_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.CaseNumber, &c.BranchID, &c.DonorID, &c.Trigger,
		&c.Note, &c.Status, &c.OpenedBy, &c.OpenedAt, &c.ClosedBy, &c.ClosedAt, &c.UpdatedAt)
	return &c, err
}

func (r *lookbackRepoPG) CreateCase(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lookback_case (id, case_number, branch_id, donor_id, trigger, note, status, opened_by, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.CaseNumber, c.BranchID, c.DonorID, c.Trigger, c.Note, c.Status, c.OpenedBy, c.OpenedAt)
	return err
}

func (r *lookbackRepoPG) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM lookback_case WHERE id = $1`, id))
}

func (r *lookbackRepoPG) OpenCaseByDonor(ctx context.Context, donorID uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `
		SELECT `+caseCols+` FROM lookback_case
		WHERE donor_id = $1 AND status = 'OPEN'
		ORDER BY opened_at DESC LIMIT 1`, donorID))
}

func (r *lookbackRepoPG) AppendCaseNote(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lookback_case SET note = note || E'\n' || $2, updated_at = $3
		WHERE id = $1 AND status = 'OPEN'`, id, note, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *lookbackRepoPG) ListCases(ctx context.Context, params map[string]string, limit, offset int) ([]*Case, int, error) {
	query := `SELECT ` + caseCols + ` FROM lookback_case WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM lookback_case WHERE 1=1`
	var args []interface{}
	idx := 1

	addFilter := func(clause string, value interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, value)
		idx++
	}

	if p, ok := params["branch_id"]; ok {
		addFilter(` AND branch_id = $%d`, p)
	}
	if p, ok := params["donor_id"]; ok {
		addFilter(` AND donor_id = $%d`, p)
	}
	if p, ok := params["status"]; ok {
		addFilter(` AND status = $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY opened_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *lookbackRepoPG) CloseCase(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lookback_case SET status='CLOSED', closed_by=$2, closed_at=$3, updated_at=$3
		WHERE id=$1 AND status='OPEN'`, id, by, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *lookbackRepoPG) NextCaseNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('lookback_case_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("LB-%06d", n), nil
}

func (r *lookbackRepoPG) CountOpenCases(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lookback_case WHERE status = 'OPEN'`).Scan(&n)
	return n, err
}

const entryCols = `id, case_id, unit_id, unit_number, donation_id, unit_status,
	quarantined, disposition, note, resolved_by, resolved_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CaseID, &e.UnitID, &e.UnitNumber, &e.DonationID,
		&e.UnitStatus, &e.Quarantined, &e.Disposition, &e.Note, &e.ResolvedBy, &e.ResolvedAt)
	return &e, err
}

func (r *lookbackRepoPG) AddEntries(ctx context.Context, entries []*Entry) error {
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO lookback_entry (id, case_id, unit_id, unit_number, donation_id, unit_status, quarantined)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			e.ID, e.CaseID, e.UnitID, e.UnitNumber, e.DonationID, e.UnitStatus, e.Quarantined)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *lookbackRepoPG) GetEntry(ctx context.Context, caseID, unitID uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM lookback_entry WHERE case_id = $1 AND unit_id = $2`, caseID, unitID))
}

func (r *lookbackRepoPG) ListEntries(ctx context.Context, caseID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM lookback_entry WHERE case_id = $1 ORDER BY unit_number`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *lookbackRepoPG) SetEntryDisposition(ctx context.Context, caseID, unitID uuid.UUID, d EntryDisposition, note *string, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lookback_entry SET disposition=$3, note=$4, resolved_by=$5, resolved_at=$6
		WHERE case_id=$1 AND unit_id=$2 AND disposition IS NULL`,
		caseID, unitID, d, note, by, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *lookbackRepoPG) UndispositionedCount(ctx context.Context, caseID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM lookback_entry
		WHERE case_id = $1 AND disposition IS NULL`, caseID).Scan(&n)
	return n, err
}
