package donor

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

type donorRepoPG struct{ pool *pgxpool.Pool }

func NewDonorRepoPG(pool *pgxpool.Pool) Repository {
	return &donorRepoPG{pool: pool}
}

func (r *donorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const donorCols = `id, donor_number, branch_id, first_name, last_name, gender,
	date_of_birth, blood_group, phone, email, created_at, updated_at`

func scanDonor(row pgx.Row) (*Donor, error) {
	var d Donor
	err := row.Scan(&d.ID, &d.DonorNumber, &d.BranchID, &d.FirstName, &d.LastName,
		&d.Gender, &d.DateOfBirth, &d.BloodGroup, &d.Phone, &d.Email,
		&d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *donorRepoPG) Create(ctx context.Context, d *Donor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donor (id, donor_number, branch_id, first_name, last_name,
			gender, date_of_birth, blood_group, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.DonorNumber, d.BranchID, d.FirstName, d.LastName,
		d.Gender, d.DateOfBirth, d.BloodGroup, d.Phone, d.Email)
	return err
}

func (r *donorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donor, error) {
	return scanDonor(r.conn(ctx).QueryRow(ctx, `SELECT `+donorCols+` FROM donor WHERE id = $1`, id))
}

func (r *donorRepoPG) GetByDonorNumber(ctx context.Context, donorNumber string) (*Donor, error) {
	return scanDonor(r.conn(ctx).QueryRow(ctx, `SELECT `+donorCols+` FROM donor WHERE donor_number = $1`, donorNumber))
}

func (r *donorRepoPG) Update(ctx context.Context, d *Donor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE donor SET first_name=$2, last_name=$3, gender=$4, blood_group=$5,
			phone=$6, email=$7, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.FirstName, d.LastName, d.Gender, d.BloodGroup, d.Phone, d.Email)
	return err
}

func (r *donorRepoPG) NextDonorNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('donor_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("DN-%06d", n), nil
}

func (r *donorRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Donor, int, error) {
	query := `SELECT ` + donorCols + ` FROM donor WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM donor WHERE 1=1`
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
	if p, ok := params["blood_group"]; ok {
		addFilter(` AND blood_group = $%d`, p)
	}
	if p, ok := params["name"]; ok {
		addFilter(` AND (first_name ILIKE '%%' || $%d || '%%' OR last_name ILIKE '%%' || $%d || '%%')`, p)
	}
	if p, ok := params["phone"]; ok {
		addFilter(` AND phone = $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

const deferralCols = `id, donor_id, deferral_type, reason, start_date, end_date, created_by, created_at`

func scanDeferral(row pgx.Row) (*Deferral, error) {
	var d Deferral
	err := row.Scan(&d.ID, &d.DonorID, &d.Type, &d.Reason, &d.StartDate,
		&d.EndDate, &d.CreatedBy, &d.CreatedAt)
	return &d, err
}

func (r *donorRepoPG) CreateDeferral(ctx context.Context, def *Deferral) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donor_deferral (id, donor_id, deferral_type, reason, start_date, end_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		def.ID, def.DonorID, def.Type, def.Reason, def.StartDate, def.EndDate, def.CreatedBy)
	return err
}

func (r *donorRepoPG) ActiveDeferrals(ctx context.Context, donorID uuid.UUID, now time.Time) ([]*Deferral, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+deferralCols+` FROM donor_deferral
		WHERE donor_id = $1 AND (deferral_type = $2 OR end_date > $3)
		ORDER BY start_date DESC`,
		donorID, DeferralPermanent, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeferrals(rows)
}

func (r *donorRepoPG) ListDeferrals(ctx context.Context, donorID uuid.UUID) ([]*Deferral, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+deferralCols+` FROM donor_deferral WHERE donor_id = $1 ORDER BY start_date DESC`,
		donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeferrals(rows)
}

func collectDeferrals(rows pgx.Rows) ([]*Deferral, error) {
	var items []*Deferral
	for rows.Next() {
		d, err := scanDeferral(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *donorRepoPG) EndDeferral(ctx context.Context, id uuid.UUID, endDate time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE donor_deferral SET end_date=$2
		WHERE id=$1 AND deferral_type=$3`,
		id, endDate, DeferralTemporary)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *donorRepoPG) LastDonationAt(ctx context.Context, donorID uuid.UUID) (*time.Time, error) {
	var t *time.Time
	// Aborted draws do not reset the donation interval.
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT MAX(collected_at) FROM donation
		WHERE donor_id = $1 AND status = 'COMPLETED'`,
		donorID).Scan(&t)
	return t, err
}
