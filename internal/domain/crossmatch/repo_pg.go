package crossmatch

import (
	"context"
	"fmt"

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

type crossmatchRepoPG struct{ pool *pgxpool.Pool }

func NewCrossmatchRepoPG(pool *pgxpool.Pool) Repository {
	return &crossmatchRepoPG{pool: pool}
}

func (r *crossmatchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const requestCols = `id, request_number, branch_id, patient_id, patient_name,
	patient_blood_group, antibody_screen, component_type, quantity, urgency,
	indication, ward, status, requested_by, created_at, updated_at`

func scanRequest(row pgx.Row) (*BloodRequest, error) {
	var b BloodRequest
	err := row.Scan(&b.ID, &b.RequestNumber, &b.BranchID, &b.PatientID, &b.PatientName,
		&b.PatientBloodGroup, &b.AntibodyScreen, &b.ComponentType, &b.Quantity,
		&b.Urgency, &b.Indication, &b.Ward, &b.Status, &b.RequestedBy,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *crossmatchRepoPG) CreateRequest(ctx context.Context, b *BloodRequest) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_request (id, request_number, branch_id, patient_id, patient_name,
			patient_blood_group, antibody_screen, component_type, quantity, urgency,
			indication, ward, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		b.ID, b.RequestNumber, b.BranchID, b.PatientID, b.PatientName,
		b.PatientBloodGroup, b.AntibodyScreen, b.ComponentType, b.Quantity,
		b.Urgency, b.Indication, b.Ward, b.Status, b.RequestedBy)
	return err
}

func (r *crossmatchRepoPG) GetRequest(ctx context.Context, id uuid.UUID) (*BloodRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM blood_request WHERE id = $1`, id))
}

func (r *crossmatchRepoPG) ListRequests(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodRequest, int, error) {
	query := `SELECT ` + requestCols + ` FROM blood_request WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM blood_request WHERE 1=1`
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
	if p, ok := params["patient_id"]; ok {
		addFilter(` AND patient_id = $%d`, p)
	}
	if p, ok := params["status"]; ok {
		addFilter(` AND status = $%d`, p)
	}
	if p, ok := params["urgency"]; ok {
		addFilter(` AND urgency = $%d`, p)
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
	var items []*BloodRequest
	for rows.Next() {
		b, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *crossmatchRepoPG) SetRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_request SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *crossmatchRepoPG) NextRequestNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('blood_request_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("BR-%06d", n), nil
}

func (r *crossmatchRepoPG) CreateSample(ctx context.Context, s *PatientSample) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_sample (id, request_id, label, collected_at, received_by, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.RequestID, s.Label, s.CollectedAt, s.ReceivedBy, s.ReceivedAt)
	return err
}

func (r *crossmatchRepoPG) GetSampleByRequest(ctx context.Context, requestID uuid.UUID) (*PatientSample, error) {
	var s PatientSample
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, request_id, label, collected_at, received_by, received_at
		FROM patient_sample WHERE request_id = $1
		ORDER BY received_at DESC LIMIT 1`, requestID).
		Scan(&s.ID, &s.RequestID, &s.Label, &s.CollectedAt, &s.ReceivedBy, &s.ReceivedAt)
	return &s, err
}

const crossmatchCols = `id, number, request_id, unit_id, method, result, notes, tested_by, tested_at`

func scanCrossmatch(row pgx.Row) (*Crossmatch, error) {
	var x Crossmatch
	err := row.Scan(&x.ID, &x.Number, &x.RequestID, &x.UnitID, &x.Method, &x.Result,
		&x.Notes, &x.TestedBy, &x.TestedAt)
	return &x, err
}

func (r *crossmatchRepoPG) CreateCrossmatch(ctx context.Context, x *Crossmatch) error {
	if x.ID == uuid.Nil {
		x.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO crossmatch_test (id, number, request_id, unit_id, method, result, notes, tested_by, tested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		x.ID, x.Number, x.RequestID, x.UnitID, x.Method, x.Result, x.Notes, x.TestedBy, x.TestedAt)
	return err
}

func (r *crossmatchRepoPG) LatestCrossmatch(ctx context.Context, requestID, unitID uuid.UUID) (*Crossmatch, error) {
	return scanCrossmatch(r.conn(ctx).QueryRow(ctx, `
		SELECT `+crossmatchCols+` FROM crossmatch_test
		WHERE request_id = $1 AND unit_id = $2
		ORDER BY tested_at DESC LIMIT 1`, requestID, unitID))
}

func (r *crossmatchRepoPG) ListCrossmatches(ctx context.Context, requestID uuid.UUID) ([]*Crossmatch, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+crossmatchCols+` FROM crossmatch_test WHERE request_id = $1 ORDER BY tested_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Crossmatch
	for rows.Next() {
		x, err := scanCrossmatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, x)
	}
	return items, rows.Err()
}

func (r *crossmatchRepoPG) NextCrossmatchNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('crossmatch_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("XM-%06d", n), nil
}
