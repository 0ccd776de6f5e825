package transfer

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

type transferRepoPG struct {
	pool *pgxpool.Pool
}

func NewTransferRepoPG(pool *pgxpool.Pool) Repository {
	return &transferRepoPG{pool: pool}
}

func (r *transferRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const transferCols = `id, transfer_number, from_branch_id, to_branch_id, status, unit_count,
	courier, box_temp_c, note, initiated_by, initiated_at, dispatched_by, dispatched_at,
	received_by, received_at, cancelled_by, cancelled_at`

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	err := row.Scan(
		&t.ID, &t.TransferNumber, &t.FromBranchID, &t.ToBranchID, &t.Status, &t.UnitCount,
		&t.Courier, &t.BoxTempC, &t.Note, &t.InitiatedBy, &t.InitiatedAt, &t.DispatchedBy, &t.DispatchedAt,
		&t.ReceivedBy, &t.ReceivedAt, &t.CancelledBy, &t.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transferRepoPG) Create(ctx context.Context, t *Transfer) error {
	query := `
		INSERT INTO blood_transfer (
			id, transfer_number, from_branch_id, to_branch_id, status, unit_count,
			note, initiated_by, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.conn(ctx).Exec(ctx, query,
		t.ID, t.TransferNumber, t.FromBranchID, t.ToBranchID, t.Status, t.UnitCount,
		t.Note, t.InitiatedBy, t.InitiatedAt,
	)
	return err
}

func (r *transferRepoPG) Get(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	query := `SELECT ` + transferCols + ` FROM blood_transfer WHERE id = $1`
	return scanTransfer(r.conn(ctx).QueryRow(ctx, query, id))
}

func (r *transferRepoPG) List(ctx context.Context, params map[string]interface{}, limit, offset int) ([]*Transfer, int, error) {
	query := `SELECT ` + transferCols + ` FROM blood_transfer WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM blood_transfer WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	addFilter := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s = $%d", clause, argIdx)
		countQuery += fmt.Sprintf(" AND %s = $%d", clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if v, ok := params["from_branch_id"]; ok {
		addFilter("from_branch_id", v)
	}
	if v, ok := params["to_branch_id"]; ok {
		addFilter("to_branch_id", v)
	}
	if v, ok := params["status"]; ok {
		addFilter("status", v)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(" ORDER BY initiated_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *transferRepoPG) MarkDispatched(ctx context.Context, id uuid.UUID, by string, courier *string, boxTempC *float64, at time.Time) (bool, error) {
	query := `
		UPDATE blood_transfer
		SET status = $2, courier = $3, box_temp_c = $4, dispatched_by = $5, dispatched_at = $6
		WHERE id = $1 AND status = $7`

	tag, err := r.conn(ctx).Exec(ctx, query, id, StatusDispatched, courier, boxTempC, by, at, StatusInitiated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *transferRepoPG) MarkReceived(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	query := `
		UPDATE blood_transfer
		SET status = $2, received_by = $3, received_at = $4
		WHERE id = $1 AND status = $5`

	tag, err := r.conn(ctx).Exec(ctx, query, id, StatusReceived, by, at, StatusDispatched)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *transferRepoPG) MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	query := `
		UPDATE blood_transfer
		SET status = $2, cancelled_by = $3, cancelled_at = $4
		WHERE id = $1 AND status = $5`

	tag, err := r.conn(ctx).Exec(ctx, query, id, StatusCancelled, by, at, StatusInitiated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *transferRepoPG) NextTransferNumber(ctx context.Context) (string, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('transfer_number_seq')`).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TR-%06d", seq), nil
}
