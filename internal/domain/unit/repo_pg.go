package unit

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

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewUnitRepoPG(pool *pgxpool.Pool) Repository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const unitCols = `id, unit_number, donation_id, branch_id, blood_group, component_type,
	bag_type, volume_ml, status, collected_at, expires_at, storage_slot_id,
	reserved_request_id, reserved_at, transfer_id, quarantine_reason,
	discard_reason, discard_note, issued_at, transfused_at, discarded_at,
	created_at, updated_at`

func scanUnit(row pgx.Row) (*BloodUnit, error) {
	var u BloodUnit
	err := row.Scan(&u.ID, &u.UnitNumber, &u.DonationID, &u.BranchID, &u.BloodGroup,
		&u.ComponentType, &u.BagType, &u.VolumeML, &u.Status, &u.CollectedAt,
		&u.ExpiresAt, &u.StorageSlotID, &u.ReservedRequestID, &u.ReservedAt,
		&u.TransferID, &u.QuarantineReason, &u.DiscardReason, &u.DiscardNote,
		&u.IssuedAt, &u.TransfusedAt, &u.DiscardedAt, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *unitRepoPG) Create(ctx context.Context, u *BloodUnit) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_unit (id, unit_number, donation_id, branch_id, blood_group,
			component_type, bag_type, volume_ml, status, collected_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.ID, u.UnitNumber, u.DonationID, u.BranchID, u.BloodGroup,
		u.ComponentType, u.BagType, u.VolumeML, u.Status, u.CollectedAt, u.ExpiresAt)
	return err
}

func (r *unitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	return scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitCols+` FROM blood_unit WHERE id = $1`, id))
}

func (r *unitRepoPG) GetByUnitNumber(ctx context.Context, unitNumber string) (*BloodUnit, error) {
	return scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitCols+` FROM blood_unit WHERE unit_number = $1`, unitNumber))
}

func (r *unitRepoPG) NextUnitNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('blood_unit_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("BU-%06d", n), nil
}

func (r *unitRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodUnit, int, error) {
	query := `SELECT ` + unitCols + ` FROM blood_unit WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM blood_unit WHERE 1=1`
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
	if p, ok := params["status"]; ok {
		addFilter(` AND status = $%d`, p)
	}
	if p, ok := params["blood_group"]; ok {
		addFilter(` AND blood_group = $%d`, p)
	}
	if p, ok := params["component_type"]; ok {
		addFilter(` AND component_type = $%d`, p)
	}
	if p, ok := params["donation_id"]; ok {
		addFilter(` AND donation_id = $%d`, p)
	}
	if p, ok := params["expiring_before"]; ok {
		addFilter(` AND expires_at < $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY expires_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}

// cas runs a status-guarded update and reports whether a row was claimed.
func (r *unitRepoPG) cas(ctx context.Context, sql string, args ...interface{}) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *unitRepoPG) UpdateCollectedVolume(ctx context.Context, id uuid.UUID, volumeML int) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET volume_ml=$2, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, volumeML, StatusCollected)
}

func (r *unitRepoPG) ConfirmBloodGroup(ctx context.Context, id uuid.UUID, group BloodGroup) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET blood_group=$2, updated_at=NOW()
		WHERE id=$1 AND status = ANY($3)`,
		id, group, []UnitStatus{StatusTestingPending, StatusQuarantined})
}

func (r *unitRepoPG) MoveToTesting(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, StatusTestingPending, StatusCollected)
}

func (r *unitRepoPG) ReleaseToInventory(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, StatusAvailable, StatusTestingPending)
}

func (r *unitRepoPG) Quarantine(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, quarantine_reason=$3,
			reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status = ANY($4) AND transfer_id IS NULL`,
		id, StatusQuarantined, reason,
		[]UnitStatus{StatusCollected, StatusTestingPending, StatusAvailable, StatusReserved})
}

func (r *unitRepoPG) ReleaseQuarantine(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, quarantine_reason=NULL, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, StatusAvailable, StatusQuarantined)
}

func (r *unitRepoPG) Reserve(ctx context.Context, id, requestID uuid.UUID, now time.Time) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, reserved_request_id=$3, reserved_at=$4, updated_at=NOW()
		WHERE id=$1 AND status=$5 AND transfer_id IS NULL AND expires_at > $4`,
		id, StatusReserved, requestID, now, StatusAvailable)
}

func (r *unitRepoPG) ReleaseReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, StatusAvailable, StatusReserved)
}

func (r *unitRepoPG) Issue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, issued_at=$3, updated_at=NOW()
		WHERE id=$1 AND status=$4 AND transfer_id IS NULL`,
		id, StatusIssued, now, StatusReserved)
}

func (r *unitRepoPG) ReturnToInventory(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, issued_at=NULL,
			reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status=$3`,
		id, StatusAvailable, StatusIssued)
}

func (r *unitRepoPG) MarkTransfused(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, transfused_at=$3, updated_at=NOW()
		WHERE id=$1 AND status=$4`,
		id, StatusTransfused, now, StatusIssued)
}

func (r *unitRepoPG) Discard(ctx context.Context, id uuid.UUID, reason string, note *string, now time.Time) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET status=$2, discard_reason=$3, discard_note=$4,
			discarded_at=$5, reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status = ANY($6) AND transfer_id IS NULL`,
		id, StatusDiscarded, reason, note, now,
		[]UnitStatus{StatusCollected, StatusTestingPending, StatusQuarantined,
			StatusAvailable, StatusReserved, StatusIssued})
}

func (r *unitRepoPG) AssignSlot(ctx context.Context, id, slotID uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET storage_slot_id=$2, updated_at=NOW()
		WHERE id=$1 AND transfer_id IS NULL AND status = ANY($3)`,
		id, slotID,
		[]UnitStatus{StatusCollected, StatusTestingPending, StatusQuarantined,
			StatusAvailable, StatusReserved})
}

func (r *unitRepoPG) ClearSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE blood_unit SET storage_slot_id=NULL, updated_at=NOW()
		WHERE id=$1 AND storage_slot_id IS NOT NULL`,
		id)
}

func (r *unitRepoPG) ListBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+unitCols+` FROM blood_unit WHERE storage_slot_id = ANY($1) ORDER BY unit_number`, slotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) QuarantineBySlots(ctx context.Context, slotIDs []uuid.UUID, reason string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET status=$1, quarantine_reason=$2,
			reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE storage_slot_id = ANY($3) AND status = ANY($4) AND transfer_id IS NULL`,
		StatusQuarantined, reason, slotIDs,
		[]UnitStatus{StatusCollected, StatusTestingPending, StatusAvailable, StatusReserved})
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) ClaimForTransfer(ctx context.Context, ids []uuid.UUID, transferID uuid.UUID, branchID string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET transfer_id=$1, updated_at=NOW()
		WHERE id = ANY($2) AND status=$3 AND branch_id=$4 AND transfer_id IS NULL`,
		transferID, ids, StatusAvailable, branchID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) ReleaseTransferClaim(ctx context.Context, transferID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET transfer_id=NULL, updated_at=NOW()
		WHERE transfer_id=$1`,
		transferID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) CompleteTransfer(ctx context.Context, transferID uuid.UUID, destBranchID string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET branch_id=$2, transfer_id=NULL, storage_slot_id=NULL, updated_at=NOW()
		WHERE transfer_id=$1`,
		transferID, destBranchID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+unitCols+` FROM blood_unit WHERE transfer_id = $1 ORDER BY unit_number`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET status=$1, reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE status = ANY($2) AND expires_at <= $3`,
		StatusExpired, []UnitStatus{StatusAvailable, StatusQuarantined}, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) ReleaseStaleReservations(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET status=$1, reserved_request_id=NULL, reserved_at=NULL, updated_at=NOW()
		WHERE status=$2 AND reserved_at <= $3`,
		StatusAvailable, StatusReserved, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *unitRepoPG) AvailableSummary(ctx context.Context, branchID string) ([]InventoryRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT blood_group, component_type, COUNT(*), MIN(expires_at)
		FROM blood_unit
		WHERE branch_id=$1 AND status=$2 AND transfer_id IS NULL
		GROUP BY blood_group, component_type
		ORDER BY blood_group, component_type`,
		branchID, StatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InventoryRow
	for rows.Next() {
		var row InventoryRow
		if err := rows.Scan(&row.BloodGroup, &row.ComponentType, &row.Count, &row.NearestExpiry); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *unitRepoPG) ListByReservedRequest(ctx context.Context, requestID uuid.UUID) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+unitCols+` FROM blood_unit WHERE reserved_request_id = $1 ORDER BY unit_number`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+unitCols+` FROM blood_unit WHERE donation_id = $1 ORDER BY created_at`, donationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
