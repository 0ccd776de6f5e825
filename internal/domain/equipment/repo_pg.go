package equipment

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

type equipmentRepoPG struct{ pool *pgxpool.Pool }

func NewEquipmentRepoPG(pool *pgxpool.Pool) Repository {
	return &equipmentRepoPG{pool: pool}
}

func (r *equipmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const equipmentCols = `id, branch_id, name, equipment_type, serial_number, status,
	min_temp_c, max_temp_c, sensor_id, last_calibrated_at, calibration_interval_days,
	created_at, updated_at`

func scanEquipment(row pgx.Row) (*Equipment, error) {
	var e Equipment
	err := row.Scan(&e.ID, &e.BranchID, &e.Name, &e.Type, &e.SerialNumber, &e.Status,
		&e.MinTempC, &e.MaxTempC, &e.SensorID, &e.LastCalibratedAt,
		&e.CalibrationIntervalDays, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *equipmentRepoPG) CreateEquipment(ctx context.Context, e *Equipment) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO storage_equipment (id, branch_id, name, equipment_type, serial_number,
			status, min_temp_c, max_temp_c, sensor_id, last_calibrated_at, calibration_interval_days)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.BranchID, e.Name, e.Type, e.SerialNumber, e.Status,
		e.MinTempC, e.MaxTempC, e.SensorID, e.LastCalibratedAt, e.CalibrationIntervalDays)
	return err
}

func (r *equipmentRepoPG) GetEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error) {
	return scanEquipment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+equipmentCols+` FROM storage_equipment WHERE id = $1`, id))
}

func (r *equipmentRepoPG) GetBySensorID(ctx context.Context, branchID, sensorID string) (*Equipment, error) {
	return scanEquipment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+equipmentCols+` FROM storage_equipment WHERE branch_id = $1 AND sensor_id = $2`,
		branchID, sensorID))
}

func (r *equipmentRepoPG) ListEquipment(ctx context.Context, params map[string]string, limit, offset int) ([]*Equipment, int, error) {
	query := `SELECT ` + equipmentCols + ` FROM storage_equipment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM storage_equipment WHERE 1=1`
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
	if p, ok := params["equipment_type"]; ok {
		addFilter(` AND equipment_type = $%d`, p)
	}
	if p, ok := params["status"]; ok {
		addFilter(` AND status = $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *equipmentRepoPG) UpdateEquipment(ctx context.Context, e *Equipment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE storage_equipment SET name=$2, status=$3, min_temp_c=$4, max_temp_c=$5,
			sensor_id=$6, calibration_interval_days=$7, updated_at=NOW()
		WHERE id=$1`,
		e.ID, e.Name, e.Status, e.MinTempC, e.MaxTempC, e.SensorID, e.CalibrationIntervalDays)
	return err
}

func (r *equipmentRepoPG) RecordCalibration(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE storage_equipment SET last_calibrated_at=$2, updated_at=NOW() WHERE id=$1`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *equipmentRepoPG) CreateSlots(ctx context.Context, slots []*Slot) error {
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO equipment_slot (id, equipment_id, label) VALUES ($1,$2,$3)`,
			s.ID, s.EquipmentID, s.Label); err != nil {
			return err
		}
	}
	return nil
}

func (r *equipmentRepoPG) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	var s Slot
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, equipment_id, label, created_at FROM equipment_slot WHERE id = $1`, id).
		Scan(&s.ID, &s.EquipmentID, &s.Label, &s.CreatedAt)
	return &s, err
}

func (r *equipmentRepoPG) ListSlots(ctx context.Context, equipmentID uuid.UUID) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, equipment_id, label, created_at FROM equipment_slot
		WHERE equipment_id = $1 ORDER BY label`, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.EquipmentID, &s.Label, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *equipmentRepoPG) AppendTemperatureLog(ctx context.Context, l *TemperatureLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO temperature_log (id, equipment_id, temp_c, source, breach, recorded_by, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.EquipmentID, l.TempC, l.Source, l.Breach, l.RecordedBy, l.RecordedAt)
	return err
}

func (r *equipmentRepoPG) ListTemperatureLogs(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*TemperatureLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM temperature_log WHERE equipment_id = $1`, equipmentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, equipment_id, temp_c, source, breach, recorded_by, recorded_at
		FROM temperature_log WHERE equipment_id = $1
		ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, equipmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TemperatureLog
	for rows.Next() {
		var l TemperatureLog
		if err := rows.Scan(&l.ID, &l.EquipmentID, &l.TempC, &l.Source, &l.Breach,
			&l.RecordedBy, &l.RecordedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}

func (r *equipmentRepoPG) HasRecoveryLog(ctx context.Context, equipmentID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM temperature_log
			WHERE equipment_id = $1 AND recorded_at > $2 AND NOT breach
		)`, equipmentID, since).Scan(&exists)
	return exists, err
}

const breachCols = `id, equipment_id, branch_id, temp_c, detected_at,
	acknowledged_by, acknowledged_at, closed_at`

func scanBreach(row pgx.Row) (*Breach, error) {
	var b Breach
	err := row.Scan(&b.ID, &b.EquipmentID, &b.BranchID, &b.TempC, &b.DetectedAt,
		&b.AcknowledgedBy, &b.AcknowledgedAt, &b.ClosedAt)
	return &b, err
}

func (r *equipmentRepoPG) CreateBreach(ctx context.Context, b *Breach) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO temperature_breach (id, equipment_id, branch_id, temp_c, detected_at)
		VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.EquipmentID, b.BranchID, b.TempC, b.DetectedAt)
	return err
}

func (r *equipmentRepoPG) GetBreach(ctx context.Context, id uuid.UUID) (*Breach, error) {
	return scanBreach(r.conn(ctx).QueryRow(ctx,
		`SELECT `+breachCols+` FROM temperature_breach WHERE id = $1`, id))
}

func (r *equipmentRepoPG) OpenBreach(ctx context.Context, equipmentID uuid.UUID) (*Breach, error) {
	return scanBreach(r.conn(ctx).QueryRow(ctx, `
		SELECT `+breachCols+` FROM temperature_breach
		WHERE equipment_id = $1 AND closed_at IS NULL
		ORDER BY detected_at DESC LIMIT 1`, equipmentID))
}

func (r *equipmentRepoPG) ListBreaches(ctx context.Context, params map[string]string, limit, offset int) ([]*Breach, int, error) {
	query := `SELECT ` + breachCols + ` FROM temperature_breach WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM temperature_breach WHERE 1=1`
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
	if p, ok := params["equipment_id"]; ok {
		addFilter(` AND equipment_id = $%d`, p)
	}
	if params["open"] == "true" {
		query += ` AND closed_at IS NULL`
		countQuery += ` AND closed_at IS NULL`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY detected_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Breach
	for rows.Next() {
		b, err := scanBreach(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *equipmentRepoPG) AcknowledgeBreach(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE temperature_breach SET acknowledged_by=$2, acknowledged_at=$3
		WHERE id=$1 AND acknowledged_at IS NULL`, id, by, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *equipmentRepoPG) CloseBreach(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE temperature_breach SET closed_at=$2 WHERE id=$1 AND closed_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *equipmentRepoPG) AddBreachUnits(ctx context.Context, entries []*BreachUnit) error {
	for _, e := range entries {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO breach_unit (breach_id, unit_id, unit_number) VALUES ($1,$2,$3)`,
			e.BreachID, e.UnitID, e.UnitNumber); err != nil {
			return err
		}
	}
	return nil
}

const breachUnitCols = `breach_id, unit_id, unit_number, disposition, note, reviewed_by, reviewed_at`

func scanBreachUnit(row pgx.Row) (*BreachUnit, error) {
	var e BreachUnit
	err := row.Scan(&e.BreachID, &e.UnitID, &e.UnitNumber, &e.Disposition,
		&e.Note, &e.ReviewedBy, &e.ReviewedAt)
	return &e, err
}

func (r *equipmentRepoPG) GetBreachUnit(ctx context.Context, breachID, unitID uuid.UUID) (*BreachUnit, error) {
	return scanBreachUnit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+breachUnitCols+` FROM breach_unit WHERE breach_id = $1 AND unit_id = $2`,
		breachID, unitID))
}

func (r *equipmentRepoPG) ListBreachUnits(ctx context.Context, breachID uuid.UUID) ([]*BreachUnit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+breachUnitCols+` FROM breach_unit WHERE breach_id = $1 ORDER BY unit_number`, breachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BreachUnit
	for rows.Next() {
		e, err := scanBreachUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *equipmentRepoPG) SetBreachUnitDisposition(ctx context.Context, breachID, unitID uuid.UUID, d BreachDisposition, note *string, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE breach_unit SET disposition=$3, note=$4, reviewed_by=$5, reviewed_at=$6
		WHERE breach_id=$1 AND unit_id=$2 AND disposition IS NULL`,
		breachID, unitID, d, note, by, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *equipmentRepoPG) UndispositionedCount(ctx context.Context, breachID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM breach_unit WHERE breach_id = $1 AND disposition IS NULL`, breachID).Scan(&n)
	return n, err
}
