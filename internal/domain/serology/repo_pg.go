package serology

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type serologyRepoPG struct{ pool *pgxpool.Pool }

func NewSerologyRepoPG(pool *pgxpool.Pool) Repository {
	return &serologyRepoPG{pool: pool}
}

func (r *serologyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const groupingCols = `id, unit_id, forward_group, reverse_group, antibody_screen, discrepancy,
	confirmed_group, resolution_note, resolved_by, resolved_at, recorded_by, created_at`

func scanGrouping(row pgx.Row) (*GroupingResult, error) {
	var g GroupingResult
	err := row.Scan(&g.ID, &g.UnitID, &g.Forward, &g.Reverse, &g.AntibodyScreen, &g.Discrepancy,
		&g.ConfirmedGroup, &g.ResolutionNote, &g.ResolvedBy, &g.ResolvedAt, &g.RecordedBy, &g.CreatedAt)
	return &g, err
}

func (r *serologyRepoPG) AppendGrouping(ctx context.Context, g *GroupingResult) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO grouping_result (id, unit_id, forward_group, reverse_group, antibody_screen,
			discrepancy, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		g.ID, g.UnitID, g.Forward, g.Reverse, g.AntibodyScreen, g.Discrepancy, g.RecordedBy)
	return err
}

func (r *serologyRepoPG) LatestGrouping(ctx context.Context, unitID uuid.UUID) (*GroupingResult, error) {
	return scanGrouping(r.conn(ctx).QueryRow(ctx, `
		SELECT `+groupingCols+` FROM grouping_result
		WHERE unit_id = $1 ORDER BY created_at DESC LIMIT 1`, unitID))
}

func (r *serologyRepoPG) ListGroupings(ctx context.Context, unitID uuid.UUID) ([]*GroupingResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+groupingCols+` FROM grouping_result
		WHERE unit_id = $1 ORDER BY created_at`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*GroupingResult
	for rows.Next() {
		g, err := scanGrouping(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

func (r *serologyRepoPG) ResolveGrouping(ctx context.Context, id uuid.UUID, confirmed unit.BloodGroup, note, resolvedBy string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE grouping_result
		SET confirmed_group=$2, resolution_note=$3, resolved_by=$4, resolved_at=$5
		WHERE id=$1 AND discrepancy AND resolved_at IS NULL`,
		id, confirmed, note, resolvedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *serologyRepoPG) AppendTTI(ctx context.Context, t *TTIResult) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tti_result (id, unit_id, marker, outcome, recorded_by)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.UnitID, t.Marker, t.Outcome, t.RecordedBy)
	return err
}

// LatestPanel returns the newest result per marker.
func (r *serologyRepoPG) LatestPanel(ctx context.Context, unitID uuid.UUID) (map[TTIMarker]*TTIResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (marker) id, unit_id, marker, outcome, recorded_by, created_at
		FROM tti_result WHERE unit_id = $1
		ORDER BY marker, created_at DESC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	panel := make(map[TTIMarker]*TTIResult)
	for rows.Next() {
		var t TTIResult
		if err := rows.Scan(&t.ID, &t.UnitID, &t.Marker, &t.Outcome, &t.RecordedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		panel[t.Marker] = &t
	}
	return panel, rows.Err()
}

func (r *serologyRepoPG) ListTTI(ctx context.Context, unitID uuid.UUID) ([]*TTIResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, unit_id, marker, outcome, recorded_by, created_at
		FROM tti_result WHERE unit_id = $1 ORDER BY created_at`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TTIResult
	for rows.Next() {
		var t TTIResult
		if err := rows.Scan(&t.ID, &t.UnitID, &t.Marker, &t.Outcome, &t.RecordedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, rows.Err()
}

func (r *serologyRepoPG) CreateVerification(ctx context.Context, v *Verification) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO test_verification (id, unit_id, decision, note, verified_by)
		VALUES ($1,$2,$3,$4,$5)`,
		v.ID, v.UnitID, v.Decision, v.Note, v.VerifiedBy)
	return err
}

func (r *serologyRepoPG) ListVerifications(ctx context.Context, unitID uuid.UUID) ([]*Verification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, unit_id, decision, note, verified_by, created_at
		FROM test_verification WHERE unit_id = $1 ORDER BY created_at`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Verification
	for rows.Next() {
		var v Verification
		if err := rows.Scan(&v.ID, &v.UnitID, &v.Decision, &v.Note, &v.VerifiedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
