package collection

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

type collectionRepoPG struct{ pool *pgxpool.Pool }

func NewCollectionRepoPG(pool *pgxpool.Pool) Repository {
	return &collectionRepoPG{pool: pool}
}

func (r *collectionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const screeningCols = `id, donor_id, branch_id, consent_given, hemoglobin_gdl, weight_kg,
	pulse_bpm, bp_systolic, bp_diastolic, temperature_c, outcome, notes, screened_by, created_at`

func scanScreening(row pgx.Row) (*Screening, error) {
	var s Screening
	err := row.Scan(&s.ID, &s.DonorID, &s.BranchID, &s.ConsentGiven, &s.HemoglobinGDL,
		&s.WeightKG, &s.PulseBPM, &s.BPSystolic, &s.BPDiastolic, &s.TemperatureC,
		&s.Outcome, &s.Notes, &s.ScreenedBy, &s.CreatedAt)
	return &s, err
}

func (r *collectionRepoPG) CreateScreening(ctx context.Context, s *Screening) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donor_screening (id, donor_id, branch_id, consent_given, hemoglobin_gdl,
			weight_kg, pulse_bpm, bp_systolic, bp_diastolic, temperature_c, outcome, notes, screened_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.DonorID, s.BranchID, s.ConsentGiven, s.HemoglobinGDL,
		s.WeightKG, s.PulseBPM, s.BPSystolic, s.BPDiastolic, s.TemperatureC,
		s.Outcome, s.Notes, s.ScreenedBy)
	return err
}

func (r *collectionRepoPG) GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error) {
	return scanScreening(r.conn(ctx).QueryRow(ctx, `SELECT `+screeningCols+` FROM donor_screening WHERE id = $1`, id))
}

func (r *collectionRepoPG) ListScreeningsByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Screening, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donor_screening WHERE donor_id = $1`, donorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+screeningCols+` FROM donor_screening
		WHERE donor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		donorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Screening
	for rows.Next() {
		s, err := scanScreening(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

func (r *collectionRepoPG) SetScreeningConsent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE donor_screening SET consent_given = true WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const donationCols = `id, donation_number, donor_id, screening_id, branch_id, bag_type,
	status, volume_ml, pilot_tube_count, phlebotomist, collected_at, ended_at, abort_reason, created_at`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(&d.ID, &d.DonationNumber, &d.DonorID, &d.ScreeningID, &d.BranchID,
		&d.BagType, &d.Status, &d.VolumeML, &d.PilotTubeCount, &d.Phlebotomist,
		&d.CollectedAt, &d.EndedAt, &d.AbortReason, &d.CreatedAt)
	return &d, err
}

func (r *collectionRepoPG) CreateDonation(ctx context.Context, d *Donation) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donation (id, donation_number, donor_id, screening_id, branch_id,
			bag_type, status, volume_ml, pilot_tube_count, phlebotomist, collected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.DonationNumber, d.DonorID, d.ScreeningID, d.BranchID,
		d.BagType, d.Status, d.VolumeML, d.PilotTubeCount, d.Phlebotomist, d.CollectedAt)
	return err
}

func (r *collectionRepoPG) GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return scanDonation(r.conn(ctx).QueryRow(ctx, `SELECT `+donationCols+` FROM donation WHERE id = $1`, id))
}

func (r *collectionRepoPG) GetDonationByScreening(ctx context.Context, screeningID uuid.UUID) (*Donation, error) {
	return scanDonation(r.conn(ctx).QueryRow(ctx, `SELECT `+donationCols+` FROM donation WHERE screening_id = $1`, screeningID))
}

func (r *collectionRepoPG) ListDonations(ctx context.Context, params map[string]string, limit, offset int) ([]*Donation, int, error) {
	query := `SELECT ` + donationCols + ` FROM donation WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM donation WHERE 1=1`
	var args []interface{}
	idx := 1

	addFilter := func(clause string, value interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, value)
		idx++
	}

	if v, ok := params["branch_id"]; ok {
		addFilter(" AND branch_id = $%d", v)
	}
	if v, ok := params["donor_id"]; ok {
		addFilter(" AND donor_id = $%d", v)
	}
	if v, ok := params["status"]; ok {
		addFilter(" AND status = $%d", v)
	}
	if v, ok := params["collected_from"]; ok {
		addFilter(" AND collected_at >= $%d", v)
	}
	if v, ok := params["collected_to"]; ok {
		addFilter(" AND collected_at <= $%d", v)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(" ORDER BY collected_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *collectionRepoPG) NextDonationNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('donation_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("DON-%06d", n), nil
}

func (r *collectionRepoPG) CompleteDonation(ctx context.Context, id uuid.UUID, volumeML, pilotTubes int, endedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE donation SET status=$2, volume_ml=$3, pilot_tube_count=$4, ended_at=$5
		WHERE id=$1 AND status=$6`,
		id, DonationCompleted, volumeML, pilotTubes, endedAt, DonationInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *collectionRepoPG) AbortDonation(ctx context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE donation SET status=$2, abort_reason=$3, ended_at=$4
		WHERE id=$1 AND status=$5`,
		id, DonationAborted, reason, endedAt, DonationInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *collectionRepoPG) AppendAdverseEvent(ctx context.Context, e *AdverseEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donation_adverse_event (id, donation_id, note, recorded_by, recorded_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.DonationID, e.Note, e.RecordedBy, e.RecordedAt)
	return err
}

func (r *collectionRepoPG) ListAdverseEvents(ctx context.Context, donationID uuid.UUID) ([]*AdverseEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, donation_id, note, recorded_by, recorded_at
		FROM donation_adverse_event WHERE donation_id = $1 ORDER BY recorded_at`,
		donationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AdverseEvent
	for rows.Next() {
		var e AdverseEvent
		if err := rows.Scan(&e.ID, &e.DonationID, &e.Note, &e.RecordedBy, &e.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
