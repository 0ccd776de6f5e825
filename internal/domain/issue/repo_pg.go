package issue

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

type issueRepoPG struct{ pool *pgxpool.Pool }

func NewIssueRepoPG(pool *pgxpool.Pool) Repository {
	return &issueRepoPG{pool: pool}
}

func (r *issueRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const issueCols = `id, issue_number, branch_id, request_id, unit_id, unit_number,
	patient_id, issued_to, destination, override_reason, overridden_by,
	issued_by, issued_at, returned_at, created_at`

func scanIssue(row pgx.Row) (*Issue, error) {
	var i Issue
	err := row.Scan(&i.ID, &i.IssueNumber, &i.BranchID, &i.RequestID, &i.UnitID,
		&i.UnitNumber, &i.PatientID, &i.IssuedTo, &i.Destination, &i.OverrideReason,
		&i.OverriddenBy, &i.IssuedBy, &i.IssuedAt, &i.ReturnedAt, &i.CreatedAt)
	return &i, err
}

func (r *issueRepoPG) CreateIssue(ctx context.Context, i *Issue) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_issue (id, issue_number, branch_id, request_id, unit_id, unit_number,
			patient_id, issued_to, destination, override_reason, overridden_by, issued_by, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		i.ID, i.IssueNumber, i.BranchID, i.RequestID, i.UnitID, i.UnitNumber,
		i.PatientID, i.IssuedTo, i.Destination, i.OverrideReason, i.OverriddenBy,
		i.IssuedBy, i.IssuedAt)
	return err
}

func (r *issueRepoPG) GetIssue(ctx context.Context, id uuid.UUID) (*Issue, error) {
	return scanIssue(r.conn(ctx).QueryRow(ctx,
		`SELECT `+issueCols+` FROM blood_issue WHERE id = $1`, id))
}

func (r *issueRepoPG) ListIssues(ctx context.Context, params map[string]string, limit, offset int) ([]*Issue, int, error) {
	query := `SELECT ` + issueCols + ` FROM blood_issue WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM blood_issue WHERE 1=1`
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
	if p, ok := params["request_id"]; ok {
		addFilter(` AND request_id = $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}

func (r *issueRepoPG) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_issue SET returned_at=$2 WHERE id=$1 AND returned_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *issueRepoPG) NextIssueNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('blood_issue_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("BI-%06d", n), nil
}

const episodeCols = `id, issue_id, patient_id, status, started_by, started_at, ended_at, volume_ml, outcome_notes`

func scanEpisode(row pgx.Row) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.IssueID, &e.PatientID, &e.Status, &e.StartedBy,
		&e.StartedAt, &e.EndedAt, &e.VolumeML, &e.OutcomeNotes)
	return &e, err
}

func (r *issueRepoPG) CreateEpisode(ctx context.Context, e *Episode) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO transfusion_episode (id, issue_id, patient_id, status, started_by, started_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.IssueID, e.PatientID, e.Status, e.StartedBy, e.StartedAt)
	return err
}

func (r *issueRepoPG) GetEpisode(ctx context.Context, id uuid.UUID) (*Episode, error) {
	return scanEpisode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+episodeCols+` FROM transfusion_episode WHERE id = $1`, id))
}

func (r *issueRepoPG) OpenEpisodeByIssue(ctx context.Context, issueID uuid.UUID) (*Episode, error) {
	return scanEpisode(r.conn(ctx).QueryRow(ctx, `
		SELECT `+episodeCols+` FROM transfusion_episode
		WHERE issue_id = $1 AND status = 'IN_PROGRESS'
		ORDER BY started_at DESC LIMIT 1`, issueID))
}

func (r *issueRepoPG) EndEpisode(ctx context.Context, id uuid.UUID, status EpisodeStatus, volumeML *int, notes *string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE transfusion_episode SET status=$2, volume_ml=$3, outcome_notes=$4, ended_at=$5
		WHERE id=$1 AND status='IN_PROGRESS'`,
		id, status, volumeML, notes, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *issueRepoPG) AppendVitals(ctx context.Context, v *Vitals) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO transfusion_vitals (id, episode_id, temp_c, pulse_bpm, systolic_bp,
			diastolic_bp, note, recorded_by, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.EpisodeID, v.TempC, v.PulseBPM, v.SystolicBP, v.DiastolicBP,
		v.Note, v.RecordedBy, v.RecordedAt)
	return err
}

func (r *issueRepoPG) ListVitals(ctx context.Context, episodeID uuid.UUID) ([]*Vitals, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, episode_id, temp_c, pulse_bpm, systolic_bp, diastolic_bp, note, recorded_by, recorded_at
		FROM transfusion_vitals WHERE episode_id = $1 ORDER BY recorded_at`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Vitals
	for rows.Next() {
		var v Vitals
		if err := rows.Scan(&v.ID, &v.EpisodeID, &v.TempC, &v.PulseBPM, &v.SystolicBP,
			&v.DiastolicBP, &v.Note, &v.RecordedBy, &v.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}

const mtpCols = `id, branch_id, patient_id, patient_name, activated_by, activated_at, deactivated_by, deactivated_at`

func scanMTP(row pgx.Row) (*MTPSession, error) {
	var s MTPSession
	err := row.Scan(&s.ID, &s.BranchID, &s.PatientID, &s.PatientName,
		&s.ActivatedBy, &s.ActivatedAt, &s.DeactivatedBy, &s.DeactivatedAt)
	return &s, err
}

func (r *issueRepoPG) CreateMTPSession(ctx context.Context, s *MTPSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO mtp_session (id, branch_id, patient_id, patient_name, activated_by, activated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.BranchID, s.PatientID, s.PatientName, s.ActivatedBy, s.ActivatedAt)
	return err
}

func (r *issueRepoPG) GetMTPSession(ctx context.Context, id uuid.UUID) (*MTPSession, error) {
	return scanMTP(r.conn(ctx).QueryRow(ctx,
		`SELECT `+mtpCols+` FROM mtp_session WHERE id = $1`, id))
}

func (r *issueRepoPG) ActiveMTPSession(ctx context.Context, branchID, patientID string) (*MTPSession, error) {
	return scanMTP(r.conn(ctx).QueryRow(ctx, `
		SELECT `+mtpCols+` FROM mtp_session
		WHERE branch_id = $1 AND patient_id = $2 AND deactivated_at IS NULL
		ORDER BY activated_at DESC LIMIT 1`, branchID, patientID))
}

func (r *issueRepoPG) DeactivateMTPSession(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE mtp_session SET deactivated_by=$2, deactivated_at=$3
		WHERE id=$1 AND deactivated_at IS NULL`, id, by, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const reactionCols = `id, branch_id, issue_id, unit_id, patient_id, reaction_type,
	severity, symptoms, occurred_at, reported_by, created_at`

func scanReaction(row pgx.Row) (*Reaction, error) {
	var x Reaction
	err := row.Scan(&x.ID, &x.BranchID, &x.IssueID, &x.UnitID, &x.PatientID,
		&x.Type, &x.Severity, &x.Symptoms, &x.OccurredAt, &x.ReportedBy, &x.CreatedAt)
	return &x, err
}

func (r *issueRepoPG) CreateReaction(ctx context.Context, x *Reaction) error {
	if x.ID == uuid.Nil {
		x.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO transfusion_reaction (id, branch_id, issue_id, unit_id, patient_id,
			reaction_type, severity, symptoms, occurred_at, reported_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		x.ID, x.BranchID, x.IssueID, x.UnitID, x.PatientID,
		x.Type, x.Severity, x.Symptoms, x.OccurredAt, x.ReportedBy)
	return err
}

func (r *issueRepoPG) ListReactionsByPatient(ctx context.Context, patientID string) ([]*Reaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reactionCols+` FROM transfusion_reaction WHERE patient_id = $1 ORDER BY occurred_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reaction
	for rows.Next() {
		x, err := scanReaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, x)
	}
	return items, rows.Err()
}

func (r *issueRepoPG) ListReactions(ctx context.Context, params map[string]string, limit, offset int) ([]*Reaction, int, error) {
	query := `SELECT ` + reactionCols + ` FROM transfusion_reaction WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM transfusion_reaction WHERE 1=1`
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
	if p, ok := params["severity"]; ok {
		addFilter(` AND severity = $%d`, p)
	}
	if p, ok := params["reaction_type"]; ok {
		addFilter(` AND reaction_type = $%d`, p)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reaction
	for rows.Next() {
		x, err := scanReaction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, x)
	}
	return items, total, rows.Err()
}
