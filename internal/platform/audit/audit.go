// Package audit records who did what to which record. Every state-changing
// blood bank operation writes an audit entry after its transaction commits,
// so the audit trail reflects only changes that actually happened.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Entry is a single audit record.
type Entry struct {
	ID         uuid.UUID              `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	BranchID   string                 `json:"branch_id"`
	ActorID    string                 `json:"actor_id"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Recorder persists audit entries and mirrors them to the structured log.
// It writes with its own connection, never the caller's transaction: audit
// recording happens after commit and must not be rolled back with business
// state, nor fail the business operation.
type Recorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewRecorder(pool *pgxpool.Pool, logger zerolog.Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

// Record writes the entry. Persistence failures are logged, not returned:
// an audit outage must not block clinical operations.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	r.logger.Info().
		Str("audit_id", e.ID.String()).
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID).
		Str("branch_id", e.BranchID).
		Str("actor_id", e.ActorID).
		Msg("audit")

	if r.pool == nil {
		return
	}

	var meta []byte
	if e.Meta != nil {
		meta, _ = json.Marshal(e.Meta)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (id, action, entity_type, entity_id, branch_id, actor_id, meta, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Action, e.EntityType, e.EntityID, e.BranchID, e.ActorID, meta, e.RecordedAt)
	if err != nil {
		r.logger.Error().Err(err).
			Str("action", e.Action).
			Str("entity_id", e.EntityID).
			Msg("failed to persist audit entry")
	}
}
