package issue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists issues, transfusion episodes, MTP sessions, and
// reaction reports.
type Repository interface {
	CreateIssue(ctx context.Context, i *Issue) error
	GetIssue(ctx context.Context, id uuid.UUID) (*Issue, error)
	ListIssues(ctx context.Context, params map[string]string, limit, offset int) ([]*Issue, int, error)
	// MarkReturned stamps the return; it refuses an issue already returned.
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	NextIssueNumber(ctx context.Context) (string, error)

	CreateEpisode(ctx context.Context, e *Episode) error
	GetEpisode(ctx context.Context, id uuid.UUID) (*Episode, error)
	// OpenEpisodeByIssue returns the in-progress episode for an issue, or
	// pgx.ErrNoRows when none is running.
	OpenEpisodeByIssue(ctx context.Context, issueID uuid.UUID) (*Episode, error)
	// EndEpisode closes an in-progress episode; false when it already ended.
	EndEpisode(ctx context.Context, id uuid.UUID, status EpisodeStatus, volumeML *int, notes *string, at time.Time) (bool, error)
	AppendVitals(ctx context.Context, v *Vitals) error
	ListVitals(ctx context.Context, episodeID uuid.UUID) ([]*Vitals, error)

	CreateMTPSession(ctx context.Context, s *MTPSession) error
	GetMTPSession(ctx context.Context, id uuid.UUID) (*MTPSession, error)
	// ActiveMTPSession returns the patient's running session, or
	// pgx.ErrNoRows when the protocol is not active.
	ActiveMTPSession(ctx context.Context, branchID, patientID string) (*MTPSession, error)
	DeactivateMTPSession(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)

	CreateReaction(ctx context.Context, r *Reaction) error
	ListReactionsByPatient(ctx context.Context, patientID string) ([]*Reaction, error)
	ListReactions(ctx context.Context, params map[string]string, limit, offset int) ([]*Reaction, int, error)
}
