package lookback

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists lookback cases and their traced units.
type Repository interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id uuid.UUID) (*Case, error)
	// OpenCaseByDonor returns the donor's open case, or pgx.ErrNoRows.
	OpenCaseByDonor(ctx context.Context, donorID uuid.UUID) (*Case, error)
	// AppendCaseNote adds a line to an open case's note trail.
	AppendCaseNote(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error)
	ListCases(ctx context.Context, params map[string]string, limit, offset int) ([]*Case, int, error)
	// CloseCase closes an open case; false when it was not open.
	CloseCase(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)
	NextCaseNumber(ctx context.Context) (string, error)
	CountOpenCases(ctx context.Context) (int, error)

	AddEntries(ctx context.Context, entries []*Entry) error
	GetEntry(ctx context.Context, caseID, unitID uuid.UUID) (*Entry, error)
	ListEntries(ctx context.Context, caseID uuid.UUID) ([]*Entry, error)
	// SetEntryDisposition stamps the decision once; false when the entry
	// was already dispositioned.
	SetEntryDisposition(ctx context.Context, caseID, unitID uuid.UUID, d EntryDisposition, note *string, by string, at time.Time) (bool, error)
	UndispositionedCount(ctx context.Context, caseID uuid.UUID) (int, error)
}
