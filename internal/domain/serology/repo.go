package serology

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

// Repository is the persistence contract for test results. All result
// tables are append-only; resolution marks rows rather than replacing them.
type Repository interface {
	AppendGrouping(ctx context.Context, g *GroupingResult) error
	LatestGrouping(ctx context.Context, unitID uuid.UUID) (*GroupingResult, error)
	ListGroupings(ctx context.Context, unitID uuid.UUID) ([]*GroupingResult, error)
	ResolveGrouping(ctx context.Context, id uuid.UUID, confirmed unit.BloodGroup, note, resolvedBy string, at time.Time) (bool, error)

	AppendTTI(ctx context.Context, r *TTIResult) error
	LatestPanel(ctx context.Context, unitID uuid.UUID) (map[TTIMarker]*TTIResult, error)
	ListTTI(ctx context.Context, unitID uuid.UUID) ([]*TTIResult, error)

	CreateVerification(ctx context.Context, v *Verification) error
	ListVerifications(ctx context.Context, unitID uuid.UUID) ([]*Verification, error)
}
