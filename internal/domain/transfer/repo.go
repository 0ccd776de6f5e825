package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists transfers. Unit claims live on blood_unit and are
// managed through the unit package.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	Get(ctx context.Context, id uuid.UUID) (*Transfer, error)
	List(ctx context.Context, params map[string]interface{}, limit, offset int) ([]*Transfer, int, error)

	// MarkDispatched moves INITIATED -> DISPATCHED. Returns false when the
	// transfer is no longer in INITIATED.
	MarkDispatched(ctx context.Context, id uuid.UUID, by string, courier *string, boxTempC *float64, at time.Time) (bool, error)
	// MarkReceived moves DISPATCHED -> RECEIVED.
	MarkReceived(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)
	// MarkCancelled moves INITIATED -> CANCELLED. A dispatched batch cannot
	// be cancelled; it must be received at the destination.
	MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)

	NextTransferNumber(ctx context.Context) (string, error)
}
