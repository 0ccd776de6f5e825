package donor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Donor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donor, error)
	GetByDonorNumber(ctx context.Context, donorNumber string) (*Donor, error)
	Update(ctx context.Context, d *Donor) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Donor, int, error)
	NextDonorNumber(ctx context.Context) (string, error)

	CreateDeferral(ctx context.Context, def *Deferral) error
	ActiveDeferrals(ctx context.Context, donorID uuid.UUID, now time.Time) ([]*Deferral, error)
	ListDeferrals(ctx context.Context, donorID uuid.UUID) ([]*Deferral, error)
	EndDeferral(ctx context.Context, id uuid.UUID, endDate time.Time) (bool, error)

	LastDonationAt(ctx context.Context, donorID uuid.UUID) (*time.Time, error)
}
