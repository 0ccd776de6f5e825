package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for screenings and donations.
// Donation transition methods return false when no row matched the
// expected current status.
type Repository interface {
	CreateScreening(ctx context.Context, s *Screening) error
	GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error)
	ListScreeningsByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Screening, int, error)
	SetScreeningConsent(ctx context.Context, id uuid.UUID) (bool, error)

	CreateDonation(ctx context.Context, d *Donation) error
	GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error)
	GetDonationByScreening(ctx context.Context, screeningID uuid.UUID) (*Donation, error)
	ListDonations(ctx context.Context, params map[string]string, limit, offset int) ([]*Donation, int, error)
	NextDonationNumber(ctx context.Context) (string, error)
	CompleteDonation(ctx context.Context, id uuid.UUID, volumeML, pilotTubes int, endedAt time.Time) (bool, error)
	AbortDonation(ctx context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error)

	AppendAdverseEvent(ctx context.Context, e *AdverseEvent) error
	ListAdverseEvents(ctx context.Context, donationID uuid.UUID) ([]*AdverseEvent, error)
}
