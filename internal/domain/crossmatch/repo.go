package crossmatch

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the reservation ledger.
type Repository interface {
	CreateRequest(ctx context.Context, r *BloodRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*BloodRequest, error)
	ListRequests(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodRequest, int, error)
	// SetRequestStatus is a CAS from the expected current status.
	SetRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (bool, error)
	NextRequestNumber(ctx context.Context) (string, error)

	CreateSample(ctx context.Context, s *PatientSample) error
	// GetSampleByRequest returns pgx.ErrNoRows when no sample is registered.
	GetSampleByRequest(ctx context.Context, requestID uuid.UUID) (*PatientSample, error)

	CreateCrossmatch(ctx context.Context, x *Crossmatch) error
	// LatestCrossmatch returns the most recent attempt for a request/unit
	// pair, pgx.ErrNoRows if none.
	LatestCrossmatch(ctx context.Context, requestID, unitID uuid.UUID) (*Crossmatch, error)
	ListCrossmatches(ctx context.Context, requestID uuid.UUID) ([]*Crossmatch, error)
	NextCrossmatchNumber(ctx context.Context) (string, error)
}
