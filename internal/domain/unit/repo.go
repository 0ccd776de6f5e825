package unit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InventoryRow is one line of the available-stock summary.
type InventoryRow struct {
	BloodGroup    BloodGroup    `json:"blood_group"`
	ComponentType ComponentType `json:"component_type"`
	Count         int           `json:"count"`
	NearestExpiry time.Time     `json:"nearest_expiry"`
	LowStock      bool          `json:"low_stock"`
}

// Repository is the persistence contract for blood units. Transition methods
// return false when no row matched the expected current status; the caller
// decides whether that is a missing unit or a lost race.
type Repository interface {
	Create(ctx context.Context, u *BloodUnit) error
	GetByID(ctx context.Context, id uuid.UUID) (*BloodUnit, error)
	GetByUnitNumber(ctx context.Context, unitNumber string) (*BloodUnit, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodUnit, int, error)
	NextUnitNumber(ctx context.Context) (string, error)

	UpdateCollectedVolume(ctx context.Context, id uuid.UUID, volumeML int) (bool, error)
	ConfirmBloodGroup(ctx context.Context, id uuid.UUID, group BloodGroup) (bool, error)
	MoveToTesting(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseToInventory(ctx context.Context, id uuid.UUID) (bool, error)
	Quarantine(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ReleaseQuarantine(ctx context.Context, id uuid.UUID) (bool, error)

	Reserve(ctx context.Context, id, requestID uuid.UUID, now time.Time) (bool, error)
	ReleaseReservation(ctx context.Context, id uuid.UUID) (bool, error)
	Issue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ReturnToInventory(ctx context.Context, id uuid.UUID) (bool, error)
	MarkTransfused(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Discard(ctx context.Context, id uuid.UUID, reason string, note *string, now time.Time) (bool, error)

	AssignSlot(ctx context.Context, id, slotID uuid.UUID) (bool, error)
	ClearSlot(ctx context.Context, id uuid.UUID) (bool, error)
	ListBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]*BloodUnit, error)
	QuarantineBySlots(ctx context.Context, slotIDs []uuid.UUID, reason string) (int, error)

	ClaimForTransfer(ctx context.Context, ids []uuid.UUID, transferID uuid.UUID, branchID string) (int, error)
	ReleaseTransferClaim(ctx context.Context, transferID uuid.UUID) (int, error)
	CompleteTransfer(ctx context.Context, transferID uuid.UUID, destBranchID string) (int, error)
	ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*BloodUnit, error)

	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
	ReleaseStaleReservations(ctx context.Context, cutoff time.Time) (int, error)

	AvailableSummary(ctx context.Context, branchID string) ([]InventoryRow, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*BloodUnit, error)
	ListByReservedRequest(ctx context.Context, requestID uuid.UUID) ([]*BloodUnit, error)
}
