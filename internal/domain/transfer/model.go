// Package transfer moves batches of units between branches. A transfer
// claims its units up front, all or nothing; an in-flight claim blocks
// reservation, slotting, and every other state change until the batch is
// received or cancelled.
package transfer

import (
	"time"

	"github.com/google/uuid"
)

type TransferStatus string

const (
	StatusInitiated  TransferStatus = "INITIATED"
	StatusDispatched TransferStatus = "DISPATCHED"
	StatusReceived   TransferStatus = "RECEIVED"
	StatusCancelled  TransferStatus = "CANCELLED"
)

// Transfer is one batch shipment between branches.
type Transfer struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	TransferNumber string         `db:"transfer_number" json:"transfer_number"`
	FromBranchID   string         `db:"from_branch_id" json:"from_branch_id"`
	ToBranchID     string         `db:"to_branch_id" json:"to_branch_id"`
	Status         TransferStatus `db:"status" json:"status"`
	UnitCount      int            `db:"unit_count" json:"unit_count"`
	Courier        *string        `db:"courier" json:"courier,omitempty"`
	// BoxTempC is the transport box temperature logged at dispatch.
	BoxTempC     *float64   `db:"box_temp_c" json:"box_temp_c,omitempty"`
	Note         *string    `db:"note" json:"note,omitempty"`
	InitiatedBy  string     `db:"initiated_by" json:"initiated_by"`
	InitiatedAt  time.Time  `db:"initiated_at" json:"initiated_at"`
	DispatchedBy *string    `db:"dispatched_by" json:"dispatched_by,omitempty"`
	DispatchedAt *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ReceivedBy   *string    `db:"received_by" json:"received_by,omitempty"`
	ReceivedAt   *time.Time `db:"received_at" json:"received_at,omitempty"`
	CancelledBy  *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}
