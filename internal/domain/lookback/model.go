// Package lookback runs donor-triggered investigations: when a donor
// turns out to have been infectious or implicated in a reaction, every
// in-date unit from their donations is traced, held, and dispositioned.
package lookback

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

type CaseStatus string

const (
	CaseOpen   CaseStatus = "OPEN"
	CaseClosed CaseStatus = "CLOSED"
)

// Case is one investigation. A donor has at most one open case; a new
// trigger while a case is open is appended to it.
type Case struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CaseNumber string     `db:"case_number" json:"case_number"`
	BranchID   string     `db:"branch_id" json:"branch_id"`
	DonorID    uuid.UUID  `db:"donor_id" json:"donor_id"`
	Trigger    string     `db:"trigger" json:"trigger"`
	Note       string     `db:"note" json:"note"`
	Status     CaseStatus `db:"status" json:"status"`
	OpenedBy   string     `db:"opened_by" json:"opened_by"`
	OpenedAt   time.Time  `db:"opened_at" json:"opened_at"`
	ClosedBy   *string    `db:"closed_by" json:"closed_by,omitempty"`
	ClosedAt   *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// EntryDisposition is the final decision on one traced unit.
type EntryDisposition string

const (
	EntryDiscarded         EntryDisposition = "DISCARDED"
	EntryReleased          EntryDisposition = "RELEASED"
	EntryRecipientNotified EntryDisposition = "RECIPIENT_NOTIFIED"
	EntryNoAction          EntryDisposition = "NO_ACTION"
)

var validDispositions = map[EntryDisposition]bool{
	EntryDiscarded: true, EntryReleased: true,
	EntryRecipientNotified: true, EntryNoAction: true,
}

func ValidDisposition(d EntryDisposition) bool { return validDispositions[d] }

// Entry is one unit swept into a case, snapshotted at detection. A
// transfused unit flags its recipient for notification; a live unit is
// quarantined until dispositioned.
type Entry struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	CaseID     uuid.UUID       `db:"case_id" json:"case_id"`
	UnitID     uuid.UUID       `db:"unit_id" json:"unit_id"`
	UnitNumber string          `db:"unit_number" json:"unit_number"`
	DonationID uuid.UUID       `db:"donation_id" json:"donation_id"`
	UnitStatus unit.UnitStatus `db:"unit_status" json:"unit_status"`
	// Quarantined records whether the sweep put the unit on hold.
	Quarantined bool              `db:"quarantined" json:"quarantined"`
	Disposition *EntryDisposition `db:"disposition" json:"disposition,omitempty"`
	Note        *string           `db:"note" json:"note,omitempty"`
	ResolvedBy  *string           `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
}
