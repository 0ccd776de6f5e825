// Package unit holds the blood unit lifecycle: a closed state machine from
// collection through testing, inventory, issue and final disposition. Every
// status change goes through a compare-and-swap on the current status, so
// two clinicians acting on the same unit can never both win.
package unit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnitStatus is the lifecycle state of a blood unit.
type UnitStatus string

const (
	StatusCollected      UnitStatus = "COLLECTED"
	StatusTestingPending UnitStatus = "TESTING_PENDING"
	StatusQuarantined    UnitStatus = "QUARANTINED"
	StatusAvailable      UnitStatus = "AVAILABLE"
	StatusReserved       UnitStatus = "RESERVED"
	StatusIssued         UnitStatus = "ISSUED"
	StatusTransfused     UnitStatus = "TRANSFUSED"
	StatusDiscarded      UnitStatus = "DISCARDED"
	StatusExpired        UnitStatus = "EXPIRED"
)

// validTransitions is the closed transition table. A status not present as a
// key is terminal.
var validTransitions = map[UnitStatus][]UnitStatus{
	StatusCollected:      {StatusTestingPending, StatusQuarantined, StatusDiscarded},
	StatusTestingPending: {StatusAvailable, StatusQuarantined, StatusDiscarded},
	StatusQuarantined:    {StatusAvailable, StatusExpired, StatusDiscarded},
	StatusAvailable:      {StatusReserved, StatusQuarantined, StatusExpired, StatusDiscarded},
	StatusReserved:       {StatusIssued, StatusAvailable, StatusQuarantined, StatusDiscarded},
	StatusIssued:         {StatusTransfused, StatusAvailable, StatusDiscarded},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to UnitStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s UnitStatus) bool {
	return len(validTransitions[s]) == 0
}

// Quarantinable reports whether a unit in status s can be placed in
// quarantine. Issued units are already out of the fridge and terminal units
// have no edge left, so neither can move to QUARANTINED.
func Quarantinable(s UnitStatus) bool {
	switch s {
	case StatusCollected, StatusTestingPending, StatusAvailable, StatusReserved:
		return true
	}
	return false
}

var validStatuses = map[UnitStatus]bool{
	StatusCollected: true, StatusTestingPending: true, StatusQuarantined: true,
	StatusAvailable: true, StatusReserved: true, StatusIssued: true,
	StatusTransfused: true, StatusDiscarded: true, StatusExpired: true,
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s UnitStatus) bool { return validStatuses[s] }

// BloodGroup is an ABO/Rh phenotype.
type BloodGroup string

const (
	APos  BloodGroup = "A_POS"
	ANeg  BloodGroup = "A_NEG"
	BPos  BloodGroup = "B_POS"
	BNeg  BloodGroup = "B_NEG"
	ABPos BloodGroup = "AB_POS"
	ABNeg BloodGroup = "AB_NEG"
	OPos  BloodGroup = "O_POS"
	ONeg  BloodGroup = "O_NEG"
)

var validBloodGroups = map[BloodGroup]bool{
	APos: true, ANeg: true, BPos: true, BNeg: true,
	ABPos: true, ABNeg: true, OPos: true, ONeg: true,
}

// ValidBloodGroup reports whether g is a known ABO/Rh group.
func ValidBloodGroup(g BloodGroup) bool { return validBloodGroups[g] }

// redCellCompatibility maps a recipient group to the donor groups whose red
// cells it can receive.
var redCellCompatibility = map[BloodGroup][]BloodGroup{
	APos:  {APos, ANeg, OPos, ONeg},
	ANeg:  {ANeg, ONeg},
	BPos:  {BPos, BNeg, OPos, ONeg},
	BNeg:  {BNeg, ONeg},
	ABPos: {APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
	ABNeg: {ANeg, BNeg, ABNeg, ONeg},
	OPos:  {OPos, ONeg},
	ONeg:  {ONeg},
}

// Compatible reports whether a recipient of the given group can receive red
// cells from the donor group.
func Compatible(recipient, donor BloodGroup) bool {
	for _, g := range redCellCompatibility[recipient] {
		if g == donor {
			return true
		}
	}
	return false
}

// CompatibleDonorGroups returns the donor groups acceptable for a recipient.
func CompatibleDonorGroups(recipient BloodGroup) []BloodGroup {
	return redCellCompatibility[recipient]
}

// ComponentType identifies the blood component in the bag.
type ComponentType string

const (
	WholeBlood        ComponentType = "WHOLE_BLOOD"
	PackedRedCells    ComponentType = "PRBC"
	FreshFrozenPlasma ComponentType = "FFP"
	Platelets         ComponentType = "PLATELETS"
	Cryoprecipitate   ComponentType = "CRYOPRECIPITATE"
)

// shelfLife is the storage life per component under standard conditions.
var shelfLife = map[ComponentType]time.Duration{
	WholeBlood:        35 * 24 * time.Hour,
	PackedRedCells:    42 * 24 * time.Hour,
	FreshFrozenPlasma: 365 * 24 * time.Hour,
	Platelets:         5 * 24 * time.Hour,
	Cryoprecipitate:   365 * 24 * time.Hour,
}

var validComponents = map[ComponentType]bool{
	WholeBlood: true, PackedRedCells: true, FreshFrozenPlasma: true,
	Platelets: true, Cryoprecipitate: true,
}

// ValidComponent reports whether c is a known component type.
func ValidComponent(c ComponentType) bool { return validComponents[c] }

// ExpiryFor computes the expiry timestamp for a component collected at the
// given time.
func ExpiryFor(component ComponentType, collectedAt time.Time) time.Time {
	life, ok := shelfLife[component]
	if !ok {
		life = 35 * 24 * time.Hour
	}
	return collectedAt.Add(life)
}

// DiscardReason codes accepted when discarding a unit.
const (
	DiscardExpired       = "EXPIRED"
	DiscardTTIReactive   = "TTI_REACTIVE"
	DiscardBagLeak       = "BAG_LEAK"
	DiscardClot          = "CLOT"
	DiscardLipemic       = "LIPEMIC"
	DiscardHemolyzed     = "HEMOLYZED"
	DiscardQCFailure     = "QC_FAILURE"
	DiscardReturnTimeout = "RETURN_TIMEOUT"
	DiscardOther         = "OTHER"
)

var validDiscardReasons = map[string]bool{
	DiscardExpired: true, DiscardTTIReactive: true, DiscardBagLeak: true,
	DiscardClot: true, DiscardLipemic: true, DiscardHemolyzed: true,
	DiscardQCFailure: true, DiscardReturnTimeout: true, DiscardOther: true,
}

// ValidDiscardReason reports whether reason is a known discard code.
func ValidDiscardReason(reason string) bool { return validDiscardReasons[reason] }

// BreachReasonPrefix marks quarantine reasons written by a temperature
// breach. Units quarantined under such a reason can only leave quarantine
// through a breach review.
const BreachReasonPrefix = "temperature breach"

// BloodUnit maps to the blood_unit table.
type BloodUnit struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	UnitNumber    string        `db:"unit_number" json:"unit_number"`
	DonationID    *uuid.UUID    `db:"donation_id" json:"donation_id,omitempty"`
	BranchID      string        `db:"branch_id" json:"branch_id"`
	BloodGroup    BloodGroup    `db:"blood_group" json:"blood_group"`
	ComponentType ComponentType `db:"component_type" json:"component_type"`
	BagType       string        `db:"bag_type" json:"bag_type,omitempty"`
	VolumeML      int           `db:"volume_ml" json:"volume_ml"`
	Status        UnitStatus    `db:"status" json:"status"`

	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`

	// StorageSlotID is the equipment slot the unit currently occupies.
	StorageSlotID *uuid.UUID `db:"storage_slot_id" json:"storage_slot_id,omitempty"`

	// ReservedRequestID links a RESERVED/ISSUED unit to the blood request
	// that claimed it.
	ReservedRequestID *uuid.UUID `db:"reserved_request_id" json:"reserved_request_id,omitempty"`
	ReservedAt        *time.Time `db:"reserved_at" json:"reserved_at,omitempty"`

	// TransferID is set while the unit is claimed by an in-flight branch
	// transfer. A claimed unit stays AVAILABLE but cannot be reserved,
	// issued or discarded until the transfer completes or is cancelled.
	TransferID *uuid.UUID `db:"transfer_id" json:"transfer_id,omitempty"`

	QuarantineReason *string    `db:"quarantine_reason" json:"quarantine_reason,omitempty"`
	DiscardReason    *string    `db:"discard_reason" json:"discard_reason,omitempty"`
	DiscardNote      *string    `db:"discard_note" json:"discard_note,omitempty"`
	IssuedAt         *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	TransfusedAt     *time.Time `db:"transfused_at" json:"transfused_at,omitempty"`
	DiscardedAt      *time.Time `db:"discarded_at" json:"discarded_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the unit is past its expiry at the given time.
func (u *BloodUnit) Expired(now time.Time) bool {
	return !u.ExpiresAt.After(now)
}

// TransferPending reports whether the unit is claimed by an in-flight
// transfer.
func (u *BloodUnit) TransferPending() bool {
	return u.TransferID != nil
}

// BreachQuarantined reports whether the unit's quarantine was raised by a
// temperature breach.
func (u *BloodUnit) BreachQuarantined() bool {
	return u.Status == StatusQuarantined && u.QuarantineReason != nil &&
		strings.HasPrefix(*u.QuarantineReason, BreachReasonPrefix)
}
