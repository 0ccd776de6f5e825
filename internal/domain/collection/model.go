// Package collection covers the donation-side workflow: pre-donation
// screening with consent, the phlebotomy episode itself, and separation
// of a multi-bag draw into storable components.
package collection

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

// ScreeningOutcome is the result of a pre-donation screening.
type ScreeningOutcome string

const (
	ScreeningPassed   ScreeningOutcome = "PASSED"
	ScreeningFailed   ScreeningOutcome = "FAILED"
	ScreeningDeferred ScreeningOutcome = "DEFERRED"
)

// Screening maps to the donor_screening table.
type Screening struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	DonorID       uuid.UUID        `db:"donor_id" json:"donor_id"`
	BranchID      string           `db:"branch_id" json:"branch_id"`
	ConsentGiven  bool             `db:"consent_given" json:"consent_given"`
	HemoglobinGDL float64          `db:"hemoglobin_gdl" json:"hemoglobin_gdl"`
	WeightKG      float64          `db:"weight_kg" json:"weight_kg"`
	PulseBPM      int              `db:"pulse_bpm" json:"pulse_bpm"`
	BPSystolic    int              `db:"bp_systolic" json:"bp_systolic"`
	BPDiastolic   int              `db:"bp_diastolic" json:"bp_diastolic"`
	TemperatureC  float64          `db:"temperature_c" json:"temperature_c"`
	Outcome       ScreeningOutcome `db:"outcome" json:"outcome"`
	Notes         *string          `db:"notes" json:"notes,omitempty"`
	ScreenedBy    string           `db:"screened_by" json:"screened_by"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// Screening acceptance thresholds.
const (
	minHemoglobinGDL = 12.5
	minWeightKG      = 45.0
	minPulseBPM      = 50
	maxPulseBPM      = 100
	maxTemperatureC  = 37.5
)

// DonationStatus tracks the collection episode, not the unit.
type DonationStatus string

const (
	DonationInProgress DonationStatus = "IN_PROGRESS"
	DonationCompleted  DonationStatus = "COMPLETED"
	DonationAborted    DonationStatus = "ABORTED"
)

// Bag configurations. The bag type decides which components a donation
// can be separated into; single bags are stored as whole blood.
const (
	BagSingle    = "single"
	BagDouble    = "double"
	BagTriple    = "triple"
	BagQuadruple = "quadruple"
)

var validBagTypes = map[string]bool{
	BagSingle: true, BagDouble: true, BagTriple: true, BagQuadruple: true,
}

// ValidBagType reports whether bagType is a known configuration.
func ValidBagType(bagType string) bool { return validBagTypes[bagType] }

// nominalDrawML is the provisional unit volume stamped at the start of a
// draw; the final measured volume replaces it when the collection ends.
const nominalDrawML = 450

// Donation maps to the donation table. CollectedAt marks the start of
// the draw; EndedAt is set when the episode completes or aborts.
type Donation struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	DonationNumber string         `db:"donation_number" json:"donation_number"`
	DonorID        uuid.UUID      `db:"donor_id" json:"donor_id"`
	ScreeningID    uuid.UUID      `db:"screening_id" json:"screening_id"`
	BranchID       string         `db:"branch_id" json:"branch_id"`
	BagType        string         `db:"bag_type" json:"bag_type"`
	Status         DonationStatus `db:"status" json:"status"`
	VolumeML       int            `db:"volume_ml" json:"volume_ml"`
	PilotTubeCount int            `db:"pilot_tube_count" json:"pilot_tube_count"`
	Phlebotomist   string         `db:"phlebotomist" json:"phlebotomist"`
	CollectedAt    time.Time      `db:"collected_at" json:"collected_at"`
	EndedAt        *time.Time     `db:"ended_at" json:"ended_at,omitempty"`
	AbortReason    *string        `db:"abort_reason" json:"abort_reason,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// AdverseEvent is an append-only note about the donor's condition during
// the draw. It never alters unit state.
type AdverseEvent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DonationID uuid.UUID `db:"donation_id" json:"donation_id"`
	Note       string    `db:"note" json:"note"`
	RecordedBy string    `db:"recorded_by" json:"recorded_by"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// ComponentSpec is one child unit to derive from a donation during
// separation.
type ComponentSpec struct {
	ComponentType unit.ComponentType `json:"component_type"`
	VolumeML      int                `json:"volume_ml"`
	BagType       string             `json:"bag_type"`
}
