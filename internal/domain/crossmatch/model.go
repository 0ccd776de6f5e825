// Package crossmatch is the reservation ledger: clinical blood requests,
// patient samples, compatibility testing, and the exclusive binding of
// specific units to a request.
package crossmatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

// Urgency drives turnaround expectations. MTP requests belong to an active
// massive-transfusion session and bypass them entirely.
type Urgency string

const (
	UrgencyRoutine   Urgency = "ROUTINE"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyMTP       Urgency = "MTP"
)

var validUrgencies = map[Urgency]bool{
	UrgencyRoutine: true, UrgencyUrgent: true, UrgencyEmergency: true, UrgencyMTP: true,
}

// ValidUrgency reports whether u is a known urgency level.
func ValidUrgency(u Urgency) bool { return validUrgencies[u] }

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "OPEN"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// BloodRequest maps to the blood_request table. The patient is an external
// identity; only the attributes the compatibility decisions need are kept
// here.
type BloodRequest struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RequestNumber string    `db:"request_number" json:"request_number"`
	BranchID      string    `db:"branch_id" json:"branch_id"`

	PatientID         string          `db:"patient_id" json:"patient_id"`
	PatientName       string          `db:"patient_name" json:"patient_name"`
	PatientBloodGroup unit.BloodGroup `db:"patient_blood_group" json:"patient_blood_group"`
	// AntibodyScreen is the patient's latest antibody screen result, when
	// known. Electronic cross-match requires it to be NEGATIVE.
	AntibodyScreen *string `db:"antibody_screen" json:"antibody_screen,omitempty"`

	ComponentType unit.ComponentType `db:"component_type" json:"component_type"`
	Quantity      int                `db:"quantity" json:"quantity"`
	Urgency       Urgency            `db:"urgency" json:"urgency"`
	Indication    string             `db:"indication" json:"indication"`
	Ward          *string            `db:"ward" json:"ward,omitempty"`

	Status      RequestStatus `db:"status" json:"status"`
	RequestedBy string        `db:"requested_by" json:"requested_by"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// PatientSample is the tested specimen a cross-match runs against.
type PatientSample struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RequestID   uuid.UUID `db:"request_id" json:"request_id"`
	Label       string    `db:"label" json:"label"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
	ReceivedBy  string    `db:"received_by" json:"received_by"`
	ReceivedAt  time.Time `db:"received_at" json:"received_at"`
}

// Method distinguishes a wet serological cross-match from the electronic
// (computer) cross-match.
type Method string

const (
	MethodSerological Method = "SEROLOGICAL"
	MethodElectronic  Method = "ELECTRONIC"
)

// Result of one cross-match attempt.
type Result string

const (
	ResultCompatible   Result = "COMPATIBLE"
	ResultIncompatible Result = "INCOMPATIBLE"
)

// Crossmatch maps to the crossmatch_test table, one row per attempt per
// request/unit pair.
type Crossmatch struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	RequestID uuid.UUID `db:"request_id" json:"request_id"`
	UnitID    uuid.UUID `db:"unit_id" json:"unit_id"`
	Method    Method    `db:"method" json:"method"`
	Result    Result    `db:"result" json:"result"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	TestedBy  string    `db:"tested_by" json:"tested_by"`
	TestedAt  time.Time `db:"tested_at" json:"tested_at"`
}

// Fresh reports whether the result is still inside the validity window.
func (x *Crossmatch) Fresh(now time.Time, validity time.Duration) bool {
	return now.Before(x.TestedAt.Add(validity))
}
