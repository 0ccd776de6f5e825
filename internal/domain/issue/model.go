// Package issue covers the hand-off of blood from the bank to the ward:
// bedside-verified issue, returns, transfusion episodes with vitals,
// massive transfusion protocol sessions, and reaction reporting.
package issue

import (
	"time"

	"github.com/google/uuid"
)

// Issue records a unit leaving the bank against a blood request.
type Issue struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	IssueNumber string     `db:"issue_number" json:"issue_number"`
	BranchID    string     `db:"branch_id" json:"branch_id"`
	RequestID   uuid.UUID  `db:"request_id" json:"request_id"`
	UnitID      uuid.UUID  `db:"unit_id" json:"unit_id"`
	UnitNumber  string     `db:"unit_number" json:"unit_number"`
	PatientID   string     `db:"patient_id" json:"patient_id"`
	IssuedTo    string     `db:"issued_to" json:"issued_to"`
	Destination *string    `db:"destination" json:"destination,omitempty"`
	// OverrideReason is set when a high-risk recipient was issued to under
	// an explicit override.
	OverrideReason *string    `db:"override_reason" json:"override_reason,omitempty"`
	OverriddenBy   *string    `db:"overridden_by" json:"overridden_by,omitempty"`
	IssuedBy       string     `db:"issued_by" json:"issued_by"`
	IssuedAt       time.Time  `db:"issued_at" json:"issued_at"`
	ReturnedAt     *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// EpisodeStatus tracks a transfusion episode at the bedside.
type EpisodeStatus string

const (
	EpisodeInProgress EpisodeStatus = "IN_PROGRESS"
	EpisodeCompleted  EpisodeStatus = "COMPLETED"
	EpisodeAborted    EpisodeStatus = "ABORTED"
)

// Episode is one administration of an issued unit to the patient.
type Episode struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	IssueID      uuid.UUID     `db:"issue_id" json:"issue_id"`
	PatientID    string        `db:"patient_id" json:"patient_id"`
	Status       EpisodeStatus `db:"status" json:"status"`
	StartedBy    string        `db:"started_by" json:"started_by"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	EndedAt      *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	VolumeML     *int          `db:"volume_ml" json:"volume_ml,omitempty"`
	OutcomeNotes *string       `db:"outcome_notes" json:"outcome_notes,omitempty"`
}

// Vitals is one observation row appended during an episode.
type Vitals struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EpisodeID   uuid.UUID `db:"episode_id" json:"episode_id"`
	TempC       float64   `db:"temp_c" json:"temp_c"`
	PulseBPM    int       `db:"pulse_bpm" json:"pulse_bpm"`
	SystolicBP  int       `db:"systolic_bp" json:"systolic_bp"`
	DiastolicBP int       `db:"diastolic_bp" json:"diastolic_bp"`
	Note        *string   `db:"note" json:"note,omitempty"`
	RecordedBy  string    `db:"recorded_by" json:"recorded_by"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
}

// MTPSession is an active massive transfusion protocol for one patient.
// At most one session per patient is active at a time.
type MTPSession struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BranchID      string     `db:"branch_id" json:"branch_id"`
	PatientID     string     `db:"patient_id" json:"patient_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	ActivatedBy   string     `db:"activated_by" json:"activated_by"`
	ActivatedAt   time.Time  `db:"activated_at" json:"activated_at"`
	DeactivatedBy *string    `db:"deactivated_by" json:"deactivated_by,omitempty"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

func (s *MTPSession) Active() bool {
	return s.DeactivatedAt == nil
}

// ReactionType classifies a transfusion reaction.
type ReactionType string

const (
	ReactionFebrile          ReactionType = "FEBRILE"
	ReactionAllergic         ReactionType = "ALLERGIC"
	ReactionHemolyticAcute   ReactionType = "HEMOLYTIC_ACUTE"
	ReactionHemolyticDelayed ReactionType = "HEMOLYTIC_DELAYED"
	ReactionTRALI            ReactionType = "TRALI"
	ReactionTACO             ReactionType = "TACO"
	ReactionAnaphylaxis      ReactionType = "ANAPHYLAXIS"
	ReactionBacterial        ReactionType = "BACTERIAL"
	ReactionOther            ReactionType = "OTHER"
)

var validReactionTypes = map[ReactionType]bool{
	ReactionFebrile: true, ReactionAllergic: true,
	ReactionHemolyticAcute: true, ReactionHemolyticDelayed: true,
	ReactionTRALI: true, ReactionTACO: true, ReactionAnaphylaxis: true,
	ReactionBacterial: true, ReactionOther: true,
}

func ValidReactionType(t ReactionType) bool { return validReactionTypes[t] }

// Severity grades a reaction.
type Severity string

const (
	SeverityMild            Severity = "MILD"
	SeverityModerate        Severity = "MODERATE"
	SeveritySevere          Severity = "SEVERE"
	SeverityLifeThreatening Severity = "LIFE_THREATENING"
)

var validSeverities = map[Severity]bool{
	SeverityMild: true, SeverityModerate: true,
	SeveritySevere: true, SeverityLifeThreatening: true,
}

func ValidSeverity(s Severity) bool { return validSeverities[s] }

// Reaction is an adverse event reported against an issued unit.
type Reaction struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	BranchID   string       `db:"branch_id" json:"branch_id"`
	IssueID    uuid.UUID    `db:"issue_id" json:"issue_id"`
	UnitID     uuid.UUID    `db:"unit_id" json:"unit_id"`
	PatientID  string       `db:"patient_id" json:"patient_id"`
	Type       ReactionType `db:"reaction_type" json:"reaction_type"`
	Severity   Severity     `db:"severity" json:"severity"`
	Symptoms   string       `db:"symptoms" json:"symptoms"`
	OccurredAt time.Time    `db:"occurred_at" json:"occurred_at"`
	ReportedBy string       `db:"reported_by" json:"reported_by"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// Serious reactions make the recipient high-risk for future issues and
// trigger a donor lookback.
func (r *Reaction) Serious() bool {
	if r.Severity == SeveritySevere || r.Severity == SeverityLifeThreatening {
		return true
	}
	switch r.Type {
	case ReactionHemolyticAcute, ReactionHemolyticDelayed, ReactionAnaphylaxis, ReactionTRALI, ReactionBacterial:
		return true
	}
	return false
}
