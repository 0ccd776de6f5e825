// Package serology is the testing and release gate for collected units:
// ABO/Rh grouping with discrepancy handling, the transfusion-transmissible
// infection (TTI) panel, and the verified release decision.
package serology

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

// TTIMarker is one assay in the infection panel.
type TTIMarker string

const (
	MarkerHIV      TTIMarker = "HIV"
	MarkerHBsAg    TTIMarker = "HBSAG"
	MarkerHCV      TTIMarker = "HCV"
	MarkerSyphilis TTIMarker = "SYPHILIS"
	MarkerMalaria  TTIMarker = "MALARIA"
)

// requiredMarkers must all be NON_REACTIVE before a unit can be released.
var requiredMarkers = []TTIMarker{MarkerHIV, MarkerHBsAg, MarkerHCV, MarkerSyphilis, MarkerMalaria}

var validMarkers = map[TTIMarker]bool{
	MarkerHIV: true, MarkerHBsAg: true, MarkerHCV: true,
	MarkerSyphilis: true, MarkerMalaria: true,
}

// ValidMarker reports whether m is a known TTI assay.
func ValidMarker(m TTIMarker) bool { return validMarkers[m] }

// TTIOutcome is the result of one assay attempt.
type TTIOutcome string

const (
	TTIReactive      TTIOutcome = "REACTIVE"
	TTINonReactive   TTIOutcome = "NON_REACTIVE"
	TTIIndeterminate TTIOutcome = "INDETERMINATE"
	TTIPending       TTIOutcome = "PENDING"
)

var validOutcomes = map[TTIOutcome]bool{
	TTIReactive: true, TTINonReactive: true, TTIIndeterminate: true, TTIPending: true,
}

// ValidOutcome reports whether o is a known assay outcome.
func ValidOutcome(o TTIOutcome) bool { return validOutcomes[o] }

// AntibodyScreen outcomes for the donor antibody screen.
const (
	AntibodyNegative = "NEGATIVE"
	AntibodyPositive = "POSITIVE"
)

// GroupingResult is one forward/reverse ABO+Rh grouping attempt. Rows are
// append-only; a forward/reverse mismatch flags a discrepancy that must be
// resolved by a second person before the unit can be released.
type GroupingResult struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	UnitID         uuid.UUID        `db:"unit_id" json:"unit_id"`
	Forward        unit.BloodGroup  `db:"forward_group" json:"forward_group"`
	Reverse        unit.BloodGroup  `db:"reverse_group" json:"reverse_group"`
	AntibodyScreen *string          `db:"antibody_screen" json:"antibody_screen,omitempty"`
	Discrepancy    bool             `db:"discrepancy" json:"discrepancy"`
	ConfirmedGroup *unit.BloodGroup `db:"confirmed_group" json:"confirmed_group,omitempty"`
	ResolutionNote *string          `db:"resolution_note" json:"resolution_note,omitempty"`
	ResolvedBy     *string          `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	RecordedBy     string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// Resolved reports whether the discrepancy, if any, has been resolved.
func (g *GroupingResult) Resolved() bool {
	return !g.Discrepancy || g.ResolvedAt != nil
}

// TTIResult is one assay attempt; re-testing appends a new row and the
// latest row per marker wins.
type TTIResult struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UnitID     uuid.UUID  `db:"unit_id" json:"unit_id"`
	Marker     TTIMarker  `db:"marker" json:"marker"`
	Outcome    TTIOutcome `db:"outcome" json:"outcome"`
	RecordedBy string     `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// VerificationDecision is the outcome the verifier signed off on.
type VerificationDecision string

const (
	DecisionReleased    VerificationDecision = "RELEASED"
	DecisionQuarantined VerificationDecision = "QUARANTINED"
	DecisionDiscarded   VerificationDecision = "DISCARDED"
)

// Verification records the release-gate sign-off for a unit.
type Verification struct {
	ID         uuid.UUID            `db:"id" json:"id"`
	UnitID     uuid.UUID            `db:"unit_id" json:"unit_id"`
	Decision   VerificationDecision `db:"decision" json:"decision"`
	Note       *string              `db:"note" json:"note,omitempty"`
	VerifiedBy string               `db:"verified_by" json:"verified_by"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}

// Quarantine reasons this package owns. The release gate only lifts
// quarantines it placed itself; breach quarantines stay with the breach
// review workflow.
const (
	QuarantineDiscrepancy   = "grouping discrepancy pending resolution"
	QuarantineIndeterminate = "indeterminate TTI result pending retest"
)
