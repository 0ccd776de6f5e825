package serology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/collection"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitGate is the slice of the unit service the release gate drives.
type UnitGate interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ReleaseToInventory(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ReleaseFromQuarantine(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	QuarantineUnit(ctx context.Context, id uuid.UUID, reason string) (*unit.BloodUnit, error)
	DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error)
	ConfirmBloodGroup(ctx context.Context, id uuid.UUID, group unit.BloodGroup) (*unit.BloodUnit, error)
}

// DonationSource resolves a unit's donation, and through it the donor.
type DonationSource interface {
	GetDonation(ctx context.Context, id uuid.UUID) (*collection.Donation, error)
}

// LookbackOpener opens or updates the open investigation for a donor.
// Satisfied by the lookback service.
type LookbackOpener interface {
	OpenForDonor(ctx context.Context, donorID uuid.UUID, trigger, note string) error
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	units     UnitGate
	donations DonationSource
	lookbacks LookbackOpener
	runTx     TxRunner
	auditor   *audit.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, units UnitGate, donations DonationSource, lookbacks LookbackOpener, runTx TxRunner, auditor *audit.Recorder, logger zerolog.Logger) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:      repo,
		units:     units,
		donations: donations,
		lookbacks: lookbacks,
		runTx:     runTx,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
	}
}

type GroupingInput struct {
	Forward        unit.BloodGroup `json:"forward_group"`
	Reverse        unit.BloodGroup `json:"reverse_group"`
	AntibodyScreen *string         `json:"antibody_screen,omitempty"`
}

// RecordGrouping appends a forward/reverse grouping attempt. A mismatch
// flags a discrepancy and quarantines the unit immediately; nothing else
// can move it until a second person resolves the discrepancy.
func (s *Service) RecordGrouping(ctx context.Context, unitID uuid.UUID, in GroupingInput) (*GroupingResult, error) {
	p, err := auth.Require(ctx, auth.PermTestingRecord)
	if err != nil {
		return nil, err
	}
	if !unit.ValidBloodGroup(in.Forward) || !unit.ValidBloodGroup(in.Reverse) {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "invalid forward or reverse group")
	}
	if in.AntibodyScreen != nil && *in.AntibodyScreen != AntibodyNegative && *in.AntibodyScreen != AntibodyPositive {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid antibody screen result: %s", *in.AntibodyScreen)
	}
	u, err := s.testableUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	g := &GroupingResult{
		UnitID:         u.ID,
		Forward:        in.Forward,
		Reverse:        in.Reverse,
		AntibodyScreen: in.AntibodyScreen,
		Discrepancy:    in.Forward != in.Reverse,
		RecordedBy:     p.UserID,
	}
	if err := s.repo.AppendGrouping(ctx, g); err != nil {
		return nil, fmt.Errorf("recording grouping: %w", err)
	}
	if g.Discrepancy && u.Status == unit.StatusTestingPending {
		if _, err := s.units.QuarantineUnit(auth.Elevate(ctx), u.ID, QuarantineDiscrepancy); err != nil {
			return nil, err
		}
	}
	s.audit(ctx, p, "serology.grouping_recorded", u.ID.String(), map[string]interface{}{
		"forward": in.Forward, "reverse": in.Reverse, "discrepancy": g.Discrepancy,
	})
	return g, nil
}

// ResolveDiscrepancy records the confirmed group for a mismatched grouping.
// The resolver must not be the person who recorded the grouping.
func (s *Service) ResolveDiscrepancy(ctx context.Context, unitID uuid.UUID, confirmed unit.BloodGroup, note string) (*GroupingResult, error) {
	p, err := auth.Require(ctx, auth.PermDiscrepancyResolve)
	if err != nil {
		return nil, err
	}
	if !unit.ValidBloodGroup(confirmed) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", confirmed)
	}
	if note == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "a resolution note is required")
	}
	g, err := s.latestGrouping(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !g.Discrepancy {
		return nil, domainerrors.New(domainerrors.CodeConflict, "latest grouping has no discrepancy")
	}
	if g.ResolvedAt != nil {
		return nil, domainerrors.New(domainerrors.CodeConflict, "discrepancy already resolved")
	}
	if g.RecordedBy == p.UserID {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "a discrepancy cannot be resolved by its recorder")
	}
	ok, err := s.repo.ResolveGrouping(ctx, g.ID, confirmed, note, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeConflict, "discrepancy already resolved")
	}
	s.audit(ctx, p, "serology.discrepancy_resolved", unitID.String(), map[string]interface{}{
		"confirmed_group": confirmed,
	})
	return s.latestGrouping(ctx, unitID)
}

type TTIInput struct {
	Marker  TTIMarker  `json:"marker"`
	Outcome TTIOutcome `json:"outcome"`
}

// RecordTTIResult appends one assay attempt. A REACTIVE result is acted on
// immediately: the unit is discarded and the donor's lookback opens without
// waiting for verification. INDETERMINATE quarantines the unit pending
// retest.
func (s *Service) RecordTTIResult(ctx context.Context, unitID uuid.UUID, in TTIInput) (*TTIResult, error) {
	p, err := auth.Require(ctx, auth.PermTestingRecord)
	if err != nil {
		return nil, err
	}
	if !ValidMarker(in.Marker) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid TTI marker: %s", in.Marker)
	}
	if !ValidOutcome(in.Outcome) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid TTI outcome: %s", in.Outcome)
	}
	u, err := s.testableUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	t := &TTIResult{
		UnitID:     u.ID,
		Marker:     in.Marker,
		Outcome:    in.Outcome,
		RecordedBy: p.UserID,
	}
	// The result and its consequence commit together: a reactive row must
	// never land without the discard and the donor's lookback, and vice
	// versa.
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AppendTTI(ctx, t); err != nil {
			return fmt.Errorf("recording TTI result: %w", err)
		}
		switch in.Outcome {
		case TTIReactive:
			note := fmt.Sprintf("reactive %s result", in.Marker)
			if _, err := s.units.DiscardUnit(auth.Elevate(ctx), u.ID, unit.DiscardTTIReactive, &note); err != nil {
				return err
			}
			return s.openLookback(ctx, u, in.Marker)
		case TTIIndeterminate:
			if u.Status == unit.StatusTestingPending {
				if _, err := s.units.QuarantineUnit(auth.Elevate(ctx), u.ID, QuarantineIndeterminate); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, "serology.tti_recorded", u.ID.String(), map[string]interface{}{
		"marker": in.Marker, "outcome": in.Outcome,
	})
	return t, nil
}

// VerifyResults is the release-gate sign-off. The verifier must not have
// recorded any of the results being verified. On a clean panel the unit's
// group is confirmed and it becomes AVAILABLE; an indeterminate panel keeps
// it quarantined.
func (s *Service) VerifyResults(ctx context.Context, unitID uuid.UUID, note *string) (*Verification, error) {
	p, err := auth.Require(ctx, auth.PermTestingVerify)
	if err != nil {
		return nil, err
	}
	u, err := s.testableUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	g, err := s.latestGrouping(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !g.Resolved() {
		return nil, domainerrors.New(domainerrors.CodeDiscrepancyBlock,
			"grouping discrepancy must be resolved before verification")
	}

	panel, err := s.repo.LatestPanel(ctx, unitID)
	if err != nil {
		return nil, err
	}
	indeterminate := false
	for _, marker := range requiredMarkers {
		t, ok := panel[marker]
		if !ok || t.Outcome == TTIPending {
			return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "TTI panel incomplete: %s has no result", marker)
		}
		if t.RecordedBy == p.UserID {
			return nil, domainerrors.New(domainerrors.CodeForbidden, "results cannot be verified by their recorder")
		}
		if t.Outcome == TTIReactive {
			// The record path discards reactive units on the spot; a
			// reactive row on a live unit means that failed partway.
			return nil, domainerrors.Newf(domainerrors.CodeConflict, "unit has an unprocessed reactive %s result", marker)
		}
		if t.Outcome == TTIIndeterminate {
			indeterminate = true
		}
	}
	if g.RecordedBy == p.UserID {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "results cannot be verified by their recorder")
	}

	decision := DecisionReleased
	if indeterminate {
		decision = DecisionQuarantined
	}

	if decision == DecisionReleased {
		uctx := auth.Elevate(ctx)
		confirmed := g.Forward
		if g.ConfirmedGroup != nil {
			confirmed = *g.ConfirmedGroup
		}
		if u.BloodGroup != confirmed {
			if _, err := s.units.ConfirmBloodGroup(uctx, u.ID, confirmed); err != nil {
				return nil, err
			}
		}
		switch u.Status {
		case unit.StatusTestingPending:
			_, err = s.units.ReleaseToInventory(uctx, u.ID)
		case unit.StatusQuarantined:
			_, err = s.units.ReleaseFromQuarantine(uctx, u.ID)
		}
		if err != nil {
			return nil, err
		}
	}

	v := &Verification{
		UnitID:     u.ID,
		Decision:   decision,
		Note:       note,
		VerifiedBy: p.UserID,
	}
	if err := s.repo.CreateVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}
	s.audit(ctx, p, "serology.verified", u.ID.String(), map[string]interface{}{"decision": decision})
	return v, nil
}

// UnitResults bundles everything recorded against a unit.
type UnitResults struct {
	Groupings     []*GroupingResult `json:"groupings"`
	TTI           []*TTIResult      `json:"tti_results"`
	Verifications []*Verification   `json:"verifications"`
}

func (s *Service) GetUnitResults(ctx context.Context, unitID uuid.UUID) (*UnitResults, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	groupings, err := s.repo.ListGroupings(ctx, unitID)
	if err != nil {
		return nil, err
	}
	tti, err := s.repo.ListTTI(ctx, unitID)
	if err != nil {
		return nil, err
	}
	verifications, err := s.repo.ListVerifications(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return &UnitResults{Groupings: groupings, TTI: tti, Verifications: verifications}, nil
}

// testableUnit loads the unit and checks it is still inside the testing
// gate. Quarantined units are only testable when this package quarantined
// them; breach quarantines belong to the breach review.
func (s *Service) testableUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	u, err := s.units.GetUnit(auth.Elevate(ctx), id)
	if err != nil {
		return nil, err
	}
	switch u.Status {
	case unit.StatusTestingPending:
		return u, nil
	case unit.StatusQuarantined:
		if u.QuarantineReason != nil &&
			(*u.QuarantineReason == QuarantineDiscrepancy || *u.QuarantineReason == QuarantineIndeterminate) {
			return u, nil
		}
		return nil, domainerrors.New(domainerrors.CodeBreachReviewPending,
			"unit is quarantined outside the testing gate; review the quarantine first")
	default:
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"unit %s is %s; testing requires TESTING_PENDING", u.UnitNumber, u.Status)
	}
}

func (s *Service) latestGrouping(ctx context.Context, unitID uuid.UUID) (*GroupingResult, error) {
	g, err := s.repo.LatestGrouping(ctx, unitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "no grouping recorded for unit")
	}
	return g, err
}

// openLookback walks unit -> donation -> donor and opens the investigation.
// A failure aborts the surrounding transaction, rolling the result and the
// discard back with it. A unit with no donation link is the one exception:
// there is no donor to trace, so the discard stands and a warning is logged.
func (s *Service) openLookback(ctx context.Context, u *unit.BloodUnit, marker TTIMarker) error {
	if s.lookbacks == nil {
		return nil
	}
	if u.DonationID == nil {
		s.logger.Warn().Str("unit", u.UnitNumber).Msg("reactive unit has no donation; lookback not opened")
		return nil
	}
	d, err := s.donations.GetDonation(ctx, *u.DonationID)
	if err != nil {
		return fmt.Errorf("resolving donor for lookback: %w", err)
	}
	note := fmt.Sprintf("reactive %s on unit %s", marker, u.UnitNumber)
	if err := s.lookbacks.OpenForDonor(ctx, d.DonorID, "REACTIVE_TTI", note); err != nil {
		return fmt.Errorf("opening lookback: %w", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "blood_unit",
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
