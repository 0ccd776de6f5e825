package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/donor"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// DonorGateway is the slice of the donor service the collection flow needs.
type DonorGateway interface {
	GetDonor(ctx context.Context, id uuid.UUID) (*donor.Donor, error)
	CheckEligibility(ctx context.Context, donorID uuid.UUID) (*donor.Donor, error)
}

// UnitRegistrar is the slice of the unit service the collection flow
// drives: creating units at draw time and walking them through the
// collection-side transitions.
type UnitRegistrar interface {
	RegisterUnit(ctx context.Context, in unit.RegisterUnitInput) (*unit.BloodUnit, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*unit.BloodUnit, error)
	SetCollectedVolume(ctx context.Context, id uuid.UUID, volumeML int) (*unit.BloodUnit, error)
	MoveToTesting(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo    Repository
	donors  DonorGateway
	units   UnitRegistrar
	runTx   TxRunner
	auditor *audit.Recorder
	now     func() time.Time
}

func NewService(repo Repository, donors DonorGateway, units UnitRegistrar, runTx TxRunner, auditor *audit.Recorder) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:    repo,
		donors:  donors,
		units:   units,
		runTx:   runTx,
		auditor: auditor,
		now:     time.Now,
	}
}

type ScreeningInput struct {
	DonorID       uuid.UUID `json:"donor_id"`
	ConsentGiven  bool      `json:"consent_given"`
	HemoglobinGDL float64   `json:"hemoglobin_gdl"`
	WeightKG      float64   `json:"weight_kg"`
	PulseBPM      int       `json:"pulse_bpm"`
	BPSystolic    int       `json:"bp_systolic"`
	BPDiastolic   int       `json:"bp_diastolic"`
	TemperatureC  float64   `json:"temperature_c"`
	Notes         *string   `json:"notes,omitempty"`
}

// RecordScreening captures vitals and consent. The outcome is computed from
// the acceptance thresholds, never set by the caller.
func (s *Service) RecordScreening(ctx context.Context, in ScreeningInput) (*Screening, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}

	outcome := ScreeningPassed
	switch {
	case in.HemoglobinGDL < minHemoglobinGDL:
		outcome = ScreeningDeferred
	case in.WeightKG < minWeightKG:
		outcome = ScreeningFailed
	case in.PulseBPM < minPulseBPM || in.PulseBPM > maxPulseBPM:
		outcome = ScreeningFailed
	case in.TemperatureC > maxTemperatureC:
		outcome = ScreeningDeferred
	}

	sc := &Screening{
		DonorID:       in.DonorID,
		BranchID:      p.BranchID,
		ConsentGiven:  in.ConsentGiven,
		HemoglobinGDL: in.HemoglobinGDL,
		WeightKG:      in.WeightKG,
		PulseBPM:      in.PulseBPM,
		BPSystolic:    in.BPSystolic,
		BPDiastolic:   in.BPDiastolic,
		TemperatureC:  in.TemperatureC,
		Outcome:       outcome,
		Notes:         in.Notes,
		ScreenedBy:    p.UserID,
	}
	if err := s.repo.CreateScreening(ctx, sc); err != nil {
		return nil, fmt.Errorf("creating screening: %w", err)
	}
	s.audit(ctx, p, "screening.recorded", "donor_screening", sc.ID.String(), map[string]interface{}{
		"donor_id": in.DonorID, "outcome": outcome,
	})
	return sc, nil
}

// RecordConsent marks consent on a screening captured without it, for the
// case where the form is signed after the vitals are taken.
func (s *Service) RecordConsent(ctx context.Context, screeningID uuid.UUID) (*Screening, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.SetScreeningConsent(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "screening %s not found", screeningID)
	}
	s.audit(ctx, p, "screening.consent_recorded", "donor_screening", screeningID.String(), nil)
	return s.repo.GetScreening(ctx, screeningID)
}

type StartCollectionInput struct {
	ScreeningID uuid.UUID `json:"screening_id"`
	BagType     string    `json:"bag_type"`
}

// StartCollection opens a donation episode against a passed, consenting
// screening and creates the whole-blood unit for the draw. The donor's
// eligibility is re-checked at the needle, not just at screening time.
func (s *Service) StartCollection(ctx context.Context, in StartCollectionInput) (*Donation, *unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, nil, err
	}
	if !ValidBagType(in.BagType) {
		return nil, nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid bag type: %s", in.BagType)
	}

	sc, err := s.repo.GetScreening(ctx, in.ScreeningID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, domainerrors.Newf(domainerrors.CodeNotFound, "screening %s not found", in.ScreeningID)
	}
	if err != nil {
		return nil, nil, err
	}
	if !sc.ConsentGiven {
		return nil, nil, domainerrors.New(domainerrors.CodeDonorIneligible, "donor has not consented to this donation")
	}
	if sc.Outcome != ScreeningPassed {
		return nil, nil, domainerrors.Newf(domainerrors.CodeDonorIneligible,
			"screening outcome is %s; collection requires a passed screening", sc.Outcome)
	}
	if existing, err := s.repo.GetDonationByScreening(ctx, in.ScreeningID); err == nil && existing != nil {
		return nil, nil, domainerrors.New(domainerrors.CodeConflict, "screening already has a donation")
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	dn, err := s.donors.CheckEligibility(ctx, sc.DonorID)
	if err != nil {
		return nil, nil, err
	}
	if dn.BloodGroup == nil {
		return nil, nil, domainerrors.New(domainerrors.CodeBadRequest,
			"donor blood group unknown; record a provisional group before collection")
	}

	donationNumber, err := s.repo.NextDonationNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("allocating donation number: %w", err)
	}
	d := &Donation{
		DonationNumber: donationNumber,
		DonorID:        sc.DonorID,
		ScreeningID:    sc.ID,
		BranchID:       p.BranchID,
		BagType:        in.BagType,
		Status:         DonationInProgress,
		Phlebotomist:   p.UserID,
		CollectedAt:    s.now(),
	}

	var u *unit.BloodUnit
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateDonation(ctx, d); err != nil {
			return fmt.Errorf("creating donation: %w", err)
		}
		u, err = s.units.RegisterUnit(ctx, unit.RegisterUnitInput{
			DonationID:    &d.ID,
			BloodGroup:    *dn.BloodGroup,
			ComponentType: unit.WholeBlood,
			BagType:       in.BagType,
			VolumeML:      nominalDrawML,
			CollectedAt:   d.CollectedAt,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.audit(ctx, p, "donation.started", "donation", d.ID.String(), map[string]interface{}{
		"donation_number": d.DonationNumber, "donor_id": d.DonorID, "unit_number": u.UnitNumber,
	})
	return d, u, nil
}

// RecordAdverseEvent appends a note about the donor's condition during the
// draw. Unit state is untouched; aborting is a separate decision.
func (s *Service) RecordAdverseEvent(ctx context.Context, donationID uuid.UUID, note string) (*AdverseEvent, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if note == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "note is required")
	}
	d, err := s.loadDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.Status == DonationAborted {
		return nil, domainerrors.New(domainerrors.CodeConflict, "donation was aborted")
	}
	e := &AdverseEvent{
		DonationID: d.ID,
		Note:       note,
		RecordedBy: p.UserID,
		RecordedAt: s.now(),
	}
	if err := s.repo.AppendAdverseEvent(ctx, e); err != nil {
		return nil, err
	}
	s.audit(ctx, p, "donation.adverse_event", "donation", d.ID.String(), map[string]interface{}{"note": note})
	return e, nil
}

type EndCollectionInput struct {
	VolumeML       int `json:"volume_ml"`
	PilotTubeCount int `json:"pilot_tube_count"`
}

// EndCollection closes the episode with the measured volume and moves the
// drawn unit into the testing pipeline.
func (s *Service) EndCollection(ctx context.Context, donationID uuid.UUID, in EndCollectionInput) (*Donation, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if in.VolumeML <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "volume_ml must be positive")
	}
	if in.PilotTubeCount <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "at least one pilot tube is required for serology")
	}
	d, err := s.loadDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	u, err := s.drawnUnit(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.CompleteDonation(ctx, d.ID, in.VolumeML, in.PilotTubeCount, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict, "donation is %s, not in progress", d.Status)
		}
		if _, err := s.units.SetCollectedVolume(ctx, u.ID, in.VolumeML); err != nil {
			return err
		}
		_, err = s.units.MoveToTesting(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "donation.completed", "donation", d.ID.String(), map[string]interface{}{
		"volume_ml": in.VolumeML, "pilot_tubes": in.PilotTubeCount,
	})
	return s.loadDonation(ctx, donationID)
}

// AbortCollection closes the episode without a usable unit; the drawn bag
// is discarded.
func (s *Service) AbortCollection(ctx context.Context, donationID uuid.UUID, reason string) (*Donation, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "reason is required")
	}
	d, err := s.loadDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	u, err := s.drawnUnit(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.AbortDonation(ctx, d.ID, reason, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict, "donation is %s, not in progress", d.Status)
		}
		note := "collection aborted: " + reason
		_, err = s.units.DiscardUnit(ctx, u.ID, unit.DiscardOther, &note)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "donation.aborted", "donation", d.ID.String(), map[string]interface{}{"reason": reason})
	return s.loadDonation(ctx, donationID)
}

// SeparateComponents splits a completed multi-bag donation's whole-blood
// unit into component units. The children enter the testing pipeline and
// the parent leaves circulation; a donation can only be separated once.
func (s *Service) SeparateComponents(ctx context.Context, donationID uuid.UUID, specs []ComponentSpec) ([]*unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "at least one component is required")
	}

	d, err := s.loadDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.Status != DonationCompleted {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "donation is %s; separation requires a completed collection", d.Status)
	}
	if d.BagType == BagSingle {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "a single-bag donation cannot be separated")
	}

	existing, err := s.units.ListByDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if len(existing) != 1 {
		return nil, domainerrors.New(domainerrors.CodeConflict, "donation has already been separated")
	}
	parent := existing[0]
	if parent.Status != unit.StatusTestingPending {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"unit %s is %s; separation requires TESTING_PENDING", parent.UnitNumber, parent.Status)
	}

	totalVolume := 0
	for _, spec := range specs {
		if !unit.ValidComponent(spec.ComponentType) {
			return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid component type: %s", spec.ComponentType)
		}
		if spec.ComponentType == unit.WholeBlood {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "separation cannot yield whole blood")
		}
		if spec.VolumeML <= 0 {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "component volume_ml must be positive")
		}
		totalVolume += spec.VolumeML
	}
	if totalVolume > d.VolumeML {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest,
			"component volume %dml exceeds donation volume %dml", totalVolume, d.VolumeML)
	}

	var created []*unit.BloodUnit
	err = s.runTx(ctx, func(ctx context.Context) error {
		for _, spec := range specs {
			u, err := s.units.RegisterUnit(ctx, unit.RegisterUnitInput{
				DonationID:    &d.ID,
				BloodGroup:    parent.BloodGroup,
				ComponentType: spec.ComponentType,
				BagType:       spec.BagType,
				VolumeML:      spec.VolumeML,
				CollectedAt:   d.CollectedAt,
			})
			if err != nil {
				return err
			}
			if u, err = s.units.MoveToTesting(ctx, u.ID); err != nil {
				return err
			}
			created = append(created, u)
		}
		note := fmt.Sprintf("separated into %d components", len(specs))
		_, err := s.units.DiscardUnit(ctx, parent.ID, unit.DiscardOther, &note)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "donation.separated", "donation", d.ID.String(), map[string]interface{}{
		"components": len(created), "parent_unit": parent.UnitNumber,
	})
	return created, nil
}

func (s *Service) GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	sc, err := s.repo.GetScreening(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "screening %s not found", id)
	}
	return sc, err
}

func (s *Service) ListScreeningsByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Screening, int, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListScreeningsByDonor(ctx, donorID, limit, offset)
}

func (s *Service) GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	return s.loadDonation(ctx, id)
}

func (s *Service) ListDonations(ctx context.Context, params map[string]string, limit, offset int) ([]*Donation, int, error) {
	p, err := auth.Require(ctx, auth.PermDonorRead)
	if err != nil {
		return nil, 0, err
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListDonations(ctx, params, limit, offset)
}

func (s *Service) ListAdverseEvents(ctx context.Context, donationID uuid.UUID) ([]*AdverseEvent, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	return s.repo.ListAdverseEvents(ctx, donationID)
}

func (s *Service) loadDonation(ctx context.Context, id uuid.UUID) (*Donation, error) {
	d, err := s.repo.GetDonation(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "donation %s not found", id)
	}
	return d, err
}

// drawnUnit resolves the single unit created when the collection started.
func (s *Service) drawnUnit(ctx context.Context, donationID uuid.UUID) (*unit.BloodUnit, error) {
	units, err := s.units.ListByDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if len(units) != 1 {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"donation %s has %d units; expected the single drawn bag", donationID, len(units))
	}
	return units[0], nil
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityType, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
