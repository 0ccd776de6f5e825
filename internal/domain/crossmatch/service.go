package crossmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/serology"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitLedger is the slice of the unit service the reservation ledger
// drives. Reserve is the atomic check-and-set; a lost race surfaces as
// AlreadyReserved.
type UnitLedger interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	SearchUnits(ctx context.Context, params map[string]string, limit, offset int) ([]*unit.BloodUnit, int, error)
	Reserve(ctx context.Context, id, requestID uuid.UUID) (*unit.BloodUnit, error)
	ReleaseReservation(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ListByReservedRequest(ctx context.Context, requestID uuid.UUID) ([]*unit.BloodUnit, error)
}

// ResultsSource exposes the release-gate results the electronic
// cross-match decides on. Satisfied by the serology service.
type ResultsSource interface {
	GetUnitResults(ctx context.Context, unitID uuid.UUID) (*serology.UnitResults, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo     Repository
	units    UnitLedger
	results  ResultsSource
	runTx    TxRunner
	auditor  *audit.Recorder
	validity time.Duration
	now      func() time.Time
}

// NewService wires the ledger. validity is the cross-match validity window;
// a compatible result older than this cannot support an issue.
func NewService(repo Repository, units UnitLedger, results ResultsSource, runTx TxRunner, auditor *audit.Recorder, validity time.Duration) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:     repo,
		units:    units,
		results:  results,
		runTx:    runTx,
		auditor:  auditor,
		validity: validity,
		now:      time.Now,
	}
}

type CreateRequestInput struct {
	PatientID         string             `json:"patient_id"`
	PatientName       string             `json:"patient_name"`
	PatientBloodGroup unit.BloodGroup    `json:"patient_blood_group"`
	AntibodyScreen    *string            `json:"antibody_screen,omitempty"`
	ComponentType     unit.ComponentType `json:"component_type"`
	Quantity          int                `json:"quantity"`
	Urgency           Urgency            `json:"urgency"`
	Indication        string             `json:"indication"`
	Ward              *string            `json:"ward,omitempty"`
}

func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*BloodRequest, error) {
	p, err := auth.Require(ctx, auth.PermRequestCreate)
	if err != nil {
		return nil, err
	}
	if in.PatientID == "" || in.PatientName == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "patient_id and patient_name are required")
	}
	if !unit.ValidBloodGroup(in.PatientBloodGroup) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", in.PatientBloodGroup)
	}
	if !unit.ValidComponent(in.ComponentType) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid component type: %s", in.ComponentType)
	}
	if in.Quantity <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "quantity must be positive")
	}
	if !ValidUrgency(in.Urgency) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid urgency: %s", in.Urgency)
	}
	if in.Indication == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "indication is required")
	}

	number, err := s.repo.NextRequestNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating request number: %w", err)
	}
	r := &BloodRequest{
		RequestNumber:     number,
		BranchID:          p.BranchID,
		PatientID:         in.PatientID,
		PatientName:       in.PatientName,
		PatientBloodGroup: in.PatientBloodGroup,
		AntibodyScreen:    in.AntibodyScreen,
		ComponentType:     in.ComponentType,
		Quantity:          in.Quantity,
		Urgency:           in.Urgency,
		Indication:        in.Indication,
		Ward:              in.Ward,
		Status:            RequestOpen,
		RequestedBy:       p.UserID,
	}
	if err := s.repo.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("creating blood request: %w", err)
	}
	s.audit(ctx, p, "crossmatch.request_created", r.ID.String(), map[string]interface{}{
		"request_number": number, "urgency": in.Urgency, "quantity": in.Quantity,
	})
	return s.loadRequest(ctx, r.ID)
}

// RequestDetail bundles a request with its sample, attempts, and the units
// currently bound to it.
type RequestDetail struct {
	Request    *BloodRequest     `json:"request"`
	Sample     *PatientSample    `json:"sample,omitempty"`
	Crossmatch []*Crossmatch     `json:"crossmatch_tests"`
	BoundUnits []*unit.BloodUnit `json:"bound_units"`
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*RequestDetail, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	sample, err := s.repo.GetSampleByRequest(ctx, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		sample = nil
	}
	tests, err := s.repo.ListCrossmatches(ctx, id)
	if err != nil {
		return nil, err
	}
	bound, err := s.units.ListByReservedRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: r, Sample: sample, Crossmatch: tests, BoundUnits: bound}, nil
}

func (s *Service) ListRequests(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodRequest, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListRequests(ctx, params, limit, offset)
}

type RegisterSampleInput struct {
	Label       string    `json:"label"`
	CollectedAt time.Time `json:"collected_at"`
}

// RegisterSample binds the tested specimen to the request. Cross-matching
// and routine reservation require one.
func (s *Service) RegisterSample(ctx context.Context, requestID uuid.UUID, in RegisterSampleInput) (*PatientSample, error) {
	p, err := auth.Require(ctx, auth.PermCrossmatchCreate)
	if err != nil {
		return nil, err
	}
	if in.Label == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "sample label is required")
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != RequestOpen {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "request %s is %s", r.RequestNumber, r.Status)
	}
	collectedAt := in.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = s.now()
	}
	sample := &PatientSample{
		RequestID:   r.ID,
		Label:       in.Label,
		CollectedAt: collectedAt,
		ReceivedBy:  p.UserID,
		ReceivedAt:  s.now(),
	}
	if err := s.repo.CreateSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("registering sample: %w", err)
	}
	s.audit(ctx, p, "crossmatch.sample_registered", r.ID.String(), map[string]interface{}{"label": in.Label})
	return sample, nil
}

// ListCandidates returns available, in-date units of the requested
// component whose group is compatible with the patient.
func (s *Service) ListCandidates(ctx context.Context, requestID uuid.UUID) ([]*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items, _, err := s.units.SearchUnits(ctx, map[string]string{
		"status":         string(unit.StatusAvailable),
		"component_type": string(r.ComponentType),
	}, 200, 0)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var candidates []*unit.BloodUnit
	for _, u := range items {
		if u.TransferPending() || u.Expired(now) {
			continue
		}
		if unit.Compatible(r.PatientBloodGroup, u.BloodGroup) {
			candidates = append(candidates, u)
		}
	}
	return candidates, nil
}

type RecordCrossmatchInput struct {
	Result Result  `json:"result"`
	Notes  *string `json:"notes,omitempty"`
}

// RecordCrossmatch records a serological cross-match attempt against a
// candidate unit. Attempts are append-only; retesting adds a row.
func (s *Service) RecordCrossmatch(ctx context.Context, requestID, unitID uuid.UUID, in RecordCrossmatchInput) (*Crossmatch, error) {
	p, err := auth.Require(ctx, auth.PermCrossmatchCreate)
	if err != nil {
		return nil, err
	}
	if in.Result != ResultCompatible && in.Result != ResultIncompatible {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid result: %s", in.Result)
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireSample(ctx, r); err != nil {
		return nil, err
	}
	if _, err := s.units.GetUnit(ctx, unitID); err != nil {
		return nil, err
	}
	return s.appendCrossmatch(ctx, p, r, unitID, MethodSerological, in.Result, in.Notes)
}

// ElectronicCrossmatch issues a computer cross-match: no wet test, only a
// compatibility decision over verified results. It requires a released
// verification on the unit and a negative antibody screen on the patient.
func (s *Service) ElectronicCrossmatch(ctx context.Context, requestID, unitID uuid.UUID) (*Crossmatch, error) {
	p, err := auth.Require(ctx, auth.PermCrossmatchCreate)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireSample(ctx, r); err != nil {
		return nil, err
	}
	if r.AntibodyScreen == nil || *r.AntibodyScreen != serology.AntibodyNegative {
		return nil, domainerrors.New(domainerrors.CodeBadRequest,
			"electronic cross-match requires a negative patient antibody screen")
	}
	u, err := s.units.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := s.assertVerifiedClean(ctx, u); err != nil {
		return nil, err
	}

	result := ResultIncompatible
	if unit.Compatible(r.PatientBloodGroup, u.BloodGroup) {
		result = ResultCompatible
	}
	return s.appendCrossmatch(ctx, p, r, unitID, MethodElectronic, result, nil)
}

// assertVerifiedClean refuses the electronic route for any unit without a
// released verification or with a reactive row in its history.
func (s *Service) assertVerifiedClean(ctx context.Context, u *unit.BloodUnit) error {
	res, err := s.results.GetUnitResults(ctx, u.ID)
	if err != nil {
		return err
	}
	released := false
	for _, v := range res.Verifications {
		if v.Decision == serology.DecisionReleased {
			released = true
		}
	}
	if !released {
		return domainerrors.Newf(domainerrors.CodeConflict,
			"unit %s has no released verification; use a serological cross-match", u.UnitNumber)
	}
	for _, t := range res.TTI {
		if t.Outcome == serology.TTIReactive {
			return domainerrors.Newf(domainerrors.CodeConflict,
				"unit %s has a reactive TTI result on record", u.UnitNumber)
		}
	}
	return nil
}

func (s *Service) appendCrossmatch(ctx context.Context, p *auth.Principal, r *BloodRequest, unitID uuid.UUID, method Method, result Result, notes *string) (*Crossmatch, error) {
	number, err := s.repo.NextCrossmatchNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating cross-match number: %w", err)
	}
	x := &Crossmatch{
		Number:    number,
		RequestID: r.ID,
		UnitID:    unitID,
		Method:    method,
		Result:    result,
		Notes:     notes,
		TestedBy:  p.UserID,
		TestedAt:  s.now(),
	}
	if err := s.repo.CreateCrossmatch(ctx, x); err != nil {
		return nil, fmt.Errorf("recording cross-match: %w", err)
	}
	s.audit(ctx, p, "crossmatch.recorded", r.ID.String(), map[string]interface{}{
		"number": number, "unit_id": unitID, "method": method, "result": result,
	})
	return x, nil
}

type ReserveInput struct {
	UnitIDs []uuid.UUID `json:"unit_ids"`
}

// ReserveUnits binds the listed units to the request, each through the
// atomic AVAILABLE -> RESERVED check-and-set. Any failed unit rolls the
// whole batch back; the loser of a concurrent race sees AlreadyReserved.
func (s *Service) ReserveUnits(ctx context.Context, requestID uuid.UUID, in ReserveInput) ([]*unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermRequestCreate)
	if err != nil {
		return nil, err
	}
	if len(in.UnitIDs) == 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "at least one unit id is required")
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != RequestOpen {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "request %s is %s", r.RequestNumber, r.Status)
	}
	// Emergency and MTP requests may reserve ahead of the specimen;
	// everything else waits for one.
	if r.Urgency == UrgencyRoutine || r.Urgency == UrgencyUrgent {
		if _, err := s.requireSample(ctx, r); err != nil {
			return nil, err
		}
	}
	bound, err := s.units.ListByReservedRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(bound)+len(in.UnitIDs) > r.Quantity {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"request %s asks for %d unit(s); %d already bound", r.RequestNumber, r.Quantity, len(bound))
	}

	var reserved []*unit.BloodUnit
	err = s.runTx(ctx, func(ctx context.Context) error {
		for _, id := range in.UnitIDs {
			u, err := s.units.GetUnit(ctx, id)
			if err != nil {
				return err
			}
			if u.ComponentType != r.ComponentType {
				return domainerrors.Newf(domainerrors.CodeBadRequest,
					"unit %s is %s; request asks for %s", u.UnitNumber, u.ComponentType, r.ComponentType)
			}
			if !unit.Compatible(r.PatientBloodGroup, u.BloodGroup) {
				return domainerrors.Newf(domainerrors.CodeBadRequest,
					"unit %s (%s) is not compatible with patient group %s",
					u.UnitNumber, u.BloodGroup, r.PatientBloodGroup)
			}
			u, err = s.units.Reserve(ctx, id, requestID)
			if err != nil {
				return err
			}
			reserved = append(reserved, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "crossmatch.units_reserved", r.ID.String(), map[string]interface{}{
		"count": len(reserved),
	})
	return reserved, nil
}

// CancelRequest closes an open request and releases every unit it holds.
func (s *Service) CancelRequest(ctx context.Context, requestID uuid.UUID) (*BloodRequest, error) {
	p, err := auth.Require(ctx, auth.PermRequestCreate)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.SetRequestStatus(ctx, requestID, RequestOpen, RequestCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict, "request %s is %s", r.RequestNumber, r.Status)
		}
		bound, err := s.units.ListByReservedRequest(ctx, requestID)
		if err != nil {
			return err
		}
		for _, u := range bound {
			if u.Status != unit.StatusReserved {
				continue
			}
			if _, err := s.units.ReleaseReservation(ctx, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "crossmatch.request_cancelled", requestID.String(), nil)
	return s.loadRequest(ctx, requestID)
}

// AssertIssuable is the issue gate: the request must be open and the unit
// must carry a fresh compatible cross-match. Emergency and MTP urgencies
// may issue without one; a recorded incompatible always blocks.
func (s *Service) AssertIssuable(ctx context.Context, requestID, unitID uuid.UUID) error {
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r.Status != RequestOpen {
		return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"request %s is %s", r.RequestNumber, r.Status)
	}
	x, err := s.repo.LatestCrossmatch(ctx, requestID, unitID)
	if errors.Is(err, pgx.ErrNoRows) {
		if r.Urgency == UrgencyEmergency || r.Urgency == UrgencyMTP {
			return nil
		}
		return domainerrors.New(domainerrors.CodeInvalidStateTransition,
			"no cross-match recorded for this unit")
	}
	if err != nil {
		return err
	}
	if x.Result != ResultCompatible {
		return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"cross-match %s is %s", x.Number, x.Result)
	}
	if !x.Fresh(s.now(), s.validity) {
		return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"cross-match %s has expired; re-cross-match required", x.Number)
	}
	return nil
}

// NoteUnitIssued marks the request fulfilled once every asked-for unit has
// left the shelf. Called by the issue flow after a successful hand-off.
func (s *Service) NoteUnitIssued(ctx context.Context, requestID uuid.UUID) error {
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r.Status != RequestOpen {
		return nil
	}
	bound, err := s.units.ListByReservedRequest(ctx, requestID)
	if err != nil {
		return err
	}
	issued := 0
	for _, u := range bound {
		if u.Status == unit.StatusIssued || u.Status == unit.StatusTransfused {
			issued++
		}
	}
	if issued < r.Quantity {
		return nil
	}
	if _, err := s.repo.SetRequestStatus(ctx, requestID, RequestOpen, RequestFulfilled); err != nil {
		return err
	}
	return nil
}

func (s *Service) requireSample(ctx context.Context, r *BloodRequest) (*PatientSample, error) {
	sample, err := s.repo.GetSampleByRequest(ctx, r.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"no patient sample registered for request %s", r.RequestNumber)
	}
	return sample, err
}

func (s *Service) loadRequest(ctx context.Context, id uuid.UUID) (*BloodRequest, error) {
	r, err := s.repo.GetRequest(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood request %s not found", id)
	}
	return r, err
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "blood_request",
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
