package unit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

type Service struct {
	units   Repository
	auditor *audit.Recorder
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(units Repository, auditor *audit.Recorder, publisher events.Publisher, m *metrics.Metrics) *Service {
	return &Service{
		units:   units,
		auditor: auditor,
		events:  publisher,
		metrics: m,
		now:     time.Now,
	}
}

// RegisterUnitInput describes a new unit entering the inventory, either
// straight from collection or as a separated component.
type RegisterUnitInput struct {
	DonationID    *uuid.UUID    `json:"donation_id,omitempty"`
	BloodGroup    BloodGroup    `json:"blood_group"`
	ComponentType ComponentType `json:"component_type"`
	BagType       string        `json:"bag_type"`
	VolumeML      int           `json:"volume_ml"`
	CollectedAt   time.Time     `json:"collected_at"`
}

func (s *Service) RegisterUnit(ctx context.Context, in RegisterUnitInput) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if !ValidBloodGroup(in.BloodGroup) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", in.BloodGroup)
	}
	if !ValidComponent(in.ComponentType) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid component type: %s", in.ComponentType)
	}
	if in.VolumeML <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "volume_ml must be positive")
	}
	if in.CollectedAt.IsZero() {
		in.CollectedAt = s.now()
	}

	unitNumber, err := s.units.NextUnitNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating unit number: %w", err)
	}

	u := &BloodUnit{
		UnitNumber:    unitNumber,
		DonationID:    in.DonationID,
		BranchID:      p.BranchID,
		BloodGroup:    in.BloodGroup,
		ComponentType: in.ComponentType,
		BagType:       in.BagType,
		VolumeML:      in.VolumeML,
		Status:        StatusCollected,
		CollectedAt:   in.CollectedAt,
		ExpiresAt:     ExpiryFor(in.ComponentType, in.CollectedAt),
	}
	if err := s.units.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating blood unit: %w", err)
	}

	s.audit(ctx, p, "unit.registered", u.ID.String(), map[string]interface{}{
		"unit_number": u.UnitNumber, "component_type": u.ComponentType,
	})
	s.publish(ctx, events.TypeUnitRegistered, p.BranchID, u.UnitNumber, nil)
	return u, nil
}

func (s *Service) GetUnit(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.loadUnit(ctx, id)
}

func (s *Service) GetUnitByNumber(ctx context.Context, unitNumber string) (*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	u, err := s.units.GetByUnitNumber(ctx, unitNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", unitNumber)
	}
	return u, err
}

func (s *Service) SearchUnits(ctx context.Context, params map[string]string, limit, offset int) ([]*BloodUnit, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	// Inventory queries are always branch-scoped.
	params["branch_id"] = p.BranchID
	return s.units.Search(ctx, params, limit, offset)
}

func (s *Service) ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.units.ListByDonation(ctx, donationID)
}

// lowStockThreshold flags group/component combinations running short on the
// availability grid.
const lowStockThreshold = 5

func (s *Service) InventorySummary(ctx context.Context) ([]InventoryRow, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, err
	}
	rows, err := s.units.AvailableSummary(ctx, p.BranchID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].LowStock = rows[i].Count < lowStockThreshold
	}
	return rows, nil
}

// SetCollectedVolume records the final drawn volume. Only legal while the
// unit is still COLLECTED; once testing starts the volume is frozen.
func (s *Service) SetCollectedVolume(ctx context.Context, id uuid.UUID, volumeML int) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermCollectionCreate)
	if err != nil {
		return nil, err
	}
	if volumeML <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "volume_ml must be positive")
	}
	ok, err := s.units.UpdateCollectedVolume(ctx, id, volumeML)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusCollected)
	}
	s.audit(ctx, p, "unit.volume_recorded", id.String(), map[string]interface{}{"volume_ml": volumeML})
	return s.loadUnit(ctx, id)
}

// ConfirmBloodGroup replaces the provisional group with the lab-confirmed
// one. Only legal before release; a released unit's group never changes.
func (s *Service) ConfirmBloodGroup(ctx context.Context, id uuid.UUID, group BloodGroup) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermTestingRecord)
	if err != nil {
		return nil, err
	}
	if !ValidBloodGroup(group) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", group)
	}
	ok, err := s.units.ConfirmBloodGroup(ctx, id, group)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusTestingPending)
	}
	s.audit(ctx, p, "unit.group_confirmed", id.String(), map[string]interface{}{"blood_group": group})
	return s.loadUnit(ctx, id)
}

// MoveToTesting advances a collected unit into the serology pipeline.
func (s *Service) MoveToTesting(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermTestingRecord)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.MoveToTesting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusTestingPending)
	}
	s.recordTransition(StatusCollected, StatusTestingPending)
	s.audit(ctx, p, "unit.testing_pending", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// ReleaseToInventory makes a fully-tested unit available for issue. Only the
// serology workflow calls this, after a verified non-reactive panel.
func (s *Service) ReleaseToInventory(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermTestingVerify)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.ReleaseToInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusAvailable)
	}
	s.recordTransition(StatusTestingPending, StatusAvailable)
	s.audit(ctx, p, "unit.released_to_inventory", id.String(), nil)
	u, err := s.loadUnit(ctx, id)
	if err == nil {
		s.publish(ctx, events.TypeUnitStatusChanged, p.BranchID, u.UnitNumber,
			map[string]interface{}{"status": StatusAvailable})
	}
	return u, err
}

// QuarantineUnit pulls a unit out of circulation. Reserved units lose their
// reservation; units claimed by a transfer cannot be quarantined until the
// transfer resolves.
func (s *Service) QuarantineUnit(ctx context.Context, id uuid.UUID, reason string) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "quarantine reason is required")
	}
	ok, err := s.units.Quarantine(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusQuarantined)
	}
	s.audit(ctx, p, "unit.quarantined", id.String(), map[string]interface{}{"reason": reason})
	u, err := s.loadUnit(ctx, id)
	if err == nil {
		s.recordTransition(u.Status, StatusQuarantined)
		s.publish(ctx, events.TypeUnitQuarantined, p.BranchID, u.UnitNumber,
			map[string]interface{}{"reason": reason})
	}
	return u, err
}

// ReleaseFromQuarantine returns a quarantined unit to AVAILABLE. Breach
// quarantines must go through the breach review flow instead, which calls
// this only once the storage conditions have demonstrably recovered.
func (s *Service) ReleaseFromQuarantine(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	current, err := s.loadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.BreachQuarantined() {
		return nil, domainerrors.New(domainerrors.CodeBreachReviewPending,
			"unit was quarantined by a temperature breach; a breach review must disposition it")
	}
	if current.Expired(s.now()) {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition,
			"unit has expired and cannot return to inventory")
	}
	ok, err := s.units.ReleaseQuarantine(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusAvailable)
	}
	s.recordTransition(StatusQuarantined, StatusAvailable)
	s.audit(ctx, p, "unit.quarantine_released", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// Reserve claims an available unit for a blood request. Losing the race to
// another request returns an AlreadyReserved conflict.
func (s *Service) Reserve(ctx context.Context, id, requestID uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermRequestCreate)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.Reserve(ctx, id, requestID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.loadUnit(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case current.TransferPending():
			return nil, domainerrors.New(domainerrors.CodeConflict,
				"unit is claimed by an in-flight transfer")
		case current.Status == StatusReserved:
			if s.metrics != nil {
				s.metrics.ReservationConflicts.Inc()
			}
			return nil, domainerrors.Newf(domainerrors.CodeAlreadyReserved,
				"unit %s is already reserved", current.UnitNumber)
		case current.Expired(s.now()):
			return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
				"unit %s has expired", current.UnitNumber)
		default:
			return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
				"cannot reserve unit in status %s", current.Status)
		}
	}
	s.recordTransition(StatusAvailable, StatusReserved)
	s.audit(ctx, p, "unit.reserved", id.String(), map[string]interface{}{"request_id": requestID})
	return s.loadUnit(ctx, id)
}

func (s *Service) ReleaseReservation(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermRequestCreate)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.ReleaseReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusAvailable)
	}
	s.recordTransition(StatusReserved, StatusAvailable)
	s.audit(ctx, p, "unit.reservation_released", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// IssueUnit hands a reserved unit over for transfusion.
func (s *Service) IssueUnit(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.Issue(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusIssued)
	}
	s.recordTransition(StatusReserved, StatusIssued)
	s.audit(ctx, p, "unit.issued", id.String(), nil)
	u, err := s.loadUnit(ctx, id)
	if err == nil {
		s.publish(ctx, events.TypeUnitIssued, p.BranchID, u.UnitNumber, nil)
	}
	return u, err
}

// ReturnUnit accepts an issued unit back into inventory, provided it comes
// back within the cold-chain return window. Past the window the unit must be
// discarded instead.
func (s *Service) ReturnUnit(ctx context.Context, id uuid.UUID, returnWindow time.Duration) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	current, err := s.loadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusIssued {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"cannot return unit in status %s", current.Status)
	}
	if current.IssuedAt != nil && s.now().Sub(*current.IssuedAt) > returnWindow {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"unit %s exceeded the %s return window and must be discarded", current.UnitNumber, returnWindow)
	}
	ok, err := s.units.ReturnToInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusAvailable)
	}
	s.recordTransition(StatusIssued, StatusAvailable)
	s.audit(ctx, p, "unit.returned", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// MarkTransfused closes out an issued unit after bedside administration.
func (s *Service) MarkTransfused(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermTransfusionRecord)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.MarkTransfused(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusTransfused)
	}
	s.recordTransition(StatusIssued, StatusTransfused)
	s.audit(ctx, p, "unit.transfused", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// DiscardUnit permanently removes a unit from circulation.
func (s *Service) DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	if !ValidDiscardReason(reason) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid discard reason: %s", reason)
	}
	before, err := s.loadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.Discard(ctx, id, reason, note, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusDiscarded)
	}
	s.recordTransition(before.Status, StatusDiscarded)
	if s.metrics != nil {
		s.metrics.UnitsDiscarded.WithLabelValues(reason).Inc()
	}
	s.audit(ctx, p, "unit.discarded", id.String(), map[string]interface{}{"reason": reason})
	s.publish(ctx, events.TypeUnitDiscarded, p.BranchID, before.UnitNumber,
		map[string]interface{}{"reason": reason})
	return s.loadUnit(ctx, id)
}

// ListByReservedRequest returns the units currently reserved or issued
// against a blood request.
func (s *Service) ListByReservedRequest(ctx context.Context, requestID uuid.UUID) ([]*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.units.ListByReservedRequest(ctx, requestID)
}

// AssignSlot places a unit into an equipment slot. Slot validity is the
// equipment monitor's concern; a concurrent placement into the same slot
// loses on the unique occupancy index and comes back as SlotOccupied.
func (s *Service) AssignSlot(ctx context.Context, id, slotID uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	ok, err := s.units.AssignSlot(ctx, id, slotID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_unit_slot" {
			return nil, domainerrors.New(domainerrors.CodeSlotOccupied, "slot is already occupied")
		}
		return nil, err
	}
	if !ok {
		current, err := s.loadUnit(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.TransferPending() {
			return nil, domainerrors.New(domainerrors.CodeConflict, "unit is claimed by an in-flight transfer")
		}
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"cannot store a unit in status %s", current.Status)
	}
	s.audit(ctx, p, "unit.slot_assigned", id.String(), map[string]interface{}{"slot_id": slotID})
	return s.loadUnit(ctx, id)
}

// ClearSlot removes a unit from whatever slot it occupies.
func (s *Service) ClearSlot(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	if _, err := s.units.ClearSlot(ctx, id); err != nil {
		return nil, err
	}
	s.audit(ctx, p, "unit.slot_cleared", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// ListBySlots returns the units currently occupying the given slots.
func (s *Service) ListBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.units.ListBySlots(ctx, slotIDs)
}

// QuarantineSlotted moves every quarantinable unit in the given slots to
// QUARANTINED in one statement and reports how many moved. The caller runs
// it inside the breach transaction.
func (s *Service) QuarantineSlotted(ctx context.Context, slotIDs []uuid.UUID, reason string) (int, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return 0, err
	}
	n, err := s.units.QuarantineBySlots(ctx, slotIDs, reason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit(ctx, p, "unit.breach_quarantine", "", map[string]interface{}{
			"reason": reason, "units": n,
		})
	}
	return n, nil
}

// ReleaseBreachHold returns a breach-quarantined unit to AVAILABLE. Only
// the breach review calls this, after recording a RELEASE disposition.
func (s *Service) ReleaseBreachHold(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermBreachReview)
	if err != nil {
		return nil, err
	}
	current, err := s.loadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.BreachQuarantined() {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition,
			"unit is not under a breach quarantine")
	}
	if current.Expired(s.now()) {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition,
			"unit has expired and cannot return to inventory")
	}
	ok, err := s.units.ReleaseQuarantine(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, StatusAvailable)
	}
	s.recordTransition(StatusQuarantined, StatusAvailable)
	s.audit(ctx, p, "unit.breach_released", id.String(), nil)
	return s.loadUnit(ctx, id)
}

// ClaimForTransfer stakes a transfer's claim on the listed units. Only
// AVAILABLE, unclaimed units held by the caller's own branch are claimed;
// the returned count tells the caller how many the claim actually caught.
func (s *Service) ClaimForTransfer(ctx context.Context, ids []uuid.UUID, transferID uuid.UUID) (int, error) {
	p, err := auth.Require(ctx, auth.PermTransferManage)
	if err != nil {
		return 0, err
	}
	return s.units.ClaimForTransfer(ctx, ids, transferID, p.BranchID)
}

// ReleaseTransferClaim frees every unit held by the transfer.
func (s *Service) ReleaseTransferClaim(ctx context.Context, transferID uuid.UUID) (int, error) {
	if _, err := auth.Require(ctx, auth.PermTransferManage); err != nil {
		return 0, err
	}
	return s.units.ReleaseTransferClaim(ctx, transferID)
}

// CompleteTransfer re-homes every claimed unit to the destination branch,
// clearing the claim and any storage slot.
func (s *Service) CompleteTransfer(ctx context.Context, transferID uuid.UUID, destBranchID string) (int, error) {
	if _, err := auth.Require(ctx, auth.PermTransferManage); err != nil {
		return 0, err
	}
	return s.units.CompleteTransfer(ctx, transferID, destBranchID)
}

// ListByTransfer returns the units currently claimed by a transfer.
func (s *Service) ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.units.ListByTransfer(ctx, transferID)
}

func (s *Service) loadUnit(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	u, err := s.units.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", id)
	}
	return u, err
}

// transitionError inspects the current row to report why a CAS update
// claimed no rows.
func (s *Service) transitionError(ctx context.Context, id uuid.UUID, wanted UnitStatus) error {
	current, err := s.loadUnit(ctx, id)
	if err != nil {
		return err
	}
	if current.TransferPending() {
		return domainerrors.New(domainerrors.CodeConflict, "unit is claimed by an in-flight transfer")
	}
	return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
		"cannot move unit %s from %s to %s", current.UnitNumber, current.Status, wanted)
}

func (s *Service) recordTransition(from, to UnitStatus) {
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
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

func (s *Service) publish(ctx context.Context, eventType, branchID, entityID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		BranchID: branchID,
		EntityID: entityID,
		Payload:  payload,
	})
}
