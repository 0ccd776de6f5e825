package equipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitInventory is the slice of the unit service the monitor drives: slot
// placement, the multi-row breach quarantine, and the review transitions.
type UnitInventory interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	AssignSlot(ctx context.Context, id, slotID uuid.UUID) (*unit.BloodUnit, error)
	ClearSlot(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ListBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]*unit.BloodUnit, error)
	QuarantineSlotted(ctx context.Context, slotIDs []uuid.UUID, reason string) (int, error)
	ReleaseBreachHold(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo    Repository
	units   UnitInventory
	runTx   TxRunner
	auditor *audit.Recorder
	events  events.Publisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, units UnitInventory, runTx TxRunner, auditor *audit.Recorder, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:    repo,
		units:   units,
		runTx:   runTx,
		auditor: auditor,
		events:  publisher,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

type CreateEquipmentInput struct {
	Name                    string        `json:"name"`
	Type                    EquipmentType `json:"equipment_type"`
	SerialNumber            *string       `json:"serial_number,omitempty"`
	SensorID                *string       `json:"sensor_id,omitempty"`
	MinTempC                float64       `json:"min_temp_c"`
	MaxTempC                float64       `json:"max_temp_c"`
	CalibrationIntervalDays int           `json:"calibration_interval_days"`
	SlotCount               int           `json:"slot_count"`
}

func (s *Service) CreateEquipment(ctx context.Context, in CreateEquipmentInput) (*Equipment, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "equipment name is required")
	}
	if !ValidEquipmentType(in.Type) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid equipment type: %s", in.Type)
	}
	if in.MinTempC >= in.MaxTempC {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "min_temp_c must be below max_temp_c")
	}
	if in.CalibrationIntervalDays <= 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "calibration_interval_days must be positive")
	}
	if in.SlotCount < 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "slot_count cannot be negative")
	}

	e := &Equipment{
		BranchID:                p.BranchID,
		Name:                    in.Name,
		Type:                    in.Type,
		SerialNumber:            in.SerialNumber,
		SensorID:                in.SensorID,
		Status:                  StatusActive,
		MinTempC:                in.MinTempC,
		MaxTempC:                in.MaxTempC,
		CalibrationIntervalDays: in.CalibrationIntervalDays,
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateEquipment(ctx, e); err != nil {
			return fmt.Errorf("creating equipment: %w", err)
		}
		if in.SlotCount > 0 {
			slots := make([]*Slot, in.SlotCount)
			for i := range slots {
				slots[i] = &Slot{EquipmentID: e.ID, Label: fmt.Sprintf("S-%02d", i+1)}
			}
			if err := s.repo.CreateSlots(ctx, slots); err != nil {
				return fmt.Errorf("creating slots: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "equipment.created", e.ID.String(), map[string]interface{}{
		"name": e.Name, "type": e.Type, "slots": in.SlotCount,
	})
	return s.repo.GetEquipment(ctx, e.ID)
}

type UpdateEquipmentInput struct {
	Name                    *string          `json:"name,omitempty"`
	Status                  *EquipmentStatus `json:"status,omitempty"`
	MinTempC                *float64         `json:"min_temp_c,omitempty"`
	MaxTempC                *float64         `json:"max_temp_c,omitempty"`
	SensorID                *string          `json:"sensor_id,omitempty"`
	CalibrationIntervalDays *int             `json:"calibration_interval_days,omitempty"`
}

func (s *Service) UpdateEquipment(ctx context.Context, id uuid.UUID, in UpdateEquipmentInput) (*Equipment, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		e.Name = *in.Name
	}
	if in.Status != nil {
		switch *in.Status {
		case StatusActive, StatusMaintenance, StatusRetired:
			e.Status = *in.Status
		default:
			return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid equipment status: %s", *in.Status)
		}
	}
	if in.MinTempC != nil {
		e.MinTempC = *in.MinTempC
	}
	if in.MaxTempC != nil {
		e.MaxTempC = *in.MaxTempC
	}
	if e.MinTempC >= e.MaxTempC {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "min_temp_c must be below max_temp_c")
	}
	if in.SensorID != nil {
		e.SensorID = in.SensorID
	}
	if in.CalibrationIntervalDays != nil {
		if *in.CalibrationIntervalDays <= 0 {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "calibration_interval_days must be positive")
		}
		e.CalibrationIntervalDays = *in.CalibrationIntervalDays
	}
	if err := s.repo.UpdateEquipment(ctx, e); err != nil {
		return nil, fmt.Errorf("updating equipment: %w", err)
	}
	s.audit(ctx, p, "equipment.updated", e.ID.String(), nil)
	return s.loadEquipment(ctx, id)
}

// RecordCalibration stamps a completed calibration on the device.
func (s *Service) RecordCalibration(ctx context.Context, id uuid.UUID) (*Equipment, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.RecordCalibration(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "equipment %s not found", id)
	}
	s.audit(ctx, p, "equipment.calibrated", id.String(), nil)
	return s.loadEquipment(ctx, id)
}

func (s *Service) GetEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.loadEquipment(ctx, id)
}

func (s *Service) ListEquipment(ctx context.Context, params map[string]string, limit, offset int) ([]*Equipment, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListEquipment(ctx, params, limit, offset)
}

// AddSlots appends labelled slots to an existing device.
func (s *Service) AddSlots(ctx context.Context, equipmentID uuid.UUID, labels []string) ([]*Slot, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "at least one slot label is required")
	}
	e, err := s.loadEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	slots := make([]*Slot, len(labels))
	for i, label := range labels {
		if label == "" {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "slot labels cannot be empty")
		}
		slots[i] = &Slot{EquipmentID: e.ID, Label: label}
	}
	if err := s.repo.CreateSlots(ctx, slots); err != nil {
		return nil, fmt.Errorf("creating slots: %w", err)
	}
	s.audit(ctx, p, "equipment.slots_added", e.ID.String(), map[string]interface{}{"count": len(slots)})
	return slots, nil
}

// SlotView pairs a slot with the unit occupying it, if any.
type SlotView struct {
	Slot *Slot           `json:"slot"`
	Unit *unit.BloodUnit `json:"unit,omitempty"`
}

// StorageMap describes a device and the occupancy of each of its slots.
type StorageMap struct {
	Equipment *Equipment `json:"equipment"`
	Slots     []SlotView `json:"slots"`
}

func (s *Service) GetStorageMap(ctx context.Context, equipmentID uuid.UUID) (*StorageMap, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	e, err := s.loadEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	slots, err := s.repo.ListSlots(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	slotIDs := make([]uuid.UUID, len(slots))
	for i, sl := range slots {
		slotIDs[i] = sl.ID
	}
	occupants := map[uuid.UUID]*unit.BloodUnit{}
	if len(slotIDs) > 0 {
		units, err := s.units.ListBySlots(ctx, slotIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			occupants[*u.StorageSlotID] = u
		}
	}
	views := make([]SlotView, len(slots))
	for i, sl := range slots {
		views[i] = SlotView{Slot: sl, Unit: occupants[sl.ID]}
	}
	return &StorageMap{Equipment: e, Slots: views}, nil
}

// StoreUnit places a unit into a slot. The slot must be empty and the
// device in service; a race on the same slot is caught by the database's
// unique occupancy index and surfaces as SlotOccupied.
func (s *Service) StoreUnit(ctx context.Context, unitID, slotID uuid.UUID) (*unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	slot, err := s.repo.GetSlot(ctx, slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "slot %s not found", slotID)
	}
	if err != nil {
		return nil, err
	}
	e, err := s.loadEquipment(ctx, slot.EquipmentID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusActive {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "equipment %s is %s", e.Name, e.Status)
	}
	occupants, err := s.units.ListBySlots(ctx, []uuid.UUID{slotID})
	if err != nil {
		return nil, err
	}
	if len(occupants) > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeSlotOccupied,
			"slot %s already holds unit %s", slot.Label, occupants[0].UnitNumber)
	}
	u, err := s.units.AssignSlot(ctx, unitID, slotID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "equipment.unit_stored", unitID.String(), map[string]interface{}{
		"equipment_id": e.ID, "slot": slot.Label,
	})
	return u, nil
}

// RemoveUnit takes a unit out of its slot.
func (s *Service) RemoveUnit(ctx context.Context, unitID uuid.UUID) (*unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermInventoryManage)
	if err != nil {
		return nil, err
	}
	u, err := s.units.ClearSlot(ctx, unitID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "equipment.unit_removed", unitID.String(), nil)
	return u, nil
}

type RecordTemperatureInput struct {
	TempC  float64    `json:"temp_c"`
	Source TempSource `json:"source,omitempty"`
}

// RecordTemperature appends a manual reading and raises a breach when it
// falls outside the device band.
func (s *Service) RecordTemperature(ctx context.Context, equipmentID uuid.UUID, in RecordTemperatureInput) (*TemperatureLog, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	recordedBy := p.UserID
	return s.appendReading(ctx, p, e, in.TempC, SourceManual, &recordedBy)
}

// RecordSensorReading ingests a reading keyed by sensor id.
func (s *Service) RecordSensorReading(ctx context.Context, sensorID string, tempC float64) (*TemperatureLog, error) {
	p, err := auth.Require(ctx, auth.PermEquipmentManage)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.GetBySensorID(ctx, p.BranchID, sensorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "no equipment mapped to sensor %s", sensorID)
	}
	if err != nil {
		return nil, err
	}
	return s.appendReading(ctx, p, e, tempC, SourceSensor, nil)
}

func (s *Service) appendReading(ctx context.Context, p *auth.Principal, e *Equipment, tempC float64, source TempSource, recordedBy *string) (*TemperatureLog, error) {
	l := &TemperatureLog{
		EquipmentID: e.ID,
		TempC:       tempC,
		Source:      source,
		Breach:      !e.InBand(tempC),
		RecordedBy:  recordedBy,
		RecordedAt:  s.now(),
	}
	if err := s.repo.AppendTemperatureLog(ctx, l); err != nil {
		return nil, fmt.Errorf("recording temperature: %w", err)
	}
	if l.Breach {
		if err := s.raiseBreach(ctx, p, e, l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// raiseBreach opens a breach for the excursion and quarantines every unit
// slotted to the device, snapshotting the affected set for review. Readings
// during an already-open breach extend it rather than opening another.
func (s *Service) raiseBreach(ctx context.Context, p *auth.Principal, e *Equipment, l *TemperatureLog) error {
	_, err := s.repo.OpenBreach(ctx, e.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	b := &Breach{EquipmentID: e.ID, BranchID: e.BranchID, TempC: l.TempC, DetectedAt: l.RecordedAt}
	var affected []*unit.BloodUnit
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateBreach(ctx, b); err != nil {
			return fmt.Errorf("opening breach: %w", err)
		}
		slots, err := s.repo.ListSlots(ctx, e.ID)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		slotIDs := make([]uuid.UUID, len(slots))
		for i, sl := range slots {
			slotIDs[i] = sl.ID
		}
		slotted, err := s.units.ListBySlots(ctx, slotIDs)
		if err != nil {
			return err
		}
		for _, u := range slotted {
			if quarantinable(u) {
				affected = append(affected, u)
			}
		}
		reason := fmt.Sprintf("%s on %s", unit.BreachReasonPrefix, e.Name)
		if _, err := s.units.QuarantineSlotted(ctx, slotIDs, reason); err != nil {
			return err
		}
		entries := make([]*BreachUnit, len(affected))
		for i, u := range affected {
			entries[i] = &BreachUnit{BreachID: b.ID, UnitID: u.ID, UnitNumber: u.UnitNumber}
		}
		return s.repo.AddBreachUnits(ctx, entries)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.BreachesDetected.WithLabelValues("temperature").Inc()
	}
	s.logger.Warn().
		Str("equipment", e.Name).
		Float64("temp_c", l.TempC).
		Int("units_quarantined", len(affected)).
		Msg("temperature breach")
	s.audit(ctx, p, "equipment.breach_detected", b.ID.String(), map[string]interface{}{
		"equipment_id": e.ID, "temp_c": l.TempC, "units": len(affected),
	})
	s.publish(ctx, events.TypeBreachDetected, e.BranchID, b.ID.String(), map[string]interface{}{
		"equipment": e.Name, "temp_c": l.TempC, "units": len(affected),
	})
	return nil
}

// quarantinable mirrors the statuses the breach quarantine statement moves.
func quarantinable(u *unit.BloodUnit) bool {
	if u.TransferPending() {
		return false
	}
	switch u.Status {
	case unit.StatusCollected, unit.StatusTestingPending, unit.StatusAvailable, unit.StatusReserved:
		return true
	default:
		return false
	}
}

func (s *Service) ListTemperatureLogs(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*TemperatureLog, int, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListTemperatureLogs(ctx, equipmentID, limit, offset)
}

// BreachDetail bundles a breach with its per-unit entries.
type BreachDetail struct {
	Breach  *Breach       `json:"breach"`
	Entries []*BreachUnit `json:"entries"`
}

func (s *Service) GetBreach(ctx context.Context, id uuid.UUID) (*BreachDetail, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	b, err := s.loadBreach(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListBreachUnits(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BreachDetail{Breach: b, Entries: entries}, nil
}

func (s *Service) ListBreaches(ctx context.Context, params map[string]string, limit, offset int) ([]*Breach, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListBreaches(ctx, params, limit, offset)
}

// AcknowledgeBreach records that a reviewer has taken ownership. Review
// actions are refused until the breach is acknowledged.
func (s *Service) AcknowledgeBreach(ctx context.Context, id uuid.UUID) (*Breach, error) {
	p, err := auth.Require(ctx, auth.PermBreachReview)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.AcknowledgeBreach(ctx, id, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		b, err := s.loadBreach(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.Acknowledged() {
			return nil, domainerrors.New(domainerrors.CodeConflict, "breach is already acknowledged")
		}
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "breach %s not found", id)
	}
	s.audit(ctx, p, "equipment.breach_acknowledged", id.String(), nil)
	return s.loadBreach(ctx, id)
}

type ReviewBreachUnitInput struct {
	UnitID        uuid.UUID         `json:"unit_id"`
	Action        BreachDisposition `json:"action"`
	Note          *string           `json:"note,omitempty"`
	WaiveRecovery bool              `json:"waive_recovery,omitempty"`
}

// ReviewBreachUnit dispositions one affected unit: RELEASED back to
// inventory once the device has demonstrably recovered (or the check is
// explicitly waived with a note), or DISCARDED. The breach closes itself
// when the last entry is dispositioned.
func (s *Service) ReviewBreachUnit(ctx context.Context, breachID uuid.UUID, in ReviewBreachUnitInput) (*BreachUnit, error) {
	p, err := auth.Require(ctx, auth.PermBreachReview)
	if err != nil {
		return nil, err
	}
	b, err := s.loadBreach(ctx, breachID)
	if err != nil {
		return nil, err
	}
	if !b.Acknowledged() {
		return nil, domainerrors.New(domainerrors.CodeConflict, "breach must be acknowledged before review")
	}
	if b.ClosedAt != nil {
		return nil, domainerrors.New(domainerrors.CodeConflict, "breach is already closed")
	}
	entry, err := s.repo.GetBreachUnit(ctx, breachID, in.UnitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "unit %s is not on this breach", in.UnitID)
	}
	if err != nil {
		return nil, err
	}
	if entry.Disposition != nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"unit %s already dispositioned %s", entry.UnitNumber, *entry.Disposition)
	}

	switch in.Action {
	case DispositionReleased:
		recovered, err := s.repo.HasRecoveryLog(ctx, b.EquipmentID, b.DetectedAt)
		if err != nil {
			return nil, err
		}
		if !recovered && !in.WaiveRecovery {
			return nil, domainerrors.New(domainerrors.CodeBreachReviewPending,
				"no in-band temperature recorded since the breach; record a recovery log or waive the check")
		}
		if !recovered && (in.Note == nil || *in.Note == "") {
			return nil, domainerrors.New(domainerrors.CodeBadRequest,
				"waiving the recovery check requires a note")
		}
		if _, err := s.units.ReleaseBreachHold(ctx, in.UnitID); err != nil {
			return nil, err
		}
	case DispositionDiscarded:
		u, err := s.units.GetUnit(ctx, in.UnitID)
		if err != nil {
			return nil, err
		}
		// A unit the expiry sweep already terminated just gets its
		// disposition recorded.
		if !unit.IsTerminal(u.Status) {
			note := "temperature breach"
			if in.Note != nil {
				note = *in.Note
			}
			if _, err := s.units.DiscardUnit(ctx, in.UnitID, unit.DiscardOther, &note); err != nil {
				return nil, err
			}
			if _, err := s.units.ClearSlot(ctx, in.UnitID); err != nil {
				return nil, err
			}
		}
	default:
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid review action: %s", in.Action)
	}

	ok, err := s.repo.SetBreachUnitDisposition(ctx, breachID, in.UnitID, in.Action, in.Note, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeConflict, "unit already dispositioned")
	}

	remaining, err := s.repo.UndispositionedCount(ctx, breachID)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		if _, err := s.repo.CloseBreach(ctx, breachID, s.now()); err != nil {
			return nil, err
		}
		s.audit(ctx, p, "equipment.breach_closed", breachID.String(), nil)
	}
	s.audit(ctx, p, "equipment.breach_unit_reviewed", in.UnitID.String(), map[string]interface{}{
		"breach_id": breachID, "action": in.Action,
	})
	return s.repo.GetBreachUnit(ctx, breachID, in.UnitID)
}

func (s *Service) loadEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error) {
	e, err := s.repo.GetEquipment(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "equipment %s not found", id)
	}
	return e, err
}

func (s *Service) loadBreach(ctx context.Context, id uuid.UUID) (*Breach, error) {
	b, err := s.repo.GetBreach(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "breach %s not found", id)
	}
	return b, err
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "equipment",
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
