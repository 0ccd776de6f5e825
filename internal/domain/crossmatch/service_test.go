package crossmatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/serology"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// -- Mock repository --

type mockRequestRepo struct {
	requests   map[uuid.UUID]*BloodRequest
	samples    map[uuid.UUID]*PatientSample
	crossmatch []*Crossmatch
	requestSeq int
	xmSeq      int
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{
		requests: map[uuid.UUID]*BloodRequest{},
		samples:  map[uuid.UUID]*PatientSample{},
	}
}

func (m *mockRequestRepo) CreateRequest(_ context.Context, r *BloodRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.requests[r.ID] = r
	return nil
}

func (m *mockRequestRepo) GetRequest(_ context.Context, id uuid.UUID) (*BloodRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r, nil
}

func (m *mockRequestRepo) ListRequests(_ context.Context, params map[string]string, _, _ int) ([]*BloodRequest, int, error) {
	var out []*BloodRequest
	for _, r := range m.requests {
		if v, ok := params["patient_id"]; ok && r.PatientID != v {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockRequestRepo) SetRequestStatus(_ context.Context, id uuid.UUID, from, to RequestStatus) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *mockRequestRepo) NextRequestNumber(_ context.Context) (string, error) {
	m.requestSeq++
	return fmt.Sprintf("BR-%06d", m.requestSeq), nil
}

func (m *mockRequestRepo) CreateSample(_ context.Context, s *PatientSample) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.samples[s.RequestID] = s
	return nil
}

func (m *mockRequestRepo) GetSampleByRequest(_ context.Context, requestID uuid.UUID) (*PatientSample, error) {
	s, ok := m.samples[requestID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockRequestRepo) CreateCrossmatch(_ context.Context, x *Crossmatch) error {
	if x.ID == uuid.Nil {
		x.ID = uuid.New()
	}
	m.crossmatch = append(m.crossmatch, x)
	return nil
}

func (m *mockRequestRepo) LatestCrossmatch(_ context.Context, requestID, unitID uuid.UUID) (*Crossmatch, error) {
	for i := len(m.crossmatch) - 1; i >= 0; i-- {
		if m.crossmatch[i].RequestID == requestID && m.crossmatch[i].UnitID == unitID {
			return m.crossmatch[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRequestRepo) ListCrossmatches(_ context.Context, requestID uuid.UUID) ([]*Crossmatch, error) {
	var out []*Crossmatch
	for _, x := range m.crossmatch {
		if x.RequestID == requestID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (m *mockRequestRepo) NextCrossmatchNumber(_ context.Context) (string, error) {
	m.xmSeq++
	return fmt.Sprintf("XM-%06d", m.xmSeq), nil
}

// -- Mock unit ledger --

type mockLedger struct {
	units map[uuid.UUID]*unit.BloodUnit
	now   time.Time
}

func (m *mockLedger) GetUnit(_ context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", id)
	}
	return u, nil
}

func (m *mockLedger) SearchUnits(_ context.Context, params map[string]string, _, _ int) ([]*unit.BloodUnit, int, error) {
	var out []*unit.BloodUnit
	for _, u := range m.units {
		if v, ok := params["status"]; ok && string(u.Status) != v {
			continue
		}
		if v, ok := params["component_type"]; ok && string(u.ComponentType) != v {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockLedger) Reserve(_ context.Context, id, requestID uuid.UUID) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", id)
	}
	if u.Status == unit.StatusReserved {
		return nil, domainerrors.Newf(domainerrors.CodeAlreadyReserved, "unit %s is already reserved", u.UnitNumber)
	}
	if u.Status != unit.StatusAvailable || u.TransferPending() || u.Expired(m.now) {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition, "unit %s cannot be reserved", u.UnitNumber)
	}
	now := m.now
	u.Status = unit.StatusReserved
	u.ReservedRequestID = &requestID
	u.ReservedAt = &now
	return u, nil
}

func (m *mockLedger) ReleaseReservation(_ context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", id)
	}
	if u.Status != unit.StatusReserved {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition, "unit %s is not reserved", u.UnitNumber)
	}
	u.Status = unit.StatusAvailable
	u.ReservedRequestID = nil
	u.ReservedAt = nil
	return u, nil
}

func (m *mockLedger) ListByReservedRequest(_ context.Context, requestID uuid.UUID) ([]*unit.BloodUnit, error) {
	var out []*unit.BloodUnit
	for _, u := range m.units {
		if u.ReservedRequestID != nil && *u.ReservedRequestID == requestID {
			out = append(out, u)
		}
	}
	return out, nil
}

// -- Mock serology results --

type mockResults struct {
	byUnit map[uuid.UUID]*serology.UnitResults
}

func (m *mockResults) GetUnitResults(_ context.Context, unitID uuid.UUID) (*serology.UnitResults, error) {
	if r, ok := m.byUnit[unitID]; ok {
		return r, nil
	}
	return &serology.UnitResults{}, nil
}

func ctxAs(user string) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{
		UserID:      user,
		BranchID:    "branch-1",
		Permissions: []string{"*"},
	})
}

type fixture struct {
	repo    *mockRequestRepo
	ledger  *mockLedger
	results *mockResults
	svc     *Service
}

// runTx that restores the ledger on error, matching transactional
// rollback of a failed batch reserve.
func (f *fixture) rollbackTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := map[uuid.UUID]unit.BloodUnit{}
	for id, u := range f.ledger.units {
		snapshot[id] = *u
	}
	if err := fn(ctx); err != nil {
		for id := range f.ledger.units {
			prev := snapshot[id]
			*f.ledger.units[id] = prev
		}
		return err
	}
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMockRequestRepo(),
		ledger:  &mockLedger{units: map[uuid.UUID]*unit.BloodUnit{}, now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)},
		results: &mockResults{byUnit: map[uuid.UUID]*serology.UnitResults{}},
	}
	f.svc = NewService(f.repo, f.ledger, f.results, f.rollbackTx, nil, 72*time.Hour)
	f.svc.now = func() time.Time { return f.ledger.now }
	return f
}

func (f *fixture) seedRequest(t *testing.T, group unit.BloodGroup, quantity int, urgency Urgency) *BloodRequest {
	t.Helper()
	screen := serology.AntibodyNegative
	r, err := f.svc.CreateRequest(ctxAs("doc-1"), CreateRequestInput{
		PatientID:         "PT-1001",
		PatientName:       "Asha Verma",
		PatientBloodGroup: group,
		AntibodyScreen:    &screen,
		ComponentType:     unit.PackedRedCells,
		Quantity:          quantity,
		Urgency:           urgency,
		Indication:        "anemia, pre-op",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return r
}

func (f *fixture) seedSample(t *testing.T, requestID uuid.UUID) {
	t.Helper()
	if _, err := f.svc.RegisterSample(ctxAs("tech-1"), requestID, RegisterSampleInput{Label: "SMP-1"}); err != nil {
		t.Fatalf("RegisterSample: %v", err)
	}
}

func (f *fixture) seedUnit(group unit.BloodGroup, status unit.UnitStatus) *unit.BloodUnit {
	u := &unit.BloodUnit{
		ID:            uuid.New(),
		UnitNumber:    fmt.Sprintf("BU-%06d", len(f.ledger.units)+1),
		BranchID:      "branch-1",
		BloodGroup:    group,
		ComponentType: unit.PackedRedCells,
		Status:        status,
		ExpiresAt:     f.ledger.now.AddDate(0, 0, 30),
	}
	f.ledger.units[u.ID] = u
	return u
}

// -- Tests --

func TestCreateRequest(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 2, UrgencyRoutine)
	if r.RequestNumber != "BR-000001" {
		t.Fatalf("request number = %s", r.RequestNumber)
	}
	if r.Status != RequestOpen {
		t.Fatalf("status = %s", r.Status)
	}
}

func TestCreateRequest_InvalidGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRequest(ctxAs("doc-1"), CreateRequestInput{
		PatientID: "PT-1", PatientName: "X", PatientBloodGroup: "C+",
		ComponentType: unit.PackedRedCells, Quantity: 1, Urgency: UrgencyRoutine, Indication: "x",
	})
	if domainerrors.CodeOf(err) != domainerrors.CodeBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestReserveUnits(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 2, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u1 := f.seedUnit(unit.APos, unit.StatusAvailable)
	u2 := f.seedUnit(unit.ONeg, unit.StatusAvailable)

	reserved, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u1.ID, u2.ID}})
	if err != nil {
		t.Fatalf("ReserveUnits: %v", err)
	}
	if len(reserved) != 2 {
		t.Fatalf("reserved %d units", len(reserved))
	}
	if u1.Status != unit.StatusReserved || u2.Status != unit.StatusReserved {
		t.Fatalf("units not reserved: %s %s", u1.Status, u2.Status)
	}
	if u1.ReservedRequestID == nil || *u1.ReservedRequestID != r.ID {
		t.Fatal("unit not bound to request")
	}
}

func TestReserveUnits_RequiresSample(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}})
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReserveUnits_EmergencySkipsSample(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyEmergency)
	u := f.seedUnit(unit.ONeg, unit.StatusAvailable)

	if _, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}}); err != nil {
		t.Fatalf("ReserveUnits: %v", err)
	}
}

func TestReserveUnits_IncompatibleRollsBack(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.ONeg, 2, UrgencyRoutine)
	f.seedSample(t, r.ID)
	good := f.seedUnit(unit.ONeg, unit.StatusAvailable)
	bad := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{good.ID, bad.ID}})
	if domainerrors.CodeOf(err) != domainerrors.CodeBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
	if good.Status != unit.StatusAvailable || good.ReservedRequestID != nil {
		t.Fatal("batch was not rolled back")
	}
}

func TestReserveUnits_AlreadyReserved(t *testing.T) {
	f := newFixture(t)
	r1 := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r1.ID)
	r2 := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r2.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	if _, err := f.svc.ReserveUnits(ctxAs("doc-1"), r1.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	_, err := f.svc.ReserveUnits(ctxAs("doc-2"), r2.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}})
	if domainerrors.CodeOf(err) != domainerrors.CodeAlreadyReserved {
		t.Fatalf("expected already reserved, got %v", err)
	}
	if *u.ReservedRequestID != r1.ID {
		t.Fatal("winning reservation was disturbed")
	}
}

func TestReserveUnits_QuantityExceeded(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u1 := f.seedUnit(unit.APos, unit.StatusAvailable)
	u2 := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u1.ID, u2.ID}})
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListCandidates(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	compatible := f.seedUnit(unit.ONeg, unit.StatusAvailable)
	f.seedUnit(unit.BPos, unit.StatusAvailable)
	f.seedUnit(unit.APos, unit.StatusQuarantined)
	expired := f.seedUnit(unit.APos, unit.StatusAvailable)
	expired.ExpiresAt = f.ledger.now.AddDate(0, 0, -1)

	candidates, err := f.svc.ListCandidates(ctxAs("tech-1"), r.ID)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != compatible.ID {
		t.Fatalf("candidates = %v", candidates)
	}
}

func TestRecordCrossmatch_RequiresSample(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err := f.svc.RecordCrossmatch(ctxAs("tech-1"), r.ID, u.ID, RecordCrossmatchInput{Result: ResultCompatible})
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRecordCrossmatch(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	x, err := f.svc.RecordCrossmatch(ctxAs("tech-1"), r.ID, u.ID, RecordCrossmatchInput{Result: ResultCompatible})
	if err != nil {
		t.Fatalf("RecordCrossmatch: %v", err)
	}
	if x.Number != "XM-000001" || x.Method != MethodSerological {
		t.Fatalf("crossmatch = %+v", x)
	}
}

func TestElectronicCrossmatch(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.ONeg, unit.StatusAvailable)
	f.results.byUnit[u.ID] = &serology.UnitResults{
		Verifications: []*serology.Verification{{Decision: serology.DecisionReleased}},
	}

	x, err := f.svc.ElectronicCrossmatch(ctxAs("tech-1"), r.ID, u.ID)
	if err != nil {
		t.Fatalf("ElectronicCrossmatch: %v", err)
	}
	if x.Method != MethodElectronic || x.Result != ResultCompatible {
		t.Fatalf("crossmatch = %+v", x)
	}
}

func TestElectronicCrossmatch_NoVerification(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err := f.svc.ElectronicCrossmatch(ctxAs("tech-1"), r.ID, u.ID)
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestElectronicCrossmatch_PositiveScreen(t *testing.T) {
	f := newFixture(t)
	screen := "POSITIVE"
	r, err := f.svc.CreateRequest(ctxAs("doc-1"), CreateRequestInput{
		PatientID: "PT-2", PatientName: "Ravi Nair", PatientBloodGroup: unit.APos,
		AntibodyScreen: &screen, ComponentType: unit.PackedRedCells,
		Quantity: 1, Urgency: UrgencyRoutine, Indication: "surgery",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	_, err = f.svc.ElectronicCrossmatch(ctxAs("tech-1"), r.ID, u.ID)
	if domainerrors.CodeOf(err) != domainerrors.CodeBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAssertIssuable(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)

	if err := f.svc.AssertIssuable(context.Background(), r.ID, u.ID); domainerrors.CodeOf(err) != domainerrors.CodeInvalidStateTransition {
		t.Fatalf("expected block without cross-match, got %v", err)
	}

	if _, err := f.svc.RecordCrossmatch(ctxAs("tech-1"), r.ID, u.ID, RecordCrossmatchInput{Result: ResultCompatible}); err != nil {
		t.Fatalf("RecordCrossmatch: %v", err)
	}
	if err := f.svc.AssertIssuable(context.Background(), r.ID, u.ID); err != nil {
		t.Fatalf("AssertIssuable: %v", err)
	}
}

func TestAssertIssuable_Incompatible(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)
	if _, err := f.svc.RecordCrossmatch(ctxAs("tech-1"), r.ID, u.ID, RecordCrossmatchInput{Result: ResultIncompatible}); err != nil {
		t.Fatalf("RecordCrossmatch: %v", err)
	}

	err := f.svc.AssertIssuable(context.Background(), r.ID, u.ID)
	if domainerrors.CodeOf(err) != domainerrors.CodeInvalidStateTransition {
		t.Fatalf("expected block, got %v", err)
	}
}

func TestAssertIssuable_StaleCrossmatch(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)
	if _, err := f.svc.RecordCrossmatch(ctxAs("tech-1"), r.ID, u.ID, RecordCrossmatchInput{Result: ResultCompatible}); err != nil {
		t.Fatalf("RecordCrossmatch: %v", err)
	}

	f.ledger.now = f.ledger.now.Add(73 * time.Hour)
	err := f.svc.AssertIssuable(context.Background(), r.ID, u.ID)
	if domainerrors.CodeOf(err) != domainerrors.CodeInvalidStateTransition {
		t.Fatalf("expected expiry block, got %v", err)
	}
}

func TestAssertIssuable_EmergencyWithoutCrossmatch(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyEmergency)
	u := f.seedUnit(unit.ONeg, unit.StatusAvailable)

	if err := f.svc.AssertIssuable(context.Background(), r.ID, u.ID); err != nil {
		t.Fatalf("emergency issue blocked: %v", err)
	}
}

func TestCancelRequest_ReleasesUnits(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)
	if _, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}}); err != nil {
		t.Fatalf("ReserveUnits: %v", err)
	}

	cancelled, err := f.svc.CancelRequest(ctxAs("doc-1"), r.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if cancelled.Status != RequestCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if u.Status != unit.StatusAvailable || u.ReservedRequestID != nil {
		t.Fatal("reservation was not released")
	}
}

func TestCancelRequest_AlreadyFulfilled(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.repo.requests[r.ID].Status = RequestFulfilled

	_, err := f.svc.CancelRequest(ctxAs("doc-1"), r.ID)
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestNoteUnitIssued_Fulfills(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t, unit.APos, 1, UrgencyRoutine)
	f.seedSample(t, r.ID)
	u := f.seedUnit(unit.APos, unit.StatusAvailable)
	if _, err := f.svc.ReserveUnits(ctxAs("doc-1"), r.ID, ReserveInput{UnitIDs: []uuid.UUID{u.ID}}); err != nil {
		t.Fatalf("ReserveUnits: %v", err)
	}

	u.Status = unit.StatusIssued
	if err := f.svc.NoteUnitIssued(context.Background(), r.ID); err != nil {
		t.Fatalf("NoteUnitIssued: %v", err)
	}
	if f.repo.requests[r.ID].Status != RequestFulfilled {
		t.Fatalf("status = %s", f.repo.requests[r.ID].Status)
	}
}
