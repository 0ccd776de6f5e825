package serology

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/collection"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// -- Mock repository --

type mockSerologyRepo struct {
	groupings     []*GroupingResult
	tti           []*TTIResult
	verifications []*Verification
}

func (m *mockSerologyRepo) AppendGrouping(_ context.Context, g *GroupingResult) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now().Add(time.Duration(len(m.groupings)) * time.Second)
	m.groupings = append(m.groupings, g)
	return nil
}

func (m *mockSerologyRepo) LatestGrouping(_ context.Context, unitID uuid.UUID) (*GroupingResult, error) {
	for i := len(m.groupings) - 1; i >= 0; i-- {
		if m.groupings[i].UnitID == unitID {
			return m.groupings[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockSerologyRepo) ListGroupings(_ context.Context, unitID uuid.UUID) ([]*GroupingResult, error) {
	var r []*GroupingResult
	for _, g := range m.groupings {
		if g.UnitID == unitID {
			r = append(r, g)
		}
	}
	return r, nil
}

func (m *mockSerologyRepo) ResolveGrouping(_ context.Context, id uuid.UUID, confirmed unit.BloodGroup, note, resolvedBy string, at time.Time) (bool, error) {
	for _, g := range m.groupings {
		if g.ID == id && g.Discrepancy && g.ResolvedAt == nil {
			g.ConfirmedGroup = &confirmed
			g.ResolutionNote = &note
			g.ResolvedBy = &resolvedBy
			g.ResolvedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSerologyRepo) AppendTTI(_ context.Context, t *TTIResult) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().Add(time.Duration(len(m.tti)) * time.Second)
	m.tti = append(m.tti, t)
	return nil
}

func (m *mockSerologyRepo) LatestPanel(_ context.Context, unitID uuid.UUID) (map[TTIMarker]*TTIResult, error) {
	panel := make(map[TTIMarker]*TTIResult)
	for _, t := range m.tti {
		if t.UnitID == unitID {
			panel[t.Marker] = t
		}
	}
	return panel, nil
}

func (m *mockSerologyRepo) ListTTI(_ context.Context, unitID uuid.UUID) ([]*TTIResult, error) {
	var r []*TTIResult
	for _, t := range m.tti {
		if t.UnitID == unitID {
			r = append(r, t)
		}
	}
	return r, nil
}

func (m *mockSerologyRepo) CreateVerification(_ context.Context, v *Verification) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	m.verifications = append(m.verifications, v)
	return nil
}

func (m *mockSerologyRepo) ListVerifications(_ context.Context, unitID uuid.UUID) ([]*Verification, error) {
	var r []*Verification
	for _, v := range m.verifications {
		if v.UnitID == unitID {
			r = append(r, v)
		}
	}
	return r, nil
}

// -- Mock unit gate --

type mockUnitGate struct {
	units map[uuid.UUID]*unit.BloodUnit
}

func newMockUnitGate() *mockUnitGate {
	return &mockUnitGate{units: make(map[uuid.UUID]*unit.BloodUnit)}
}

func (m *mockUnitGate) get(id uuid.UUID) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "blood unit %s not found", id)
	}
	return u, nil
}

func (m *mockUnitGate) GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return m.get(id)
}

func (m *mockUnitGate) ReleaseToInventory(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermTestingVerify); err != nil {
		return nil, err
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if u.Status != unit.StatusTestingPending {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition, "not TESTING_PENDING")
	}
	u.Status = unit.StatusAvailable
	return u, nil
}

func (m *mockUnitGate) ReleaseFromQuarantine(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryManage); err != nil {
		return nil, err
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if u.Status != unit.StatusQuarantined {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition, "not QUARANTINED")
	}
	u.Status = unit.StatusAvailable
	u.QuarantineReason = nil
	return u, nil
}

func (m *mockUnitGate) QuarantineUnit(ctx context.Context, id uuid.UUID, reason string) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryManage); err != nil {
		return nil, err
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Status = unit.StatusQuarantined
	u.QuarantineReason = &reason
	return u, nil
}

func (m *mockUnitGate) DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryManage); err != nil {
		return nil, err
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Status = unit.StatusDiscarded
	u.DiscardReason = &reason
	u.DiscardNote = note
	return u, nil
}

func (m *mockUnitGate) ConfirmBloodGroup(ctx context.Context, id uuid.UUID, group unit.BloodGroup) (*unit.BloodUnit, error) {
	if _, err := auth.Require(ctx, auth.PermTestingRecord); err != nil {
		return nil, err
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.BloodGroup = group
	return u, nil
}

// -- Mock donation source and lookback opener --

type mockDonationSource struct {
	donations map[uuid.UUID]*collection.Donation
}

func (m *mockDonationSource) GetDonation(_ context.Context, id uuid.UUID) (*collection.Donation, error) {
	d, ok := m.donations[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "donation %s not found", id)
	}
	return d, nil
}

type lookbackCall struct {
	DonorID uuid.UUID
	Trigger string
}

type mockLookback struct {
	calls []lookbackCall
	err   error
}

func (m *mockLookback) OpenForDonor(_ context.Context, donorID uuid.UUID, trigger, note string) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, lookbackCall{DonorID: donorID, Trigger: trigger})
	return nil
}

// -- Test helpers --

func ctxAs(user string) context.Context {
	return ctxWith(user, "*")
}

func ctxWith(user string, perms ...string) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{
		UserID:      user,
		BranchID:    "branch-1",
		Permissions: perms,
	})
}

type fixture struct {
	repo      *mockSerologyRepo
	gate      *mockUnitGate
	donations *mockDonationSource
	lookbacks *mockLookback
	svc       *Service
	donorID   uuid.UUID
	unit      *unit.BloodUnit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      &mockSerologyRepo{},
		gate:      newMockUnitGate(),
		donations: &mockDonationSource{donations: make(map[uuid.UUID]*collection.Donation)},
		lookbacks: &mockLookback{},
		donorID:   uuid.New(),
	}
	donationID := uuid.New()
	f.donations.donations[donationID] = &collection.Donation{
		ID:      donationID,
		DonorID: f.donorID,
	}
	f.unit = &unit.BloodUnit{
		ID:            uuid.New(),
		UnitNumber:    "BU-000001",
		DonationID:    &donationID,
		BloodGroup:    unit.OPos,
		ComponentType: unit.PackedRedCells,
		Status:        unit.StatusTestingPending,
	}
	f.gate.units[f.unit.ID] = f.unit
	f.svc = NewService(f.repo, f.gate, f.donations, f.lookbacks, nil, nil, zerolog.Nop())
	return f
}

func (f *fixture) recordCleanPanel(t *testing.T, user string) {
	t.Helper()
	for _, marker := range requiredMarkers {
		if _, err := f.svc.RecordTTIResult(ctxAs(user), f.unit.ID, TTIInput{Marker: marker, Outcome: TTINonReactive}); err != nil {
			t.Fatalf("recording %s: %v", marker, err)
		}
	}
}

// -- Grouping tests --

func TestRecordGrouping_Clean(t *testing.T) {
	f := newFixture(t)

	g, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Discrepancy {
		t.Error("matching grouping must not flag a discrepancy")
	}
	if f.unit.Status != unit.StatusTestingPending {
		t.Errorf("unit must stay TESTING_PENDING, got %s", f.unit.Status)
	}
}

func TestRecordGrouping_MismatchQuarantines(t *testing.T) {
	f := newFixture(t)

	g, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.APos})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Discrepancy {
		t.Fatal("expected discrepancy flag")
	}
	if f.unit.Status != unit.StatusQuarantined {
		t.Errorf("expected QUARANTINED, got %s", f.unit.Status)
	}
	if f.unit.QuarantineReason == nil || *f.unit.QuarantineReason != QuarantineDiscrepancy {
		t.Errorf("expected discrepancy quarantine reason, got %v", f.unit.QuarantineReason)
	}
}

// -- TTI tests --

func TestRecordTTI_ReactiveDiscardsAndOpensLookback(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHIV, Outcome: TTIReactive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.unit.Status != unit.StatusDiscarded {
		t.Errorf("expected DISCARDED, got %s", f.unit.Status)
	}
	if f.unit.DiscardReason == nil || *f.unit.DiscardReason != unit.DiscardTTIReactive {
		t.Errorf("expected TTI_REACTIVE discard reason, got %v", f.unit.DiscardReason)
	}
	if len(f.lookbacks.calls) != 1 {
		t.Fatalf("expected 1 lookback call, got %d", len(f.lookbacks.calls))
	}
	if f.lookbacks.calls[0].DonorID != f.donorID {
		t.Error("lookback opened for wrong donor")
	}
	if f.lookbacks.calls[0].Trigger != "REACTIVE_TTI" {
		t.Errorf("unexpected trigger %s", f.lookbacks.calls[0].Trigger)
	}
}

func TestRecordTTI_Reactive_LabTechPermissions(t *testing.T) {
	f := newFixture(t)

	ctx := ctxWith("tech-1", auth.PermTestingRecord)
	_, err := f.svc.RecordTTIResult(ctx, f.unit.ID, TTIInput{Marker: MarkerHIV, Outcome: TTIReactive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.unit.Status != unit.StatusDiscarded {
		t.Errorf("expected DISCARDED, got %s", f.unit.Status)
	}
	if len(f.lookbacks.calls) != 1 {
		t.Fatalf("expected 1 lookback call, got %d", len(f.lookbacks.calls))
	}
}

func TestRecordTTI_ReactiveLookbackFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.lookbacks.err = domainerrors.New(domainerrors.CodeConflict, "case ledger unavailable")

	_, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHIV, Outcome: TTIReactive})
	if err == nil {
		t.Fatal("expected the lookback failure to surface")
	}
}

func TestRecordTTI_IndeterminateQuarantines(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHCV, Outcome: TTIIndeterminate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.unit.Status != unit.StatusQuarantined {
		t.Errorf("expected QUARANTINED, got %s", f.unit.Status)
	}
}

func TestRecordTTI_InvalidMarker(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: "EBOLA", Outcome: TTINonReactive})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestRecordTTI_BreachQuarantinedUnit(t *testing.T) {
	f := newFixture(t)
	reason := "temperature breach on FRZ-1"
	f.unit.Status = unit.StatusQuarantined
	f.unit.QuarantineReason = &reason

	_, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHIV, Outcome: TTINonReactive})
	if !domainerrors.Is(err, domainerrors.CodeBreachReviewPending) {
		t.Fatalf("expected breach review pending, got %v", err)
	}
}

// -- Verification tests --

func TestVerifyResults_ReleasesCleanUnit(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	v, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != DecisionReleased {
		t.Errorf("expected RELEASED, got %s", v.Decision)
	}
	if f.unit.Status != unit.StatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", f.unit.Status)
	}
}

func TestVerifyResults_VerifierPermissions(t *testing.T) {
	f := newFixture(t)
	f.unit.BloodGroup = unit.APos

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.ANeg, Reverse: unit.ANeg}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	v, err := f.svc.VerifyResults(ctxWith("verifier-1", auth.PermTestingVerify), f.unit.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != DecisionReleased {
		t.Errorf("expected RELEASED, got %s", v.Decision)
	}
	if f.unit.Status != unit.StatusAvailable || f.unit.BloodGroup != unit.ANeg {
		t.Errorf("unit = %s %s", f.unit.Status, f.unit.BloodGroup)
	}
}

func TestVerifyResults_ConfirmsLabGroup(t *testing.T) {
	f := newFixture(t)
	f.unit.BloodGroup = unit.APos // provisional group from the donor record

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.ANeg, Reverse: unit.ANeg}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	if _, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.unit.BloodGroup != unit.ANeg {
		t.Errorf("expected lab-confirmed group A_NEG, got %s", f.unit.BloodGroup)
	}
}

func TestVerifyResults_DiscrepancyBlocks(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.APos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	_, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if !domainerrors.Is(err, domainerrors.CodeDiscrepancyBlock) {
		t.Fatalf("expected discrepancy block, got %v", err)
	}
}

func TestVerifyResults_IncompletePanel(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	if _, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHIV, Outcome: TTINonReactive}); err != nil {
		t.Fatalf("tti: %v", err)
	}

	_, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request for incomplete panel, got %v", err)
	}
}

func TestVerifyResults_RecorderCannotVerify(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	_, err := f.svc.VerifyResults(ctxAs("tech-1"), f.unit.ID, nil)
	if !domainerrors.Is(err, domainerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestVerifyResults_IndeterminateStaysQuarantined(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")
	if _, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerMalaria, Outcome: TTIIndeterminate}); err != nil {
		t.Fatalf("tti: %v", err)
	}

	v, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != DecisionQuarantined {
		t.Errorf("expected QUARANTINED decision, got %s", v.Decision)
	}
	if f.unit.Status != unit.StatusQuarantined {
		t.Errorf("expected unit QUARANTINED, got %s", f.unit.Status)
	}
}

// -- Discrepancy resolution tests --

func TestResolveDiscrepancy_Flow(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.APos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")

	// The recorder cannot resolve their own discrepancy.
	_, err := f.svc.ResolveDiscrepancy(ctxAs("tech-1"), f.unit.ID, unit.OPos, "repeat grouping confirmed O_POS")
	if !domainerrors.Is(err, domainerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	g, err := f.svc.ResolveDiscrepancy(ctxAs("supervisor-1"), f.unit.ID, unit.OPos, "repeat grouping confirmed O_POS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.ConfirmedGroup == nil || *g.ConfirmedGroup != unit.OPos {
		t.Fatalf("expected confirmed group recorded, got %v", g.ConfirmedGroup)
	}

	// With the discrepancy resolved the verifier can release the unit.
	v, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != DecisionReleased {
		t.Errorf("expected RELEASED, got %s", v.Decision)
	}
	if f.unit.Status != unit.StatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", f.unit.Status)
	}
	if f.unit.BloodGroup != unit.OPos {
		t.Errorf("expected confirmed group on unit, got %s", f.unit.BloodGroup)
	}
}

func TestResolveDiscrepancy_NoDiscrepancy(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	_, err := f.svc.ResolveDiscrepancy(ctxAs("supervisor-1"), f.unit.ID, unit.OPos, "note")
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRetestAfterIndeterminate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordGrouping(ctxAs("tech-1"), f.unit.ID, GroupingInput{Forward: unit.OPos, Reverse: unit.OPos}); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	f.recordCleanPanel(t, "tech-1")
	if _, err := f.svc.RecordTTIResult(ctxAs("tech-1"), f.unit.ID, TTIInput{Marker: MarkerHBsAg, Outcome: TTIIndeterminate}); err != nil {
		t.Fatalf("tti: %v", err)
	}
	if f.unit.Status != unit.StatusQuarantined {
		t.Fatalf("expected QUARANTINED after indeterminate, got %s", f.unit.Status)
	}

	// Retest comes back clean; the latest row wins and verification releases
	// the unit from quarantine.
	if _, err := f.svc.RecordTTIResult(ctxAs("tech-2"), f.unit.ID, TTIInput{Marker: MarkerHBsAg, Outcome: TTINonReactive}); err != nil {
		t.Fatalf("retest: %v", err)
	}
	v, err := f.svc.VerifyResults(ctxAs("verifier-1"), f.unit.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != DecisionReleased {
		t.Errorf("expected RELEASED, got %s", v.Decision)
	}
	if f.unit.Status != unit.StatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", f.unit.Status)
	}
}
