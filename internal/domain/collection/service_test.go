package collection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/donor"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// -- Mock repository --

type mockCollectionRepo struct {
	screenings map[uuid.UUID]*Screening
	donations  map[uuid.UUID]*Donation
	events     map[uuid.UUID][]*AdverseEvent
	nextNum    int
}

func newMockCollectionRepo() *mockCollectionRepo {
	return &mockCollectionRepo{
		screenings: make(map[uuid.UUID]*Screening),
		donations:  make(map[uuid.UUID]*Donation),
		events:     make(map[uuid.UUID][]*AdverseEvent),
	}
}

func (m *mockCollectionRepo) CreateScreening(_ context.Context, s *Screening) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.screenings[s.ID] = s
	return nil
}

func (m *mockCollectionRepo) GetScreening(_ context.Context, id uuid.UUID) (*Screening, error) {
	s, ok := m.screenings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockCollectionRepo) ListScreeningsByDonor(_ context.Context, donorID uuid.UUID, limit, offset int) ([]*Screening, int, error) {
	var r []*Screening
	for _, s := range m.screenings {
		if s.DonorID == donorID {
			r = append(r, s)
		}
	}
	return r, len(r), nil
}

func (m *mockCollectionRepo) SetScreeningConsent(_ context.Context, id uuid.UUID) (bool, error) {
	s, ok := m.screenings[id]
	if !ok {
		return false, nil
	}
	s.ConsentGiven = true
	return true, nil
}

func (m *mockCollectionRepo) CreateDonation(_ context.Context, d *Donation) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.donations[d.ID] = d
	return nil
}

func (m *mockCollectionRepo) GetDonation(_ context.Context, id uuid.UUID) (*Donation, error) {
	d, ok := m.donations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockCollectionRepo) GetDonationByScreening(_ context.Context, screeningID uuid.UUID) (*Donation, error) {
	for _, d := range m.donations {
		if d.ScreeningID == screeningID {
			return d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockCollectionRepo) ListDonations(_ context.Context, params map[string]string, limit, offset int) ([]*Donation, int, error) {
	var r []*Donation
	for _, d := range m.donations {
		r = append(r, d)
	}
	return r, len(r), nil
}

func (m *mockCollectionRepo) NextDonationNumber(_ context.Context) (string, error) {
	m.nextNum++
	return fmt.Sprintf("DON-%06d", m.nextNum), nil
}

func (m *mockCollectionRepo) CompleteDonation(_ context.Context, id uuid.UUID, volumeML, pilotTubes int, endedAt time.Time) (bool, error) {
	d, ok := m.donations[id]
	if !ok || d.Status != DonationInProgress {
		return false, nil
	}
	d.Status = DonationCompleted
	d.VolumeML = volumeML
	d.PilotTubeCount = pilotTubes
	d.EndedAt = &endedAt
	return true, nil
}

func (m *mockCollectionRepo) AbortDonation(_ context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error) {
	d, ok := m.donations[id]
	if !ok || d.Status != DonationInProgress {
		return false, nil
	}
	d.Status = DonationAborted
	d.AbortReason = &reason
	d.EndedAt = &endedAt
	return true, nil
}

func (m *mockCollectionRepo) AppendAdverseEvent(_ context.Context, e *AdverseEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.events[e.DonationID] = append(m.events[e.DonationID], e)
	return nil
}

func (m *mockCollectionRepo) ListAdverseEvents(_ context.Context, donationID uuid.UUID) ([]*AdverseEvent, error) {
	return m.events[donationID], nil
}

// -- Mock donor gateway --

type mockDonorGateway struct {
	donors     map[uuid.UUID]*donor.Donor
	ineligible map[uuid.UUID]error
}

func newMockDonorGateway() *mockDonorGateway {
	return &mockDonorGateway{
		donors:     make(map[uuid.UUID]*donor.Donor),
		ineligible: make(map[uuid.UUID]error),
	}
}

func (m *mockDonorGateway) GetDonor(_ context.Context, id uuid.UUID) (*donor.Donor, error) {
	d, ok := m.donors[id]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "donor %s not found", id)
	}
	return d, nil
}

func (m *mockDonorGateway) CheckEligibility(ctx context.Context, id uuid.UUID) (*donor.Donor, error) {
	if err, ok := m.ineligible[id]; ok {
		return nil, err
	}
	return m.GetDonor(ctx, id)
}

func (m *mockDonorGateway) seed(group *unit.BloodGroup) *donor.Donor {
	d := &donor.Donor{
		ID:          uuid.New(),
		DonorNumber: fmt.Sprintf("DN-%06d", len(m.donors)+1),
		BranchID:    "branch-1",
		FirstName:   "Asha",
		LastName:    "Verma",
		DateOfBirth: time.Now().AddDate(-30, 0, 0),
		BloodGroup:  group,
	}
	m.donors[d.ID] = d
	return d
}

// -- Mock unit registrar --

type mockRegistrar struct {
	units   map[uuid.UUID]*unit.BloodUnit
	nextNum int
}

func newMockRegistrar() *mockRegistrar {
	return &mockRegistrar{units: make(map[uuid.UUID]*unit.BloodUnit)}
}

func (m *mockRegistrar) RegisterUnit(_ context.Context, in unit.RegisterUnitInput) (*unit.BloodUnit, error) {
	m.nextNum++
	u := &unit.BloodUnit{
		ID:            uuid.New(),
		UnitNumber:    fmt.Sprintf("BU-%06d", m.nextNum),
		DonationID:    in.DonationID,
		BloodGroup:    in.BloodGroup,
		ComponentType: in.ComponentType,
		BagType:       in.BagType,
		VolumeML:      in.VolumeML,
		Status:        unit.StatusCollected,
		CollectedAt:   in.CollectedAt,
		ExpiresAt:     unit.ExpiryFor(in.ComponentType, in.CollectedAt),
	}
	m.units[u.ID] = u
	return u, nil
}

func (m *mockRegistrar) ListByDonation(_ context.Context, donationID uuid.UUID) ([]*unit.BloodUnit, error) {
	var r []*unit.BloodUnit
	for _, u := range m.units {
		if u.DonationID != nil && *u.DonationID == donationID {
			r = append(r, u)
		}
	}
	return r, nil
}

func (m *mockRegistrar) SetCollectedVolume(_ context.Context, id uuid.UUID, volumeML int) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok || u.Status != unit.StatusCollected {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition, "unit is not COLLECTED")
	}
	u.VolumeML = volumeML
	return u, nil
}

func (m *mockRegistrar) MoveToTesting(_ context.Context, id uuid.UUID) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok || u.Status != unit.StatusCollected {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition, "unit is not COLLECTED")
	}
	u.Status = unit.StatusTestingPending
	return u, nil
}

func (m *mockRegistrar) DiscardUnit(_ context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error) {
	u, ok := m.units[id]
	if !ok || u.Status == unit.StatusDiscarded {
		return nil, domainerrors.New(domainerrors.CodeInvalidStateTransition, "unit cannot be discarded")
	}
	u.Status = unit.StatusDiscarded
	u.DiscardReason = &reason
	u.DiscardNote = note
	return u, nil
}

// -- Test helpers --

func authedCtx() context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{
		UserID:      "staff-1",
		BranchID:    "branch-1",
		Permissions: []string{"*"},
	})
}

func newTestService(repo *mockCollectionRepo, donors *mockDonorGateway, units *mockRegistrar) *Service {
	svc := NewService(repo, donors, units, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func passingVitals(donorID uuid.UUID) ScreeningInput {
	return ScreeningInput{
		DonorID:       donorID,
		ConsentGiven:  true,
		HemoglobinGDL: 13.8,
		WeightKG:      62,
		PulseBPM:      72,
		BPSystolic:    118,
		BPDiastolic:   76,
		TemperatureC:  36.8,
	}
}

func seedPassedScreening(repo *mockCollectionRepo, donorID uuid.UUID) *Screening {
	sc := &Screening{
		ID:           uuid.New(),
		DonorID:      donorID,
		BranchID:     "branch-1",
		ConsentGiven: true,
		Outcome:      ScreeningPassed,
	}
	repo.screenings[sc.ID] = sc
	return sc
}

// startedCollection seeds a donor with group O_POS and runs StartCollection.
func startedCollection(t *testing.T, repo *mockCollectionRepo, donors *mockDonorGateway, svc *Service, bagType string) (*Donation, *unit.BloodUnit) {
	t.Helper()
	group := unit.OPos
	d := donors.seed(&group)
	sc := seedPassedScreening(repo, d.ID)
	don, u, err := svc.StartCollection(authedCtx(), StartCollectionInput{ScreeningID: sc.ID, BagType: bagType})
	if err != nil {
		t.Fatalf("start collection: %v", err)
	}
	return don, u
}

// -- Screening tests --

func TestRecordScreening_Passes(t *testing.T) {
	repo := newMockCollectionRepo()
	svc := newTestService(repo, newMockDonorGateway(), newMockRegistrar())

	sc, err := svc.RecordScreening(authedCtx(), passingVitals(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Outcome != ScreeningPassed {
		t.Errorf("expected PASSED, got %s", sc.Outcome)
	}
	if sc.ScreenedBy != "staff-1" {
		t.Errorf("expected screener from principal, got %s", sc.ScreenedBy)
	}
}

func TestRecordScreening_LowHemoglobinDefers(t *testing.T) {
	svc := newTestService(newMockCollectionRepo(), newMockDonorGateway(), newMockRegistrar())
	in := passingVitals(uuid.New())
	in.HemoglobinGDL = 11.9

	sc, err := svc.RecordScreening(authedCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Outcome != ScreeningDeferred {
		t.Errorf("expected DEFERRED for low hemoglobin, got %s", sc.Outcome)
	}
}

func TestRecordScreening_LowWeightFails(t *testing.T) {
	svc := newTestService(newMockCollectionRepo(), newMockDonorGateway(), newMockRegistrar())
	in := passingVitals(uuid.New())
	in.WeightKG = 42

	sc, err := svc.RecordScreening(authedCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Outcome != ScreeningFailed {
		t.Errorf("expected FAILED for low weight, got %s", sc.Outcome)
	}
}

func TestRecordScreening_AbnormalPulseFails(t *testing.T) {
	svc := newTestService(newMockCollectionRepo(), newMockDonorGateway(), newMockRegistrar())
	in := passingVitals(uuid.New())
	in.PulseBPM = 118

	sc, err := svc.RecordScreening(authedCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Outcome != ScreeningFailed {
		t.Errorf("expected FAILED for abnormal pulse, got %s", sc.Outcome)
	}
}

func TestRecordConsent(t *testing.T) {
	repo := newMockCollectionRepo()
	svc := newTestService(repo, newMockDonorGateway(), newMockRegistrar())
	in := passingVitals(uuid.New())
	in.ConsentGiven = false

	sc, err := svc.RecordScreening(authedCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.RecordConsent(authedCtx(), sc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ConsentGiven {
		t.Error("expected consent recorded")
	}
}

// -- Collection tests --

func TestStartCollection_Success(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	registrar := newMockRegistrar()
	svc := newTestService(repo, donors, registrar)

	don, u := startedCollection(t, repo, donors, svc, BagTriple)

	if don.DonationNumber != "DON-000001" {
		t.Errorf("expected DON-000001, got %s", don.DonationNumber)
	}
	if don.Status != DonationInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", don.Status)
	}
	if don.Phlebotomist != "staff-1" {
		t.Errorf("expected phlebotomist from principal, got %s", don.Phlebotomist)
	}
	if u.ComponentType != unit.WholeBlood || u.Status != unit.StatusCollected {
		t.Errorf("expected COLLECTED whole-blood unit, got %s %s", u.ComponentType, u.Status)
	}
	if u.BloodGroup != unit.OPos {
		t.Errorf("expected donor group stamped on unit, got %s", u.BloodGroup)
	}
}

func TestStartCollection_RequiresConsent(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	group := unit.APos
	d := donors.seed(&group)
	sc := seedPassedScreening(repo, d.ID)
	sc.ConsentGiven = false

	_, _, err := svc.StartCollection(authedCtx(), StartCollectionInput{ScreeningID: sc.ID, BagType: BagSingle})
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected donor ineligible, got %v", err)
	}
}

func TestStartCollection_ScreeningNotPassed(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	group := unit.APos
	d := donors.seed(&group)
	sc := seedPassedScreening(repo, d.ID)
	sc.Outcome = ScreeningDeferred

	_, _, err := svc.StartCollection(authedCtx(), StartCollectionInput{ScreeningID: sc.ID, BagType: BagSingle})
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected donor ineligible, got %v", err)
	}
}

func TestStartCollection_ScreeningAlreadyUsed(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	group := unit.APos
	d := donors.seed(&group)
	sc := seedPassedScreening(repo, d.ID)
	in := StartCollectionInput{ScreeningID: sc.ID, BagType: BagDouble}

	if _, _, err := svc.StartCollection(authedCtx(), in); err != nil {
		t.Fatalf("first collection failed: %v", err)
	}
	_, _, err := svc.StartCollection(authedCtx(), in)
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict on reused screening, got %v", err)
	}
}

func TestStartCollection_DonorIneligibleAtNeedle(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	group := unit.APos
	d := donors.seed(&group)
	sc := seedPassedScreening(repo, d.ID)
	donors.ineligible[d.ID] = domainerrors.New(domainerrors.CodeDonorIneligible, "donor has an active deferral")

	_, _, err := svc.StartCollection(authedCtx(), StartCollectionInput{ScreeningID: sc.ID, BagType: BagSingle})
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected donor ineligible, got %v", err)
	}
}

func TestStartCollection_UnknownBloodGroup(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	d := donors.seed(nil)
	sc := seedPassedScreening(repo, d.ID)

	_, _, err := svc.StartCollection(authedCtx(), StartCollectionInput{ScreeningID: sc.ID, BagType: BagSingle})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request for unknown group, got %v", err)
	}
}

func TestEndCollection_Success(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	registrar := newMockRegistrar()
	svc := newTestService(repo, donors, registrar)

	don, u := startedCollection(t, repo, donors, svc, BagTriple)

	got, err := svc.EndCollection(authedCtx(), don.ID, EndCollectionInput{VolumeML: 420, PilotTubeCount: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != DonationCompleted || got.VolumeML != 420 {
		t.Errorf("expected COMPLETED with volume 420, got %s %d", got.Status, got.VolumeML)
	}
	if registrar.units[u.ID].Status != unit.StatusTestingPending {
		t.Errorf("expected unit in TESTING_PENDING, got %s", registrar.units[u.ID].Status)
	}
	if registrar.units[u.ID].VolumeML != 420 {
		t.Errorf("expected final volume on unit, got %d", registrar.units[u.ID].VolumeML)
	}
}

func TestEndCollection_RequiresPilotTubes(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := startedCollection(t, repo, donors, svc, BagSingle)

	_, err := svc.EndCollection(authedCtx(), don.ID, EndCollectionInput{VolumeML: 420})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestEndCollection_AlreadyEnded(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := startedCollection(t, repo, donors, svc, BagSingle)
	in := EndCollectionInput{VolumeML: 420, PilotTubeCount: 2}

	if _, err := svc.EndCollection(authedCtx(), don.ID, in); err != nil {
		t.Fatalf("first end failed: %v", err)
	}
	_, err := svc.EndCollection(authedCtx(), don.ID, in)
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAbortCollection_DiscardsUnit(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	registrar := newMockRegistrar()
	svc := newTestService(repo, donors, registrar)

	don, u := startedCollection(t, repo, donors, svc, BagSingle)

	got, err := svc.AbortCollection(authedCtx(), don.ID, "donor vasovagal episode")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != DonationAborted {
		t.Errorf("expected ABORTED, got %s", got.Status)
	}
	if registrar.units[u.ID].Status != unit.StatusDiscarded {
		t.Errorf("expected drawn unit discarded, got %s", registrar.units[u.ID].Status)
	}
}

func TestRecordAdverseEvent_Appends(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	registrar := newMockRegistrar()
	svc := newTestService(repo, donors, registrar)

	don, u := startedCollection(t, repo, donors, svc, BagSingle)

	if _, err := svc.RecordAdverseEvent(authedCtx(), don.ID, "donor reported dizziness"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, err := svc.ListAdverseEvents(authedCtx(), don.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if registrar.units[u.ID].Status != unit.StatusCollected {
		t.Errorf("adverse event must not alter unit state, got %s", registrar.units[u.ID].Status)
	}
}

func TestRecordAdverseEvent_AbortedDonation(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := startedCollection(t, repo, donors, svc, BagSingle)
	if _, err := svc.AbortCollection(authedCtx(), don.ID, "bag leak"); err != nil {
		t.Fatalf("abort failed: %v", err)
	}

	_, err := svc.RecordAdverseEvent(authedCtx(), don.ID, "late note")
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

// -- Separation tests --

func endedCollection(t *testing.T, svc *Service, repo *mockCollectionRepo, donors *mockDonorGateway, bagType string, volumeML int) (*Donation, *unit.BloodUnit) {
	t.Helper()
	don, u := startedCollection(t, repo, donors, svc, bagType)
	if _, err := svc.EndCollection(authedCtx(), don.ID, EndCollectionInput{VolumeML: volumeML, PilotTubeCount: 3}); err != nil {
		t.Fatalf("end collection: %v", err)
	}
	return don, u
}

func TestSeparateComponents_Success(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	registrar := newMockRegistrar()
	svc := newTestService(repo, donors, registrar)

	don, parent := endedCollection(t, svc, repo, donors, BagTriple, 450)

	units, err := svc.SeparateComponents(authedCtx(), don.ID, []ComponentSpec{
		{ComponentType: unit.PackedRedCells, VolumeML: 280, BagType: "SAGM"},
		{ComponentType: unit.FreshFrozenPlasma, VolumeML: 160, BagType: "plain"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	for _, u := range units {
		if u.BloodGroup != parent.BloodGroup {
			t.Errorf("expected parent group inherited, got %s", u.BloodGroup)
		}
		if u.Status != unit.StatusTestingPending {
			t.Errorf("expected child in TESTING_PENDING, got %s", u.Status)
		}
		if !u.CollectedAt.Equal(don.CollectedAt) {
			t.Errorf("expected collection time carried from donation")
		}
	}
	if registrar.units[parent.ID].Status != unit.StatusDiscarded {
		t.Errorf("expected parent out of circulation, got %s", registrar.units[parent.ID].Status)
	}
}

func TestSeparateComponents_SingleBagRefused(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := endedCollection(t, svc, repo, donors, BagSingle, 450)

	_, err := svc.SeparateComponents(authedCtx(), don.ID, []ComponentSpec{
		{ComponentType: unit.PackedRedCells, VolumeML: 280},
	})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestSeparateComponents_AlreadySeparated(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := endedCollection(t, svc, repo, donors, BagDouble, 450)
	specs := []ComponentSpec{{ComponentType: unit.PackedRedCells, VolumeML: 280}}

	if _, err := svc.SeparateComponents(authedCtx(), don.ID, specs); err != nil {
		t.Fatalf("first separation failed: %v", err)
	}
	_, err := svc.SeparateComponents(authedCtx(), don.ID, specs)
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict on second separation, got %v", err)
	}
}

func TestSeparateComponents_VolumeExceedsDonation(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := endedCollection(t, svc, repo, donors, BagTriple, 350)

	_, err := svc.SeparateComponents(authedCtx(), don.ID, []ComponentSpec{
		{ComponentType: unit.PackedRedCells, VolumeML: 280},
		{ComponentType: unit.FreshFrozenPlasma, VolumeML: 160},
	})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestSeparateComponents_InProgressDonation(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := startedCollection(t, repo, donors, svc, BagTriple)

	_, err := svc.SeparateComponents(authedCtx(), don.ID, []ComponentSpec{
		{ComponentType: unit.PackedRedCells, VolumeML: 280},
	})
	if !domainerrors.Is(err, domainerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSeparateComponents_WholeBloodChildRefused(t *testing.T) {
	repo := newMockCollectionRepo()
	donors := newMockDonorGateway()
	svc := newTestService(repo, donors, newMockRegistrar())

	don, _ := endedCollection(t, svc, repo, donors, BagDouble, 450)

	_, err := svc.SeparateComponents(authedCtx(), don.ID, []ComponentSpec{
		{ComponentType: unit.WholeBlood, VolumeML: 450},
	})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestSeparateComponents_DonationNotFound(t *testing.T) {
	svc := newTestService(newMockCollectionRepo(), newMockDonorGateway(), newMockRegistrar())

	_, err := svc.SeparateComponents(authedCtx(), uuid.New(), []ComponentSpec{
		{ComponentType: unit.PackedRedCells, VolumeML: 280},
	})
	if !domainerrors.Is(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
