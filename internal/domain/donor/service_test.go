package donor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// -- Mock Repository --

type mockDonorRepo struct {
	donors    map[uuid.UUID]*Donor
	deferrals map[uuid.UUID]*Deferral
	lastGift  map[uuid.UUID]time.Time
	nextNum   int
}

func newMockDonorRepo() *mockDonorRepo {
	return &mockDonorRepo{
		donors:    make(map[uuid.UUID]*Donor),
		deferrals: make(map[uuid.UUID]*Deferral),
		lastGift:  make(map[uuid.UUID]time.Time),
	}
}

func (m *mockDonorRepo) Create(_ context.Context, d *Donor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.donors[d.ID] = d
	return nil
}

func (m *mockDonorRepo) GetByID(_ context.Context, id uuid.UUID) (*Donor, error) {
	d, ok := m.donors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockDonorRepo) GetByDonorNumber(_ context.Context, num string) (*Donor, error) {
	for _, d := range m.donors {
		if d.DonorNumber == num {
			return d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockDonorRepo) Update(_ context.Context, d *Donor) error {
	if _, ok := m.donors[d.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.donors[d.ID] = d
	return nil
}

func (m *mockDonorRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Donor, int, error) {
	var r []*Donor
	for _, d := range m.donors {
		r = append(r, d)
	}
	return r, len(r), nil
}

func (m *mockDonorRepo) NextDonorNumber(_ context.Context) (string, error) {
	m.nextNum++
	return fmt.Sprintf("DN-%06d", m.nextNum), nil
}

func (m *mockDonorRepo) CreateDeferral(_ context.Context, def *Deferral) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	m.deferrals[def.ID] = def
	return nil
}

func (m *mockDonorRepo) ActiveDeferrals(_ context.Context, donorID uuid.UUID, now time.Time) ([]*Deferral, error) {
	var r []*Deferral
	for _, def := range m.deferrals {
		if def.DonorID == donorID && def.Active(now) {
			r = append(r, def)
		}
	}
	return r, nil
}

func (m *mockDonorRepo) ListDeferrals(_ context.Context, donorID uuid.UUID) ([]*Deferral, error) {
	var r []*Deferral
	for _, def := range m.deferrals {
		if def.DonorID == donorID {
			r = append(r, def)
		}
	}
	return r, nil
}

func (m *mockDonorRepo) EndDeferral(_ context.Context, id uuid.UUID, endDate time.Time) (bool, error) {
	def, ok := m.deferrals[id]
	if !ok || def.Type != DeferralTemporary {
		return false, nil
	}
	def.EndDate = &endDate
	return true, nil
}

func (m *mockDonorRepo) LastDonationAt(_ context.Context, donorID uuid.UUID) (*time.Time, error) {
	t, ok := m.lastGift[donorID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// -- Test helpers --

func authedCtx() context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{
		UserID:      "staff-1",
		BranchID:    "branch-1",
		Permissions: []string{"*"},
	})
}

func seedDonor(repo *mockDonorRepo, ageYears int) *Donor {
	d := &Donor{
		ID:          uuid.New(),
		DonorNumber: fmt.Sprintf("DN-%06d", len(repo.donors)+1),
		BranchID:    "branch-1",
		FirstName:   "Asha",
		LastName:    "Verma",
		Gender:      "female",
		DateOfBirth: time.Now().AddDate(-ageYears, 0, -30),
	}
	repo.donors[d.ID] = d
	return d
}

// -- Tests --

func TestRegisterDonor_Success(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d, err := svc.RegisterDonor(authedCtx(), RegisterDonorInput{
		FirstName:   "Asha",
		LastName:    "Verma",
		Gender:      "female",
		DateOfBirth: time.Date(1990, 5, 12, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DonorNumber != "DN-000001" {
		t.Errorf("expected donor number DN-000001, got %s", d.DonorNumber)
	}
	if d.BranchID != "branch-1" {
		t.Errorf("expected branch from principal, got %s", d.BranchID)
	}
}

func TestRegisterDonor_MissingName(t *testing.T) {
	svc := NewService(newMockDonorRepo(), nil)
	_, err := svc.RegisterDonor(authedCtx(), RegisterDonorInput{
		FirstName:   "Asha",
		DateOfBirth: time.Date(1990, 5, 12, 0, 0, 0, 0, time.UTC),
	})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestCheckEligibility_Eligible(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)

	got, err := svc.CheckEligibility(authedCtx(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != d.ID {
		t.Error("expected the donor back")
	}
}

func TestCheckEligibility_Underage(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 16)

	_, err := svc.CheckEligibility(authedCtx(), d.ID)
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected DonorIneligible, got %v", err)
	}
}

func TestCheckEligibility_PermanentDeferral(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)
	repo.deferrals[uuid.New()] = &Deferral{
		ID: uuid.New(), DonorID: d.ID, Type: DeferralPermanent,
		Reason: "HBsAg positive", StartDate: time.Now().AddDate(-1, 0, 0),
	}

	_, err := svc.CheckEligibility(authedCtx(), d.ID)
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected DonorIneligible, got %v", err)
	}
}

func TestCheckEligibility_LapsedTemporaryDeferral(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)
	ended := time.Now().AddDate(0, -1, 0)
	repo.deferrals[uuid.New()] = &Deferral{
		ID: uuid.New(), DonorID: d.ID, Type: DeferralTemporary,
		Reason: "recent tattoo", StartDate: time.Now().AddDate(0, -7, 0), EndDate: &ended,
	}

	if _, err := svc.CheckEligibility(authedCtx(), d.ID); err != nil {
		t.Fatalf("lapsed deferral should not block: %v", err)
	}
}

func TestCheckEligibility_RecentDonation(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)
	repo.lastGift[d.ID] = time.Now().AddDate(0, 0, -30)

	_, err := svc.CheckEligibility(authedCtx(), d.ID)
	if !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected DonorIneligible, got %v", err)
	}
}

func TestDeferDonor_TemporaryRequiresEndDate(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)

	_, err := svc.DeferDonor(authedCtx(), d.ID, DeferDonorInput{
		Type: DeferralTemporary, Reason: "low hemoglobin",
	})
	if !domainerrors.Is(err, domainerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestDeferDonor_Success(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)
	end := time.Now().AddDate(0, 6, 0)

	def, err := svc.DeferDonor(authedCtx(), d.ID, DeferDonorInput{
		Type: DeferralTemporary, Reason: "malaria treatment", EndDate: &end,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.CreatedBy != "staff-1" {
		t.Errorf("expected creator from principal, got %s", def.CreatedBy)
	}
	if _, err := svc.CheckEligibility(authedCtx(), d.ID); !domainerrors.Is(err, domainerrors.CodeDonorIneligible) {
		t.Fatalf("expected donor to be ineligible after deferral, got %v", err)
	}
}

func TestEndDeferral_PermanentRejected(t *testing.T) {
	repo := newMockDonorRepo()
	svc := NewService(repo, nil)
	d := seedDonor(repo, 30)
	def := &Deferral{ID: uuid.New(), DonorID: d.ID, Type: DeferralPermanent, Reason: "TTI", StartDate: time.Now()}
	repo.deferrals[def.ID] = def

	err := svc.EndDeferral(authedCtx(), def.ID)
	if !domainerrors.Is(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected not found for permanent deferral, got %v", err)
	}
}
