package donor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

type Service struct {
	donors  Repository
	auditor *audit.Recorder
	now     func() time.Time
}

func NewService(donors Repository, auditor *audit.Recorder) *Service {
	return &Service{donors: donors, auditor: auditor, now: time.Now}
}

type RegisterDonorInput struct {
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	Gender      string           `json:"gender"`
	DateOfBirth time.Time        `json:"date_of_birth"`
	BloodGroup  *unit.BloodGroup `json:"blood_group,omitempty"`
	Phone       *string          `json:"phone,omitempty"`
	Email       *string          `json:"email,omitempty"`
}

func (s *Service) RegisterDonor(ctx context.Context, in RegisterDonorInput) (*Donor, error) {
	p, err := auth.Require(ctx, auth.PermDonorManage)
	if err != nil {
		return nil, err
	}
	if in.FirstName == "" || in.LastName == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "first_name and last_name are required")
	}
	if in.DateOfBirth.IsZero() {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "date_of_birth is required")
	}
	if in.BloodGroup != nil && !unit.ValidBloodGroup(*in.BloodGroup) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", *in.BloodGroup)
	}

	donorNumber, err := s.donors.NextDonorNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating donor number: %w", err)
	}
	d := &Donor{
		DonorNumber: donorNumber,
		BranchID:    p.BranchID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Gender:      in.Gender,
		DateOfBirth: in.DateOfBirth,
		BloodGroup:  in.BloodGroup,
		Phone:       in.Phone,
		Email:       in.Email,
	}
	if err := s.donors.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating donor: %w", err)
	}
	s.audit(ctx, p, "donor.registered", d.ID.String(), map[string]interface{}{"donor_number": d.DonorNumber})
	return d, nil
}

func (s *Service) GetDonor(ctx context.Context, id uuid.UUID) (*Donor, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Service) SearchDonors(ctx context.Context, params map[string]string, limit, offset int) ([]*Donor, int, error) {
	p, err := auth.Require(ctx, auth.PermDonorRead)
	if err != nil {
		return nil, 0, err
	}
	params["branch_id"] = p.BranchID
	return s.donors.Search(ctx, params, limit, offset)
}

func (s *Service) UpdateDonor(ctx context.Context, d *Donor) error {
	p, err := auth.Require(ctx, auth.PermDonorManage)
	if err != nil {
		return err
	}
	if d.BloodGroup != nil && !unit.ValidBloodGroup(*d.BloodGroup) {
		return domainerrors.Newf(domainerrors.CodeBadRequest, "invalid blood group: %s", *d.BloodGroup)
	}
	if err := s.donors.Update(ctx, d); err != nil {
		return err
	}
	s.audit(ctx, p, "donor.updated", d.ID.String(), nil)
	return nil
}

type DeferDonorInput struct {
	Type    DeferralType `json:"deferral_type"`
	Reason  string       `json:"reason"`
	EndDate *time.Time   `json:"end_date,omitempty"`
}

func (s *Service) DeferDonor(ctx context.Context, donorID uuid.UUID, in DeferDonorInput) (*Deferral, error) {
	p, err := auth.Require(ctx, auth.PermDonorManage)
	if err != nil {
		return nil, err
	}
	if in.Type != DeferralPermanent && in.Type != DeferralTemporary {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid deferral type: %s", in.Type)
	}
	if in.Reason == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "deferral reason is required")
	}
	if in.Type == DeferralTemporary {
		if in.EndDate == nil {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "temporary deferral requires end_date")
		}
		if !in.EndDate.After(s.now()) {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "end_date must be in the future")
		}
	}
	if _, err := s.load(ctx, donorID); err != nil {
		return nil, err
	}

	def := &Deferral{
		DonorID:   donorID,
		Type:      in.Type,
		Reason:    in.Reason,
		StartDate: s.now(),
		EndDate:   in.EndDate,
		CreatedBy: p.UserID,
	}
	if err := s.donors.CreateDeferral(ctx, def); err != nil {
		return nil, fmt.Errorf("creating deferral: %w", err)
	}
	s.audit(ctx, p, "donor.deferred", donorID.String(), map[string]interface{}{
		"deferral_type": in.Type, "reason": in.Reason,
	})
	return def, nil
}

// EndDeferral closes a temporary deferral early. Permanent deferrals cannot
// be lifted.
func (s *Service) EndDeferral(ctx context.Context, deferralID uuid.UUID) error {
	p, err := auth.Require(ctx, auth.PermDonorManage)
	if err != nil {
		return err
	}
	ok, err := s.donors.EndDeferral(ctx, deferralID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return domainerrors.New(domainerrors.CodeNotFound, "no temporary deferral to end")
	}
	s.audit(ctx, p, "donor.deferral_ended", deferralID.String(), nil)
	return nil
}

func (s *Service) ListDeferrals(ctx context.Context, donorID uuid.UUID) ([]*Deferral, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	return s.donors.ListDeferrals(ctx, donorID)
}

// CheckEligibility verifies a donor can donate now: known donor, acceptable
// age, no active deferral, and outside the minimum donation interval. The
// returned error carries the first failed rule.
func (s *Service) CheckEligibility(ctx context.Context, donorID uuid.UUID) (*Donor, error) {
	if _, err := auth.Require(ctx, auth.PermDonorRead); err != nil {
		return nil, err
	}
	d, err := s.load(ctx, donorID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if age := d.Age(now); age < minDonorAge || age > maxDonorAge {
		return nil, domainerrors.Newf(domainerrors.CodeDonorIneligible,
			"donor age %d is outside the %d-%d range", age, minDonorAge, maxDonorAge)
	}

	deferrals, err := s.donors.ActiveDeferrals(ctx, donorID, now)
	if err != nil {
		return nil, err
	}
	if len(deferrals) > 0 {
		def := deferrals[0]
		if def.Type == DeferralPermanent {
			return nil, domainerrors.Newf(domainerrors.CodeDonorIneligible,
				"donor is permanently deferred: %s", def.Reason)
		}
		return nil, domainerrors.Newf(domainerrors.CodeDonorIneligible,
			"donor is deferred until %s: %s", def.EndDate.Format("2006-01-02"), def.Reason)
	}

	last, err := s.donors.LastDonationAt(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if last != nil && now.Sub(*last) < minDonationInterval {
		next := last.Add(minDonationInterval)
		return nil, domainerrors.Newf(domainerrors.CodeDonorIneligible,
			"donor donated on %s; next donation allowed from %s",
			last.Format("2006-01-02"), next.Format("2006-01-02"))
	}

	return d, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Donor, error) {
	d, err := s.donors.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "donor %s not found", id)
	}
	return d, err
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "donor",
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
