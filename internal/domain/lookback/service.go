package lookback

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
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitSource is the slice of the unit service the sweep drives.
type UnitSource interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*unit.BloodUnit, error)
	QuarantineUnit(ctx context.Context, id uuid.UUID, reason string) (*unit.BloodUnit, error)
	ReleaseFromQuarantine(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error)
}

// DonationSource lists a donor's donation history for the sweep.
type DonationSource interface {
	ListDonations(ctx context.Context, params map[string]string, limit, offset int) ([]*collection.Donation, int, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	units     UnitSource
	donations DonationSource
	runTx     TxRunner
	auditor   *audit.Recorder
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	// windowDays bounds how far back the sweep reaches. Zero sweeps the
	// donor's entire history.
	windowDays int
	now        func() time.Time
}

func NewService(repo Repository, units UnitSource, donations DonationSource, runTx TxRunner, auditor *audit.Recorder, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger, windowDays int) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:       repo,
		units:      units,
		donations:  donations,
		runTx:      runTx,
		auditor:    auditor,
		events:     publisher,
		metrics:    m,
		logger:     logger,
		windowDays: windowDays,
		now:        time.Now,
	}
}

// OpenForDonor opens an investigation for the donor, or appends the new
// trigger to the one already open. This is the gateway the testing and
// reaction flows call; it never requires the lookback permission itself.
func (s *Service) OpenForDonor(ctx context.Context, donorID uuid.UUID, trigger, note string) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return domainerrors.New(domainerrors.CodeForbidden, "not authenticated")
	}

	existing, err := s.repo.OpenCaseByDonor(ctx, donorID)
	if err == nil {
		line := fmt.Sprintf("%s: %s", trigger, note)
		if _, err := s.repo.AppendCaseNote(ctx, existing.ID, line, s.now()); err != nil {
			return err
		}
		s.audit(ctx, p, "lookback.trigger_added", existing.ID.String(), map[string]interface{}{
			"case_number": existing.CaseNumber, "trigger": trigger,
		})
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = s.openCase(ctx, p, donorID, trigger, note)
	return err
}

type OpenCaseInput struct {
	DonorID uuid.UUID `json:"donor_id"`
	Trigger string    `json:"trigger"`
	Note    string    `json:"note"`
}

// OpenCase opens an investigation by hand, for triggers that arrive from
// outside the system (a donor self-report, an external lab notification).
func (s *Service) OpenCase(ctx context.Context, in OpenCaseInput) (*Case, error) {
	p, err := auth.Require(ctx, auth.PermLookbackManage)
	if err != nil {
		return nil, err
	}
	if in.Trigger == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "trigger is required")
	}
	if existing, err := s.repo.OpenCaseByDonor(ctx, in.DonorID); err == nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"case %s is already open for this donor", existing.CaseNumber)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return s.openCase(ctx, p, in.DonorID, in.Trigger, in.Note)
}

// openCase creates the case and sweeps the donor's in-window donations:
// live units are quarantined, transfused units flag their recipients, and
// every traced unit becomes an entry awaiting disposition.
func (s *Service) openCase(ctx context.Context, p *auth.Principal, donorID uuid.UUID, trigger, note string) (*Case, error) {
	number, err := s.repo.NextCaseNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating case number: %w", err)
	}
	c := &Case{
		CaseNumber: number,
		BranchID:   p.BranchID,
		DonorID:    donorID,
		Trigger:    trigger,
		Note:       note,
		Status:     CaseOpen,
		OpenedBy:   p.UserID,
		OpenedAt:   s.now(),
	}

	var cutoff time.Time
	if s.windowDays > 0 {
		cutoff = s.now().AddDate(0, 0, -s.windowDays)
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateCase(ctx, c); err != nil {
			return fmt.Errorf("creating lookback case: %w", err)
		}
		donations, _, err := s.donations.ListDonations(ctx,
			map[string]string{"donor_id": donorID.String()}, 500, 0)
		if err != nil {
			return err
		}
		// The sweep acts on the caller's behalf regardless of their role:
		// a reactive panel must pull units no matter who recorded it.
		uctx := auth.Elevate(ctx)
		var entries []*Entry
		for _, d := range donations {
			if !cutoff.IsZero() && d.CollectedAt.Before(cutoff) {
				continue
			}
			units, err := s.units.ListByDonation(uctx, d.ID)
			if err != nil {
				return err
			}
			for _, u := range units {
				e := &Entry{
					CaseID:     c.ID,
					UnitID:     u.ID,
					UnitNumber: u.UnitNumber,
					DonationID: d.ID,
					UnitStatus: u.Status,
				}
				// Issued, transfused and already-quarantined units cannot
				// move to QUARANTINED; they are traced as entries only.
				if unit.Quarantinable(u.Status) && !u.TransferPending() {
					reason := fmt.Sprintf("lookback %s (%s)", c.CaseNumber, trigger)
					if _, err := s.units.QuarantineUnit(uctx, u.ID, reason); err != nil {
						return err
					}
					e.Quarantined = true
				}
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			return s.repo.AddEntries(ctx, entries)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OpenLookbacks.Inc()
	}
	s.logger.Warn().
		Str("case_number", number).
		Str("donor_id", donorID.String()).
		Str("trigger", trigger).
		Msg("lookback case opened")
	s.audit(ctx, p, "lookback.opened", c.ID.String(), map[string]interface{}{
		"case_number": number, "donor_id": donorID, "trigger": trigger,
	})
	if s.events != nil {
		s.events.Publish(ctx, events.Event{
			Type:     events.TypeLookbackOpened,
			BranchID: p.BranchID,
			EntityID: number,
			Payload:  map[string]interface{}{"donor_id": donorID.String(), "trigger": trigger},
		})
	}
	return c, nil
}

// CaseDetail bundles a case with its traced units.
type CaseDetail struct {
	Case    *Case    `json:"case"`
	Entries []*Entry `json:"entries"`
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*CaseDetail, error) {
	if _, err := auth.Require(ctx, auth.PermLookbackManage); err != nil {
		return nil, err
	}
	c, err := s.loadCase(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CaseDetail{Case: c, Entries: entries}, nil
}

func (s *Service) ListCases(ctx context.Context, params map[string]string, limit, offset int) ([]*Case, int, error) {
	p, err := auth.Require(ctx, auth.PermLookbackManage)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListCases(ctx, params, limit, offset)
}

type ResolveEntryInput struct {
	UnitID      uuid.UUID        `json:"unit_id"`
	Disposition EntryDisposition `json:"disposition"`
	Note        *string          `json:"note,omitempty"`
}

// ResolveEntry dispositions one traced unit. Releasing is only valid for
// a unit the sweep quarantined; recipient notification only for a unit
// that had already been transfused.
func (s *Service) ResolveEntry(ctx context.Context, caseID uuid.UUID, in ResolveEntryInput) (*Entry, error) {
	p, err := auth.Require(ctx, auth.PermLookbackManage)
	if err != nil {
		return nil, err
	}
	if !ValidDisposition(in.Disposition) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid disposition: %s", in.Disposition)
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != CaseOpen {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "case %s is closed", c.CaseNumber)
	}
	e, err := s.repo.GetEntry(ctx, caseID, in.UnitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "unit is not part of this case")
	}
	if err != nil {
		return nil, err
	}
	if e.Disposition != nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"unit %s was already dispositioned %s", e.UnitNumber, *e.Disposition)
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		uctx := auth.Elevate(ctx)
		switch in.Disposition {
		case EntryReleased:
			if !e.Quarantined {
				return domainerrors.Newf(domainerrors.CodeBadRequest,
					"unit %s was not held by this case", e.UnitNumber)
			}
			if _, err := s.units.ReleaseFromQuarantine(uctx, e.UnitID); err != nil {
				return err
			}
		case EntryDiscarded:
			u, err := s.units.GetUnit(uctx, e.UnitID)
			if err != nil {
				return err
			}
			if !unit.IsTerminal(u.Status) {
				reason := unit.DiscardOther
				if c.Trigger == "REACTIVE_TTI" {
					reason = unit.DiscardTTIReactive
				}
				note := fmt.Sprintf("lookback %s", c.CaseNumber)
				if in.Note != nil {
					note = *in.Note
				}
				if _, err := s.units.DiscardUnit(uctx, e.UnitID, reason, &note); err != nil {
					return err
				}
			}
		case EntryRecipientNotified:
			if e.UnitStatus != unit.StatusTransfused {
				return domainerrors.Newf(domainerrors.CodeBadRequest,
					"unit %s was not transfused; there is no recipient to notify", e.UnitNumber)
			}
		}
		ok, err := s.repo.SetEntryDisposition(ctx, caseID, in.UnitID, in.Disposition, in.Note, p.UserID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict,
				"unit %s was already dispositioned", e.UnitNumber)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "lookback.entry_resolved", c.ID.String(), map[string]interface{}{
		"case_number": c.CaseNumber, "unit_number": e.UnitNumber, "disposition": in.Disposition,
	})
	return s.repo.GetEntry(ctx, caseID, in.UnitID)
}

// CloseCase ends the investigation. Every traced unit must be
// dispositioned first.
func (s *Service) CloseCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	p, err := auth.Require(ctx, auth.PermLookbackManage)
	if err != nil {
		return nil, err
	}
	c, err := s.loadCase(ctx, id)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.UndispositionedCount(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"case %s has %d unit(s) awaiting disposition", c.CaseNumber, pending)
	}
	ok, err := s.repo.CloseCase(ctx, id, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "case %s is closed", c.CaseNumber)
	}
	if s.metrics != nil {
		s.metrics.OpenLookbacks.Dec()
	}
	s.audit(ctx, p, "lookback.closed", c.ID.String(), map[string]interface{}{"case_number": c.CaseNumber})
	return s.loadCase(ctx, id)
}

func (s *Service) loadCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.repo.GetCase(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "lookback case %s not found", id)
	}
	return c, err
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "lookback_case",
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
