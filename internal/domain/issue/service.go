package issue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/collection"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/crossmatch"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitIssuer is the slice of the unit service the issue desk drives.
type UnitIssuer interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	IssueUnit(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	ReturnUnit(ctx context.Context, id uuid.UUID, returnWindow time.Duration) (*unit.BloodUnit, error)
	MarkTransfused(ctx context.Context, id uuid.UUID) (*unit.BloodUnit, error)
	DiscardUnit(ctx context.Context, id uuid.UUID, reason string, note *string) (*unit.BloodUnit, error)
}

// RequestGate is the slice of the reservation ledger consulted before a
// unit may leave the bank. Satisfied by the crossmatch service.
type RequestGate interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*crossmatch.RequestDetail, error)
	AssertIssuable(ctx context.Context, requestID, unitID uuid.UUID) error
	NoteUnitIssued(ctx context.Context, requestID uuid.UUID) error
}

// DonationSource resolves a unit's donation, and through it the donor.
type DonationSource interface {
	GetDonation(ctx context.Context, id uuid.UUID) (*collection.Donation, error)
}

// LookbackOpener opens or updates the open investigation for a donor.
// Satisfied by the lookback service.
type LookbackOpener interface {
	OpenForDonor(ctx context.Context, donorID uuid.UUID, trigger, note string) error
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo         Repository
	units        UnitIssuer
	requests     RequestGate
	donations    DonationSource
	lookbacks    LookbackOpener
	runTx        TxRunner
	auditor      *audit.Recorder
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	returnWindow time.Duration
	now          func() time.Time
}

// NewService wires the issue desk. returnWindow bounds how long an issued
// unit may stay out before a return must discard it.
func NewService(repo Repository, units UnitIssuer, requests RequestGate, donations DonationSource, lookbacks LookbackOpener, runTx TxRunner, auditor *audit.Recorder, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger, returnWindow time.Duration) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:         repo,
		units:        units,
		requests:     requests,
		donations:    donations,
		lookbacks:    lookbacks,
		runTx:        runTx,
		auditor:      auditor,
		events:       publisher,
		metrics:      m,
		logger:       logger,
		returnWindow: returnWindow,
		now:          time.Now,
	}
}

// IssueInput carries the bedside identification scans alongside the
// hand-off details.
type IssueInput struct {
	RequestID         uuid.UUID `json:"request_id"`
	UnitID            uuid.UUID `json:"unit_id"`
	ScannedPatientID  string    `json:"scanned_patient_id"`
	ScannedUnitNumber string    `json:"scanned_unit_number"`
	IssuedTo          string    `json:"issued_to"`
	Destination       *string   `json:"destination,omitempty"`
	// OverrideReason authorizes issuing to a recipient with a serious
	// reaction on record. Requires the override permission.
	OverrideReason *string `json:"override_reason,omitempty"`
}

// IssueUnit hands a reserved unit over to the ward. The scanned patient
// and unit identifiers must match the request and the unit exactly; a
// mismatch is a hard stop, recorded for review. A recipient with a prior
// serious reaction needs an explicit override.
func (s *Service) IssueUnit(ctx context.Context, in IssueInput) (*Issue, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	if in.IssuedTo == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "issued_to is required")
	}
	detail, err := s.requests.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	req := detail.Request
	u, err := s.units.GetUnit(auth.Elevate(ctx), in.UnitID)
	if err != nil {
		return nil, err
	}
	if u.Status != unit.StatusReserved || u.ReservedRequestID == nil || *u.ReservedRequestID != req.ID {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"unit %s is not reserved for request %s", u.UnitNumber, req.RequestNumber)
	}

	if in.ScannedPatientID != req.PatientID || in.ScannedUnitNumber != u.UnitNumber {
		s.audit(ctx, p, "issue.bedside_mismatch", u.ID.String(), map[string]interface{}{
			"request_number":      req.RequestNumber,
			"scanned_patient_id":  in.ScannedPatientID,
			"scanned_unit_number": in.ScannedUnitNumber,
		})
		return nil, domainerrors.New(domainerrors.CodeBedsideVerificationFailed,
			"scanned identifiers do not match the request and unit; do not transfuse")
	}

	if err := s.requests.AssertIssuable(ctx, req.ID, u.ID); err != nil {
		return nil, err
	}
	if req.Urgency == crossmatch.UrgencyMTP {
		if _, err := s.repo.ActiveMTPSession(ctx, p.BranchID, req.PatientID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domainerrors.Newf(domainerrors.CodeConflict,
					"no active MTP session for patient %s", req.PatientID)
			}
			return nil, err
		}
	}

	var overriddenBy *string
	risky, prior, err := s.highRisk(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if risky {
		if in.OverrideReason == nil || *in.OverrideReason == "" {
			return nil, domainerrors.Newf(domainerrors.CodeHighRiskOverrideRequired,
				"patient %s has a serious %s reaction on record; an override is required", req.PatientID, prior)
		}
		if _, err := auth.Require(ctx, auth.PermHighRiskOverride); err != nil {
			return nil, err
		}
		overriddenBy = &p.UserID
	}

	number, err := s.repo.NextIssueNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating issue number: %w", err)
	}
	rec := &Issue{
		IssueNumber:    number,
		BranchID:       p.BranchID,
		RequestID:      req.ID,
		UnitID:         u.ID,
		UnitNumber:     u.UnitNumber,
		PatientID:      req.PatientID,
		IssuedTo:       in.IssuedTo,
		Destination:    in.Destination,
		OverrideReason: in.OverrideReason,
		OverriddenBy:   overriddenBy,
		IssuedBy:       p.UserID,
		IssuedAt:       s.now(),
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if _, err := s.units.IssueUnit(ctx, u.ID); err != nil {
			return err
		}
		if err := s.repo.CreateIssue(ctx, rec); err != nil {
			return fmt.Errorf("recording issue: %w", err)
		}
		return s.requests.NoteUnitIssued(ctx, req.ID)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "issue.created", rec.ID.String(), map[string]interface{}{
		"issue_number": number, "unit_number": u.UnitNumber, "request_number": req.RequestNumber,
	})
	return rec, nil
}

// highRisk reports whether the patient has a serious reaction on record,
// and the type of the most recent one. A failed lookup is an error, never
// a clean bill: the gate must not fail open.
func (s *Service) highRisk(ctx context.Context, patientID string) (bool, ReactionType, error) {
	reactions, err := s.repo.ListReactionsByPatient(ctx, patientID)
	if err != nil {
		return false, "", fmt.Errorf("reaction history lookup for patient %s: %w", patientID, err)
	}
	risky := false
	var last ReactionType
	for _, r := range reactions {
		if r.Serious() {
			risky = true
			last = r.Type
		}
	}
	return risky, last, nil
}

func (s *Service) GetIssue(ctx context.Context, id uuid.UUID) (*Issue, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.loadIssue(ctx, id)
}

func (s *Service) ListIssues(ctx context.Context, params map[string]string, limit, offset int) ([]*Issue, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListIssues(ctx, params, limit, offset)
}

// ReturnUnit takes an issued unit back. Inside the return window it goes
// back on the shelf; past the window the cold chain cannot be vouched for
// and the unit is discarded instead.
func (s *Service) ReturnUnit(ctx context.Context, issueID uuid.UUID) (*unit.BloodUnit, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if rec.ReturnedAt != nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "issue %s was already returned", rec.IssueNumber)
	}

	var u *unit.BloodUnit
	late := s.now().Sub(rec.IssuedAt) > s.returnWindow
	err = s.runTx(ctx, func(ctx context.Context) error {
		if late {
			note := fmt.Sprintf("returned %s after issue", s.now().Sub(rec.IssuedAt).Round(time.Minute))
			u, err = s.units.DiscardUnit(auth.Elevate(ctx), rec.UnitID, unit.DiscardReturnTimeout, &note)
		} else {
			u, err = s.units.ReturnUnit(ctx, rec.UnitID, s.returnWindow)
		}
		if err != nil {
			return err
		}
		ok, err := s.repo.MarkReturned(ctx, issueID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict, "issue %s was already returned", rec.IssueNumber)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	action := "issue.returned"
	if late {
		action = "issue.return_discarded"
	}
	s.audit(ctx, p, action, rec.ID.String(), map[string]interface{}{"unit_number": rec.UnitNumber})
	return u, nil
}

// StartTransfusion opens a bedside episode for an issued unit. The
// reaction history is checked again here: a serious reaction reported
// between issue and bedside blocks the start unless the issue already
// carries an override.
func (s *Service) StartTransfusion(ctx context.Context, issueID uuid.UUID) (*Episode, error) {
	p, err := auth.Require(ctx, auth.PermTransfusionRecord)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	u, err := s.units.GetUnit(auth.Elevate(ctx), rec.UnitID)
	if err != nil {
		return nil, err
	}
	if u.Status != unit.StatusIssued {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"unit %s is %s; only an issued unit can be transfused", u.UnitNumber, u.Status)
	}
	risky, prior, err := s.highRisk(ctx, rec.PatientID)
	if err != nil {
		return nil, err
	}
	if risky && (rec.OverrideReason == nil || *rec.OverrideReason == "") {
		return nil, domainerrors.Newf(domainerrors.CodeHighRiskOverrideRequired,
			"patient %s has a serious %s reaction on record and issue %s carries no override",
			rec.PatientID, prior, rec.IssueNumber)
	}
	if _, err := s.repo.OpenEpisodeByIssue(ctx, issueID); err == nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"a transfusion is already in progress for issue %s", rec.IssueNumber)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	e := &Episode{
		IssueID:   rec.ID,
		PatientID: rec.PatientID,
		Status:    EpisodeInProgress,
		StartedBy: p.UserID,
		StartedAt: s.now(),
	}
	if err := s.repo.CreateEpisode(ctx, e); err != nil {
		return nil, fmt.Errorf("starting transfusion episode: %w", err)
	}
	s.audit(ctx, p, "transfusion.started", e.ID.String(), map[string]interface{}{"issue_number": rec.IssueNumber})
	return e, nil
}

type VitalsInput struct {
	TempC       float64 `json:"temp_c"`
	PulseBPM    int     `json:"pulse_bpm"`
	SystolicBP  int     `json:"systolic_bp"`
	DiastolicBP int     `json:"diastolic_bp"`
	Note        *string `json:"note,omitempty"`
}

// RecordVitals appends an observation to a running episode.
func (s *Service) RecordVitals(ctx context.Context, episodeID uuid.UUID, in VitalsInput) (*Vitals, error) {
	p, err := auth.Require(ctx, auth.PermTransfusionRecord)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if e.Status != EpisodeInProgress {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "episode has ended (%s)", e.Status)
	}
	v := &Vitals{
		EpisodeID:   e.ID,
		TempC:       in.TempC,
		PulseBPM:    in.PulseBPM,
		SystolicBP:  in.SystolicBP,
		DiastolicBP: in.DiastolicBP,
		Note:        in.Note,
		RecordedBy:  p.UserID,
		RecordedAt:  s.now(),
	}
	if err := s.repo.AppendVitals(ctx, v); err != nil {
		return nil, fmt.Errorf("recording vitals: %w", err)
	}
	return v, nil
}

type CompleteTransfusionInput struct {
	// Aborted marks an episode stopped before the full unit went in.
	Aborted  bool    `json:"aborted"`
	VolumeML int     `json:"volume_ml"`
	Notes    *string `json:"notes,omitempty"`
}

// CompleteTransfusion ends an episode. Whether completed or aborted, the
// unit has been spiked and leaves circulation as transfused.
func (s *Service) CompleteTransfusion(ctx context.Context, episodeID uuid.UUID, in CompleteTransfusionInput) (*Episode, error) {
	p, err := auth.Require(ctx, auth.PermTransfusionRecord)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadIssue(ctx, e.IssueID)
	if err != nil {
		return nil, err
	}
	if in.VolumeML < 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "volume_ml cannot be negative")
	}
	status := EpisodeCompleted
	if in.Aborted {
		status = EpisodeAborted
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.EndEpisode(ctx, episodeID, status, &in.VolumeML, in.Notes, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeConflict, "episode has ended (%s)", e.Status)
		}
		_, err = s.units.MarkTransfused(ctx, rec.UnitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, "transfusion.ended", e.ID.String(), map[string]interface{}{
		"issue_number": rec.IssueNumber, "status": status, "volume_ml": in.VolumeML,
	})
	return s.loadEpisode(ctx, episodeID)
}

func (s *Service) ListVitals(ctx context.Context, episodeID uuid.UUID) ([]*Vitals, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	return s.repo.ListVitals(ctx, episodeID)
}

type ActivateMTPInput struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
}

// ActivateMTP opens a massive transfusion protocol session. MTP-urgency
// requests can only be issued while the patient's session is active.
func (s *Service) ActivateMTP(ctx context.Context, in ActivateMTPInput) (*MTPSession, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	if in.PatientID == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "patient_id is required")
	}
	if existing, err := s.repo.ActiveMTPSession(ctx, p.BranchID, in.PatientID); err == nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"MTP already active for patient %s since %s", in.PatientID, existing.ActivatedAt.Format(time.RFC3339))
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	sess := &MTPSession{
		BranchID:    p.BranchID,
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		ActivatedBy: p.UserID,
		ActivatedAt: s.now(),
	}
	if err := s.repo.CreateMTPSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("activating MTP: %w", err)
	}
	s.audit(ctx, p, "mtp.activated", sess.ID.String(), map[string]interface{}{"patient_id": in.PatientID})
	return sess, nil
}

func (s *Service) DeactivateMTP(ctx context.Context, id uuid.UUID) (*MTPSession, error) {
	p, err := auth.Require(ctx, auth.PermIssueCreate)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.DeactivateMTPSession(ctx, id, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeConflict, "MTP session is not active")
	}
	s.audit(ctx, p, "mtp.deactivated", id.String(), nil)
	sess, err := s.repo.GetMTPSession(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "MTP session %s not found", id)
	}
	return sess, err
}

func (s *Service) ActiveMTP(ctx context.Context, patientID string) (*MTPSession, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, err
	}
	sess, err := s.repo.ActiveMTPSession(ctx, p.BranchID, patientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "no active MTP session for patient %s", patientID)
	}
	return sess, err
}

type ReactionInput struct {
	Type       ReactionType `json:"reaction_type"`
	Severity   Severity     `json:"severity"`
	Symptoms   string       `json:"symptoms"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ReportReaction files an adverse event against an issue. A serious
// reaction opens a lookback on the implicated donor.
func (s *Service) ReportReaction(ctx context.Context, issueID uuid.UUID, in ReactionInput) (*Reaction, error) {
	p, err := auth.Require(ctx, auth.PermReactionReport)
	if err != nil {
		return nil, err
	}
	if !ValidReactionType(in.Type) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid reaction type: %s", in.Type)
	}
	if !ValidSeverity(in.Severity) {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid severity: %s", in.Severity)
	}
	rec, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	r := &Reaction{
		BranchID:   p.BranchID,
		IssueID:    rec.ID,
		UnitID:     rec.UnitID,
		PatientID:  rec.PatientID,
		Type:       in.Type,
		Severity:   in.Severity,
		Symptoms:   in.Symptoms,
		OccurredAt: occurredAt,
		ReportedBy: p.UserID,
	}
	if err := s.repo.CreateReaction(ctx, r); err != nil {
		return nil, fmt.Errorf("recording reaction: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReactionsReported.WithLabelValues(string(in.Severity)).Inc()
	}
	s.audit(ctx, p, "reaction.reported", r.ID.String(), map[string]interface{}{
		"issue_number": rec.IssueNumber, "reaction_type": in.Type, "severity": in.Severity,
	})
	if s.events != nil {
		s.events.Publish(ctx, events.Event{
			Type:     events.TypeReactionReported,
			BranchID: p.BranchID,
			EntityID: rec.UnitNumber,
			Payload: map[string]interface{}{
				"reaction_type": in.Type, "severity": in.Severity, "patient_id": rec.PatientID,
			},
		})
	}
	if r.Serious() {
		s.openLookback(ctx, rec, r)
	}
	return r, nil
}

// openLookback traces the implicated unit back to its donor. A failure
// here is logged, not returned: the reaction report must stand either way.
func (s *Service) openLookback(ctx context.Context, rec *Issue, r *Reaction) {
	if s.lookbacks == nil {
		return
	}
	u, err := s.units.GetUnit(auth.Elevate(ctx), rec.UnitID)
	if err != nil || u.DonationID == nil {
		s.logger.Error().Err(err).Str("unit_number", rec.UnitNumber).
			Msg("cannot trace reaction to a donation")
		return
	}
	d, err := s.donations.GetDonation(ctx, *u.DonationID)
	if err != nil {
		s.logger.Error().Err(err).Str("unit_number", rec.UnitNumber).
			Msg("cannot trace reaction to a donor")
		return
	}
	note := fmt.Sprintf("%s %s reaction after transfusion of %s", r.Severity, r.Type, rec.UnitNumber)
	if err := s.lookbacks.OpenForDonor(ctx, d.DonorID, "TRANSFUSION_REACTION", note); err != nil {
		s.logger.Error().Err(err).Str("donor_id", d.DonorID.String()).
			Msg("failed to open lookback for reaction")
	}
}

func (s *Service) ListReactions(ctx context.Context, params map[string]string, limit, offset int) ([]*Reaction, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = map[string]string{}
	}
	params["branch_id"] = p.BranchID
	return s.repo.ListReactions(ctx, params, limit, offset)
}

func (s *Service) loadIssue(ctx context.Context, id uuid.UUID) (*Issue, error) {
	rec, err := s.repo.GetIssue(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "issue %s not found", id)
	}
	return rec, err
}

func (s *Service) loadEpisode(ctx context.Context, id uuid.UUID) (*Episode, error) {
	e, err := s.repo.GetEpisode(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "transfusion episode %s not found", id)
	}
	return e, err
}

func (s *Service) audit(ctx context.Context, p *auth.Principal, action, entityID string, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "issue",
		EntityID:   entityID,
		BranchID:   p.BranchID,
		ActorID:    p.UserID,
		Meta:       meta,
	})
}
