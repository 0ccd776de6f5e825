package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// UnitLedger is the slice of the unit service that carries transfer
// claims. Claiming is atomic at the ledger layer; the service decides
// whether a partial claim aborts the batch.
type UnitLedger interface {
	ClaimForTransfer(ctx context.Context, ids []uuid.UUID, transferID uuid.UUID) (int, error)
	ReleaseTransferClaim(ctx context.Context, transferID uuid.UUID) (int, error)
	CompleteTransfer(ctx context.Context, transferID uuid.UUID, destBranchID string) (int, error)
	ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*unit.BloodUnit, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo    Repository
	units   UnitLedger
	runTx   TxRunner
	auditor *audit.Recorder
	events  events.Publisher
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, units UnitLedger, runTx TxRunner, auditor *audit.Recorder, publisher events.Publisher, logger zerolog.Logger) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:    repo,
		units:   units,
		runTx:   runTx,
		auditor: auditor,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
	}
}

type InitiateInput struct {
	ToBranchID string      `json:"to_branch_id"`
	UnitIDs    []uuid.UUID `json:"unit_ids"`
	Note       *string     `json:"note,omitempty"`
}

// InitiateTransfer claims the listed units for an outbound batch. The
// claim is all or nothing: if any unit is unavailable or already pending
// another transfer, the whole batch is rejected and nothing is claimed.
func (s *Service) InitiateTransfer(ctx context.Context, in InitiateInput) (*Transfer, error) {
	p, err := auth.Require(ctx, auth.PermTransferManage)
	if err != nil {
		return nil, err
	}
	if in.ToBranchID == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "to_branch_id is required")
	}
	if in.ToBranchID == p.BranchID {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "destination branch must differ from the origin")
	}
	if len(in.UnitIDs) == 0 {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "unit_ids must not be empty")
	}
	seen := make(map[uuid.UUID]bool, len(in.UnitIDs))
	for _, id := range in.UnitIDs {
		if seen[id] {
			return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "unit %s listed more than once", id)
		}
		seen[id] = true
	}

	number, err := s.repo.NextTransferNumber(ctx)
	if err != nil {
		return nil, err
	}
	t := &Transfer{
		ID:             uuid.New(),
		TransferNumber: number,
		FromBranchID:   p.BranchID,
		ToBranchID:     in.ToBranchID,
		Status:         StatusInitiated,
		UnitCount:      len(in.UnitIDs),
		Note:           in.Note,
		InitiatedBy:    p.UserID,
		InitiatedAt:    s.now(),
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		claimed, err := s.units.ClaimForTransfer(ctx, in.UnitIDs, t.ID)
		if err != nil {
			return err
		}
		if claimed != len(in.UnitIDs) {
			return domainerrors.Newf(domainerrors.CodePartialTransferRejected,
				"only %d of %d units could be claimed; transfer rejected", claimed, len(in.UnitIDs))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "transfer.initiated", t, map[string]interface{}{
		"to_branch_id": t.ToBranchID,
		"unit_count":   t.UnitCount,
	})
	return t, nil
}

type DispatchInput struct {
	Courier  *string  `json:"courier,omitempty"`
	BoxTempC *float64 `json:"box_temp_c,omitempty"`
}

// Dispatch marks the batch as handed to the courier, logging the
// transport box temperature when one was taken.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, in DispatchInput) (*Transfer, error) {
	p, err := auth.Require(ctx, auth.PermTransferManage)
	if err != nil {
		return nil, err
	}
	t, err := s.loadTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.MarkDispatched(ctx, id, p.UserID, in.Courier, in.BoxTempC, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
			"transfer %s is %s, not INITIATED", t.TransferNumber, t.Status)
	}
	t, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "transfer.dispatched", t, map[string]interface{}{"courier": in.Courier})
	s.publish(ctx, events.TypeTransferDispatch, t)
	return t, nil
}

// Receive accepts the batch at the destination and re-homes every unit
// to the receiving branch, clearing claims and origin storage slots.
// The caller must belong to the destination branch.
func (s *Service) Receive(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	p, err := auth.Require(ctx, auth.PermTransferManage)
	if err != nil {
		return nil, err
	}
	t, err := s.loadTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ToBranchID != p.BranchID {
		return nil, domainerrors.Newf(domainerrors.CodeForbidden,
			"transfer %s is destined for another branch", t.TransferNumber)
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.MarkReceived(ctx, id, p.UserID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
				"transfer %s is %s, not DISPATCHED", t.TransferNumber, t.Status)
		}
		moved, err := s.units.CompleteTransfer(ctx, id, t.ToBranchID)
		if err != nil {
			return err
		}
		if moved != t.UnitCount {
			s.logger.Warn().
				Str("transfer_number", t.TransferNumber).
				Int("expected", t.UnitCount).
				Int("moved", moved).
				Msg("received transfer moved fewer units than were claimed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "transfer.received", t, nil)
	s.publish(ctx, events.TypeTransferReceived, t)
	return t, nil
}

// Cancel aborts a transfer that has not been dispatched, releasing every
// claimed unit back to its origin shelf.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	p, err := auth.Require(ctx, auth.PermTransferManage)
	if err != nil {
		return nil, err
	}
	t, err := s.loadTransfer(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.MarkCancelled(ctx, id, p.UserID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Newf(domainerrors.CodeInvalidStateTransition,
				"transfer %s is %s; only INITIATED transfers can be cancelled", t.TransferNumber, t.Status)
		}
		if _, err := s.units.ReleaseTransferClaim(ctx, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "transfer.cancelled", t, nil)
	return t, nil
}

// TransferDetail pairs a transfer with the units it carries.
type TransferDetail struct {
	Transfer *Transfer         `json:"transfer"`
	Units    []*unit.BloodUnit `json:"units"`
}

func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*TransferDetail, error) {
	if _, err := auth.Require(ctx, auth.PermInventoryRead); err != nil {
		return nil, err
	}
	t, err := s.loadTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	units, err := s.units.ListByTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TransferDetail{Transfer: t, Units: units}, nil
}

// ListTransfers returns batches touching the caller's branch, inbound or
// outbound, per the direction filter.
func (s *Service) ListTransfers(ctx context.Context, params map[string]interface{}, limit, offset int) ([]*Transfer, int, error) {
	p, err := auth.Require(ctx, auth.PermInventoryRead)
	if err != nil {
		return nil, 0, err
	}
	switch params["direction"] {
	case "inbound":
		params["to_branch_id"] = p.BranchID
	case "outbound":
		params["from_branch_id"] = p.BranchID
	default:
		params["from_branch_id"] = p.BranchID
	}
	delete(params, "direction")
	return s.repo.List(ctx, params, limit, offset)
}

func (s *Service) loadTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "transfer %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) audit(ctx context.Context, action string, t *Transfer, meta map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	actor := ""
	if p := auth.PrincipalFromContext(ctx); p != nil {
		actor = p.UserID
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "transfer",
		EntityID:   t.ID.String(),
		BranchID:   t.FromBranchID,
		ActorID:    actor,
		Meta:       meta,
	})
}

func (s *Service) publish(ctx context.Context, eventType string, t *Transfer) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		BranchID:   t.FromBranchID,
		EntityID:   t.TransferNumber,
		OccurredAt: s.now(),
		Payload: map[string]interface{}{
			"transfer_number": t.TransferNumber,
			"from_branch_id":  t.FromBranchID,
			"to_branch_id":    t.ToBranchID,
			"unit_count":      t.UnitCount,
			"status":          string(t.Status),
		},
	})
}
