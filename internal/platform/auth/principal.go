// Package auth provides JWT validation and permission checks for the
// blood bank API. Tokens carry the acting user, the hospital branch the
// request is scoped to, and the set of granted permissions.
package auth

import "context"

type contextKey string

const principalKey contextKey = "principal"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID      string
	BranchID    string
	Permissions []string
}

// HasPermission reports whether the principal was granted the permission.
// A wildcard "*" grant matches everything.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == perm || granted == "*" {
			return true
		}
	}
	return false
}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored on the context, or nil
// when the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// Elevate returns a context whose principal carries the wildcard grant
// while keeping the caller's user and branch identity. Services use it
// when a flow a caller is already authorized for has to drive a sibling
// service guarded by a different permission: the safety consequence must
// not fail on the caller's role, and the audit trail still names them.
func Elevate(ctx context.Context) context.Context {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return ctx
	}
	return WithPrincipal(ctx, &Principal{
		UserID:      p.UserID,
		BranchID:    p.BranchID,
		Permissions: []string{"*"},
	})
}

// Blood bank permissions. These match the permission strings minted into
// access tokens by the identity service.
const (
	PermDonorRead          = "bb.donor.read"
	PermDonorManage        = "bb.donor.manage"
	PermCollectionCreate   = "bb.collection.create"
	PermTestingRecord      = "bb.testing.record"
	PermTestingVerify      = "bb.testing.verify"
	PermInventoryRead      = "bb.inventory.read"
	PermInventoryManage    = "bb.inventory.manage"
	PermEquipmentManage    = "bb.equipment.manage"
	PermBreachReview       = "bb.breach.review"
	PermRequestCreate      = "bb.request.create"
	PermCrossmatchCreate   = "bb.crossmatch.create"
	PermIssueCreate        = "bb.issue.create"
	PermTransfusionRecord  = "bb.transfusion.record"
	PermReactionReport     = "bb.reaction.report"
	PermLookbackManage     = "bb.lookback.manage"
	PermTransferManage     = "bb.transfer.manage"
	PermHighRiskOverride   = "bb.issue.override"
	PermDiscrepancyResolve = "bb.testing.discrepancy"
)
