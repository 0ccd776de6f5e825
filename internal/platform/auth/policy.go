package auth

import (
	"context"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// Require checks that the context carries an authenticated principal that
// holds the given permission. It returns a Forbidden domain error otherwise,
// so services can gate operations with a single call at the top.
func Require(ctx context.Context, perm string) (*Principal, error) {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "authentication required")
	}
	if !p.HasPermission(perm) {
		return nil, domainerrors.Newf(domainerrors.CodeForbidden, "permission %s required", perm)
	}
	return p, nil
}
