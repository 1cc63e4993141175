package adapter

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

// PrincipalResolver yields the authenticated caller bound to ctx, or
// domain.ErrUnauthenticated.
type PrincipalResolver interface {
	CurrentPrincipal(ctx context.Context) (model.Principal, error)
}

// AuditSink records a successful mutation. Record must not block on I/O
// and never reports failure to the caller.
type AuditSink interface {
	Record(ctx context.Context, action, subjectID, actorID string)
}
