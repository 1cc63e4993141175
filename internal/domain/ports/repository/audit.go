package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

type AuditRepository interface {
	Save(ctx context.Context, tx Tx, e *model.AuditEntry) error
}
