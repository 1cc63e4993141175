package usecase

import (
	"context"
	"errors"
	"time"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
)

const (
	DefaultMaxAttempts = 4
	maxAttemptsCeiling = 5
)

var (
	// Serializable wraps read-check-write units spanning several rows.
	Serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}
	// ReadCommitted is enough for units guarded by row versions.
	ReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
)

// ClampAttempts keeps a configured retry budget within [1, 5].
func ClampAttempts(n int) int {
	if n <= 0 {
		return DefaultMaxAttempts
	}
	if n > maxAttemptsCeiling {
		return maxAttemptsCeiling
	}
	return n
}

// RunAtomic executes fn as one atomic unit and re-runs the whole unit from
// the top when it fails with domain.ErrVersionConflict. After maxAttempts
// conflicting runs it gives up with domain.ErrConcurrentModification.
// Any other error aborts immediately.
func RunAtomic(ctx context.Context, tm repository.TransactionManager, opts pgx.TxOptions, maxAttempts int, resource string, fn func(ctx context.Context, tx repository.Tx) error) error {
	maxAttempts = ClampAttempts(maxAttempts)
	for attempt := 1; ; attempt++ {
		err := tm.WithTx(ctx, opts, fn)
		if err == nil || !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		if attempt >= maxAttempts {
			return domain.ErrConcurrentModification
		}
		metrics.IncOptimisticRetry(resource)
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * 2 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrTransientFailure
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
