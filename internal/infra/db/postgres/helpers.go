package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/ports/repository"
)

// Postgres SQLSTATE codes the repositories care about.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
	pgLockNotAvailable     = "55P03"
)

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	tag, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	return tag, nil
}

// pickRow runs a single-row query. The Scan error must go through scanErr.
func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, q, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// scanErr maps a Scan failure: no rows becomes notFound, the rest goes
// through translate.
func scanErr(err, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return translate(err)
}

// translate converts driver errors into domain errors at the repository
// boundary. Constraint violations are mapped generically here; callers that
// know which constraint they hit refine them with constraintErr.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTransientFailure
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, pgErr.Code)
		case pgUniqueViolation:
			return &constraintError{code: pgErr.Code, constraint: pgErr.ConstraintName, base: domain.ErrAlreadyExists}
		case pgForeignKeyViolation:
			return &constraintError{code: pgErr.Code, constraint: pgErr.ConstraintName, base: domain.ErrHasDependents}
		case pgCheckViolation:
			return &constraintError{code: pgErr.Code, constraint: pgErr.ConstraintName, base: domain.ErrInvalidArgument}
		case pgQueryCanceled, pgLockNotAvailable:
			return domain.ErrTransientFailure
		}
	}
	if pgconn.Timeout(err) {
		return domain.ErrTransientFailure
	}
	return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
}

// constraintError keeps the violated constraint name next to the default
// domain error so repositories can pick a more specific one.
type constraintError struct {
	code       string
	constraint string
	base       *domain.Error
}

func (e *constraintError) Error() string { return e.base.Message + " (" + e.constraint + ")" }
func (e *constraintError) Unwrap() error { return e.base }

// constraintErr refines a constraint violation: the first mapping whose key
// equals the violated constraint name wins, and unique violations without a
// specific mapping fall back to the generic domain error.
func constraintErr(err error, byConstraint map[string]error) error {
	var ce *constraintError
	if !errors.As(err, &ce) {
		return err
	}
	if mapped, ok := byConstraint[ce.constraint]; ok {
		return mapped
	}
	return ce.base
}
