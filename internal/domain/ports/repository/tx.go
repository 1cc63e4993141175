package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres, a marker for the in-memory store).
type Tx interface{}

// NoTX runs a repository call outside any transaction.
var NoTX Tx

// TransactionManager executes fn within one atomic unit, passing the
// handle that repositories must receive to take part in it.
//
// USAGE
//
//	tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx Tx) error {
//		w, err := wallets.FindByUser(ctx, tx, userID)
//		...
//		return err
//	})
//
// Returning an error from fn rolls everything back. A serialization failure
// reported by the store surfaces as domain.ErrVersionConflict so callers can
// retry the whole unit. Repositories MUST accept NoTX.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
