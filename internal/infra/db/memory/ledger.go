package memory

import (
	"context"
	"sort"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
)

// -----------------------------
// Users
// -----------------------------

type userRepo struct{ s *Store }

func (r *userRepo) Save(_ context.Context, tx repository.Tx, u *model.User) error {
	return r.s.view(tx, func(st *state) error {
		cp := *u
		st.users[u.ID] = &cp
		return nil
	})
}

func (r *userRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.User, error) {
	var out *model.User
	err := r.s.view(tx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *userRepo) Exists(_ context.Context, tx repository.Tx, id string) (bool, error) {
	var ok bool
	err := r.s.view(tx, func(st *state) error {
		_, ok = st.users[id]
		return nil
	})
	return ok, err
}

// -----------------------------
// Wallets
// -----------------------------

type walletRepo struct{ s *Store }

func (r *walletRepo) Create(_ context.Context, tx repository.Tx, w *model.Wallet) error {
	return r.s.view(tx, func(st *state) error {
		for _, cur := range st.wallets {
			if cur.UserID == w.UserID {
				return domain.ErrAlreadyExists
			}
		}
		if _, ok := st.wallets[w.ID]; ok {
			return domain.ErrAlreadyExists
		}
		cp := *w
		st.wallets[w.ID] = &cp
		return nil
	})
}

func (r *walletRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Wallet, error) {
	var out *model.Wallet
	err := r.s.view(tx, func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return domain.ErrWalletNotFound
		}
		cp := *w
		out = &cp
		return nil
	})
	return out, err
}

func (r *walletRepo) FindByUser(_ context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	var out *model.Wallet
	err := r.s.view(tx, func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID {
				cp := *w
				out = &cp
				return nil
			}
		}
		return domain.ErrWalletNotFound
	})
	return out, err
}

func (r *walletRepo) UpdateBalance(_ context.Context, tx repository.Tx, id string, balance decimal.Decimal, expectedVersion int64) error {
	return r.s.view(tx, func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return domain.ErrWalletNotFound
		}
		if w.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if balance.IsNegative() {
			// CHECK (balance >= 0)
			return domain.ErrInsufficientFunds
		}
		cp := *w
		cp.Balance = balance
		cp.Version = expectedVersion + 1
		cp.UpdatedAt = now()
		st.wallets[id] = &cp
		return nil
	})
}

// -----------------------------
// Transactions
// -----------------------------

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Save(_ context.Context, tx repository.Tx, t *model.Transaction) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.txs[t.ID]; ok {
			return domain.ErrAlreadyExists
		}
		if t.WalletID != nil {
			if _, ok := st.wallets[*t.WalletID]; !ok {
				return domain.ErrWalletNotFound
			}
		}
		for _, cur := range st.txs {
			if t.IdempotencyKey != nil && cur.IdempotencyKey != nil &&
				cur.UserID == t.UserID && *cur.IdempotencyKey == *t.IdempotencyKey {
				return domain.ErrAlreadyExists
			}
			if t.OriginalTransactionID != nil && cur.OriginalTransactionID != nil &&
				*cur.OriginalTransactionID == *t.OriginalTransactionID {
				return domain.ErrAlreadyExists
			}
		}
		st.txs[t.ID] = copyTx(t)
		return nil
	})
}

func (r *transactionRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.s.view(tx, func(st *state) error {
		t, ok := st.txs[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		out = copyTx(t)
		return nil
	})
	return out, err
}

func (r *transactionRepo) FindByIdempotencyKey(_ context.Context, tx repository.Tx, userID, key string) (*model.Transaction, error) {
	return r.findOne(tx, func(t *model.Transaction) bool {
		return t.UserID == userID && t.IdempotencyKey != nil && *t.IdempotencyKey == key
	})
}

func (r *transactionRepo) FindRefundOf(_ context.Context, tx repository.Tx, originalID string) (*model.Transaction, error) {
	return r.findOne(tx, func(t *model.Transaction) bool {
		return t.OriginalTransactionID != nil && *t.OriginalTransactionID == originalID
	})
}

func (r *transactionRepo) findOne(tx repository.Tx, match func(*model.Transaction) bool) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.s.view(tx, func(st *state) error {
		for _, t := range st.txs {
			if match(t) {
				out = copyTx(t)
				return nil
			}
		}
		return domain.ErrTransactionNotFound
	})
	return out, err
}

func (r *transactionRepo) UpdateStatus(_ context.Context, tx repository.Tx, id string, from, to model.TransactionStatus) error {
	return r.s.view(tx, func(st *state) error {
		t, ok := st.txs[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		if t.Status != from {
			return domain.ErrVersionConflict
		}
		cp := copyTx(t)
		cp.Status = to
		st.txs[id] = cp
		return nil
	})
}

func (r *transactionRepo) ListByWallet(_ context.Context, tx repository.Tx, walletID string, limit, offset int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	err := r.s.view(tx, func(st *state) error {
		for _, t := range st.txs {
			if t.WalletID != nil && *t.WalletID == walletID {
				out = append(out, copyTx(t))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return []*model.Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *transactionRepo) SumApplied(_ context.Context, tx repository.Tx, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.s.view(tx, func(st *state) error {
		for _, t := range st.txs {
			if t.WalletID != nil && *t.WalletID == walletID {
				sum = sum.Add(t.SignedAmount())
			}
		}
		return nil
	})
	return sum, err
}

func copyTx(t *model.Transaction) *model.Transaction {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
