package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
)

type amountInput struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.facade.Deposit(r.Context(), in.Amount, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(tx))
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.facade.Withdraw(r.Context(), in.Amount, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(tx))
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := s.facade.GetWallet(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWallet(wal))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := s.facade.ListTransactions(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[transactionView]{Data: mapAll(txs, toTransaction)})
}

type refundInput struct {
	Reason string `json:"reason"`
}

func (s *Server) refundTransaction(w http.ResponseWriter, r *http.Request) {
	var in refundInput
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
	}
	tx, err := s.facade.RefundTransaction(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(tx))
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidArgument
	}
	return n, nil
}
