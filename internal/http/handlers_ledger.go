package http

import (
	"errors"
	"net/http"

	"mython/internal/core"
	"mython/internal/entry"
	"mython/internal/ledger"
	"mython/internal/log"
)

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type reorderRequest struct {
	Index     *int   `json:"index"`
	Direction string `json:"direction"`
}

type reorderResponse struct {
	Moved bool `json:"moved"`
}

// ledgerFailed answers 503 when a mutation was applied in memory but the
// write behind it failed, and 500 for anything else.
func ledgerFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ledger.ErrNotPersisted) {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger write not persisted",
			log.FieldOperation, op,
			"error_type", log.ErrorTypeDatabase,
			log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "Change applied but could not be saved; it will be lost on restart")
		return
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger operation failed",
		log.FieldOperation, op,
		log.FieldError, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.ledger.List()
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var form entry.Form
	if err := decodeJSON(w, r, &form); err != nil {
		badRequest(w, err)
		return
	}

	tx, err := s.ledger.Submit(r.Context(), form)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, tx)
	case entry.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		ledgerFailed(w, r, log.OpAdd, err)
	}
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ledger.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		ledgerFailed(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

func (s *Server) handleReorderTransaction(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Index == nil {
		badRequest(w, errors.New("index is required"))
		return
	}
	dir, err := ledger.ParseDirection(req.Direction)
	if err != nil {
		badRequest(w, err)
		return
	}

	moved, err := s.ledger.Reorder(r.Context(), *req.Index, dir)
	if err != nil {
		ledgerFailed(w, r, log.OpReorder, err)
		return
	}
	writeJSON(w, http.StatusOK, reorderResponse{Moved: moved})
}
