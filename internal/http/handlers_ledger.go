package http

import (
	"net/http"
	"time"

	"koin/internal/log"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.deps.Watch.View(r.Context(), userFrom(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Store.Categories(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := req.Category()
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err = s.deps.Ledger.AddCategory(r.Context(), userFrom(r), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleSeedCategories(w http.ResponseWriter, r *http.Request) {
	seeded, err := s.deps.Ledger.EnsureDefaultCategories(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if seeded {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"seeded": seeded})
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Ledger.SetBudget(r.Context(), userFrom(r), r.PathValue("id"), req.Budget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := req.Entry()
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := s.deps.Ledger.RecordTransaction(r.Context(), userFrom(r), entry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction recorded",
		log.FieldKind, string(receipt.Transaction.Kind),
		log.FieldAmount, receipt.Transaction.Amount.String())
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.DeleteTransaction(r.Context(), userFrom(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	_ = NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSettleReceivable(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Ledger.SettleReceivable(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
