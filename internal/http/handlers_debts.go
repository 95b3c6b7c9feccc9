package http

import (
	"net/http"

	"koin/internal/aggregate"
	"koin/internal/core"
)

// debtsResponse lists the liabilities with the donut that splits them,
// the credit card balance included.
type debtsResponse struct {
	Debts       []core.Debt       `json:"debts"`
	TotalDebt   core.Money        `json:"total_debt"`
	CardBalance core.Money        `json:"card_balance"`
	Breakdown   []aggregate.Slice `json:"breakdown"`
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	ctx, userID := r.Context(), userFrom(r)
	debts, err := s.deps.Store.Debts(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	card, err := s.deps.Cards.Summary(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if debts == nil {
		debts = []core.Debt{}
	}
	writeJSON(w, http.StatusOK, debtsResponse{
		Debts:       debts,
		TotalDebt:   aggregate.TotalDebt(debts),
		CardBalance: card.Used,
		Breakdown:   aggregate.DebtBreakdown(debts, card.Used),
	})
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Ledger.AddDebt(r.Context(), userFrom(r), req.Debt())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.DeleteDebt(r.Context(), userFrom(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	_ = NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
