package http

import (
	"net/http"

	"koin/internal/core"
)

func (s *Server) handleCardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Cards.Summary(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCardSetup(w http.ResponseWriter, r *http.Request) {
	var line core.CreditLine
	if err := DecodeJSON(r, &line); err != nil {
		writeError(w, r, err)
		return
	}
	userID := userFrom(r)
	if err := s.deps.Cards.Setup(r.Context(), userID, line); err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.deps.Cards.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAddBucket(w http.ResponseWriter, r *http.Request) {
	var c core.CardCategory
	if err := DecodeJSON(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.Label = sanitizeInput(c.Label)
	c, err := s.deps.Cards.AddBucket(r.Context(), userFrom(r), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handlePostCharge(w http.ResponseWriter, r *http.Request) {
	var ch core.CardCharge
	if err := DecodeJSON(r, &ch); err != nil {
		writeError(w, r, err)
		return
	}
	ch.Description = sanitizeInput(ch.Description)
	ch, err := s.deps.Cards.Post(r.Context(), userFrom(r), ch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}
