package http

import (
	"net/http"

	"koin/internal/dedupe"
	"koin/internal/log"
)

type repairPreview struct {
	Groups                  []dedupe.Group   `json:"groups"`
	Rewrites                []dedupe.Rewrite `json:"rewrites"`
	DeletedCategoryIDs      []string         `json:"deleted_category_ids"`
	RewrittenTransactionIDs []string         `json:"rewritten_transaction_ids"`
}

func (s *Server) handlePreviewRepair(w http.ResponseWriter, r *http.Request) {
	plan, err := s.deps.Repairer.Preview(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repairPreview{
		Groups:                  plan.Groups,
		Rewrites:                plan.Rewrites,
		DeletedCategoryIDs:      plan.DeletedCategoryIDs(),
		RewrittenTransactionIDs: plan.RewrittenTransactionIDs(),
	})
}

// handleRepair runs the category repair inline, or queues it for the
// worker when ?async=true and a queue is configured.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	logger := log.FromContext(r.Context())

	if ParseBool(r.URL.Query(), "async") && s.deps.Jobs != nil {
		if err := s.deps.Jobs.PublishRepair(r.Context(), userID); err != nil {
			logger.ErrorContext(r.Context(), "Failed to queue category repair", log.FieldError, err)
			writeJSONError(w, http.StatusServiceUnavailable, "repair queue unavailable")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := s.deps.Repairer.Repair(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Category repair completed",
		log.NewFields().WithRepair(len(res.DeletedCategoryIDs), len(res.RewrittenTransactionIDs)).ToSlice()...)
	writeJSON(w, http.StatusOK, res)
}
