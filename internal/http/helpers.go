package http

import (
	"context"
	"net/http"
	"strings"

	"koin/internal/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// requireUser rejects requests without a user id header and scopes the
// request context and logger to that user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := sanitizeInput(r.Header.Get(s.deps.UserHeader))
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing "+s.deps.UserHeader+" header")
			return
		}
		s.watchUser(userID)
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
