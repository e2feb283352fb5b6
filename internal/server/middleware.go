package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// authedHandler runs with the participant row the bearer token resolved
// to. Handlers receive the row, not just the id, because the dispatcher
// and the search handlers read the caller's profile.
type authedHandler func(w http.ResponseWriter, r *http.Request, agent *types.Participant)

// authed resolves the Authorization header before running next. Missing
// or unknown credentials end the request with 401.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		id, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeFailure(w, err)
			return
		}

		agent, err := s.backend.Participants().GetByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			// The row vanished between token resolution and load; the
			// credential no longer names anyone.
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			s.writeFailure(w, err)
			return
		}

		next(w, r, agent)
	}
}
