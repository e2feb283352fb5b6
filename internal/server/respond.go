package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/agoralabs/agora/internal/auth"
	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
)

// List windows. Callers page with offset/limit; the cap keeps a single
// response bounded.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the uniform JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeFailure maps domain errors onto transport statuses. Anything
// unrecognized is an internal error: logged server-side, never leaked
// to the client verbatim.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var callerErr *protocol.CallerError
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, storage.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrTooBusy):
		writeError(w, http.StatusTooManyRequests, "storage is busy, retry later")
	case errors.As(err, &callerErr):
		writeError(w, http.StatusBadRequest, callerErr.Error())
	default:
		s.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON request body with the 10MB cap applied.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024)) // 10MB limit
	if err != nil {
		return fmt.Errorf("failed to read request body")
	}
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// parseWindow reads offset/limit query parameters into a row range.
func parseWindow(r *http.Request) (query.Range, error) {
	rng := query.Range{Limit: defaultListLimit}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return query.Range{}, fmt.Errorf("invalid offset %q", v)
		}
		rng.Offset = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return query.Range{}, fmt.Errorf("invalid limit %q", v)
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		rng.Limit = n
	}
	return rng, nil
}

// listEnvelope is the common list response shape.
type listEnvelope struct {
	Items   any  `json:"items"`
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}
