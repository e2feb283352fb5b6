package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/agoralabs/agora/internal/auth"
	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// registerRequest is the POST /agents/register body.
type registerRequest struct {
	Agent struct {
		ID       string         `json:"id"`
		Metadata map[string]any `json:"metadata"`
	} `json:"agent"`

	// AllocateID treats Agent.ID as a base and registers base-N with
	// the smallest unused N instead of failing on a collision.
	AllocateID bool `json:"allocate_id"`
}

// registerResponse carries the stored row plus the issued credential.
// The token rides outside the agent because participant rows never
// serialize credentials.
type registerResponse struct {
	Agent *types.Participant `json:"agent"`
	Token string             `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Agent.ID == "" {
		writeError(w, http.StatusBadRequest, "agent id is required")
		return
	}

	token := auth.IssueToken()

	if !req.AllocateID {
		created, err := s.backend.Participants().Create(r.Context(), &types.Participant{
			ID:        req.Agent.ID,
			Metadata:  req.Agent.Metadata,
			AuthToken: token,
		})
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{Agent: created, Token: token})
		return
	}

	base := req.Agent.ID
	for attempt := 0; attempt < auth.MaxAllocRetries; attempt++ {
		id, err := s.alloc.Allocate(r.Context(), base)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		created, err := s.backend.Participants().Create(r.Context(), &types.Participant{
			ID:        id,
			Metadata:  req.Agent.Metadata,
			AuthToken: token,
		})
		if errors.Is(err, storage.ErrDuplicateID) {
			// An external writer claimed the id between allocation and
			// insert. Rescan the table and try the next candidate.
			s.alloc.Forget(base)
			continue
		}
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{Agent: created, Token: token})
		return
	}
	writeError(w, http.StatusConflict, fmt.Sprintf("could not allocate an id for base %q", base))
}

func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request, _ *types.Participant) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rng, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.backend.Participants().GetAll(r.Context(), rng)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	total, err := s.backend.Participants().Count(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if items == nil {
		items = []*types.Participant{}
	}

	writeJSON(w, http.StatusOK, listEnvelope{
		Items:   items,
		Total:   total,
		Offset:  rng.Offset,
		Limit:   rng.Limit,
		HasMore: rng.Offset+len(items) < total,
	})
}

// agentResponse is the GET /agents/{id} body.
type agentResponse struct {
	Agent *types.Participant `json:"agent"`
}

func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request, _ *types.Participant) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/agents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	p, err := s.backend.Participants().GetByID(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{Agent: p})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, agent *types.Participant) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), agent, &req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// protocolResponse is the GET /actions/protocol body.
type protocolResponse struct {
	Actions []protocol.ActionDefinition `json:"actions"`
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request, _ *types.Participant) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, protocolResponse{Actions: s.registry.Actions()})
}

// logCreateRequest is the POST /logs/create body.
type logCreateRequest struct {
	Log types.LogEntry `json:"log"`
}

func (s *Server) handleLogCreate(w http.ResponseWriter, r *http.Request, agent *types.Participant) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req logCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry := req.Log
	if entry.Name == "" {
		entry.Name = agent.ID
	}
	if err := entry.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.backend.Logs().Create(r.Context(), &entry); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"error": nil})
}

func (s *Server) handleLogList(w http.ResponseWriter, r *http.Request, _ *types.Participant) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rng, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.backend.Logs().GetAll(r.Context(), rng)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	total, err := s.backend.Logs().Count(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if items == nil {
		items = []*types.LogEntry{}
	}

	writeJSON(w, http.StatusOK, listEnvelope{
		Items:   items,
		Total:   total,
		Offset:  rng.Offset,
		Limit:   rng.Limit,
		HasMore: rng.Offset+len(items) < total,
	})
}

// healthResponse is the GET /health body. Error is set only on the
// unhealthy path, mirroring what the backend reported.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Backend       string  `json:"backend"`
	Error         string  `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Round up and floor at one second so fresh processes never report
	// zero uptime.
	uptime := math.Ceil(time.Since(s.startTime).Seconds())
	if uptime == 0 {
		uptime = 1
	}

	resp := healthResponse{
		Status:        "healthy",
		Version:       s.version,
		UptimeSeconds: uptime,
		Backend:       s.cfg.Storage.Backend,
	}
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.Printf("health check failed: %v", err)
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
