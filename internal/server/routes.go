package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
)

func (s *Server) handleDimensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.All())
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Text  string `json:"text"`
		Media string `json:"media,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" && req.Media == "" {
		http.Error(w, `{"error":"text or media required"}`, http.StatusBadRequest)
		return
	}

	result, err := s.engine.ProcessEvent(r.Context(), userID, oracle.Event{Text: req.Text, Media: req.Media})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Partial and full failures still return the per-dimension report;
	// a fully failed fan-out is flagged in the status code.
	status := http.StatusOK
	if result.Failed > 0 && result.Succeeded == 0 && len(result.Updates) > 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	matrix, err := s.engine.Matrix(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"matrix":  matrix,
	})
}

func (s *Server) handleMatrixDimension(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	dimensionID := chi.URLParam(r, "dimensionID")

	state, history, err := s.engine.DimensionDetail(userID, dimensionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	resp := map[string]any{
		"user_id":      userID,
		"dimension_id": dimensionID,
		"history":      history,
	}
	if state != nil {
		resp["state"] = state
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	tags, err := s.db.UserTags(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"tags":    tags,
	})
}

func (s *Server) handleEvolve(w http.ResponseWriter, r *http.Request) {
	if s.miner == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("evolution miner not configured"))
		return
	}
	proposals, err := s.miner.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (s *Server) handleEvolveResults(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.db.ListProposals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (s *Server) handleAffinity(w http.ResponseWriter, r *http.Request) {
	if s.mapper == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("affinity mapper not configured"))
		return
	}
	edges, err := s.mapper.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"edges": edges,
		"count": len(edges),
	})
}

func (s *Server) handleAffinityResults(w http.ResponseWriter, r *http.Request) {
	edges, err := s.db.ListAffinityEdges()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"edges": edges,
		"count": len(edges),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
