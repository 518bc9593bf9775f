package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type EvolutionHandler struct {
	evolutions *service.EvolutionService
}

func NewEvolutionHandler(es *service.EvolutionService) *EvolutionHandler {
	return &EvolutionHandler{evolutions: es}
}

type conceptHistoryResponse struct {
	ConceptID string                    `json:"concept_id"`
	Versions  int                       `json:"versions"`
	History   []*domain.EvolutionRecord `json:"history"`
}

func (h *EvolutionHandler) History(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")
	history := h.evolutions.History(conceptID)
	writeJSON(w, http.StatusOK, conceptHistoryResponse{
		ConceptID: conceptID,
		Versions:  len(history),
		History:   history,
	})
}

func (h *EvolutionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")
	record, ok := h.evolutions.Latest(conceptID)
	if !ok {
		writeError(w, http.StatusNotFound, "concept has no history")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *EvolutionHandler) Version(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	record, ok := h.evolutions.Version(conceptID, version)
	if !ok {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type recordEvolutionRequest struct {
	Content string `json:"content"`
	Author  string `json:"author,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Record appends a manual evolution entry. The first entry for a concept is a
// creation, every later one an update.
func (h *EvolutionHandler) Record(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")

	var req recordEvolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	author := req.Author
	if author == "" {
		author = "system"
	}

	var record *domain.EvolutionRecord
	if _, ok := h.evolutions.Latest(conceptID); ok {
		record = h.evolutions.RecordUpdate(r.Context(), conceptID, req.Content, author, req.Reason)
	} else {
		record = h.evolutions.RecordCreation(r.Context(), conceptID, req.Content, author)
	}

	writeJSON(w, http.StatusCreated, record)
}
