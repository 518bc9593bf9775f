package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConflictHandler struct {
	conflicts *service.ConflictService
	votes     *service.VoteService
	recorder  *service.RecorderService
}

func NewConflictHandler(cs *service.ConflictService, vs *service.VoteService, rs *service.RecorderService) *ConflictHandler {
	return &ConflictHandler{conflicts: cs, votes: vs, recorder: rs}
}

type createConflictRequest struct {
	Question  string `json:"question"`
	ConceptA  string `json:"concept_a"`
	ConceptB  string `json:"concept_b"`
	SourceA   string `json:"source_a,omitempty"`
	SourceB   string `json:"source_b,omitempty"`
	ConceptID string `json:"concept_id,omitempty"`
}

func (h *ConflictHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.ConceptA == "" || req.ConceptB == "" {
		writeError(w, http.StatusBadRequest, "concept_a and concept_b are required")
		return
	}

	conflict := h.conflicts.Create(r.Context(), service.CreateConflictInput{
		Question:  req.Question,
		ConceptA:  req.ConceptA,
		ConceptB:  req.ConceptB,
		SourceA:   req.SourceA,
		SourceB:   req.SourceB,
		ConceptID: req.ConceptID,
	})

	writeJSON(w, http.StatusCreated, conflict)
}

type listConflictsResponse struct {
	Conflicts []*domain.Conflict `json:"conflicts"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
	Count     int                `json:"count"`
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = service.StatusAll
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	pageSize := 20
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if n, err := strconv.Atoi(ps); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}

	conflicts := h.conflicts.List(status, page, pageSize)
	writeJSON(w, http.StatusOK, listConflictsResponse{
		Conflicts: conflicts,
		Page:      page,
		PageSize:  pageSize,
		Count:     len(conflicts),
	})
}

func (h *ConflictHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conflict, ok := h.conflicts.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

type resolveConflictRequest struct {
	Choice string `json:"choice"`
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	choice, ok := domain.ParseChoice(req.Choice)
	if !ok {
		writeError(w, http.StatusBadRequest, "choice must be A or B")
		return
	}

	if !h.recorder.Resolve(r.Context(), id, choice) {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}

	conflict, _ := h.conflicts.Get(id)
	writeJSON(w, http.StatusOK, conflict)
}

type conflictVotesResponse struct {
	Votes []*domain.Vote `json:"votes"`
	Count int            `json:"count"`
}

func (h *ConflictHandler) Votes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.conflicts.Get(id); !ok {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}

	votes := h.votes.VotesFor(id)
	writeJSON(w, http.StatusOK, conflictVotesResponse{Votes: votes, Count: len(votes)})
}

func (h *ConflictHandler) Tally(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.conflicts.Get(id); !ok {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}

	writeJSON(w, http.StatusOK, h.votes.TallyStats(id))
}
