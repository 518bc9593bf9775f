package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type VoteHandler struct {
	votes *service.VoteService
}

func NewVoteHandler(vs *service.VoteService) *VoteHandler {
	return &VoteHandler{votes: vs}
}

type submitVoteRequest struct {
	ConflictID string  `json:"conflict_id"`
	UserID     string  `json:"user_id"`
	Choice     string  `json:"choice"`
	Reason     string  `json:"reason,omitempty"`
	Role       string  `json:"role,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
}

func (h *VoteHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vote, err := h.votes.Submit(r.Context(), service.SubmitVoteInput{
		ConflictID: req.ConflictID,
		UserID:     req.UserID,
		Choice:     req.Choice,
		Reason:     req.Reason,
		Role:       domain.VoterRole(req.Role),
		Weight:     req.Weight,
		IPAddress:  r.RemoteAddr,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflictNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrVotingClosed):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, vote)
}

func (h *VoteHandler) GetByUser(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "conflictID")
	userID := chi.URLParam(r, "userID")

	vote, ok := h.votes.GetVote(userID, conflictID)
	if !ok {
		writeError(w, http.StatusNotFound, "vote not found")
		return
	}
	writeJSON(w, http.StatusOK, vote)
}
