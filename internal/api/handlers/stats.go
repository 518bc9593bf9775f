package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/service"
)

type StatsHandler struct {
	conflicts  *service.ConflictService
	votes      *service.VoteService
	evolutions *service.EvolutionService
}

func NewStatsHandler(cs *service.ConflictService, vs *service.VoteService, es *service.EvolutionService) *StatsHandler {
	return &StatsHandler{conflicts: cs, votes: vs, evolutions: es}
}

type statsResponse struct {
	Conflicts  service.ConflictStats  `json:"conflicts"`
	Votes      service.VoteStats      `json:"votes"`
	Evolutions service.EvolutionStats `json:"evolutions"`
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Conflicts:  h.conflicts.Statistics(),
		Votes:      h.votes.Statistics(),
		Evolutions: h.evolutions.Statistics(),
	})
}
