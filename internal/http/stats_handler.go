package api

import "net/http"

// @Summary     Global poll and vote aggregates
// @Tags        stats
// @Security    BearerAuth
// @Produce     json
// @Success     200  {object}  stats.Global
// @Router      /api/v1/stats [get]
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	g, err := h.statsSvc.Global(r.Context())
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// @Summary     The requester's own aggregates
// @Tags        stats
// @Security    BearerAuth
// @Produce     json
// @Success     200  {object}  stats.UserStats
// @Router      /api/v1/stats/me [get]
func (h *Handler) handleMyStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.statsSvc.ForUser(r.Context(), userIDFromCtx(r))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
