package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pollhub/internal/platform/apperr"
	"pollhub/internal/worker"
)

type castVotesRequest struct {
	OptionIDs []int64 `json:"option_ids"`
}

// @Summary     Cast votes for one or more options
// @Tags        votes
// @Security    BearerAuth
// @Accept      json
// @Param       id       path  int64             true  "Poll ID"
// @Param       request  body  castVotesRequest  true  "Selected options"
// @Success     204
// @Failure     400  {object}  map[string]string  "inactive or expired poll"
// @Failure     404  {object}  map[string]string
// @Failure     429  {object}  map[string]string
// @Router      /api/v1/polls/{id}/votes [post]
func (h *Handler) handleCastVotes(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	var req castVotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	if err := h.voteSvc.Cast(r.Context(), pollID, req.OptionIDs, userIDFromCtx(r), clientIP(r)); err != nil {
		errorResponse(w, err)
		return
	}

	select {
	case h.voteCh <- worker.VoteEvent{PollID: pollID, OptionIDs: req.OptionIDs}:
	default:
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary     Remove the requester's votes in a poll
// @Tags        votes
// @Security    BearerAuth
// @Param       id         path   int64  true   "Poll ID"
// @Param       option_id  query  int64  false  "Narrow to one option"
// @Success     204
// @Failure     404  {object}  map[string]string
// @Router      /api/v1/polls/{id}/votes [delete]
func (h *Handler) handleRemoveVotes(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	var optionID *int64
	if v := r.URL.Query().Get("option_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid option id", err))
			return
		}
		optionID = &id
	}

	if err := h.voteSvc.Remove(r.Context(), pollID, userIDFromCtx(r), clientIP(r), optionID); err != nil {
		errorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary     Poll results
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       id   path     int64  true  "Poll ID"
// @Success     200  {object} map[string]any
// @Failure     400  {object}  map[string]string
// @Router      /api/v1/polls/{id}/results [get]
func (h *Handler) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	res, total, err := h.voteSvc.Results(r.Context(), pollID)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"poll_id":     pollID,
		"total_votes": total,
		"options":     res,
	})
}
