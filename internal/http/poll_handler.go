package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pollhub/internal/domain/poll"
	"pollhub/internal/platform/apperr"
)

type createPollRequest struct {
	Title              string   `json:"title"`
	Description        *string  `json:"description"`
	Status             string   `json:"status"`
	Options            []string `json:"options"`
	ExpiresAt          *string  `json:"expires_at"`
	AllowMultipleVotes bool     `json:"allow_multiple_votes"`
	IsAnonymous        bool     `json:"is_anonymous"`
}

type updateOptionRequest struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type updatePollRequest struct {
	Title              *string               `json:"title"`
	Description        *string               `json:"description"`
	ExpiresAt          *string               `json:"expires_at"`
	AllowMultipleVotes *bool                 `json:"allow_multiple_votes"`
	IsAnonymous        *bool                 `json:"is_anonymous"`
	Options            []updateOptionRequest `json:"options"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// @Summary     Create a poll with its options
// @Tags        polls
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       request  body      createPollRequest  true  "Poll payload"
// @Success     201      {object}  poll.Poll
// @Failure     400      {object}  map[string]string
// @Router      /api/v1/polls [post]
func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	expiresAt, err := parseTimePtr(req.ExpiresAt)
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid expires_at", err))
		return
	}

	p := &poll.Poll{
		Title:              req.Title,
		Description:        req.Description,
		Status:             req.Status,
		ExpiresAt:          expiresAt,
		AllowMultipleVotes: req.AllowMultipleVotes,
		IsAnonymous:        req.IsAnonymous,
		CreatedBy:          userIDFromCtx(r),
	}

	if _, err := h.pollSvc.Create(r.Context(), p, req.Options); err != nil {
		errorResponse(w, err)
		return
	}

	// options are not attached here; callers refetch the detail if they
	// need counts
	writeJSON(w, http.StatusCreated, p)
}

// @Summary     List polls
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       status          query  string  false  "draft|active|closed"
// @Param       q               query  string  false  "title search"
// @Param       mine            query  bool    false  "only the requester's polls"
// @Param       expires_before  query  string  false  "RFC3339 bound"
// @Param       expires_after   query  string  false  "RFC3339 bound"
// @Param       sort            query  string  false  "created_at|updated_at|title|total_votes"
// @Param       order           query  string  false  "asc|desc"
// @Param       page            query  int     false  "page number"
// @Param       limit           query  int     false  "page size"
// @Success     200  {object}  poll.Page
// @Router      /api/v1/polls [get]
func (h *Handler) handleListPolls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f poll.ListFilter
	if v := q.Get("status"); v != "" {
		f.Status = &v
	}
	if v := q.Get("q"); v != "" {
		f.TitleSearch = &v
	}
	if q.Get("mine") == "true" {
		id := userIDFromCtx(r)
		f.CreatedBy = &id
	}
	f.ViewerID = userIDFromCtx(r)
	if v := q.Get("expires_before"); v != "" {
		t, err := parseTimePtr(&v)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid expires_before", err))
			return
		}
		f.ExpiresBefore = t
	}
	if v := q.Get("expires_after"); v != "" {
		t, err := parseTimePtr(&v)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid expires_after", err))
			return
		}
		f.ExpiresAfter = t
	}
	f.SortBy = q.Get("sort")
	f.SortAsc = q.Get("order") == "asc"
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := h.pollSvc.List(r.Context(), f)
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// @Summary     Get one poll with counts for the requesting viewer
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      int64  true  "Poll ID"
// @Success     200  {object}  poll.Detail
// @Failure     404  {object}  map[string]string
// @Router      /api/v1/polls/{id} [get]
func (h *Handler) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	viewerID := userIDFromCtx(r)
	d, err := h.pollSvc.GetDetail(r.Context(), id, &viewerID)
	if err != nil {
		errorResponse(w, err)
		return
	}
	if d == nil {
		errorResponse(w, apperr.NotFound("not_found", "poll not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// @Summary     Resolve a share link
// @Tags        polls
// @Produce     json
// @Param       slug  path      string  true  "Share slug"
// @Success     200   {object}  poll.Detail
// @Failure     404   {object}  map[string]string
// @Router      /api/v1/shared/{slug} [get]
func (h *Handler) handleSharedPoll(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid share slug", nil))
		return
	}

	d, err := h.pollSvc.GetBySlug(r.Context(), slug)
	if err != nil {
		errorResponse(w, err)
		return
	}
	if d == nil {
		errorResponse(w, apperr.NotFound("not_found", "poll not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// @Summary     Update a poll (owner only)
// @Tags        polls
// @Security    BearerAuth
// @Accept      json
// @Param       id       path  int64              true  "Poll ID"
// @Param       request  body  updatePollRequest  true  "Partial update"
// @Success     204
// @Failure     404  {object}  map[string]string
// @Router      /api/v1/polls/{id} [patch]
func (h *Handler) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	var req updatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	upd := poll.Update{
		Title:              req.Title,
		Description:        req.Description,
		AllowMultipleVotes: req.AllowMultipleVotes,
		IsAnonymous:        req.IsAnonymous,
	}
	if req.ExpiresAt != nil {
		if *req.ExpiresAt == "" {
			upd.ClearExpiresAt = true
		} else {
			t, err := parseTimePtr(req.ExpiresAt)
			if err != nil {
				errorResponse(w, apperr.BadRequest("invalid_input", "invalid expires_at", err))
				return
			}
			upd.ExpiresAt = t
		}
	}
	if req.Options != nil {
		upd.Options = make([]poll.Option, 0, len(req.Options))
		for _, o := range req.Options {
			upd.Options = append(upd.Options, poll.Option{ID: o.ID, Text: o.Text})
		}
	}

	if err := h.pollSvc.Update(r.Context(), id, userIDFromCtx(r), upd); err != nil {
		errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary     Open or close a poll (owner only)
// @Tags        polls
// @Security    BearerAuth
// @Accept      json
// @Param       id       path  int64                true  "Poll ID"
// @Param       request  body  updateStatusRequest  true  "active or closed"
// @Success     204
// @Failure     404  {object}  map[string]string
// @Router      /api/v1/polls/{id}/status [patch]
func (h *Handler) handleUpdatePollStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	if err := h.pollSvc.UpdateStatus(r.Context(), id, userIDFromCtx(r), req.Status); err != nil {
		errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary     Delete a poll (owner only)
// @Tags        polls
// @Security    BearerAuth
// @Param       id  path  int64  true  "Poll ID"
// @Success     204
// @Failure     404  {object}  map[string]string
// @Router      /api/v1/polls/{id} [delete]
func (h *Handler) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	if err := h.pollSvc.Delete(r.Context(), id, userIDFromCtx(r)); err != nil {
		errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
