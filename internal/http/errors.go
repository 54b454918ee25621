package api

import (
	"database/sql"
	"errors"
	"net/http"

	"pollhub/internal/domain/poll"
	"pollhub/internal/domain/user"
	"pollhub/internal/domain/vote"
	"pollhub/internal/platform/apperr"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound("not_found", "resource not found", err)
	case errors.Is(err, user.ErrInvalidCredentials):
		return apperr.Unauthorized("invalid_credentials", "invalid credentials", err)
	case errors.Is(err, user.ErrInactiveUser):
		return apperr.Unauthorized("inactive_user", "user is inactive", err)
	case errors.Is(err, user.ErrEmailTaken):
		return apperr.BadRequest("email_taken", "email already taken", err)
	case errors.Is(err, user.ErrInvalidRole):
		return apperr.BadRequest("invalid_role", "invalid role", err)
	case errors.Is(err, poll.ErrTitleRequired):
		return apperr.BadRequest("title_required", "title is required", err)
	case errors.Is(err, poll.ErrTooFewOptions):
		return apperr.BadRequest("too_few_options", "poll must have at least 2 options", err)
	case errors.Is(err, poll.ErrInvalidStatus):
		return apperr.BadRequest("invalid_status", "invalid poll status", err)
	// absent poll and someone else's poll map to the same response on
	// purpose: mutations must not disclose which one it was
	case errors.Is(err, poll.ErrNotFoundOrNotPermitted):
		return apperr.NotFound("not_found", "poll not found", err)
	case errors.Is(err, vote.ErrPollNotFound):
		return apperr.NotFound("poll_not_found", "poll not found", err)
	case errors.Is(err, vote.ErrPollInactive):
		return apperr.BadRequest("poll_inactive", "poll is not active", err)
	case errors.Is(err, vote.ErrPollExpired):
		return apperr.BadRequest("poll_expired", "poll has expired", err)
	case errors.Is(err, vote.ErrNoOptions):
		return apperr.BadRequest("invalid_input", "at least one option is required", err)
	case errors.Is(err, vote.ErrOptionNotInPoll):
		return apperr.BadRequest("option_not_in_poll", "option does not belong to poll", err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
