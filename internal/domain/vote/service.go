package vote

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrPollInactive    = errors.New("poll is not active")
	ErrPollExpired     = errors.New("poll has expired")
	ErrNoOptions       = errors.New("at least one option is required")
	ErrOptionNotInPoll = errors.New("option does not belong to poll")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Cast records one vote row per selected option. On single-vote polls the
// voter's prior votes in the poll are deleted in the same transaction, so a
// re-vote and a first vote are the same path and retries are idempotent. On
// multi-vote polls rows are only appended: a retry after an unacknowledged
// success inserts duplicates. That gap is inherited behavior, kept visible.
func (s *Service) Cast(ctx context.Context, pollID int64, optionIDs []int64, userID int64, voterIP string) error {
	if len(optionIDs) == 0 {
		return ErrNoOptions
	}

	st, err := s.repo.PollState(ctx, pollID)
	if err != nil {
		return err
	}
	if st == nil {
		return ErrPollNotFound
	}
	if st.Status != "active" {
		return ErrPollInactive
	}
	if st.ExpiresAt != nil && st.ExpiresAt.Before(s.now()) {
		return ErrPollExpired
	}
	for _, id := range optionIDs {
		if !st.OptionIDs[id] {
			return ErrOptionNotInPoll
		}
	}

	voter := s.voterFor(st, userID, voterIP)
	return s.repo.Cast(ctx, pollID, optionIDs, voter, !st.AllowMultipleVotes)
}

// Remove deletes the voter's votes in a poll, optionally narrowed to one
// option. Removing from a poll that never existed is reported as not found.
func (s *Service) Remove(ctx context.Context, pollID int64, userID int64, voterIP string, optionID *int64) error {
	st, err := s.repo.PollState(ctx, pollID)
	if err != nil {
		return err
	}
	if st == nil {
		return ErrPollNotFound
	}
	_, err = s.repo.Remove(ctx, pollID, s.voterFor(st, userID, voterIP), optionID)
	return err
}

func (s *Service) voterFor(st *PollState, userID int64, voterIP string) Voter {
	var v Voter
	if voterIP != "" {
		v.IP = &voterIP
	}
	if !st.IsAnonymous {
		v.UserID = &userID
	}
	return v
}

type Result struct {
	OptionID   int64   `json:"option_id"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// Results returns per-option counts with percentages, derived at read time.
func (s *Service) Results(ctx context.Context, pollID int64) ([]Result, int64, error) {
	counts, total, err := s.repo.CountByPoll(ctx, pollID)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(counts))
	for optionID, c := range counts {
		var p float64
		if total > 0 {
			p = float64(c) * 100.0 / float64(total)
		}
		results = append(results, Result{
			OptionID:   optionID,
			Votes:      c,
			Percentage: p,
		})
	}

	return results, total, nil
}
