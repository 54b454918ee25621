// Package stats derives aggregate poll and vote figures. Nothing here is
// stored; every number is recomputed from the base tables or the results
// view at call time.
package stats

import "context"

type Global struct {
	TotalPolls      int64            `json:"total_polls"`
	PollsByStatus   map[string]int64 `json:"polls_by_status"`
	TotalVotes      int64            `json:"total_votes"`
	AvgVotesPerPoll float64          `json:"avg_votes_per_poll"`
}

type TopPoll struct {
	PollID     int64  `json:"poll_id"`
	Title      string `json:"title"`
	TotalVotes int64  `json:"total_votes"`
}

type UserStats struct {
	PollsCreated int64    `json:"polls_created"`
	TopPoll      *TopPoll `json:"top_poll,omitempty"`
}

type Repository interface {
	CountPollsByStatus(ctx context.Context) (map[string]int64, error)
	CountVotes(ctx context.Context) (int64, error)
	CountPollsBy(ctx context.Context, creatorID int64) (int64, error)
	TopPollBy(ctx context.Context, creatorID int64) (*TopPoll, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Global(ctx context.Context) (*Global, error) {
	byStatus, err := s.repo.CountPollsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := s.repo.CountVotes(ctx)
	if err != nil {
		return nil, err
	}

	var totalPolls int64
	for _, c := range byStatus {
		totalPolls += c
	}

	g := &Global{
		TotalPolls:    totalPolls,
		PollsByStatus: byStatus,
		TotalVotes:    votes,
	}
	if totalPolls > 0 {
		g.AvgVotesPerPoll = float64(votes) / float64(totalPolls)
	}
	return g, nil
}

// ForUser reports the requester's poll count and their highest-voted poll.
// TopPoll is nil when the user has no polls.
func (s *Service) ForUser(ctx context.Context, userID int64) (*UserStats, error) {
	created, err := s.repo.CountPollsBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	top, err := s.repo.TopPollBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserStats{PollsCreated: created, TopPoll: top}, nil
}
