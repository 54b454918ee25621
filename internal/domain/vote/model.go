package vote

import (
	"context"
	"time"
)

type Vote struct {
	ID        int64     `json:"id"`
	PollID    int64     `json:"poll_id"`
	OptionID  int64     `json:"option_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	VoterIP   *string   `json:"voter_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PollState is the slice of a poll that vote casting re-checks before
// touching any vote rows. OptionIDs is the poll's full option set, so a
// cast can reject ids that belong to some other poll.
type PollState struct {
	Status             string
	AllowMultipleVotes bool
	IsAnonymous        bool
	ExpiresAt          *time.Time
	OptionIDs          map[int64]bool
}

// Voter identifies who is casting. For anonymous polls only the IP is
// stored; for everything else the user id is the dedup key.
type Voter struct {
	UserID *int64
	IP     *string
}

type Repository interface {
	PollState(ctx context.Context, pollID int64) (*PollState, error)
	Cast(ctx context.Context, pollID int64, optionIDs []int64, voter Voter, replace bool) error
	Remove(ctx context.Context, pollID int64, voter Voter, optionID *int64) (int64, error)
	CountByPoll(ctx context.Context, pollID int64) (map[int64]int64, int64, error)
}
