package poll

import (
	"context"
	"time"
)

const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusClosed = "closed"
)

type Poll struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Description        *string    `json:"description,omitempty"`
	Status             string     `json:"status"`
	CreatedBy          int64      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	AllowMultipleVotes bool       `json:"allow_multiple_votes"`
	IsAnonymous        bool       `json:"is_anonymous"`
	ShareSlug          string     `json:"share_slug"`
}

type Option struct {
	ID        int64     `json:"id"`
	PollID    int64     `json:"poll_id"`
	Text      string    `json:"text"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// OptionResult is an option annotated with its vote count and, when a viewer
// identity was supplied, whether that viewer voted for it.
type OptionResult struct {
	Option
	VoteCount int64 `json:"vote_count"`
	UserVoted bool  `json:"user_voted"`
}

// Detail is a poll as returned to a single viewer.
type Detail struct {
	Poll
	Options     []OptionResult `json:"options"`
	TotalVotes  int64          `json:"total_votes"`
	UserCanVote bool           `json:"user_can_vote"`
}

// Summary is a poll row in a listing, options and totals attached.
type Summary struct {
	Poll
	Options    []OptionResult `json:"options"`
	TotalVotes int64          `json:"total_votes"`
}

// ListFilter narrows a listing. ViewerID is the requesting user; draft
// polls are listed only for their creator.
type ListFilter struct {
	Status        *string
	TitleSearch   *string
	CreatedBy     *int64
	ViewerID      int64
	ExpiresBefore *time.Time
	ExpiresAfter  *time.Time
	SortBy        string
	SortAsc       bool
	Page          int
	Limit         int
}

type Page struct {
	Items []Summary `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// Update carries a partial poll update. Nil fields are left untouched, and
// ClearExpiresAt drops the expiration outright. A non-nil Options slice
// replaces the poll's option set wholesale; ids still present in the
// current set are kept, anything else is inserted fresh.
type Update struct {
	Title              *string
	Description        *string
	ExpiresAt          *time.Time
	ClearExpiresAt     bool
	AllowMultipleVotes *bool
	IsAnonymous        *bool
	Options            []Option
}

type Repository interface {
	Create(ctx context.Context, p *Poll, options []Option) (int64, error)
	GetByID(ctx context.Context, id int64) (*Poll, []Option, error)
	GetBySlug(ctx context.Context, slug string) (*Poll, []Option, error)
	List(ctx context.Context, f ListFilter) ([]Summary, int, error)
	Update(ctx context.Context, id, requesterID int64, upd Update) error
	UpdateStatus(ctx context.Context, id, requesterID int64, status string) error
	Delete(ctx context.Context, id, requesterID int64) error
}

// VoteSource exposes the vote lookups the poll service needs to annotate a
// poll for a viewer. Implemented by the postgres vote repository.
type VoteSource interface {
	CountByPoll(ctx context.Context, pollID int64) (map[int64]int64, int64, error)
	OptionsVotedBy(ctx context.Context, pollID, userID int64) (map[int64]bool, error)
}
