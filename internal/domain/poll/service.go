package poll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTitleRequired          = errors.New("title required")
	ErrTooFewOptions          = errors.New("poll must have at least 2 options")
	ErrInvalidStatus          = errors.New("invalid poll status")
	ErrNotFoundOrNotPermitted = errors.New("poll not found or not permitted")
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var sortKeys = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"title":       true,
	"total_votes": true,
}

type Service struct {
	repo  Repository
	votes VoteSource
	now   func() time.Time
}

func NewService(repo Repository, votes VoteSource) *Service {
	return &Service{repo: repo, votes: votes, now: time.Now}
}

// Create inserts a poll and its options as one unit. Option texts are
// trimmed and empties dropped before the minimum-of-two check. The creator
// always comes from the authenticated identity, never from the request body.
func (s *Service) Create(ctx context.Context, p *Poll, optionTexts []string) (int64, error) {
	if strings.TrimSpace(p.Title) == "" {
		return 0, ErrTitleRequired
	}

	texts := make([]string, 0, len(optionTexts))
	for _, t := range optionTexts {
		t = strings.TrimSpace(t)
		if t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) < 2 {
		return 0, ErrTooFewOptions
	}

	p.Title = strings.TrimSpace(p.Title)
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Status != StatusDraft && p.Status != StatusActive {
		return 0, ErrInvalidStatus
	}
	p.ShareSlug = uuid.NewString()

	opts := make([]Option, 0, len(texts))
	for i, t := range texts {
		opts = append(opts, Option{Text: t, Position: i})
	}

	return s.repo.Create(ctx, p, opts)
}

// GetDetail fetches one poll annotated for the given viewer. A nil return
// with a nil error means the poll does not exist; callers must distinguish
// that from a store failure. Drafts are visible to their creator only, and
// to everyone else they look absent.
func (s *Service) GetDetail(ctx context.Context, id int64, viewerID *int64) (*Detail, error) {
	p, opts, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || !visibleTo(p, viewerID) {
		return nil, nil
	}
	return s.assemble(ctx, p, opts, viewerID)
}

// GetBySlug resolves a share link. The viewer is always anonymous here, so
// user_voted is false everywhere, user_can_vote is false, and drafts never
// resolve.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Detail, error) {
	p, opts, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if p == nil || !visibleTo(p, nil) {
		return nil, nil
	}
	return s.assemble(ctx, p, opts, nil)
}

func visibleTo(p *Poll, viewerID *int64) bool {
	if p.Status != StatusDraft {
		return true
	}
	return viewerID != nil && *viewerID == p.CreatedBy
}

func (s *Service) assemble(ctx context.Context, p *Poll, opts []Option, viewerID *int64) (*Detail, error) {
	counts, total, err := s.votes.CountByPoll(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	voted := map[int64]bool{}
	if viewerID != nil && !p.IsAnonymous {
		voted, err = s.votes.OptionsVotedBy(ctx, p.ID, *viewerID)
		if err != nil {
			return nil, err
		}
	}

	d := &Detail{Poll: *p, TotalVotes: total}
	d.Options = make([]OptionResult, 0, len(opts))
	for _, o := range opts {
		d.Options = append(d.Options, OptionResult{
			Option:    o,
			VoteCount: counts[o.ID],
			UserVoted: voted[o.ID],
		})
	}
	d.UserCanVote = s.canVote(p, viewerID, len(voted))
	return d, nil
}

func (s *Service) canVote(p *Poll, viewerID *int64, priorVotes int) bool {
	if viewerID == nil {
		return false
	}
	if p.Status != StatusActive {
		return false
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(s.now()) {
		return false
	}
	return p.AllowMultipleVotes || priorVotes == 0
}

func (s *Service) List(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortBy == "" || !sortKeys[f.SortBy] {
		f.SortBy = "created_at"
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Summary{}
	}
	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Update applies a partial update scoped to the requesting owner. Replacing
// the option set deletes every existing option row first; votes referencing
// those rows cascade away with them.
func (s *Service) Update(ctx context.Context, id, requesterID int64, upd Update) error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return ErrTitleRequired
	}
	if upd.Options != nil {
		kept := make([]Option, 0, len(upd.Options))
		for i := range upd.Options {
			o := upd.Options[i]
			o.Text = strings.TrimSpace(o.Text)
			if o.Text == "" {
				continue
			}
			o.Position = len(kept)
			kept = append(kept, o)
		}
		if len(kept) < 2 {
			return ErrTooFewOptions
		}
		upd.Options = kept
	}
	return s.repo.Update(ctx, id, requesterID, upd)
}

// UpdateStatus moves a poll between active and closed, owner-scoped.
func (s *Service) UpdateStatus(ctx context.Context, id, requesterID int64, status string) error {
	if status != StatusActive && status != StatusClosed {
		return ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, id, requesterID, status)
}

func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	return s.repo.Delete(ctx, id, requesterID)
}
