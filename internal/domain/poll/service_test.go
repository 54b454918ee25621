package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memoryPollStore implements both Repository and VoteSource so option
// replacement can model the vote cascade the real store performs.
type memoryPollStore struct {
	mu         sync.Mutex
	polls      map[int64]*Poll
	opts       map[int64][]Option
	votes      map[int64]map[int64][]int64 // pollID -> optionID -> voter ids
	nextPoll   int64
	nextOpt    int64
	lastFilter ListFilter
	listItems  []Summary
	listTotal  int
}

func newMemoryPollStore() *memoryPollStore {
	return &memoryPollStore{
		polls:    make(map[int64]*Poll),
		opts:     make(map[int64][]Option),
		votes:    make(map[int64]map[int64][]int64),
		nextPoll: 1,
		nextOpt:  1,
	}
}

func (r *memoryPollStore) Create(ctx context.Context, p *Poll, options []Option) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextPoll
	r.nextPoll++
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	copyPoll := *p
	r.polls[p.ID] = &copyPoll

	cloned := make([]Option, len(options))
	for i, opt := range options {
		opt.ID = r.nextOpt
		r.nextOpt++
		opt.PollID = p.ID
		opt.CreatedAt = now
		cloned[i] = opt
	}
	r.opts[p.ID] = cloned
	return p.ID, nil
}

func (r *memoryPollStore) GetByID(ctx context.Context, id int64) (*Poll, []Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok {
		return nil, nil, nil
	}
	copyPoll := *p
	opts := make([]Option, len(r.opts[id]))
	copy(opts, r.opts[id])
	return &copyPoll, opts, nil
}

func (r *memoryPollStore) GetBySlug(ctx context.Context, slug string) (*Poll, []Option, error) {
	r.mu.Lock()
	var id int64 = -1
	for _, p := range r.polls {
		if p.ShareSlug == slug {
			id = p.ID
		}
	}
	r.mu.Unlock()
	if id < 0 {
		return nil, nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *memoryPollStore) List(ctx context.Context, f ListFilter) ([]Summary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = f
	return r.listItems, r.listTotal, nil
}

func (r *memoryPollStore) Update(ctx context.Context, id, requesterID int64, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || p.CreatedBy != requesterID {
		return ErrNotFoundOrNotPermitted
	}
	if upd.Title != nil {
		p.Title = *upd.Title
	}
	if upd.ClearExpiresAt {
		p.ExpiresAt = nil
	} else if upd.ExpiresAt != nil {
		p.ExpiresAt = upd.ExpiresAt
	}
	if upd.Options != nil {
		existing := make(map[int64]bool)
		for _, o := range r.opts[id] {
			existing[o.ID] = true
		}
		// wholesale replacement: votes tied to dropped option rows go too
		delete(r.votes, id)
		fresh := make([]Option, len(upd.Options))
		for i, o := range upd.Options {
			if !existing[o.ID] {
				o.ID = r.nextOpt
				r.nextOpt++
			}
			o.PollID = id
			fresh[i] = o
		}
		r.opts[id] = fresh
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memoryPollStore) UpdateStatus(ctx context.Context, id, requesterID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || p.CreatedBy != requesterID {
		return ErrNotFoundOrNotPermitted
	}
	p.Status = status
	return nil
}

func (r *memoryPollStore) Delete(ctx context.Context, id, requesterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || p.CreatedBy != requesterID {
		return ErrNotFoundOrNotPermitted
	}
	delete(r.polls, id)
	delete(r.opts, id)
	delete(r.votes, id)
	return nil
}

func (r *memoryPollStore) CountByPoll(ctx context.Context, pollID int64) (map[int64]int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make(map[int64]int64)
	var total int64
	for optID, voters := range r.votes[pollID] {
		res[optID] = int64(len(voters))
		total += int64(len(voters))
	}
	return res, total, nil
}

func (r *memoryPollStore) OptionsVotedBy(ctx context.Context, pollID, userID int64) (map[int64]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make(map[int64]bool)
	for optID, voters := range r.votes[pollID] {
		for _, v := range voters {
			if v == userID {
				res[optID] = true
			}
		}
	}
	return res, nil
}

func (r *memoryPollStore) addVote(pollID, optionID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.votes[pollID] == nil {
		r.votes[pollID] = make(map[int64][]int64)
	}
	r.votes[pollID][optionID] = append(r.votes[pollID][optionID], userID)
}

func newTestService(store *memoryPollStore) *Service {
	return NewService(store, store)
}

func TestCreateValidation(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &Poll{Title: "  "}, []string{"A", "B"}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected title error, got %v", err)
	}
	if _, err := svc.Create(ctx, &Poll{Title: "Lunch?"}, []string{"A", "  ", ""}); !errors.Is(err, ErrTooFewOptions) {
		t.Fatalf("expected too few options after trimming, got %v", err)
	}

	id, err := svc.Create(ctx, &Poll{Title: " Lunch? ", CreatedBy: 1}, []string{" Pizza ", "Salad"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	p, opts, _ := store.GetByID(ctx, id)
	if p.Title != "Lunch?" {
		t.Fatalf("expected trimmed title, got %q", p.Title)
	}
	if p.Status != StatusActive {
		t.Fatalf("expected active default status, got %q", p.Status)
	}
	if p.ShareSlug == "" {
		t.Fatalf("expected a share slug")
	}
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}
	for i, o := range opts {
		if o.Position != i {
			t.Fatalf("option %d: expected position %d, got %d", i, i, o.Position)
		}
	}
	if opts[0].Text != "Pizza" {
		t.Fatalf("expected trimmed option text, got %q", opts[0].Text)
	}
}

func TestGetDetailAbsentIsNilNotError(t *testing.T) {
	svc := newTestService(newMemoryPollStore())
	viewer := int64(1)

	d, err := svc.GetDetail(context.Background(), 999, &viewer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil detail for absent poll")
	}
}

func TestGetDetailCountsAndUserVoted(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, err := svc.Create(ctx, &Poll{Title: "Lunch?", CreatedBy: 1}, []string{"Pizza", "Salad"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, opts, _ := store.GetByID(ctx, id)
	pizza, salad := opts[0].ID, opts[1].ID

	voterA := int64(7)
	store.addVote(id, pizza, voterA)

	d, err := svc.GetDetail(ctx, id, &voterA)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.TotalVotes != 1 {
		t.Fatalf("expected total 1, got %d", d.TotalVotes)
	}
	if d.UserCanVote {
		t.Fatalf("expected user_can_vote=false after voting on a single-vote poll")
	}
	byID := map[int64]OptionResult{}
	for _, o := range d.Options {
		byID[o.ID] = o
	}
	if got := byID[pizza]; got.VoteCount != 1 || !got.UserVoted {
		t.Fatalf("pizza: expected count=1 voted=true, got count=%d voted=%v", got.VoteCount, got.UserVoted)
	}
	if got := byID[salad]; got.VoteCount != 0 || got.UserVoted {
		t.Fatalf("salad: expected count=0 voted=false, got count=%d voted=%v", got.VoteCount, got.UserVoted)
	}
}

func TestUserCanVoteRules(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()
	viewer := int64(5)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		poll   Poll
		viewer *int64
		voted  bool
		want   bool
	}{
		{"no identity", Poll{Title: "p", CreatedBy: 1}, nil, false, false},
		{"active votable", Poll{Title: "p", CreatedBy: 1}, &viewer, false, true},
		{"closed", Poll{Title: "p", CreatedBy: 1, Status: StatusClosed}, &viewer, false, false},
		{"own draft", Poll{Title: "p", CreatedBy: 5, Status: StatusDraft}, &viewer, false, false},
		{"expired", Poll{Title: "p", CreatedBy: 1, ExpiresAt: &past}, &viewer, false, false},
		{"future expiry", Poll{Title: "p", CreatedBy: 1, ExpiresAt: &future}, &viewer, false, true},
		{"already voted single", Poll{Title: "p", CreatedBy: 1}, &viewer, true, false},
		{"already voted multi", Poll{Title: "p", CreatedBy: 1, AllowMultipleVotes: true}, &viewer, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.poll
			// Create refuses a closed status; apply it after the fact
			wantClosed := p.Status == StatusClosed
			if wantClosed {
				p.Status = ""
			}
			id, err := svc.Create(ctx, &p, []string{"A", "B"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if wantClosed {
				if err := store.UpdateStatus(ctx, id, 1, StatusClosed); err != nil {
					t.Fatalf("close: %v", err)
				}
			}
			if tc.voted {
				_, opts, _ := store.GetByID(ctx, id)
				store.addVote(id, opts[0].ID, viewer)
			}
			d, err := svc.GetDetail(ctx, id, tc.viewer)
			if err != nil {
				t.Fatalf("detail: %v", err)
			}
			if d.UserCanVote != tc.want {
				t.Fatalf("user_can_vote = %v, want %v", d.UserCanVote, tc.want)
			}
		})
	}
}

func TestDraftVisibleToCreatorOnly(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, err := svc.Create(ctx, &Poll{Title: "WIP", CreatedBy: 1, Status: StatusDraft}, []string{"A", "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	owner, other := int64(1), int64(2)
	d, err := svc.GetDetail(ctx, id, &owner)
	if err != nil || d == nil {
		t.Fatalf("creator should see the draft, got %v / %v", d, err)
	}
	d, err = svc.GetDetail(ctx, id, &other)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d != nil {
		t.Fatalf("draft leaked to another user")
	}

	p, _, _ := store.GetByID(ctx, id)
	d, err = svc.GetBySlug(ctx, p.ShareSlug)
	if err != nil {
		t.Fatalf("slug: %v", err)
	}
	if d != nil {
		t.Fatalf("draft resolvable through its share link")
	}
}

func TestUpdateScopedToOwner(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, err := svc.Create(ctx, &Poll{Title: "Mine", CreatedBy: 1}, []string{"A", "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "Hijacked"
	if err := svc.Update(ctx, id, 2, Update{Title: &title}); !errors.Is(err, ErrNotFoundOrNotPermitted) {
		t.Fatalf("expected combined not-found-or-not-permitted, got %v", err)
	}
	p, _, _ := store.GetByID(ctx, id)
	if p.Title != "Mine" {
		t.Fatalf("poll mutated by non-owner: %q", p.Title)
	}

	if err := svc.Update(ctx, 9999, 1, Update{Title: &title}); !errors.Is(err, ErrNotFoundOrNotPermitted) {
		t.Fatalf("expected combined error for absent poll, got %v", err)
	}

	if err := svc.Update(ctx, id, 1, Update{Title: &title}); err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
}

func TestUpdateOptionReplacementDropsVotes(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, err := svc.Create(ctx, &Poll{Title: "Snacks", CreatedBy: 1}, []string{"Chips", "Fruit"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, opts, _ := store.GetByID(ctx, id)
	store.addVote(id, opts[0].ID, 7)
	store.addVote(id, opts[1].ID, 8)

	// replacing the option set drops existing votes with the old rows
	if err := svc.Update(ctx, id, 1, Update{Options: []Option{{Text: "Cake"}, {Text: "Pie"}}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	viewer := int64(7)
	d, err := svc.GetDetail(ctx, id, &viewer)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.TotalVotes != 0 {
		t.Fatalf("expected votes dropped on option replacement, got total %d", d.TotalVotes)
	}
	if len(d.Options) != 2 || d.Options[0].Text != "Cake" {
		t.Fatalf("unexpected replacement options: %+v", d.Options)
	}
}

func TestUpdateOptionValidation(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, _ := svc.Create(ctx, &Poll{Title: "p", CreatedBy: 1}, []string{"A", "B"})

	err := svc.Update(ctx, id, 1, Update{Options: []Option{{Text: "Only"}, {Text: "  "}}})
	if !errors.Is(err, ErrTooFewOptions) {
		t.Fatalf("expected too few options, got %v", err)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, _ := svc.Create(ctx, &Poll{Title: "p", CreatedBy: 1}, []string{"A", "B"})

	if err := svc.UpdateStatus(ctx, id, 1, "archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if err := svc.UpdateStatus(ctx, id, 1, StatusDraft); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("status endpoint only flips active/closed, got %v", err)
	}
	if err := svc.UpdateStatus(ctx, id, 1, StatusClosed); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestListNormalizesPaging(t *testing.T) {
	store := newMemoryPollStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.List(ctx, ListFilter{Page: -3, Limit: 500, SortBy: "bogus"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	f := store.lastFilter
	if f.Page != 1 {
		t.Fatalf("expected page clamped to 1, got %d", f.Page)
	}
	if f.Limit != MaxLimit {
		t.Fatalf("expected limit capped at %d, got %d", MaxLimit, f.Limit)
	}
	if f.SortBy != "created_at" {
		t.Fatalf("expected bogus sort replaced, got %q", f.SortBy)
	}

	page, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Limit != DefaultLimit || page.Page != 1 {
		t.Fatalf("expected defaults, got page=%d limit=%d", page.Page, page.Limit)
	}
	if page.Items == nil {
		t.Fatalf("expected empty slice, not nil")
	}
}
