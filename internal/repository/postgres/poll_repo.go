package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pollhub/internal/domain/poll"
)

type PollRepo struct {
	db *sql.DB
}

func NewPollRepo(db *sql.DB) *PollRepo {
	return &PollRepo{db: db}
}

const pollColumns = `id, title, description, status, created_by, created_at, updated_at,
        expires_at, allow_multiple_votes, is_anonymous, share_slug`

// Create inserts the poll and all of its options in one transaction. A
// failed option insert rolls the poll row back too, so no orphan poll can
// survive a partial create.
func (r *PollRepo) Create(ctx context.Context, p *poll.Poll, options []poll.Option) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create poll: begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO polls (title, description, status, created_by, expires_at,
                           allow_multiple_votes, is_anonymous, share_slug)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at
    `,
		p.Title, p.Description, p.Status, p.CreatedBy, p.ExpiresAt,
		p.AllowMultipleVotes, p.IsAnonymous, p.ShareSlug,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("create poll: insert poll: %w", err)
	}

	for i := range options {
		options[i].PollID = p.ID
		err := tx.QueryRowContext(ctx, `
            INSERT INTO poll_options (poll_id, text, position)
            VALUES ($1, $2, $3)
            RETURNING id, created_at
        `, options[i].PollID, options[i].Text, options[i].Position).
			Scan(&options[i].ID, &options[i].CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("create poll: insert option at position %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create poll: commit: %w", err)
	}
	return p.ID, nil
}

// GetByID returns nil without an error when the poll does not exist.
func (r *PollRepo) GetByID(ctx context.Context, id int64) (*poll.Poll, []poll.Option, error) {
	return r.getOne(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id)
}

func (r *PollRepo) GetBySlug(ctx context.Context, slug string) (*poll.Poll, []poll.Option, error) {
	return r.getOne(ctx, `SELECT `+pollColumns+` FROM polls WHERE share_slug = $1`, slug)
}

func (r *PollRepo) getOne(ctx context.Context, query string, arg any) (*poll.Poll, []poll.Option, error) {
	p := &poll.Poll{}
	err := scanPoll(r.db.QueryRowContext(ctx, query, arg), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get poll: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, poll_id, text, position, created_at
        FROM poll_options WHERE poll_id = $1 ORDER BY position
    `, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get poll options: %w", err)
	}
	defer rows.Close()

	var opts []poll.Option
	for rows.Next() {
		var o poll.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position, &o.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("get poll options: scan: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("get poll options: %w", err)
	}
	return p, opts, nil
}

// List returns one page of summaries plus the total match count. With a
// creator filter it reads the base table and batch-attaches options and
// counts; otherwise it reads the poll_results view and regroups its rows
// into one summary per poll. A poll with no options or votes still shows up,
// with an empty option list and a zero total.
func (r *PollRepo) List(ctx context.Context, f poll.ListFilter) ([]poll.Summary, int, error) {
	var (
		items []poll.Summary
		err   error
	)
	if f.CreatedBy != nil {
		items, err = r.listByCreator(ctx, f)
	} else {
		items, err = r.listFromView(ctx, f)
	}
	if err != nil {
		return nil, 0, err
	}

	sortSummaries(items, f.SortBy, f.SortAsc)

	total := len(items)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return []poll.Summary{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func (r *PollRepo) listByCreator(ctx context.Context, f poll.ListFilter) ([]poll.Summary, error) {
	where, args := listWhere(f)
	rows, err := r.db.QueryContext(ctx, `SELECT `+pollColumns+` FROM polls`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var items []poll.Summary
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var s poll.Summary
		if err := scanPoll(rows, &s.Poll); err != nil {
			return nil, fmt.Errorf("list polls: scan: %w", err)
		}
		s.Options = []poll.OptionResult{}
		index[s.ID] = len(items)
		ids = append(ids, s.ID)
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	// one batched query for the whole page set, not one per poll
	ph, optArgs := inPlaceholders(ids)
	optRows, err := r.db.QueryContext(ctx, `
        SELECT o.id, o.poll_id, o.text, o.position, o.created_at,
               COALESCE(ov.votes_count, 0)
        FROM poll_options o
        LEFT JOIN (
            SELECT option_id, COUNT(*) AS votes_count FROM votes GROUP BY option_id
        ) ov ON ov.option_id = o.id
        WHERE o.poll_id IN (`+ph+`)
        ORDER BY o.poll_id, o.position
    `, optArgs...)
	if err != nil {
		return nil, fmt.Errorf("list polls: attach options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var or poll.OptionResult
		if err := optRows.Scan(&or.ID, &or.PollID, &or.Text, &or.Position, &or.CreatedAt, &or.VoteCount); err != nil {
			return nil, fmt.Errorf("list polls: attach options: scan: %w", err)
		}
		i := index[or.PollID]
		items[i].Options = append(items[i].Options, or)
		items[i].TotalVotes += or.VoteCount
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("list polls: attach options: %w", err)
	}
	return items, nil
}

func (r *PollRepo) listFromView(ctx context.Context, f poll.ListFilter) ([]poll.Summary, error) {
	where, args := listWhere(f)
	rows, err := r.db.QueryContext(ctx, `
        SELECT poll_id, title, description, status, created_by, created_at, updated_at,
               expires_at, allow_multiple_votes, is_anonymous, share_slug,
               option_id, option_text, option_position, option_created_at,
               option_votes, total_votes
        FROM poll_results`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list polls: view: %w", err)
	}
	defer rows.Close()

	// view rows come ordered by poll then option position; fold each run of
	// rows sharing a poll_id into one summary
	var items []poll.Summary
	index := map[int64]int{}
	for rows.Next() {
		var (
			s     poll.Summary
			optID sql.NullInt64
			text  sql.NullString
			pos   sql.NullInt32
			oc    sql.NullTime
			votes int64
		)
		err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.Status, &s.CreatedBy,
			&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt, &s.AllowMultipleVotes,
			&s.IsAnonymous, &s.ShareSlug,
			&optID, &text, &pos, &oc, &votes, &s.TotalVotes,
		)
		if err != nil {
			return nil, fmt.Errorf("list polls: view: scan: %w", err)
		}

		i, seen := index[s.ID]
		if !seen {
			s.Options = []poll.OptionResult{}
			i = len(items)
			index[s.ID] = i
			items = append(items, s)
		}
		if optID.Valid {
			items[i].Options = append(items[i].Options, poll.OptionResult{
				Option: poll.Option{
					ID:        optID.Int64,
					PollID:    s.ID,
					Text:      text.String,
					Position:  int(pos.Int32),
					CreatedAt: oc.Time,
				},
				VoteCount: votes,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list polls: view: %w", err)
	}
	return items, nil
}

// Update is scoped by id AND owner in one statement. Zero affected rows
// collapses "absent" and "someone else's poll" into a single error so the
// caller learns nothing about which it was.
func (r *PollRepo) Update(ctx context.Context, id, requesterID int64, upd poll.Update) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update poll: begin: %w", err)
	}
	defer tx.Rollback()

	sets := []string{"updated_at = now()"}
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.ClearExpiresAt {
		sets = append(sets, "expires_at = NULL")
	} else if upd.ExpiresAt != nil {
		set("expires_at", *upd.ExpiresAt)
	}
	if upd.AllowMultipleVotes != nil {
		set("allow_multiple_votes", *upd.AllowMultipleVotes)
	}
	if upd.IsAnonymous != nil {
		set("is_anonymous", *upd.IsAnonymous)
	}

	args = append(args, id, requesterID)
	query := fmt.Sprintf(`UPDATE polls SET %s WHERE id = $%d AND created_by = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update poll: rows affected: %w", err)
	}
	if n == 0 {
		return poll.ErrNotFoundOrNotPermitted
	}

	if upd.Options != nil {
		if err := replaceOptions(ctx, tx, id, upd.Options); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update poll: commit: %w", err)
	}
	return nil
}

// replaceOptions deletes every option row for the poll and reinserts the new
// set with recomputed positions. Votes referencing the deleted rows cascade
// away, so editing options on a poll that already has votes drops them.
// Only ids from the poll's current option set are preserved; anything else a
// client sends is treated as a fresh option so it cannot collide with other
// polls or with the identity sequence.
func replaceOptions(ctx context.Context, tx *sql.Tx, pollID int64, opts []poll.Option) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM poll_options WHERE poll_id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("update poll: current options: %w", err)
	}
	existing := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("update poll: current options: scan: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("update poll: current options: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE poll_id = $1`, pollID); err != nil {
		return fmt.Errorf("update poll: delete options: %w", err)
	}
	for i := range opts {
		opts[i].PollID = pollID
		if existing[opts[i].ID] {
			// carried over from the previous set: keep its identifier
			_, err := tx.ExecContext(ctx, `
                INSERT INTO poll_options (id, poll_id, text, position)
                VALUES ($1, $2, $3, $4)
            `, opts[i].ID, pollID, opts[i].Text, opts[i].Position)
			if err != nil {
				return fmt.Errorf("update poll: reinsert option %d: %w", opts[i].ID, err)
			}
			continue
		}
		opts[i].ID = 0
		err := tx.QueryRowContext(ctx, `
            INSERT INTO poll_options (poll_id, text, position)
            VALUES ($1, $2, $3)
            RETURNING id
        `, pollID, opts[i].Text, opts[i].Position).Scan(&opts[i].ID)
		if err != nil {
			return fmt.Errorf("update poll: insert option at position %d: %w", opts[i].Position, err)
		}
	}
	return nil
}

func (r *PollRepo) UpdateStatus(ctx context.Context, id, requesterID int64, status string) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE polls SET status = $1, updated_at = now()
        WHERE id = $2 AND created_by = $3
    `, status, id, requesterID)
	if err != nil {
		return fmt.Errorf("update poll status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update poll status: rows affected: %w", err)
	}
	if n == 0 {
		return poll.ErrNotFoundOrNotPermitted
	}
	return nil
}

func (r *PollRepo) Delete(ctx context.Context, id, requesterID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1 AND created_by = $2`, id, requesterID)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete poll: rows affected: %w", err)
	}
	if n == 0 {
		return poll.ErrNotFoundOrNotPermitted
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner, p *poll.Poll) error {
	return row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Status, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt,
		&p.AllowMultipleVotes, &p.IsAnonymous, &p.ShareSlug,
	)
}

func listWhere(f poll.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	// drafts are rows only their creator can see
	add("(status <> 'draft' OR created_by = $%d)", f.ViewerID)
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.TitleSearch != nil {
		add("title ILIKE $%d", "%"+*f.TitleSearch+"%")
	}
	if f.CreatedBy != nil {
		add("created_by = $%d", *f.CreatedBy)
	}
	if f.ExpiresBefore != nil {
		add("expires_at <= $%d", *f.ExpiresBefore)
	}
	if f.ExpiresAfter != nil {
		add("expires_at >= $%d", *f.ExpiresAfter)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func inPlaceholders(ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}

func sortSummaries(items []poll.Summary, sortBy string, asc bool) {
	less := func(i, j int) bool {
		switch sortBy {
		case "updated_at":
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		case "title":
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		case "total_votes":
			return items[i].TotalVotes < items[j].TotalVotes
		default:
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
	}
	if asc {
		sort.SliceStable(items, less)
	} else {
		sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
	}
}
