package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pollhub/internal/domain/vote"
)

type VoteRepo struct {
	db *sql.DB
}

func NewVoteRepo(db *sql.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

// PollState returns nil without an error when the poll does not exist.
func (r *VoteRepo) PollState(ctx context.Context, pollID int64) (*vote.PollState, error) {
	st := &vote.PollState{}
	err := r.db.QueryRowContext(ctx, `
        SELECT status, allow_multiple_votes, is_anonymous, expires_at
        FROM polls WHERE id = $1
    `, pollID).Scan(&st.Status, &st.AllowMultipleVotes, &st.IsAnonymous, &st.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll state: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM poll_options WHERE poll_id = $1`, pollID)
	if err != nil {
		return nil, fmt.Errorf("poll state: options: %w", err)
	}
	defer rows.Close()

	st.OptionIDs = make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("poll state: options: scan: %w", err)
		}
		st.OptionIDs[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("poll state: options: %w", err)
	}
	return st, nil
}

// Cast inserts one vote row per option. With replace set, the voter's prior
// votes in the poll are deleted in the same transaction, which is what makes
// a single-choice re-vote land as exactly one row.
func (r *VoteRepo) Cast(ctx context.Context, pollID int64, optionIDs []int64, voter vote.Voter, replace bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cast vote: begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		query, arg := voterScope(voter)
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE poll_id = $1 AND `+query, pollID, arg); err != nil {
			return fmt.Errorf("cast vote: clear prior votes: %w", err)
		}
	}

	for _, optionID := range optionIDs {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO votes (poll_id, option_id, user_id, voter_ip)
            VALUES ($1, $2, $3, $4)
        `, pollID, optionID, voter.UserID, voter.IP)
		if err != nil {
			return fmt.Errorf("cast vote: insert for option %d: %w", optionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cast vote: commit: %w", err)
	}
	return nil
}

// Remove deletes the voter's votes in the poll, narrowed to one option when
// optionID is set. Returns the number of rows removed.
func (r *VoteRepo) Remove(ctx context.Context, pollID int64, voter vote.Voter, optionID *int64) (int64, error) {
	scope, arg := voterScope(voter)
	query := `DELETE FROM votes WHERE poll_id = $1 AND ` + scope
	args := []any{pollID, arg}
	if optionID != nil {
		query += " AND option_id = $3"
		args = append(args, *optionID)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove votes: rows affected: %w", err)
	}
	return n, nil
}

func (r *VoteRepo) CountByPoll(ctx context.Context, pollID int64) (map[int64]int64, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT option_id, COUNT(*)
        FROM votes
        WHERE poll_id = $1
        GROUP BY option_id
    `, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]int64)
	var total int64
	for rows.Next() {
		var optID int64
		var c int64
		if err := rows.Scan(&optID, &c); err != nil {
			return nil, 0, fmt.Errorf("count votes: scan: %w", err)
		}
		res[optID] = c
		total += c
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("count votes: %w", err)
	}
	return res, total, nil
}

// OptionsVotedBy satisfies poll.VoteSource for viewer annotations.
func (r *VoteRepo) OptionsVotedBy(ctx context.Context, pollID, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT DISTINCT option_id FROM votes
        WHERE poll_id = $1 AND user_id = $2
    `, pollID, userID)
	if err != nil {
		return nil, fmt.Errorf("voter options: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]bool)
	for rows.Next() {
		var optID int64
		if err := rows.Scan(&optID); err != nil {
			return nil, fmt.Errorf("voter options: scan: %w", err)
		}
		res[optID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("voter options: %w", err)
	}
	return res, nil
}

// voterScope picks the dedup key: user id when we have one, voter ip for
// anonymous polls.
func voterScope(voter vote.Voter) (string, any) {
	if voter.UserID != nil {
		return "user_id = $2", *voter.UserID
	}
	ip := ""
	if voter.IP != nil {
		ip = *voter.IP
	}
	return "user_id IS NULL AND voter_ip = $2", ip
}
