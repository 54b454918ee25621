package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pollhub/internal/domain/stats"
)

type StatsRepo struct {
	db *sql.DB
}

func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

func (r *StatsRepo) CountPollsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM polls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count polls by status: %w", err)
	}
	defer rows.Close()

	res := make(map[string]int64)
	for rows.Next() {
		var status string
		var c int64
		if err := rows.Scan(&status, &c); err != nil {
			return nil, fmt.Errorf("count polls by status: scan: %w", err)
		}
		res[status] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count polls by status: %w", err)
	}
	return res, nil
}

func (r *StatsRepo) CountVotes(ctx context.Context) (int64, error) {
	var c int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&c); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return c, nil
}

func (r *StatsRepo) CountPollsBy(ctx context.Context, creatorID int64) (int64, error) {
	var c int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM polls WHERE created_by = $1`, creatorID).Scan(&c)
	if err != nil {
		return 0, fmt.Errorf("count polls by creator: %w", err)
	}
	return c, nil
}

// TopPollBy reads the results view sorted by total descending and takes the
// first row; nil when the creator has no polls.
func (r *StatsRepo) TopPollBy(ctx context.Context, creatorID int64) (*stats.TopPoll, error) {
	top := &stats.TopPoll{}
	err := r.db.QueryRowContext(ctx, `
        SELECT poll_id, title, total_votes
        FROM poll_results
        WHERE created_by = $1
        ORDER BY total_votes DESC, poll_id
        LIMIT 1
    `, creatorID).Scan(&top.PollID, &top.Title, &top.TotalVotes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("top poll by creator: %w", err)
	}
	return top, nil
}
