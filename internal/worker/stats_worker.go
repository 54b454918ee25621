package worker

import (
	"context"
	"log/slog"
	"time"

	"pollhub/internal/domain/stats"
	"pollhub/internal/metrics"
)

// VoteEvent is emitted by the HTTP layer after a successful cast.
type VoteEvent struct {
	PollID    int64
	OptionIDs []int64
}

// StatsWorker consumes vote events off a buffered channel, feeds the vote
// counter, and periodically logs a snapshot of the global aggregates.
type StatsWorker struct {
	ch       <-chan VoteEvent
	stats    *stats.Service
	interval time.Duration
}

func NewStatsWorker(ch <-chan VoteEvent, statsSvc *stats.Service, interval time.Duration) *StatsWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsWorker{ch: ch, stats: statsSvc, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) {
	slog.Info("stats worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stats worker stopped")
			return
		case ev := <-w.ch:
			metrics.AddVotes(len(ev.OptionIDs))
			slog.Debug("vote event", "poll_id", ev.PollID, "options", len(ev.OptionIDs))
		case <-ticker.C:
			w.logSnapshot(ctx)
		}
	}
}

func (w *StatsWorker) logSnapshot(ctx context.Context) {
	snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g, err := w.stats.Global(snapCtx)
	if err != nil {
		slog.Warn("stats snapshot failed", "error", err)
		return
	}
	slog.Info("stats snapshot",
		"total_polls", g.TotalPolls,
		"total_votes", g.TotalVotes,
		"avg_votes_per_poll", g.AvgVotesPerPoll,
	)
}
