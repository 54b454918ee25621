package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "pollhub/docs"
	"pollhub/internal/config"
	"pollhub/internal/domain/poll"
	"pollhub/internal/domain/stats"
	"pollhub/internal/domain/user"
	"pollhub/internal/domain/vote"
	api "pollhub/internal/http"
	"pollhub/internal/metrics"
	"pollhub/internal/platform/database"
	jwtpkg "pollhub/internal/platform/jwt"
	"pollhub/internal/repository/postgres"
	"pollhub/internal/worker"
)

// @title           Pollhub API
// @version         1.0
// @description     Poll creation, sharing, voting and aggregated results
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	metrics.Register()

	db, err := database.NewPostgres(cfg.DB_DSN)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	if err := postgres.ApplySchema(context.Background(), db); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	userRepo := postgres.NewUserRepo(db)
	pollRepo := postgres.NewPollRepo(db)
	voteRepo := postgres.NewVoteRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	userSvc := user.NewService(userRepo)
	pollSvc := poll.NewService(pollRepo, voteRepo)
	voteSvc := vote.NewService(voteRepo)
	statsSvc := stats.NewService(statsRepo)

	jwtMgr := jwtpkg.NewManager(cfg.JWTSecret, "pollhub")

	voteCh := make(chan worker.VoteEvent, 100)
	statsWorker := worker.NewStatsWorker(voteCh, statsSvc, 5*time.Minute)

	router := api.NewRouter(userSvc, pollSvc, voteSvc, statsSvc, jwtMgr, cfg.JWTTTL, voteCh, db)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go statsWorker.Run(ctx)

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}

	slog.Info("server stopped")
}
