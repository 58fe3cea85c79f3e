package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"

	httpadapter "reclaim/internal/adapters/http"
	pg "reclaim/internal/adapters/postgres"
	"reclaim/internal/adapters/redisbus"
	"reclaim/internal/config"
	claimsvc "reclaim/internal/services/claims"
	lifecyclesvc "reclaim/internal/services/lifecycle"
	matchsvc "reclaim/internal/services/matching"
	"reclaim/internal/workers/ingestrunner"
	"reclaim/internal/workers/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for Postgres adapters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connect error: %v", err)
	}

	clock := clockwork.NewRealClock()
	items := db.Items()
	matches := db.Matches()
	claims := db.Claims()
	bus := redisbus.New(rdb)

	matcher, err := matchsvc.New(items, matches, bus, cfg.Matching, clock)
	if err != nil {
		log.Fatalf("matching engine: %v", err)
	}
	lifecycle := lifecyclesvc.New(matches, items, bus, cfg.Matching, clock)
	claiming := claimsvc.New(claims, matches, lifecycle, bus, cfg.Matching, clock)

	srv := httpadapter.New(lifecycle, claiming)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	consumer := redisbus.NewConsumer(rdb, items, db)
	go consumer.Run(ctx)

	if cfg.IngestWorkers > 0 {
		go ingestrunner.Run(ctx, db, ingestrunner.PassProcessor{Matcher: matcher}, cfg.IngestWorkers, 500*time.Millisecond)
		log.Printf("ingest workers started: %d", cfg.IngestWorkers)
	}
	go sweeper.Run(ctx, lifecycle, claiming, clock, cfg.SweepInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
