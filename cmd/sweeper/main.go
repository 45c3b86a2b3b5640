package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"reviewflow/config"
	"reviewflow/db"
	"reviewflow/escalation"
	"reviewflow/notify"
	"reviewflow/queue"
	"reviewflow/reviewer"
)

func main() {
	configPath := flag.String("config", "sweeper.yaml", "path to sweeper configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	engine := escalation.NewEngine(
		queue.NewRepository(pool),
		reviewer.NewRepository(pool),
		notify.NewOutboxDispatcher(pool),
		escalation.Config{
			Policy:        cfg.Policy(),
			SweepInterval: time.Duration(cfg.SweepInterval),
			SweepWorkers:  cfg.SweepWorkers,
		},
	)

	log.Printf("sweeper running: interval=%s workers=%d", time.Duration(cfg.SweepInterval), cfg.SweepWorkers)
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("sweep loop: %v", err)
	}
}
