package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wekeza.org/internal/config"
	"wekeza.org/internal/goal"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/notify"
	"wekeza.org/internal/obs"
	"wekeza.org/internal/round"
	"wekeza.org/internal/sched"
	"wekeza.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		once  = flag.Bool("once", false, "run a single batch and exit")
		every = flag.Duration("every", 24*time.Hour, "interval between batch runs")
	)
	flag.Parse()

	obs.Init()
	cfg := config.Load()

	// The batch is only useful against the same stores the API writes,
	// so a missing DSN falls back to empty in-memory stores and the run
	// is a no-op.
	var wallet ledger.Service
	var roundStore round.Store = round.NewMemoryStore()
	var goalStore goal.Store = goal.NewMemoryStore()
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		wallet = store
		roundStore = pg.NewRoundStore(store.DB())
		goalStore = pg.NewGoalStore(store.DB())
	} else {
		log.Print("WEKEZA_PG_DSN not set, using in-memory stores")
		wallet = ledger.NewInMemory()
	}
	wallet = ledger.Instrument(wallet)

	notifier := notify.LogNotifier{}
	verifier := kyc.AllowAll{}
	rounds := round.NewService(roundStore, wallet, cfg.Rates, notifier, verifier)
	goals := goal.NewService(goalStore, wallet, cfg.Rates, notifier, verifier)
	runner := sched.NewRunner(rounds, goals)

	run := func(ctx context.Context) {
		sum := runner.Run(ctx)
		out, _ := json.Marshal(sum)
		log.Printf("batch complete: %s", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		run(ctx)
		return
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	run(ctx)
	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-stop:
			log.Println("Stopped")
			return
		}
	}
}
