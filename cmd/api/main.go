package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wekeza.org/internal/config"
	"wekeza.org/internal/events"
	"wekeza.org/internal/gateway"
	"wekeza.org/internal/goal"
	"wekeza.org/internal/httpapi"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/notify"
	"wekeza.org/internal/obs"
	"wekeza.org/internal/round"
	"wekeza.org/internal/store/pg"
	"wekeza.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	cfg := config.Load()

	// Persistence: Postgres when a DSN is configured, in-memory
	// otherwise (dev and tests). Every store follows the same switch so
	// the API and the scheduler see the same data when a DSN is set.
	var (
		wallet  ledger.Service
		probe   httpapi.ReadyProbe
		members memberDirectory
	)
	var (
		roundStore round.Store            = round.NewMemoryStore()
		goalStore  goal.Store             = goal.NewMemoryStore()
		wdStore    ledger.WithdrawalStore = ledger.NewMemoryWithdrawalStore()
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		wallet = store
		roundStore = pg.NewRoundStore(store.DB())
		goalStore = pg.NewGoalStore(store.DB())
		wdStore = pg.NewWithdrawalStore(store.DB())
		probe = httpapi.ReadyProbe{DB: store.DB()}
		members = memberDirectory{db: store.DB()}
	} else {
		log.Print("WEKEZA_PG_DSN not set, using in-memory stores")
		wallet = ledger.NewInMemory()
	}
	wallet = ledger.Instrument(wallet)

	var publisher events.Publisher = events.Noop{}
	if cfg.KafkaBroker != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	var disburser ledger.Disburser
	if cfg.GatewayURL != "" {
		disburser = gateway.NewClient(cfg.GatewayURL, cfg.GatewayTimeout)
	} else {
		log.Print("WEKEZA_GATEWAY_URL not set, disbursements will fail")
		disburser = unavailableDisburser{}
	}

	notifier := notify.LogNotifier{}
	verifier := kyc.AllowAll{}

	withdrawals := ledger.NewWithdrawalService(
		wallet, wdStore, disburser, members, verifier, notifier)
	rounds := round.NewService(roundStore, wallet, cfg.Rates, notifier, verifier)
	goals := goal.NewService(goalStore, wallet, cfg.Rates, notifier, verifier)

	api := httpapi.New(httpapi.Options{
		Ready:       probe,
		Version:     version,
		Wallet:      wallet,
		Withdrawals: withdrawals,
		Rounds:      rounds,
		Goals:       goals,
		Deposits:    gateway.NewDepositProcessor(wallet),
		Events:      publisher,
		Stream:      stream.New(),
		Credentials: members,
	})

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.Logging(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting wekeza-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
