package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opticonnect.org/internal/authz"
	"opticonnect.org/internal/httpapi"
	"opticonnect.org/internal/obs"
	"opticonnect.org/internal/region"
	"opticonnect.org/internal/store/memstore"
	"opticonnect.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is configured, otherwise an in-memory store
	// for local runs. The memory store starts with no regions, so every
	// coordinate check falls back open until boundaries are loaded.
	var (
		store   authz.Store
		probe   httpapi.ReadyProbe
		regions []region.Region
	)
	if dsn := os.Getenv("OPTICONNECT_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		regions, err = pgStore.ListRegions(ctx)
		cancel()
		if err != nil {
			log.Fatalf("load regions: %v", err)
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Printf("OPTICONNECT_PG_DSN not set, using in-memory store")
		store = memstore.New()
	}

	directory := region.NewDirectory(regions...)

	ledger, err := authz.NewLedger(store.Grants())
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	workflow, err := authz.NewWorkflow(store.Requests())
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}
	registry, err := authz.NewRegistry(store.Groups(), store.Profiles())
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Version:    version,
		ReadyProbe: probe,
		Store:      store,
		Engine:     authz.NewEngine(directory),
		Ledger:     ledger,
		Workflow:   workflow,
		Registry:   registry,
	})

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting opticonnect-authz %s on %s (%d regions)", version, srv.Addr, len(regions))

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
