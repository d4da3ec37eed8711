package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/terraclaim/internal/api"
	"github.com/banshee-data/terraclaim/internal/claim"
	"github.com/banshee-data/terraclaim/internal/config"
	"github.com/banshee-data/terraclaim/internal/monitoring"
	"github.com/banshee-data/terraclaim/internal/territory"
	"github.com/banshee-data/terraclaim/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "territories.db", "Path to the territory database")
	tuningFile = flag.String("config", "", "Path to a JSON tuning file (defaults apply when empty)")
	devMode    = flag.Bool("dev", false, "Run in dev mode")
)

func main() {
	// A .env file is optional; flags and defaults cover everything.
	_ = godotenv.Load()
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("terraclaim %s starting", version.Version)

	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *tuningFile)
	}
	sessionCfg := claim.SessionConfigFromTuning(tuning)

	db, err := territory.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open territory database: %v", err)
	}
	defer db.Close()

	metrics, err := monitoring.NewEngineCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	manager := claim.NewManager(sessionCfg, db, nil, metrics)
	defer manager.Shutdown()

	exploreCfg := claim.DefaultExploreConfig()
	exploreCfg.Filter = sessionCfg.Filter
	exploreCfg.Guard.SevereKmh = sessionCfg.Guard.SevereKmh
	exploreCfg.Guard.Grace = sessionCfg.Guard.Grace

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes: tailSQL console and database backups,
		// only exposed in dev mode (production fronts this with Tailscale)
		if *devMode {
			if err := db.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach admin routes: %v", err)
			}
		}

		apiMux := api.NewServer(manager, db, sessionCfg, exploreCfg, nil, metrics).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))
		mux.Handle("/metrics", metrics.Handler())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
