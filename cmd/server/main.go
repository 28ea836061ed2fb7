package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cvswatch/internal/app"
	"cvswatch/internal/config"
	"cvswatch/internal/handler"
	"cvswatch/internal/hub"
	"cvswatch/internal/service"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting cvswatch server...")

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if path != "" {
		log.Printf("Config loaded: %s", path)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	log.Printf("Configuration:\n%s", cfg.Summary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	// Initialize event hub; new clients get the current snapshot first
	eventHub := hub.New()
	eventHub.SetGreeting(func() interface{} {
		return service.Event{
			Type:    service.EventSnapshotCommitted,
			Payload: a.Service.Payload(a.Store.Snapshot()),
		}
	})
	go eventHub.Run(ctx)

	// Connect event bus to hub
	eventChan := make(chan service.Event, 100)
	a.EventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			eventHub.Broadcast(event)
		}
	}()

	// Tick zero runs before the listener starts
	if err := a.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync loop: %v", err)
	}

	// Setup routes
	mux := http.NewServeMux()
	handler.NewDashboardHandler(a.Service).Register(mux)
	mux.Handle("GET /events", eventHub)
	mux.HandleFunc("GET /ws", eventHub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server. Streams stay open, so there is no write timeout.
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// The loop stops first; the database closes after requests drain
	err = a.Shutdown(shutdownCtx, func(ctx context.Context) error {
		// Stopping the hub ends the event streams
		cancel()
		return server.Shutdown(ctx)
	})
	if err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	a.EventBus.Unsubscribe(eventChan)
	close(eventChan)

	log.Println("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
