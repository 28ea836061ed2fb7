// Package app assembles the dashboard from configuration: the node store,
// the scoring client, the device gateway, the sync loop and its commit
// hooks. cmd/server and cmd/dashboard share it.
package app

import (
	"context"
	"fmt"
	"log"

	"cvswatch/internal/config"
	"cvswatch/internal/discovery"
	"cvswatch/internal/relay"
	"cvswatch/internal/repository/sqlite"
	"cvswatch/internal/scoring"
	"cvswatch/internal/service"
	"cvswatch/internal/store"
	"cvswatch/internal/syncloop"
)

// App holds the wired components
type App struct {
	Config   *config.Config
	Store    *store.Store
	Loop     *syncloop.Loop
	Service  *service.DashboardService
	EventBus *service.EventBus
	Gateway  discovery.Gateway

	repo  *sqlite.Repository
	relay *relay.Relay
}

// New builds the application. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	seeds, err := cfg.SeedNodes()
	if err != nil {
		return nil, fmt.Errorf("seed nodes: %w", err)
	}
	sensors, err := cfg.SensorClasses()
	if err != nil {
		return nil, fmt.Errorf("sensor classes: %w", err)
	}
	policy, err := discovery.ParsePolicy(cfg.Discovery.OnDisconnect)
	if err != nil {
		return nil, err
	}

	st, err := store.New(seeds)
	if err != nil {
		return nil, fmt.Errorf("create node store: %w", err)
	}

	a := &App{
		Config:   cfg,
		Store:    st,
		EventBus: service.NewEventBus(),
		Gateway:  NewGateway(cfg),
	}

	a.repo, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Printf("Database opened: %s", cfg.Database.Path)

	if cfg.Redis.URL != "" {
		a.relay, err = relay.Dial(ctx, cfg.Redis.URL, relay.Options{
			Channel:   cfg.Redis.Channel,
			LatestKey: cfg.Redis.LatestKey,
			LatestTTL: cfg.Redis.LatestTTL.Duration(),
		})
		if err != nil {
			log.Printf("Warning: Redis relay disabled: %v", err)
			a.relay = nil
		} else {
			log.Printf("Relaying snapshots to Redis channel %s", cfg.Redis.Channel)
		}
	}

	scorer := scoring.NewClient(cfg.Scoring.URL, cfg.Scoring.Timeout.Duration())
	poller := discovery.NewPoller(a.Gateway, sensors, policy)

	a.Loop = syncloop.New(st, poller, scorer, syncloop.Options{
		Interval:      cfg.Sync.Interval.Duration(),
		MaxConcurrent: cfg.Scoring.MaxConcurrent,
	})

	a.Service = service.NewDashboardService(st, a.Loop, a.repo, a.EventBus, service.Options{
		OfflineAfter:  cfg.Analytics.OfflineAfter.Duration(),
		HistoryRetain: cfg.Database.HistoryRetain.Duration(),
	})

	a.Loop.OnCommit(a.Service.PersistHook())
	a.Loop.OnCommit(a.Service.PublishHook())
	if a.relay != nil {
		a.Loop.OnCommit(a.relay.Hook)
	}

	return a, nil
}

// NewGateway selects the device gateway transport from configuration
func NewGateway(cfg *config.Config) discovery.Gateway {
	if cfg.Gateway.Transport == config.TransportMQTT {
		return discovery.NewMQTTGateway(discovery.MQTTOptions{
			Broker:      cfg.Gateway.MQTT.Broker,
			TopicPrefix: cfg.Gateway.MQTT.TopicPrefix,
			ClientID:    cfg.Gateway.MQTT.ClientID,
			StaleAfter:  cfg.Gateway.MQTT.StaleAfter.Duration(),
		})
	}
	return discovery.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Timeout.Duration())
}

// Start connects the gateway, continues the persisted snapshot versions,
// restores persisted scores and runs tick zero before starting the ticker
func (a *App) Start(ctx context.Context) error {
	if err := a.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("start gateway %s: %w", a.Gateway.Name(), err)
	}
	log.Printf("Device gateway: %s", a.Gateway.Name())

	if v, err := a.Service.Resume(ctx); err != nil {
		log.Printf("Failed to read persisted snapshot version: %v", err)
	} else if v > 0 {
		log.Printf("Resuming after persisted snapshot %d", v)
	}

	if a.Config.Database.RestoreOnStart {
		a.restore(ctx)
	}

	return a.Loop.Start(ctx)
}

// restore overlays the last known scores so views are populated before the
// first tick commits. The database wins; the relay's latest snapshot is the
// fallback.
func (a *App) restore(ctx context.Context) {
	n, err := a.Service.Restore(ctx)
	if err != nil {
		log.Printf("Failed to restore persisted scores: %v", err)
	}
	if n > 0 {
		log.Printf("Restored %d scores from the database", n)
		return
	}
	if a.relay == nil {
		return
	}

	msg, err := a.relay.Latest(ctx)
	if err != nil {
		log.Printf("Failed to read latest relayed snapshot: %v", err)
		return
	}
	if msg == nil || msg.Snapshot == nil {
		return
	}
	if n := a.Store.Restore(msg.Snapshot.Nodes); n > 0 {
		log.Printf("Restored %d scores from relayed snapshot %d", n, msg.Version)
	}
}

// Shutdown stops the sync loop, runs drain while the database is still open,
// then closes the app. cmd/server drains its HTTP server here.
func (a *App) Shutdown(ctx context.Context, drain func(context.Context) error) error {
	a.Loop.Stop()
	err := drain(ctx)
	a.Close()
	return err
}

// Close stops the loop and releases the gateway, relay and database
func (a *App) Close() {
	a.Loop.Stop()

	if err := a.Gateway.Stop(); err != nil {
		log.Printf("Gateway shutdown error: %v", err)
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			log.Printf("Redis relay shutdown error: %v", err)
		}
	}
	if err := a.repo.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
}
