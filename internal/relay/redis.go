// Package relay republishes committed snapshots to Redis.
//
// Every commit is published on a pub/sub channel and written to a "latest"
// key with a TTL, so other processes can follow the dashboard without
// polling it. A consumer that starts late reads the latest key first.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"cvswatch/internal/domain"
	"cvswatch/internal/syncloop"
)

// publishTimeout bounds the Redis round trips of one commit
const publishTimeout = 2 * time.Second

// Client is the subset of *redis.Client the relay uses
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Options names the channel and key the relay writes to
type Options struct {
	Channel   string
	LatestKey string
	LatestTTL time.Duration // zero keeps the key forever
}

// Message is what subscribers receive for each commit
type Message struct {
	Version     uint64               `json:"version"`
	CommittedAt time.Time            `json:"committed_at"`
	Snapshot    *domain.Snapshot     `json:"snapshot"`
	Tick        *syncloop.TickReport `json:"tick,omitempty"`
}

// Relay publishes snapshots to Redis
type Relay struct {
	client Client
	opts   Options
}

// New wraps an existing client
func New(client Client, opts Options) *Relay {
	return &Relay{client: client, opts: opts}
}

// Dial connects to the Redis server at url (redis://host:port/db) and
// verifies it answers a ping
func Dial(ctx context.Context, url string, opts Options) (*Relay, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(client, opts), nil
}

// Publish sends snap on the channel and stores it under the latest key
func (r *Relay) Publish(ctx context.Context, snap *domain.Snapshot, report *syncloop.TickReport) error {
	if !snap.Committed() {
		return nil
	}

	data, err := json.Marshal(Message{
		Version:     snap.Version,
		CommittedAt: snap.CommittedAt,
		Snapshot:    snap,
		Tick:        report,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := r.client.Publish(ctx, r.opts.Channel, data).Err(); err != nil {
		return fmt.Errorf("publish snapshot %d: %w", snap.Version, err)
	}
	if r.opts.LatestKey != "" {
		if err := r.client.Set(ctx, r.opts.LatestKey, data, r.opts.LatestTTL).Err(); err != nil {
			return fmt.Errorf("store latest snapshot %d: %w", snap.Version, err)
		}
	}
	return nil
}

// Hook is a sync loop commit hook. It outlives the tick's context so a
// commit that raced shutdown is still relayed.
func (r *Relay) Hook(ctx context.Context, snap *domain.Snapshot, report syncloop.TickReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.Publish(ctx, snap, &report); err != nil {
		log.Printf("Failed to relay snapshot: %v", err)
	}
}

// Latest reads the last relayed message. It returns nil when the key is
// missing or expired.
func (r *Relay) Latest(ctx context.Context) (*Message, error) {
	if r.opts.LatestKey == "" {
		return nil, nil
	}

	data, err := r.client.Get(ctx, r.opts.LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode latest snapshot: %w", err)
	}
	return &msg, nil
}

// Close closes the Redis client
func (r *Relay) Close() error {
	return r.client.Close()
}
