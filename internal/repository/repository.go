package repository

import (
	"context"
	"time"

	"cvswatch/internal/domain"
)

// Repository defines the interface for snapshot and score history persistence
type Repository interface {
	// Write operations
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	PruneHistory(ctx context.Context, before time.Time) (int64, error)

	// Read operations
	ListNodes(ctx context.Context) ([]domain.Node, error)
	GetNode(ctx context.Context, id string) (domain.Node, error)
	LatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
	ScoreHistory(ctx context.Context, nodeID string, limit int) ([]domain.ScorePoint, error)

	// Close releases resources
	Close() error
}
