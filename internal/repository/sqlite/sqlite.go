package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cvswatch/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository. ":memory:" opens a private
// in-memory database.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		features JSON,
		cvs REAL,
		status TEXT,
		scored_at INTEGER,
		last_update INTEGER,
		version INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS score_history (
		node_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		cvs REAL NOT NULL,
		status TEXT NOT NULL,
		scored_at INTEGER NOT NULL,
		UNIQUE (node_id, scored_at)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		version INTEGER PRIMARY KEY,
		committed_at INTEGER NOT NULL,
		node_count INTEGER NOT NULL,
		scored_count INTEGER NOT NULL,
		devices JSON
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
	CREATE INDEX IF NOT EXISTS idx_score_history_node ON score_history(node_id, scored_at);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}

	return r.addColumnIfNotExists("nodes", "updated_at", "DATETIME")
}

// addColumnIfNotExists adds a column to databases created before it existed
func (r *Repository) addColumnIfNotExists(table, column, definition string) error {
	rows, err := r.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to read %s schema: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan %s schema: %w", table, err)
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = r.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// SaveSnapshot persists a committed snapshot: nodes are upserted, nodes no
// longer present are removed, and every scored node gets a history point.
// A history point with the same node and scored_at is written once.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (`+nodeColumns+`, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			lon = excluded.lon,
			lat = excluded.lat,
			features = excluded.features,
			cvs = excluded.cvs,
			status = excluded.status,
			scored_at = excluded.scored_at,
			last_update = excluded.last_update,
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node statement: %w", err)
	}
	defer nodeStmt.Close()

	historyStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO score_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history statement: %w", err)
	}
	defer historyStmt.Close()

	for _, node := range snap.Nodes {
		args, err := nodeInsertArgs(node, snap.Version)
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", node.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
		}

		if !node.Scored() || node.ScoredAt == nil {
			continue
		}
		if _, err := historyStmt.ExecContext(ctx,
			node.ID, int64(snap.Version), *node.Score, string(node.Status), node.ScoredAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert history for %s: %w", node.ID, err)
		}
	}

	// Every node of this snapshot was just written with its version
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE version <> ?`, int64(snap.Version)); err != nil {
		return fmt.Errorf("failed to remove stale nodes: %w", err)
	}

	devices, err := marshalToNull(snap.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (version, committed_at, node_count, scored_count, devices)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			committed_at = excluded.committed_at,
			node_count = excluded.node_count,
			scored_count = excluded.scored_count,
			devices = excluded.devices
	`, int64(snap.Version), snap.CommittedAt.UnixNano(), len(snap.Nodes), snap.ScoredCount(), devices); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}

	return tx.Commit()
}

// ListNodes returns every persisted node ordered by id
func (r *Repository) ListNodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		var row nodeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		node, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", row.ID, err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// GetNode returns one persisted node or domain.ErrNodeNotFound
func (r *Repository) GetNode(ctx context.Context, id string) (domain.Node, error) {
	var row nodeRow
	err := r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id).Scan(row.scanArgs()...)
	if err == sql.ErrNoRows {
		return domain.Node{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("failed to query node: %w", err)
	}

	return row.toDomain()
}

// LatestSnapshot rebuilds the most recently persisted snapshot, or returns
// nil if nothing has been saved yet
func (r *Repository) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	var (
		version     int64
		committedAt int64
		devices     sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT version, committed_at, devices
		FROM snapshots ORDER BY version DESC LIMIT 1
	`).Scan(&version, &committedAt, &devices)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	nodes, err := r.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	snap := &domain.Snapshot{
		Version:     uint64(version),
		Nodes:       nodes,
		CommittedAt: time.Unix(0, committedAt).UTC(),
	}
	if err := unmarshalJSONField(devices, &snap.Devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}

	return snap, nil
}

// ScoreHistory returns up to limit of the most recent score points for a
// node, oldest first. limit <= 0 returns the full history.
func (r *Repository) ScoreHistory(ctx context.Context, nodeID string, limit int) ([]domain.ScorePoint, error) {
	query := `SELECT ` + historyColumns + ` FROM score_history WHERE node_id = ? ORDER BY scored_at DESC`
	args := []interface{}{nodeID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	var points []domain.ScorePoint
	for rows.Next() {
		var row historyRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan score point: %w", err)
		}
		points = append(points, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score history: %w", err)
	}

	// Reverse into chronological order
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// PruneHistory deletes score points scored before the cutoff and returns
// how many were removed
func (r *Repository) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM score_history WHERE scored_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune score history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
