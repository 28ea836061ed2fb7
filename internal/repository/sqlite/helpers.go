package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cvswatch/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// Times are stored as unix nanoseconds so equality survives a round trip
// regardless of the location the value was created in.

// nullToTimePtr converts a nullable unix-nano column to *time.Time
func nullToTimePtr(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := time.Unix(0, ni.Int64).UTC()
	return &t
}

// timePtrToNull converts *time.Time to a nullable unix-nano column
func timePtrToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// nullToFloatPtr converts sql.NullFloat64 to *float64
func nullToFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// floatPtrToNull converts *float64 to sql.NullFloat64
func floatPtrToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string.
// Nil values and empty slices are stored as NULL.
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if d, ok := v.([]domain.DeviceReading); ok && len(d) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the nodes table:
// 1. Add field to nodeRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update nodeColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.Node
// 5. Update nodeInsertArgs() and the upsert statement
// 6. Add migration in sqlite.go migrate() using addColumnIfNotExists()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - nodeColumns constant
// - scanArgs() return slice
// - All SELECT queries using nodeColumns

// ============================================================================
// Node Row Scanner
// ============================================================================

// nodeRow holds all columns from a node query for scanning
type nodeRow struct {
	ID           string
	Kind         string
	Name         string
	Lon          float64
	Lat          float64
	FeaturesJSON sql.NullString
	CVS          sql.NullFloat64
	Status       sql.NullString
	ScoredAt     sql.NullInt64
	LastUpdate   sql.NullInt64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match nodeColumns order exactly:
// id, kind, name, lon, lat, features, cvs, status, scored_at, last_update
func (r *nodeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,           // 1
		&r.Kind,         // 2
		&r.Name,         // 3
		&r.Lon,          // 4
		&r.Lat,          // 5
		&r.FeaturesJSON, // 6
		&r.CVS,          // 7
		&r.Status,       // 8
		&r.ScoredAt,     // 9
		&r.LastUpdate,   // 10
	}
}

// toDomain converts the scanned row to a domain.Node
func (r *nodeRow) toDomain() (domain.Node, error) {
	node := domain.Node{
		ID:          r.ID,
		Kind:        domain.NodeKind(r.Kind),
		Name:        r.Name,
		Coordinates: domain.NewCoordinates(r.Lon, r.Lat),
		Score:       nullToFloatPtr(r.CVS),
		Status:      domain.Status(nullToString(r.Status)),
		ScoredAt:    nullToTimePtr(r.ScoredAt),
		LastUpdate:  nullToTimePtr(r.LastUpdate),
	}

	if err := unmarshalJSONField(r.FeaturesJSON, &node.Features); err != nil {
		return domain.Node{}, fmt.Errorf("unmarshal features: %w", err)
	}

	return node, nil
}

// nodeColumns returns the SELECT column list for node queries
const nodeColumns = `id, kind, name, lon, lat, features, cvs, status, scored_at, last_update`

// ============================================================================
// Node Write Helpers
// ============================================================================

// nodeInsertArgs prepares arguments for node INSERT/UPSERT
// Returns: id, kind, name, lon, lat, features, cvs, status, scored_at, last_update, version
func nodeInsertArgs(node domain.Node, version uint64) ([]interface{}, error) {
	featuresJSON, err := marshalToNull(node.Features)
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}

	return []interface{}{
		node.ID,
		string(node.Kind),
		node.Name,
		node.Coordinates.Lon(),
		node.Coordinates.Lat(),
		featuresJSON,
		floatPtrToNull(node.Score),
		stringToNull(string(node.Status)),
		timePtrToNull(node.ScoredAt),
		timePtrToNull(node.LastUpdate),
		int64(version),
	}, nil
}

// ============================================================================
// Score History Row Scanner
// ============================================================================

// historyRow holds all columns from a score_history query for scanning
type historyRow struct {
	NodeID   string
	Version  int64
	CVS      float64
	Status   string
	ScoredAt int64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match historyColumns order exactly:
// node_id, version, cvs, status, scored_at
func (r *historyRow) scanArgs() []interface{} {
	return []interface{}{
		&r.NodeID,   // 1
		&r.Version,  // 2
		&r.CVS,      // 3
		&r.Status,   // 4
		&r.ScoredAt, // 5
	}
}

// toDomain converts the scanned row to a domain.ScorePoint
func (r *historyRow) toDomain() domain.ScorePoint {
	return domain.ScorePoint{
		NodeID:   r.NodeID,
		Version:  uint64(r.Version),
		Value:    r.CVS,
		Status:   domain.Status(r.Status),
		ScoredAt: time.Unix(0, r.ScoredAt).UTC(),
	}
}

// historyColumns returns the SELECT column list for history queries
const historyColumns = `node_id, version, cvs, status, scored_at`
