// Package repository defines the persistence interface for cvswatch.
//
// The sync loop keeps the authoritative node set in memory. The repository
// records each committed snapshot so the dashboard can show score history
// and so a restarted server can show the last known scores before its first
// tick completes. The implementation is in the sqlite subpackage.
//
// # Tables
//
//   - nodes: the node set of the latest saved snapshot, one row per node
//   - score_history: one row per node and scoring time
//   - snapshots: version, commit time and device readings per snapshot
//
// # Schema Migration
//
// The sqlite repository migrates the schema on startup, adding new columns
// as needed while preserving existing data.
package repository
