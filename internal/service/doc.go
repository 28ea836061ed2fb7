// Package service implements the dashboard business logic for cvswatch.
//
// DashboardService sits between the HTTP handlers and the node store. It
// renders the Map, Analytics and Devices views from the latest committed
// snapshot, forwards manual sync requests to the sync loop and reads score
// history from the repository.
//
// # Commit Hooks
//
// The sync loop calls hooks after every commit. PersistHook saves the
// snapshot and prunes old history. PublishHook emits a snapshot_committed
// event carrying all three views of the new version, followed by a
// tick_completed event with the tick report.
//
// # Event System
//
// EventBus fans events out to subscribers (the SSE/WebSocket hub and the
// Redis relay). Slow subscribers miss events rather than block a commit.
package service
