// Package handler implements the HTTP handlers for the dashboard API and the
// reference scoring service.
//
// # Handlers
//
// DashboardHandler serves the committed snapshot and its views: the node
// list, per-node score history, the GeoJSON map source, analytics, the device
// panel, sync loop status, and a manual sync trigger.
//
// CVSHandler serves POST /compute_cvs with the reference formula so the
// dashboard can run against a local scorer.
//
// Middleware provides request logging, panic recovery, and CORS support.
//
// # Response Format
//
// Success responses return JSON data. The map source is served as
// application/geo+json. Error responses return JSON with {error, details}.
//
// # Status Codes
//
// Unknown nodes return 404. A sync request while a tick is in flight
// returns 409, and 503 once the loop has stopped. Scoring requests with
// missing or non-numeric attributes return 422.
package handler
