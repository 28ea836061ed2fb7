package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"cvswatch/internal/codec"
	"cvswatch/internal/domain"
	"cvswatch/internal/syncloop"
	"cvswatch/internal/view"
)

// defaultHistoryLimit caps history responses when no limit is given
const defaultHistoryLimit = 100

// Dashboard is the service the dashboard API is served from
type Dashboard interface {
	Snapshot() *domain.Snapshot
	ListNodes(kind string) ([]domain.Node, error)
	GetNode(id string) (domain.Node, error)
	History(ctx context.Context, id string, limit int) ([]domain.ScorePoint, error)
	Map() view.Collection
	Analytics() view.Summary
	Devices() view.Panel
	Status() syncloop.Status
	Sync(ctx context.Context) (syncloop.TickReport, error)
}

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	svc       Dashboard
	exporters map[string]codec.Exporter
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc Dashboard) *DashboardHandler {
	return &DashboardHandler{
		svc:       svc,
		exporters: codec.Exporters(),
	}
}

// Register adds the dashboard routes to mux
func (h *DashboardHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/snapshot", h.GetSnapshot)
	mux.HandleFunc("GET /api/nodes", h.ListNodes)
	mux.HandleFunc("GET /api/nodes/{id}", h.GetNode)
	mux.HandleFunc("GET /api/nodes/{id}/history", h.GetHistory)
	mux.HandleFunc("GET /api/map", h.GetMap)
	mux.HandleFunc("GET /api/analytics", h.GetAnalytics)
	mux.HandleFunc("GET /api/devices", h.GetDevices)
	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/export/{format}", h.Export)
	mux.HandleFunc("POST /api/sync", h.TriggerSync)
	mux.HandleFunc("GET /health", h.Health)
}

// GetSnapshot returns the latest committed snapshot
func (h *DashboardHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Snapshot(), http.StatusOK)
}

// ListNodes returns all nodes, optionally filtered by ?kind=
func (h *DashboardHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.ListNodes(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, "Invalid kind", err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, nodes, http.StatusOK)
}

// GetNode returns a single node
func (h *DashboardHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Invalid node ID", "Node ID is required", http.StatusBadRequest)
		return
	}

	node, err := h.svc.GetNode(id)
	if err != nil {
		writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, node, http.StatusOK)
}

// GetHistory returns the score history of a node, oldest first
func (h *DashboardHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Invalid node ID", "Node ID is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	points, err := h.svc.History(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to get score history: %v", err)
		writeError(w, "Failed to get score history", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, points, http.StatusOK)
}

// GetMap returns the GeoJSON map source
func (h *DashboardHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, h.svc.Map(), http.StatusOK)
}

// GetAnalytics returns the analytics summary
func (h *DashboardHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Analytics(), http.StatusOK)
}

// GetDevices returns the device panel
func (h *DashboardHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Devices(), http.StatusOK)
}

// GetStatus returns the sync loop status
func (h *DashboardHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status(), http.StatusOK)
}

// Export downloads the latest snapshot as json, yaml or csv
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	exporter, ok := h.exporters[format]
	if !ok {
		writeError(w, "Unsupported format", "supported formats: "+strings.Join(codec.Formats(), ", "), http.StatusBadRequest)
		return
	}

	snap := h.svc.Snapshot()
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=cvswatch-v%d.%s", snap.Version, format))
	if err := exporter.Export(snap, w); err != nil {
		log.Printf("Failed to export %s: %v", format, err)
	}
}

// TriggerSync runs a sync tick and returns its report
func (h *DashboardHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Sync(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTickInFlight):
			writeError(w, "Sync in progress", err.Error(), http.StatusConflict)
		case errors.Is(err, syncloop.ErrStopped):
			writeError(w, "Sync stopped", err.Error(), http.StatusServiceUnavailable)
		default:
			log.Printf("Failed to trigger sync: %v", err)
			writeError(w, "Failed to trigger sync", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, report, http.StatusOK)
}

// Health reports liveness and whether the first tick has committed
func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"ready":   snap.Committed(),
		"version": snap.Version,
	}, http.StatusOK)
}
