package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"cvswatch/internal/cvs"
	"cvswatch/internal/domain"
)

// maxScoreRequest bounds a scoring request body
const maxScoreRequest = 64 << 10

// CVSHandler serves the reference scoring formula over POST /compute_cvs
type CVSHandler struct{}

// NewCVSHandler creates a new scoring handler
func NewCVSHandler() *CVSHandler {
	return &CVSHandler{}
}

// Register adds the scoring routes to mux
func (h *CVSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /compute_cvs", h.ComputeCVS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
}

// scoreResponse is the scoring contract; Breakdown is only set with ?explain=true
type scoreResponse struct {
	CVS       float64        `json:"cvs"`
	Status    domain.Status  `json:"status"`
	Breakdown *cvs.Breakdown `json:"breakdown,omitempty"`
}

// ComputeCVS scores one node. The body is a node record; every feature
// attribute must be present and numeric, other fields are ignored.
func (h *CVSHandler) ComputeCVS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScoreRequest))
	if err != nil {
		writeError(w, "Failed to read request", err.Error(), http.StatusBadRequest)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, "Invalid JSON", err.Error(), http.StatusBadRequest)
		return
	}

	features, err := decodeFeatures(fields)
	if err != nil {
		writeError(w, "Invalid node features", err.Error(), http.StatusUnprocessableEntity)
		return
	}

	score, breakdown := cvs.Explain(features)
	resp := scoreResponse{CVS: score.Value, Status: score.Status}
	if r.URL.Query().Get("explain") == "true" {
		resp.Breakdown = &breakdown
	}

	writeJSON(w, resp, http.StatusOK)
}

// decodeFeatures extracts the feature attributes, reporting every missing
// or non-numeric one
func decodeFeatures(fields map[string]json.RawMessage) (domain.Features, error) {
	var (
		f        domain.Features
		problems []string
	)

	for _, a := range domain.Attributes {
		raw, ok := fields[string(a)]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: field required", a))
			continue
		}
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			problems = append(problems, fmt.Sprintf("%s: must be a number", a))
			continue
		}
		f.Set(a, *v)
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return domain.Features{}, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return f, nil
}
