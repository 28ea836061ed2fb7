package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvswatch/internal/domain"
)

func testNode() domain.Node {
	return domain.NewConfiguredNode("1", "Node 1", domain.NewCoordinates(-121.987, 37.55), domain.Features{
		Temperature: 0.7, Humidity: 0.4, HazardProb: 0.6,
	})
}

func TestNewClientEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "http://localhost:8000/compute_cvs"},
		{"http://localhost:8000/", "http://localhost:8000/compute_cvs"},
		{"http://localhost:8000/compute_cvs", "http://localhost:8000/compute_cvs"},
	}

	for _, tt := range tests {
		if got := NewClient(tt.base, time.Second).Endpoint(); got != tt.want {
			t.Errorf("NewClient(%q).Endpoint() = %s, want %s", tt.base, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ComputePath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"cvs": 0.75, "status": "yellow"}`))
	}))
	defer srv.Close()

	score, err := NewClient(srv.URL, time.Second).Score(context.Background(), testNode())
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	if score.Value != 0.75 || score.Status != domain.StatusYellow {
		t.Errorf("unexpected score %+v", score)
	}

	// The request body is the full node with flattened features
	if received["id"] != "1" || received["temperature"] != 0.7 || received["hazard_prob"] != 0.6 {
		t.Errorf("unexpected request body %v", received)
	}
	if _, ok := received["drainage_missing"]; !ok {
		t.Error("expected every feature attribute in the request body")
	}
}

func TestScoreFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"cvs":`))
		}},
		{"missing cvs", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "green"}`))
		}},
		{"cvs out of range", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"cvs": 1.5, "status": "red"}`))
		}},
		{"unknown status", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"cvs": 0.2, "status": "purple"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Score(context.Background(), testNode())
			if !errors.Is(err, domain.ErrScoringUnavailable) {
				t.Errorf("expected ErrScoringUnavailable, got %v", err)
			}
		})
	}
}

func TestScoreTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, 50*time.Millisecond).Score(context.Background(), testNode())
	if !errors.Is(err, domain.ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
}

func TestScoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Score(context.Background(), testNode())
	if !errors.Is(err, domain.ErrScoringUnavailable) {
		t.Errorf("expected ErrScoringUnavailable, got %v", err)
	}
}
