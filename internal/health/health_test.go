package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_Endpoints(t *testing.T) {
	tests := []struct {
		name        string
		feedsOK     bool
		wantHealth  int
		wantReady   int
		wantOverall string
	}{
		{"healthy", true, http.StatusOK, http.StatusOK, "ok"},
		{"degraded", false, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(0, "v1.2.3", nil)
			s.RegisterCheck("config", func(context.Context) (bool, string) { return true, "" })
			s.RegisterCheck("feeds", func(context.Context) (bool, string) { return tt.feedsOK, "2/2 active" })
			h := s.Handler()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantHealth {
				t.Errorf("/health status = %d, want %d", rec.Code, tt.wantHealth)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var status Status
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if status.Status != tt.wantOverall || status.Version != "v1.2.3" {
				t.Errorf("status = %+v", status)
			}
			if c := status.Checks["feeds"]; c.Healthy != tt.feedsOK || c.Message != "2/2 active" {
				t.Errorf("feeds check = %+v", c)
			}

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.wantReady {
				t.Errorf("/ready status = %d, want %d", rec.Code, tt.wantReady)
			}

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
			if rec.Code != http.StatusOK || rec.Body.String() != "alive" {
				t.Errorf("/live = %d %q", rec.Code, rec.Body.String())
			}
		})
	}
}
