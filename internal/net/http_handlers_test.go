package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

func newHandler(t *testing.T) (http.Handler, *room.Room, *telemetry.Counters) {
	t.Helper()
	reg := prometheus.NewRegistry()
	counters := telemetry.NewCounters()
	metrics := telemetry.Fanout(counters, telemetry.NewRecorder(reg))
	r := room.New(room.DefaultConfig(), room.Deps{Metrics: metrics})
	return NewHTTPHandler(HTTPHandlerConfig{Room: r, Registry: reg, Counters: counters}), r, counters
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	h, _, _ := newHandler(t)
	resp := get(t, h, "/health")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("expected ok, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestRoomReportsMembers(t *testing.T) {
	h, r, _ := newHandler(t)
	if _, err := r.Join(context.Background(), "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	resp := get(t, h, "/room")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var info room.Info
	if err := json.Unmarshal(resp.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to decode room payload: %v", err)
	}
	if info.Coordinator != 1 || len(info.Members) != 1 || info.Members[0].Name != "alice" {
		t.Fatalf("unexpected room payload %+v", info)
	}

	req := httptest.NewRequest(http.MethodPost, "/room", nil)
	post := httptest.NewRecorder()
	h.ServeHTTP(post, req)
	if post.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", post.Code)
	}
}

func TestDiagnosticsIncludeCounters(t *testing.T) {
	h, r, _ := newHandler(t)
	if _, err := r.Join(context.Background(), "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	resp := get(t, h, "/diagnostics")
	var payload struct {
		Status   string            `json:"status"`
		Counters map[string]uint64 `json:"counters"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if payload.Status != "ok" || payload.Counters[telemetry.MetricRoomMembers] != 1 {
		t.Fatalf("unexpected diagnostics %+v", payload)
	}
}

func TestMetricsExposition(t *testing.T) {
	h, r, _ := newHandler(t)
	if _, err := r.Join(context.Background(), "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	resp := get(t, h, "/metrics")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "chaos_room_members 1") {
		t.Fatalf("expected room gauge in exposition, got %s", resp.Body.String())
	}
}

func TestProtocolSchema(t *testing.T) {
	h, _, _ := newHandler(t)
	resp := get(t, h, "/protocol/schema")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var schema map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &schema); err != nil {
		t.Fatalf("failed to decode schema: %v", err)
	}
	if _, ok := schema["oneOf"]; !ok {
		t.Fatalf("expected oneOf in schema, got keys %v", schema)
	}
}
