package hetzner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/servers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"servers": []map[string]any{{"id": 101, "name": "web-1"}},
		})
	}))
	defer srv.Close()

	cli := NewWithBaseURL(srv.URL, "token")
	cli.retryDelay = 10 * time.Millisecond

	servers, err := cli.GetServers(context.Background())
	if err != nil {
		t.Fatalf("get servers: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != 101 || servers[0].Name != "web-1" {
		t.Fatalf("unexpected servers: %+v", servers)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected retry, calls=%d", calls.Load())
	}
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cli := NewWithBaseURL(srv.URL, "token")
	cli.retryDelay = 10 * time.Millisecond

	if _, err := cli.GetServer(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry for 404, calls=%d", calls.Load())
	}
}

func TestClientDoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cli := NewWithBaseURL(srv.URL, "bad")
	cli.retryDelay = 10 * time.Millisecond

	if _, err := cli.GetServers(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry for 401, calls=%d", calls.Load())
	}
}

func TestGetServerNullableTraffic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"server": map[string]any{
				"id":               101,
				"name":             "web-1",
				"outgoing_traffic": nil,
				"ingoing_traffic":  1024,
				"public_net":       map[string]any{"ipv4": map[string]any{"ip": "203.0.113.7"}},
				"server_type":      map[string]any{"name": "cx22"},
				"datacenter":       map[string]any{"location": map[string]any{"name": "fsn1"}},
			},
		})
	}))
	defer srv.Close()

	cli := NewWithBaseURL(srv.URL, "token")
	server, err := cli.GetServer(context.Background(), 101)
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if server.OutgoingTraffic != nil {
		t.Fatalf("null outgoing_traffic should stay nil")
	}
	if server.IngoingTraffic == nil || *server.IngoingTraffic != 1024 {
		t.Fatalf("unexpected ingoing traffic: %+v", server.IngoingTraffic)
	}
	if server.IPv4() != "203.0.113.7" {
		t.Fatalf("unexpected ip: %q", server.IPv4())
	}
	if server.ServerType.Name != "cx22" || server.Datacenter.Location.Name != "fsn1" {
		t.Fatalf("unexpected shape: %+v", server)
	}
}

func TestGetSnapshotsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images" || r.URL.Query().Get("type") != "snapshot" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]any{
				{"id": 1, "created": "2026-05-01T10:00:00Z"},
				{"id": 2, "created": "2026-05-03T10:00:00Z"},
				{"id": 3, "created": "2026-05-02T10:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	cli := NewWithBaseURL(srv.URL, "token")
	images, err := cli.GetSnapshots(context.Background())
	if err != nil {
		t.Fatalf("get snapshots: %v", err)
	}
	if len(images) != 3 || images[0].ID != 2 || images[1].ID != 3 || images[2].ID != 1 {
		t.Fatalf("snapshots should sort newest first, got %+v", images)
	}
}

func TestCreateServerValidatesTemplate(t *testing.T) {
	cli := NewWithBaseURL("http://unused", "token")
	if _, err := cli.CreateServer(context.Background(), CreateServerRequest{Name: "x", Image: 5}); err == nil {
		t.Fatalf("expected error for missing server_type/location")
	}
}
