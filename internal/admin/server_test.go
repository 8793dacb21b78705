package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wbclient/internal/auth"
	"github.com/danmuck/wbclient/internal/session"
	"github.com/danmuck/wbclient/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

type stubSource struct {
	stats        session.Stats
	disconnected chan struct{}
}

func (s stubSource) Stats() session.Stats { return s.stats }
func (s stubSource) Params() session.Params {
	return session.Params{Separator: '/', Wildcard: '+', MultiWildcard: '#'}
}
func (s stubSource) Disconnected() <-chan struct{} { return s.disconnected }

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s body: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthReflectsDisconnect(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	src := stubSource{disconnected: make(chan struct{})}
	s := New("admin-test", "127.0.0.1:0", nil, src, nil)

	rr, body := get(t, s, "/health")
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health: status=%d body=%v", rr.Code, body)
	}

	close(src.disconnected)
	rr, body = get(t, s, "/health")
	if rr.Code != http.StatusServiceUnavailable || body["status"] != "disconnected" {
		t.Fatalf("unexpected health after disconnect: status=%d body=%v", rr.Code, body)
	}
}

func TestStatsReportsCountersAndParams(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	src := stubSource{
		stats:        session.Stats{CommandsSent: 3, DecodeErrors: 1, Subscribers: 2},
		disconnected: make(chan struct{}),
	}
	s := New("admin-test", "127.0.0.1:0", []string{"http://localhost:5173"}, src, nil)

	rr, body := get(t, s, "/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["commands_sent"] != float64(3) || stats["decode_errors"] != float64(1) {
		t.Fatalf("unexpected stats: %v", body)
	}
	params, _ := body["params"].(map[string]any)
	if params["separator"] != "/" || params["multi_wildcard"] != "#" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestMetricsEndpointExposesSessionCounters(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New("admin-test", "127.0.0.1:0", nil, stubSource{disconnected: make(chan struct{})}, nil)

	get(t, s, "/health")
	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "wbclient_http_requests_total") {
		t.Fatalf("unexpected metrics response: %d", rr.Code)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	s := New("admin-test", addr, nil, stubSource{disconnected: make(chan struct{})}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestTokenGuardsStatsAndMetrics(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New("admin-test", "127.0.0.1:0", nil, stubSource{disconnected: make(chan struct{})}, auth.SharedToken("s3cret"))

	if rr, _ := get(t, s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rr.Code)
	}
	for _, path := range []string{"/stats", "/metrics"} {
		rr, _ := get(t, s, path)
		if rr.Code != http.StatusUnauthorized || rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%s without token: expected 401 with challenge, got %d", path, rr.Code)
		}

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rr = httptest.NewRecorder()
		s.HTTPRouter().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s with wrong token: expected 401, got %d", path, rr.Code)
		}

		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rr = httptest.NewRecorder()
		s.HTTPRouter().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s with token: expected 200, got %d", path, rr.Code)
		}
	}
}
