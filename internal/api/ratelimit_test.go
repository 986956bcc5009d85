package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/config"
)

// TestIPRateLimiterBurst tests that each address gets its own burst
func TestIPRateLimiterBurst(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Expected rejection after burst")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Other address should not be limited")
	}

	stats := rl.GetStats()
	if stats["allowed"] != 4 || stats["rejected"] != 1 || stats["tracked"] != 2 {
		t.Errorf("Unexpected stats %v", stats)
	}

	rl.cleanup(time.Now().Add(time.Minute))
	if got := rl.GetStats()["tracked"]; got != 0 {
		t.Errorf("Expected cleanup to forget idle addresses, %d left", got)
	}
}

// TestWebSocketRateLimiter tests slot reservation and release
func TestWebSocketRateLimiter(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)
	if !wrl.Allow("a") || !wrl.Allow("a") {
		t.Fatal("First two connections should be allowed")
	}
	if wrl.Allow("a") {
		t.Error("Third connection should be rejected")
	}
	wrl.Release("a")
	if got := wrl.GetConnectionCount("a"); got != 1 {
		t.Errorf("Expected 1 open connection, got %d", got)
	}
	if !wrl.Allow("a") {
		t.Error("Released slot should be reusable")
	}
	if wrl.GetStats()["rejected"] != 1 {
		t.Errorf("Expected 1 rejection, got %v", wrl.GetStats())
	}
}

// TestGetClientIP tests header precedence
func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestDebugServerLoopbackOnly tests that the debug listener never binds
// a public address
func TestDebugServerLoopbackOnly(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:7000", "127.0.0.1:7000"},
		{"localhost:7001", "localhost:7001"},
		{"[::1]:7002", "[::1]:7002"},
		{"0.0.0.0:6060", "127.0.0.1:6060"},
		{":6060", "127.0.0.1:6060"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			srv := NewDebugServer(config.DebugConfig{Enabled: true, Addr: tt.addr}, nil, zerolog.Nop())
			if srv.Addr != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, srv.Addr)
			}
		})
	}

	if srv := NewDebugServer(config.DebugConfig{}, nil, zerolog.Nop()); srv != nil {
		t.Error("Disabled debug server should be nil")
	}
}

// TestRateLimitFromServer tests that zero values keep the defaults
func TestRateLimitFromServer(t *testing.T) {
	rl := RateLimitFromServer(config.ServerConfig{})
	if rl != DefaultRateLimitConfig {
		t.Errorf("Expected defaults, got %+v", rl)
	}
	rl = RateLimitFromServer(config.ServerConfig{RequestsPerSec: 5, Burst: 7})
	if rl.RequestsPerSecond != 5 || rl.Burst != 7 {
		t.Errorf("Expected 5/7, got %+v", rl)
	}
}
