package api_test

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/api"
	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/referee/field"
	"humanoid-referee/internal/render"
)

// ============================================================================
// Fixtures
// ============================================================================

func sampleDecision(tick referee.Tick) *referee.Decision {
	d := &referee.Decision{
		Tick:      tick,
		Phase:     referee.PhasePlaying,
		Score:     [2]int{2, 1},
		Remaining: 312,
	}
	d.Teams[referee.Red] = referee.TeamView{Color: referee.Red, Name: "red team", Score: 2}
	d.Teams[referee.Blue] = referee.TeamView{Color: referee.Blue, Name: "blue team", Score: 1}
	return d
}

func newTestRouter(feed *referee.DecisionFeed, journal *referee.Journal, renderer api.FieldRenderer) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Decisions: feed,
		Events:    journal,
		Renderer:  renderer,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
		Logger:         zerolog.Nop(),
	})
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// ============================================================================
// Router Purity Tests
// ============================================================================

// TestNewRouterHasNoSideEffects verifies that NewRouter only builds the
// handler tree.
func TestNewRouterHasNoSideEffects(t *testing.T) {
	router := newTestRouter(referee.NewDecisionFeed(), referee.NewJournal(), nil)
	if router == nil {
		t.Fatal("Router should not be nil")
	}
}

// ============================================================================
// API Endpoint Tests
// ============================================================================

// TestAPIStateBeforeFirstTick tests that live routes answer 503 until the
// first decision is published
func TestAPIStateBeforeFirstTick(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(referee.NewDecisionFeed(), referee.NewJournal(), nil))
	defer ts.Close()

	for _, path := range []string{"/api/state", "/api/score", "/api/shootout"} {
		t.Run(path, func(t *testing.T) {
			if code := getJSON(t, ts.URL+path, nil); code != http.StatusServiceUnavailable {
				t.Errorf("Expected 503, got %d", code)
			}
		})
	}
}

// TestAPIGetState tests the full decision endpoint
func TestAPIGetState(t *testing.T) {
	feed := referee.NewDecisionFeed()
	feed.Publish(sampleDecision(42))

	ts := httptest.NewServer(newTestRouter(feed, referee.NewJournal(), nil))
	defer ts.Close()

	var result map[string]interface{}
	if code := getJSON(t, ts.URL+"/api/state", &result); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if result["tick"] != float64(42) {
		t.Errorf("Expected tick 42, got %v", result["tick"])
	}
	if result["phase"] != "PLAYING" {
		t.Errorf("Expected phase PLAYING, got %v", result["phase"])
	}
	if _, ok := result["teams"].([]interface{}); !ok {
		t.Error("Response should contain teams array")
	}
}

// TestAPIGetScore tests the compact scoreboard
func TestAPIGetScore(t *testing.T) {
	feed := referee.NewDecisionFeed()
	d := sampleDecision(7)
	d.Teams[referee.Blue].PenaltyGoals = 3
	feed.Publish(d)

	ts := httptest.NewServer(newTestRouter(feed, referee.NewJournal(), nil))
	defer ts.Close()

	var score struct {
		Phase string `json:"phase"`
		Red   struct {
			Name  string `json:"name"`
			Goals int    `json:"goals"`
		} `json:"red"`
		Blue struct {
			Goals     int `json:"goals"`
			Penalties int `json:"penalties"`
		} `json:"blue"`
	}
	if code := getJSON(t, ts.URL+"/api/score", &score); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if score.Red.Name != "red team" || score.Red.Goals != 2 {
		t.Errorf("Unexpected red score %+v", score.Red)
	}
	if score.Blue.Goals != 1 || score.Blue.Penalties != 3 {
		t.Errorf("Unexpected blue score %+v", score.Blue)
	}
}

// TestAPIGetEvents tests the recent event listing and its limit parameter
func TestAPIGetEvents(t *testing.T) {
	journal := referee.NewJournal()
	now := time.Unix(1700000000, 0)
	for i, msg := range []string{"READY", "SET", "PLAYING"} {
		journal.Emit(referee.NewEvent(referee.EventTypePhase, referee.Tick(i*10+1), 0, now, referee.NoTeam, 0, msg, nil))
	}

	ts := httptest.NewServer(newTestRouter(referee.NewDecisionFeed(), journal, nil))
	defer ts.Close()

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
		wantLast string
	}{
		{"default", "", http.StatusOK, 3, "PLAYING"},
		{"limited", "?limit=2", http.StatusOK, 2, "PLAYING"},
		{"negative", "?limit=-1", http.StatusBadRequest, 0, ""},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []referee.Event
			code := getJSON(t, ts.URL+"/api/events"+tt.query, &events)
			if code != tt.wantCode {
				t.Fatalf("Expected %d, got %d", tt.wantCode, code)
			}
			if code != http.StatusOK {
				return
			}
			if len(events) != tt.wantLen {
				t.Fatalf("Expected %d events, got %d", tt.wantLen, len(events))
			}
			if last := events[len(events)-1]; last.Message != tt.wantLast || last.Type != referee.EventTypePhase {
				t.Errorf("Expected last event %q, got %+v", tt.wantLast, last)
			}
		})
	}
}

// TestAPIGetShootout tests the shootout route with and without a shootout
func TestAPIGetShootout(t *testing.T) {
	feed := referee.NewDecisionFeed()
	feed.Publish(sampleDecision(1))

	ts := httptest.NewServer(newTestRouter(feed, referee.NewJournal(), nil))
	defer ts.Close()

	if code := getJSON(t, ts.URL+"/api/shootout", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 without shootout, got %d", code)
	}

	d := sampleDecision(2)
	d.Shootout = &referee.ShootoutView{Trial: 3, Attacker: referee.Blue, Kicker: 2}
	feed.Publish(d)

	var view struct {
		Trial    int    `json:"trial"`
		Attacker string `json:"attacker"`
	}
	if code := getJSON(t, ts.URL+"/api/shootout", &view); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if view.Trial != 3 || view.Attacker != "blue" {
		t.Errorf("Unexpected shootout view %+v", view)
	}
}

// TestAPIFieldImage tests the PNG route
func TestAPIFieldImage(t *testing.T) {
	feed := referee.NewDecisionFeed()
	feed.Publish(sampleDecision(1))

	t.Run("disabled", func(t *testing.T) {
		ts := httptest.NewServer(newTestRouter(feed, referee.NewJournal(), nil))
		defer ts.Close()
		if code := getJSON(t, ts.URL+"/api/field.png", nil); code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", code)
		}
	})

	t.Run("rendered", func(t *testing.T) {
		renderer := render.NewFieldRenderer(field.Kid(), 550)
		ts := httptest.NewServer(newTestRouter(feed, referee.NewJournal(), renderer))
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/field.png")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("Expected image/png, got %q", ct)
		}
		img, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatalf("Invalid PNG: %v", err)
		}
		w, h := renderer.Size()
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			t.Errorf("Expected %dx%d, got %dx%d", w, h, b.Dx(), b.Dy())
		}
	})
}

// TestAPIArchiveDisabled tests that archive routes answer 404 without a store
func TestAPIArchiveDisabled(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(referee.NewDecisionFeed(), referee.NewJournal(), nil))
	defer ts.Close()

	for _, path := range []string{"/api/matches", "/api/matches/abc/events"} {
		if code := getJSON(t, ts.URL+path, nil); code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, code)
		}
	}
}

// ============================================================================
// Middleware Tests
// ============================================================================

// TestAPICORSHeaders verifies CORS headers are set correctly
func TestAPICORSHeaders(t *testing.T) {
	feed := referee.NewDecisionFeed()
	feed.Publish(sampleDecision(1))

	router := api.NewRouter(api.RouterConfig{
		Decisions:      feed,
		Events:         referee.NewJournal(),
		DisableLogging: true,
		CORSOrigins:    []string{"http://test.example.com"},
	})

	ts := httptest.NewServer(router)
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/api/state", nil)
	req.Header.Set("Origin", "http://test.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	allowOrigin := resp.Header.Get("Access-Control-Allow-Origin")
	if allowOrigin != "http://test.example.com" {
		t.Errorf("Expected Access-Control-Allow-Origin 'http://test.example.com', got '%s'", allowOrigin)
	}
}

// TestAPIRateLimiting verifies rate limiting works
func TestAPIRateLimiting(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Decisions: referee.NewDecisionFeed(),
		Events:    referee.NewJournal(),
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             2,
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
	})

	ts := httptest.NewServer(router)
	defer ts.Close()

	var gotRateLimited bool
	for i := 0; i < 10; i++ {
		resp, err := http.Get(ts.URL + "/api/events")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			gotRateLimited = true
			break
		}
	}

	if !gotRateLimited {
		t.Error("Expected to be rate limited after burst exceeded")
	}
}

// TestAPIRedirects tests the root redirect
func TestAPIRedirects(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(referee.NewDecisionFeed(), referee.NewJournal(), nil))
	defer ts.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("Expected 302 redirect, got %d", resp.StatusCode)
	}
	if location := resp.Header.Get("Location"); location != "/api/state" {
		t.Errorf("Expected redirect to /api/state, got %s", location)
	}
}

// ============================================================================
// WebSocket Tests
// ============================================================================

// TestWebSocketStreamsDecisions tests that a published decision and its
// events reach a connected client
func TestWebSocketStreamsDecisions(t *testing.T) {
	feed := referee.NewDecisionFeed()
	journal := referee.NewJournal()
	server := api.NewServer(config.ServerConfig{}, api.Dependencies{Decisions: feed, Events: journal}, zerolog.Nop())
	defer server.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Hub().Run(ctx)
	go server.Hub().StreamDecisions(ctx, feed, journal)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	journal.Emit(referee.NewEvent(referee.EventTypeGoal, 5, 0.5, time.Now(), referee.Red, 0, "GOAL red", nil))
	feed.Publish(sampleDecision(5))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []string
	for len(got) < 2 {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed after %v: %v", got, err)
		}
		got = append(got, msg.Event)
	}
	if got[0] != "referee:state" || got[1] != "referee:event" {
		t.Errorf("Expected state then event, got %v", got)
	}
}

// TestWebSocketOriginPolicy tests the upgrade origin check
func TestWebSocketOriginPolicy(t *testing.T) {
	policy := api.NewOriginPolicy([]string{"https://referee.example.org", "*.robocup.org"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"https://referee.example.org", true},
		{"https://gc.robocup.org", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := policy.Allowed(tt.origin); got != tt.want {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.origin, got)
			}
		})
	}
}
