package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"humanoid-referee/internal/archive"
	"humanoid-referee/internal/referee"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
	maxMatchLimit     = 200
)

// lockedRenderer serializes access to a renderer that owns one drawing
// context.
type lockedRenderer struct {
	mu sync.Mutex
	r  FieldRenderer
}

func (l *lockedRenderer) encode(d *referee.Decision) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var buf bytes.Buffer
	start := time.Now()
	if err := l.r.EncodePNG(&buf, d); err != nil {
		return nil, err
	}
	RecordRender(time.Since(start))
	return buf.Bytes(), nil
}

func (h *routerHandlers) latest(w http.ResponseWriter) *referee.Decision {
	d := h.decisions.Latest()
	if d == nil {
		writeError(w, "match not started", http.StatusServiceUnavailable)
	}
	return d
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	if d := h.latest(w); d != nil {
		writeJSON(w, d)
	}
}

// scoreView is the compact scoreboard.
type scoreView struct {
	Tick         referee.Tick             `json:"tick"`
	Phase        referee.Phase            `json:"phase"`
	Interruption referee.InterruptionKind `json:"interruption"`
	Red          teamScore                `json:"red"`
	Blue         teamScore                `json:"blue"`
	Remaining    float64                  `json:"remaining"`
	Over         bool                     `json:"over"`
}

type teamScore struct {
	Name      string `json:"name"`
	Goals     int    `json:"goals"`
	Penalties int    `json:"penalties"`
}

func (h *routerHandlers) handleGetScore(w http.ResponseWriter, r *http.Request) {
	d := h.latest(w)
	if d == nil {
		return
	}
	red, blue := d.Teams[referee.Red], d.Teams[referee.Blue]
	writeJSON(w, scoreView{
		Tick:         d.Tick,
		Phase:        d.Phase,
		Interruption: d.Interruption.Kind,
		Red:          teamScore{Name: red.Name, Goals: d.Score[referee.Red], Penalties: red.PenaltyGoals},
		Blue:         teamScore{Name: blue.Name, Goals: d.Score[referee.Blue], Penalties: blue.PenaltyGoals},
		Remaining:    d.Remaining,
		Over:         d.Over,
	})
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultEventLimit, maxEventLimit)
	if !ok {
		return
	}
	events := h.events.Recent(limit)
	if events == nil {
		events = []referee.Event{}
	}
	writeJSON(w, events)
}

func (h *routerHandlers) handleGetShootout(w http.ResponseWriter, r *http.Request) {
	d := h.latest(w)
	if d == nil {
		return
	}
	if d.Shootout == nil {
		writeError(w, "no penalty shootout", http.StatusNotFound)
		return
	}
	writeJSON(w, d.Shootout)
}

func (h *routerHandlers) handleGetField(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "rendering disabled", http.StatusNotFound)
		return
	}
	data, err := h.renderer.encode(h.decisions.Latest())
	if err != nil {
		h.log.Error().Err(err).Msg("field render failed")
		writeError(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (h *routerHandlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusNotFound)
		return
	}
	limit, ok := parseLimit(w, r, 20, maxMatchLimit)
	if !ok {
		return
	}
	matches, err := h.archive.Matches(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list matches failed")
		writeError(w, "archive error", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []archive.MatchSummary{}
	}
	writeJSON(w, matches)
}

func (h *routerHandlers) handleMatchEvents(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusNotFound)
		return
	}
	eventType := r.URL.Query().Get("type")
	if eventType != "" {
		var t referee.EventType
		_ = t.UnmarshalText([]byte(eventType))
		if t == referee.EventTypeUnknown {
			writeError(w, "unknown event type", http.StatusBadRequest)
			return
		}
	}
	events, err := h.archive.Events(r.Context(), chi.URLParam(r, "id"), eventType)
	if err != nil {
		h.log.Error().Err(err).Msg("archived events failed")
		writeError(w, "archive error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []archive.StoredEvent{}
	}
	writeJSON(w, events)
}

// parseLimit reads ?limit, writing a 400 on bad input.
func parseLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, "Invalid limit", http.StatusBadRequest)
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
