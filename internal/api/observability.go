package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee"
)

// Metrics with bounded cardinality: labels are event types, phases and
// team colors, never player or client identifiers.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "referee_tick_duration_seconds",
		Help:    "Time spent deciding one simulation tick",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "referee_render_duration_seconds",
		Help:    "Time spent rendering the field image",
		Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.25},
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referee_ticks_total",
		Help: "Simulation ticks refereed",
	})

	ruleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referee_rule_events_total",
		Help: "Rule events by type",
	}, []string{"type"})

	goals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referee_goals_total",
		Help: "Goals scored by team color",
	}, []string{"team"})

	phase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "referee_phase",
		Help: "1 for the current primary phase",
	}, []string{"phase"})

	journalTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "referee_journal_events",
		Help: "Events accepted by the journal",
	})

	journalDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "referee_journal_dropped",
		Help: "Events dropped by the journal rate limiter or buffer",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

var phases = []referee.Phase{
	referee.PhaseInitial, referee.PhaseReady, referee.PhaseSet, referee.PhasePlaying, referee.PhaseFinished,
}

// RecordTick records one refereed tick: its duration, the events it
// produced and the current phase.
func RecordTick(d *referee.Decision, duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
	ticksTotal.Inc()
	for _, ev := range d.Events {
		ruleEvents.WithLabelValues(ev.Type.String()).Inc()
		if ev.Type == referee.EventTypeGoal {
			goals.WithLabelValues(ev.Team.String()).Inc()
		}
	}
	for _, p := range phases {
		v := 0.0
		if p == d.Phase {
			v = 1
		}
		phase.WithLabelValues(p.String()).Set(v)
	}
}

// RecordRender records render timing.
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// UpdateJournalStats mirrors the journal counters.
func UpdateJournalStats(total, dropped uint64) {
	journalTotal.Set(float64(total))
	journalDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the WebSocket message counter.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// StatsFunc reports component counters for /debug/stats.
type StatsFunc func() map[string]interface{}

// NewDebugHandler builds the internal observability mux: pprof, Prometheus
// metrics, health and component stats.
func NewDebugHandler(stats map[string]StatsFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]interface{}, len(stats))
		for name, fn := range stats {
			out[name] = fn()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})
	return mux
}

// NewDebugServer returns the debug HTTP server, or nil when disabled. The
// listen address is forced to loopback unless it already is one.
func NewDebugServer(cfg config.DebugConfig, stats map[string]StatsFunc, logger zerolog.Logger) *http.Server {
	if !cfg.Enabled {
		logger.Info().Msg("debug server disabled")
		return nil
	}
	addr := cfg.Addr
	if !isLoopback(addr) {
		logger.Warn().Str("addr", addr).Msg("debug server forced to localhost")
		addr = "127.0.0.1:6060"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           NewDebugHandler(stats),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
