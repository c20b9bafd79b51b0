// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ArenaPlayers     *prometheus.GaugeVec
	Joins            *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		ArenaPlayers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_players",
			Help:      "Number of players inside arenas",
		}, []string{"minigame"}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join attempts by outcome",
		}, []string{"minigame", "outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State transitions by target state",
		}, []string{"minigame", "state"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
}

// Monitor collects server metrics into its own registry. It is an
// arena.Observer, so arena metrics follow the arena events.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

// NewMonitor creates the metrics. arenas, if not nil, reports the number of
// live arenas.
func NewMonitor(namespace string, arenas func() int) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	m.registry.MustRegister(
		m.metrics.OnlinePlayers,
		m.metrics.ArenaPlayers,
		m.metrics.Joins,
		m.metrics.Transitions,
		m.metrics.MessagesReceived,
		m.metrics.MessageLatency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}, func() float64 {
			return time.Since(m.startTime).Seconds()
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if arenas != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_arenas",
			Help:      "Number of active arenas",
		}, func() float64 {
			return float64(arenas())
		}))
	}

	return m
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenAndServe exposes /metrics on addr until ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OnArenaEvent updates the arena metrics.
func (m *Monitor) OnArenaEvent(e arena.Event) {
	switch e.Kind {
	case arena.EventJoined:
		m.metrics.Joins.WithLabelValues(e.Minigame, "accepted").Inc()
		m.metrics.ArenaPlayers.WithLabelValues(e.Minigame).Inc()
	case arena.EventJoinRefused:
		m.metrics.Joins.WithLabelValues(e.Minigame, "refused").Inc()
	case arena.EventLeft:
		m.metrics.ArenaPlayers.WithLabelValues(e.Minigame).Dec()
	case arena.EventStateChanged, arena.EventReset:
		if e.To != nil {
			m.metrics.Transitions.WithLabelValues(e.Minigame, e.To.ID()).Inc()
		}
	case arena.EventClosed:
		// Players of a closed arena are no longer counted.
		m.metrics.ArenaPlayers.WithLabelValues(e.Minigame).Sub(float64(len(e.Snapshot.Players)))
	}
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}
