package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the metrics of one node in its own registry.
type Stats struct {
	registry *prometheus.Registry
	labels   prometheus.Labels

	commands        *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	queryCandidates prometheus.Counter
	queryMatches    prometheus.Counter
	transferred     prometheus.Counter
	replicated      prometheus.Counter
}

func New(node string) *Stats {
	labels := prometheus.Labels{"node": node}
	s := &Stats{
		registry: prometheus.NewRegistry(),
		labels:   labels,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "meteorgrid_commands_total",
			Help:        "Functional commands by kind and outcome",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "meteorgrid_command_duration_seconds",
			Help:        "Time spent in the interceptor chain",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"kind"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "meteorgrid_queries_total",
			Help:        "Executed queries by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		queryCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "meteorgrid_query_candidates_total",
			Help:        "Candidates produced by base queries",
			ConstLabels: labels,
		}),
		queryMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "meteorgrid_query_matches_total",
			Help:        "Candidates accepted by the object filter",
			ConstLabels: labels,
		}),
		transferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "meteorgrid_state_transfer_entries_total",
			Help:        "Entries received through state transfer",
			ConstLabels: labels,
		}),
		replicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "meteorgrid_replicated_updates_total",
			Help:        "Updates applied on behalf of a primary owner",
			ConstLabels: labels,
		}),
	}
	s.registry.MustRegister(s.commands, s.commandLatency, s.queries, s.queryCandidates,
		s.queryMatches, s.transferred, s.replicated)
	return s
}

func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Stats) RecordCommand(kind string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.commands.WithLabelValues(kind, outcome).Inc()
	s.commandLatency.WithLabelValues(kind).Observe(took.Seconds())
}

func (s *Stats) RecordQuery(kind string) {
	s.queries.WithLabelValues(kind).Inc()
}

func (s *Stats) RecordCandidate(matched bool) {
	s.queryCandidates.Inc()
	if matched {
		s.queryMatches.Inc()
	}
}

func (s *Stats) RecordTransfer(entries int) {
	s.transferred.Add(float64(entries))
}

// WatchLocks exports the key lock table as gauges read on every scrape.
func (s *Stats) WatchLocks(keysLocked, waiting func() int) {
	labels := s.labels
	s.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "meteorgrid_locked_keys",
			Help:        "Keys holding at least one lock",
			ConstLabels: labels,
		}, func() float64 { return float64(keysLocked()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "meteorgrid_lock_waiters",
			Help:        "Lock requests waiting for a key",
			ConstLabels: labels,
		}, func() float64 { return float64(waiting()) }),
	)
}

func (s *Stats) RecordReplication(updates int) {
	s.replicated.Add(float64(updates))
}
