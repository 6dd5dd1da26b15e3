package progress

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts progress loads, submissions and remote commits.
// The collectors are not registered; call Register.
type Metrics struct {
	loads        *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	commits      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapquiz_progress_loads_total",
				Help: "Progress document loads by result (found, created, error).",
			},
			[]string{"result"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapquiz_riddle_submissions_total",
				Help: "Riddle submissions by result (correct, incorrect, already_unlocked).",
			},
			[]string{"result"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapquiz_progress_commits_total",
				Help: "Remote progress writes by outcome (targeted, fallback, failed).",
			},
			[]string{"outcome"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapquiz_progress_breaker_state",
				Help: "Circuit breaker state for progress writes (0 closed, 1 half-open, 2 open).",
			},
			[]string{"name"},
		),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.loads, m.submissions, m.commits, m.breakerState} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
