package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oss-observatory/starcrawler/internal/progress"
)

// PrometheusSink exports run progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-language page
// counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pageEvents     *prometheus.CounterVec
	pageRecords    *prometheus.CounterVec
	pageUnique     *prometheus.CounterVec
	pageDuration   *prometheus.HistogramVec
	unitsAbandoned *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_completed_total",
			Help: "Total harvest runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_running",
			Help: "Current number of running harvest runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_runtime_seconds",
			Help:    "Wall time per completed harvest run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
		pageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_run_pages_total",
			Help: "Result pages completed partitioned by language.",
		}, []string{"language"}),
		pageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_run_records_total",
			Help: "Records returned per language.",
		}, []string{"language"}),
		pageUnique: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_run_unique_total",
			Help: "Records surviving deduplication per language.",
		}, []string{"language"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_page_duration_seconds",
			Help:    "Page fetch duration partitioned by language.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"language"}),
		unitsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_run_units_abandoned_total",
			Help: "Work units abandoned after exhausting their retry budget.",
		}, []string{"language"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.pageEvents,
		s.pageRecords,
		s.pageUnique,
		s.pageDuration,
		s.unitsAbandoned,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StagePageDone:
		s.handlePageEvent(evt)
	case progress.StageUnitAbandoned:
		s.unitsAbandoned.WithLabelValues(languageLabel(evt)).Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		result := string(evt.Outcome)
		if result == "" {
			result = string(progress.OutcomeOther)
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		s.observeRuntime(evt, result)
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	language := languageLabel(evt)
	s.pageEvents.WithLabelValues(language).Inc()
	if evt.Records > 0 {
		s.pageRecords.WithLabelValues(language).Add(float64(evt.Records))
	}
	if evt.Unique > 0 {
		s.pageUnique.WithLabelValues(language).Add(float64(evt.Unique))
	}
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(language).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func languageLabel(evt progress.Event) string {
	if evt.Language == "" {
		return "unknown"
	}
	return evt.Language
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
