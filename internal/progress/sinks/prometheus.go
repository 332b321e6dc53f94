package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/public-page-audit/internal/progress"
)

// PrometheusSink exports run progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	listingPages prometheus.Counter
	listingItems prometheus.Counter

	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageaudit_runs_started_total",
			Help: "Harvest and verify runs started.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageaudit_runs_completed_total",
			Help: "Runs completed partitioned by kind and result.",
		}, []string{"kind", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageaudit_runs_running",
			Help: "Runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageaudit_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind", "result"}),
		listingPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageaudit_listing_pages_total",
			Help: "Listing pages fetched.",
		}),
		listingItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageaudit_listing_items_total",
			Help: "Raw listing items received.",
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageaudit_checks_total",
			Help: "Reachability checks partitioned by outcome.",
		}, []string{"outcome"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageaudit_check_duration_seconds",
			Help:    "Reachability check latency partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"outcome"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.listingPages,
		s.listingItems,
		s.checks,
		s.checkDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageHarvestStart:
			s.start(evt, "harvest")
		case progress.StageVerifyStart:
			s.start(evt, "verify")
		case progress.StageHarvestDone:
			s.finish(evt, "harvest", "success")
		case progress.StageHarvestError:
			s.finish(evt, "harvest", "error")
		case progress.StageVerifyDone:
			s.finish(evt, "verify", "success")
		case progress.StagePageFetched:
			s.listingPages.Inc()
			s.listingItems.Add(float64(evt.Items))
		case progress.StageCheckDone:
			outcome := string(evt.Outcome)
			s.checks.WithLabelValues(outcome).Inc()
			if evt.Dur > 0 {
				s.checkDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func (s *PrometheusSink) start(evt progress.Event, kind string) {
	s.runsStarted.WithLabelValues(kind).Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[evt.RunID]; !ok {
		s.running[evt.RunID] = struct{}{}
		s.runsRunning.Inc()
	}
}

func (s *PrometheusSink) finish(evt progress.Event, kind, result string) {
	s.runsCompleted.WithLabelValues(kind, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(kind, result).Observe(evt.Dur.Seconds())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[evt.RunID]; ok {
		delete(s.running, evt.RunID)
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
