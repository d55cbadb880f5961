// Package poller runs independent periodic refresh cycles, one per telemetry
// source. Each task fires once immediately on registration and then at its
// fixed interval until cancelled or the scheduler shuts down.
package poller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var pollCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gridsec_poll_cycles_total",
		Help: "Total polling cycles by source and outcome",
	},
	[]string{"source", "outcome"},
)

func init() {
	prometheus.MustRegister(pollCycles)
}

// Task is one refresh cycle for a source. A returned error keeps the source
// scheduled; the next tick retries at the fixed interval. There is no
// backoff, so a struggling service keeps seeing the same request rate.
type Task func(ctx context.Context) error

// SourceStatus is a point-in-time view of one registered source.
type SourceStatus struct {
	ID        string        `json:"id"`
	Interval  time.Duration `json:"interval"`
	LastFetch time.Time     `json:"last_fetch"`
	LastError string        `json:"last_error,omitempty"`
}

type source struct {
	id       string
	interval time.Duration
	cancel   context.CancelFunc

	mu        sync.Mutex
	lastFetch time.Time
	lastErr   error
}

// Scheduler owns the polling goroutines. Sources run independently; a slow
// or failing task on one source never delays another.
type Scheduler struct {
	log *logrus.Logger

	mu      sync.Mutex
	sources map[string]*source
	stopped bool
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		log:     log,
		sources: make(map[string]*source),
	}
}

// Schedule registers a source and starts its refresh loop. The task runs once
// immediately, then every interval. Returns an error if the source ID is
// already registered or the scheduler has shut down.
func (s *Scheduler) Schedule(sourceID string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("interval for source %q must be positive", sourceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler is shut down")
	}
	if _, exists := s.sources[sourceID]; exists {
		return fmt.Errorf("source %q already scheduled", sourceID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	src := &source{id: sourceID, interval: interval, cancel: cancel}
	s.sources[sourceID] = src

	s.wg.Add(1)
	go s.run(ctx, src, task)

	s.log.WithFields(logrus.Fields{
		"source":   sourceID,
		"interval": interval.String(),
	}).Info("Polling source scheduled")
	return nil
}

func (s *Scheduler) run(ctx context.Context, src *source, task Task) {
	defer s.wg.Done()

	// Immediate first cycle, then fixed-interval ticks.
	s.runOnce(ctx, src, task)

	ticker := time.NewTicker(src.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.WithField("source", src.id).Info("Polling source stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, src, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, src *source, task Task) {
	err := task(ctx)

	src.mu.Lock()
	src.lastFetch = time.Now()
	src.lastErr = err
	src.mu.Unlock()

	if err != nil {
		// Cancellation during shutdown is not a fetch failure.
		if ctx.Err() != nil {
			return
		}
		pollCycles.WithLabelValues(src.id, "error").Inc()
		s.log.WithError(err).WithField("source", src.id).Warn("Polling cycle failed")
		return
	}
	pollCycles.WithLabelValues(src.id, "success").Inc()
}

// Cancel stops and deregisters a single source. Cancelling an unknown source
// is a no-op.
func (s *Scheduler) Cancel(sourceID string) {
	s.mu.Lock()
	src, ok := s.sources[sourceID]
	if ok {
		delete(s.sources, sourceID)
	}
	s.mu.Unlock()

	if ok {
		src.cancel()
	}
}

// Shutdown stops all sources and waits for their loops to exit. A fetch
// already in flight runs to completion; its task decides whether the result
// still matters.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	srcs := make([]*source, 0, len(s.sources))
	for _, src := range s.sources {
		srcs = append(srcs, src)
	}
	s.sources = make(map[string]*source)
	s.mu.Unlock()

	for _, src := range srcs {
		src.cancel()
	}
	s.wg.Wait()
}

// Statuses returns the current status of all registered sources, sorted by ID.
func (s *Scheduler) Statuses() []SourceStatus {
	s.mu.Lock()
	srcs := make([]*source, 0, len(s.sources))
	for _, src := range s.sources {
		srcs = append(srcs, src)
	}
	s.mu.Unlock()

	out := make([]SourceStatus, 0, len(srcs))
	for _, src := range srcs {
		src.mu.Lock()
		st := SourceStatus{
			ID:        src.id,
			Interval:  src.interval,
			LastFetch: src.lastFetch,
		}
		if src.lastErr != nil {
			st.LastError = src.lastErr.Error()
		}
		src.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
