// Package enrich attaches model verdicts to raw audit events by fanning out
// per-event prediction requests against the analytics service.
package enrich

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/types"
	"github.com/invisible-tech/gridsec-dashboard/pkg/analytics"
)

var predictions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gridsec_predictions_total",
		Help: "Total per-event prediction requests by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(predictions)
}

// Predictor requests a model verdict for a single event. Satisfied by
// *analytics.Client.
type Predictor interface {
	Predict(ctx context.Context, event types.AuditEvent) (*analytics.PredictResponse, error)
}

// Config for the enricher.
type Config struct {
	// MaxConcurrent caps in-flight prediction requests per batch.
	MaxConcurrent int
}

// Enricher merges model verdicts into audit event batches.
type Enricher struct {
	predictor     Predictor
	maxConcurrent int
	log           *logrus.Logger
}

// New creates an Enricher. A non-positive concurrency cap falls back to 8.
func New(predictor Predictor, cfg Config, log *logrus.Logger) *Enricher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Enricher{
		predictor:     predictor,
		maxConcurrent: cfg.MaxConcurrent,
		log:           log,
	}
}

// Enrich requests one prediction per event through a bounded worker pool and
// merges each verdict into its event. The output always has the same length
// and order as the input; an event whose prediction fails is kept unenriched.
// The second return value is the number of failed predictions.
func (e *Enricher) Enrich(ctx context.Context, events []types.AuditEvent) ([]types.AuditEvent, int) {
	out := make([]types.AuditEvent, len(events))
	copy(out, events)
	if len(events) == 0 {
		return out, 0
	}

	failed := make([]bool, len(events))
	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup

	for i := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := e.predictor.Predict(ctx, events[idx])
			if err != nil {
				failed[idx] = true
				e.log.WithError(err).WithFields(logrus.Fields{
					"user":   events[idx].UserID,
					"action": events[idx].Action,
				}).Debug("Prediction request failed, keeping bare event")
				return
			}

			verdict, ok := resp.Verdict()
			if !ok {
				failed[idx] = true
				e.log.WithField("prediction", resp.Prediction).Debug("Model could not classify event")
				return
			}
			out[idx].Prediction = verdict
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	predictions.WithLabelValues("success").Add(float64(len(events) - failures))
	predictions.WithLabelValues("failure").Add(float64(failures))

	if failures > 0 {
		e.log.WithFields(logrus.Fields{
			"total":  len(events),
			"failed": failures,
		}).Warn("Partial enrichment failure")
	}
	return out, failures
}
