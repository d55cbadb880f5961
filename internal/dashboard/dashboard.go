// Package dashboard owns the live telemetry aggregation pipeline: it
// schedules the per-source refresh cycles, enriches event batches, and keeps
// the last successful snapshot per source for the presentation layer.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/aggregate"
	"github.com/invisible-tech/gridsec-dashboard/internal/alerting"
	"github.com/invisible-tech/gridsec-dashboard/internal/config"
	"github.com/invisible-tech/gridsec-dashboard/internal/modeleval"
	"github.com/invisible-tech/gridsec-dashboard/internal/types"
	"github.com/invisible-tech/gridsec-dashboard/pkg/analytics"
	"github.com/invisible-tech/gridsec-dashboard/pkg/enrich"
	"github.com/invisible-tech/gridsec-dashboard/pkg/poller"
)

// Prometheus metrics (registered once).
var (
	summaryTotalEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsec_summary_total_events",
		Help: "Total events reported by the analytics summary",
	})
	summaryAnomalies = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsec_summary_anomalies",
		Help: "Anomalies reported by the analytics summary",
	})
	alertActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsec_nosy_admin_alert_active",
		Help: "1 when the nosy-admin alert is showing, else 0",
	})
)

func init() {
	prometheus.MustRegister(summaryTotalEvents)
	prometheus.MustRegister(summaryAnomalies)
	prometheus.MustRegister(alertActive)
}

// State is the dashboard's readiness for the presentation layer.
type State string

const (
	// StateLoading means the primary feeds have not all reported yet.
	StateLoading State = "loading"
	// StateReady means all primary feeds delivered on their latest cycle.
	StateReady State = "ready"
	// StateConnectionError means a primary feed's latest fetch failed. The
	// presentation layer shows a blocking error with a manual retry.
	StateConnectionError State = "connection_error"
)

// AnalyticsAPI is the slice of the analytics client the pipeline consumes.
type AnalyticsAPI interface {
	Summary(ctx context.Context) (*analytics.SummaryResponse, error)
	Health(ctx context.Context) (*analytics.HealthResponse, error)
	NosyAdmins(ctx context.Context) (*analytics.NosyAdminResponse, error)
	LiveEvents(ctx context.Context) (*analytics.LiveEventsResponse, error)
	ModelMetrics(ctx context.Context) (*analytics.ModelMetricsResponse, error)
	ModelROC(ctx context.Context) (*analytics.ModelROCResponse, error)
	DormantAccounts(ctx context.Context) (*analytics.DormantAccountsResponse, error)
	DetectAPT(ctx context.Context) (*analytics.APTDetectionResponse, error)
	Predict(ctx context.Context, event types.AuditEvent) (*analytics.PredictResponse, error)
}

// ModelEvaluation is the shaped model-quality view. ROC and matrix come from
// two feeds with their own schedules, so either half may be absent early on.
type ModelEvaluation struct {
	ROC        []types.ROCPoint        `json:"roc,omitempty"`
	Diagonal   []types.ROCPoint        `json:"diagonal"`
	AUC        float64                 `json:"auc"`
	AUCQuality modeleval.QualityBucket `json:"auc_quality"`

	ConfusionMatrix *types.ConfusionMatrix `json:"confusion_matrix,omitempty"`
	Metrics         *types.DerivedMetrics  `json:"metrics,omitempty"`
	TestSize        int                    `json:"test_size,omitempty"`
}

// Snapshot is the renderer-ready view of all feeds, assembled from the last
// successful fetch of each.
type Snapshot struct {
	State       State     `json:"state"`
	GeneratedAt time.Time `json:"generated_at"`

	Summary       *analytics.SummaryData    `json:"summary,omitempty"`
	ServiceHealth *analytics.HealthResponse `json:"service_health,omitempty"`
	Alert         *alerting.State           `json:"alert,omitempty"`

	Events          []types.AuditEvent `json:"events,omitempty"`
	TotalEvents     int                `json:"total_events"`
	SuspiciousCount int                `json:"suspicious_count"`

	Timeline           []types.TimelinePoint     `json:"timeline,omitempty"`
	UserActivity       []types.UserActivityPoint `json:"user_activity,omitempty"`
	ActionDistribution []types.CategoryPoint     `json:"action_distribution,omitempty"`
	AttackTypes        []types.CategoryPoint     `json:"attack_types,omitempty"`

	Model           *ModelEvaluation                   `json:"model,omitempty"`
	DormantAccounts *analytics.DormantAccountsResponse `json:"dormant_accounts,omitempty"`
	APTThreats      *analytics.APTDetectionResponse    `json:"apt_threats,omitempty"`

	Sources []poller.SourceStatus `json:"sources"`
}

// Dashboard wires the scheduler, client, and transforms together and holds
// the per-source snapshot state.
type Dashboard struct {
	cfg       config.DashboardConfig
	log       *logrus.Logger
	api       AnalyticsAPI
	enricher  *enrich.Enricher
	scheduler *poller.Scheduler

	mu sync.RWMutex

	// Last successful payload per source; replaced atomically on success,
	// untouched on failure so stale data keeps rendering.
	summary *analytics.SummaryData
	health  *analytics.HealthResponse
	alert   *alerting.State

	events          []types.AuditEvent
	totalEvents     int
	suspiciousCount int
	timeline        []types.TimelinePoint
	userActivity    []types.UserActivityPoint
	actions         []types.CategoryPoint
	attackTypes     []types.CategoryPoint

	rocPoints  []types.ROCPoint
	auc        float64
	haveROC    bool
	confusion  *types.ConfusionMatrix
	metrics    *types.DerivedMetrics
	testSize   int
	dormant    *analytics.DormantAccountsResponse
	apt        *analytics.APTDetectionResponse

	// Latest outcome per primary feed; any non-nil blocks readiness.
	summaryErr error
	healthErr  error
	nosyErr    error

	subsMu sync.Mutex
	subs   map[chan Snapshot]struct{}
}

// New creates a Dashboard around the given analytics API.
func New(api AnalyticsAPI, cfg config.DashboardConfig, log *logrus.Logger) *Dashboard {
	return &Dashboard{
		cfg:       cfg,
		log:       log,
		api:       api,
		enricher:  enrich.New(api, enrich.Config{MaxConcurrent: cfg.EnrichMaxConcurrent}, log),
		scheduler: poller.New(log),
		subs:      make(map[chan Snapshot]struct{}),
	}
}

// Start registers all polling sources. Each fires immediately and then at
// its configured interval.
func (d *Dashboard) Start() error {
	sources := []struct {
		id       string
		interval time.Duration
		task     poller.Task
	}{
		{"summary", d.cfg.SummaryInterval, d.refreshSummary},
		{"health", d.cfg.HealthInterval, d.refreshHealth},
		{"nosy-admin", d.cfg.NosyAdminInterval, d.refreshNosyAdmins},
		{"live-events", d.cfg.LiveEventsInterval, d.refreshLiveEvents},
		{"model-metrics", d.cfg.ModelMetricsInterval, d.refreshModelMetrics},
		{"model-roc", d.cfg.ModelROCInterval, d.refreshModelROC},
		{"dormant-accounts", d.cfg.DormantAccountsInterval, d.refreshDormantAccounts},
		{"apt", d.cfg.APTInterval, d.refreshAPT},
	}
	for _, src := range sources {
		if err := d.scheduler.Schedule(src.id, src.interval, src.task); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears down all polling cycles. In-flight fetches complete but their
// results are discarded by the cancelled context before any state mutation.
func (d *Dashboard) Stop() {
	d.scheduler.Shutdown()

	d.subsMu.Lock()
	for ch := range d.subs {
		close(ch)
	}
	d.subs = make(map[chan Snapshot]struct{})
	d.subsMu.Unlock()
}

func (d *Dashboard) refreshSummary(ctx context.Context) error {
	resp, err := d.api.Summary(ctx)

	d.mu.Lock()
	d.summaryErr = err
	if err == nil {
		d.summary = &resp.Data
		summaryTotalEvents.Set(float64(resp.Data.TotalEvents))
		summaryAnomalies.Set(float64(resp.Data.Anomalies))
	}
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.publish()
	return nil
}

func (d *Dashboard) refreshHealth(ctx context.Context) error {
	resp, err := d.api.Health(ctx)

	d.mu.Lock()
	d.healthErr = err
	if err == nil {
		d.health = resp
	}
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.publish()
	return nil
}

func (d *Dashboard) refreshNosyAdmins(ctx context.Context) error {
	resp, err := d.api.NosyAdmins(ctx)

	d.mu.Lock()
	d.nosyErr = err
	if err == nil {
		state := alerting.Evaluate(resp.NosyAdmins, resp.Threshold, resp.TotalAdminReads)
		d.alert = &state
		if state.Active {
			alertActive.Set(1)
		} else {
			alertActive.Set(0)
		}
	}
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.publish()
	return nil
}

func (d *Dashboard) refreshLiveEvents(ctx context.Context) error {
	resp, err := d.api.LiveEvents(ctx)
	if err != nil {
		return err
	}

	enriched, failures := d.enricher.Enrich(ctx, resp.Events)
	if failures > 0 && ctx.Err() != nil {
		// Shutdown raced the fan-out; drop the partial result.
		return ctx.Err()
	}

	timeline := aggregate.Timeline(enriched)
	activity := aggregate.UserActivity(enriched)
	actions := aggregate.ActionDistribution(enriched)
	attackTypes := aggregate.AttackTypeDistribution(resp.AttackTypes)

	d.mu.Lock()
	d.events = enriched
	d.totalEvents = resp.TotalEvents
	d.suspiciousCount = resp.SuspiciousCount
	d.timeline = timeline
	d.userActivity = activity
	d.actions = actions
	d.attackTypes = attackTypes
	d.mu.Unlock()

	d.publish()
	return nil
}

func (d *Dashboard) refreshModelMetrics(ctx context.Context) error {
	resp, err := d.api.ModelMetrics(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	cm := resp.ConfusionMatrix
	m := resp.Metrics
	d.confusion = &cm
	d.metrics = &m
	d.testSize = resp.TestSize
	d.mu.Unlock()

	d.publish()
	return nil
}

func (d *Dashboard) refreshModelROC(ctx context.Context) error {
	resp, err := d.api.ModelROC(ctx)
	if err != nil {
		return err
	}

	points, err := modeleval.ROCPoints(resp.FPR, resp.TPR, resp.Thresholds)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.rocPoints = points
	d.auc = resp.AUC
	d.haveROC = true
	d.mu.Unlock()

	d.publish()
	return nil
}

func (d *Dashboard) refreshDormantAccounts(ctx context.Context) error {
	resp, err := d.api.DormantAccounts(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.dormant = resp
	d.mu.Unlock()

	d.publish()
	return nil
}

func (d *Dashboard) refreshAPT(ctx context.Context) error {
	resp, err := d.api.DetectAPT(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.apt = resp
	d.mu.Unlock()

	d.publish()
	return nil
}

// Snapshot assembles the current renderer-ready view.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := Snapshot{
		State:              d.stateLocked(),
		GeneratedAt:        time.Now(),
		Summary:            d.summary,
		ServiceHealth:      d.health,
		Alert:              d.alert,
		Events:             d.events,
		TotalEvents:        d.totalEvents,
		SuspiciousCount:    d.suspiciousCount,
		Timeline:           d.timeline,
		UserActivity:       d.userActivity,
		ActionDistribution: d.actions,
		AttackTypes:        d.attackTypes,
		DormantAccounts:    d.dormant,
		APTThreats:         d.apt,
		Sources:            d.scheduler.Statuses(),
	}
	if d.haveROC || d.confusion != nil {
		snap.Model = &ModelEvaluation{
			ROC:             d.rocPoints,
			Diagonal:        modeleval.Diagonal(),
			AUC:             d.auc,
			AUCQuality:      modeleval.AUCQuality(d.auc),
			ConfusionMatrix: d.confusion,
			Metrics:         d.metrics,
			TestSize:        d.testSize,
		}
	}
	return snap
}

// State reports readiness. All three primary feeds (summary, health,
// nosy-admin) must have delivered and their latest fetches must have
// succeeded; a single failing primary blocks the whole dashboard.
func (d *Dashboard) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateLocked()
}

func (d *Dashboard) stateLocked() State {
	if d.summaryErr != nil || d.healthErr != nil || d.nosyErr != nil {
		return StateConnectionError
	}
	if d.summary == nil || d.health == nil || d.alert == nil {
		return StateLoading
	}
	return StateReady
}

// Subscribe returns a channel that receives a snapshot after every
// successful refresh, plus a cancel func. Slow consumers miss intermediate
// snapshots rather than blocking the pipeline.
func (d *Dashboard) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	d.subsMu.Lock()
	d.subs[ch] = struct{}{}
	d.subsMu.Unlock()

	cancel := func() {
		d.subsMu.Lock()
		if _, ok := d.subs[ch]; ok {
			delete(d.subs, ch)
			close(ch)
		}
		d.subsMu.Unlock()
	}
	return ch, cancel
}

func (d *Dashboard) publish() {
	snap := d.Snapshot()

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot waiting in the buffer, then retry so
			// the subscriber always sees the newest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
