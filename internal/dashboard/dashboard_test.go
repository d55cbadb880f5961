package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/config"
	"github.com/invisible-tech/gridsec-dashboard/internal/types"
	"github.com/invisible-tech/gridsec-dashboard/pkg/analytics"
)

type fakeAPI struct {
	summary    *analytics.SummaryResponse
	summaryErr error
	health     *analytics.HealthResponse
	healthErr  error
	nosy       *analytics.NosyAdminResponse
	nosyErr    error
	liveEvents *analytics.LiveEventsResponse
	liveErr    error
	metrics    *analytics.ModelMetricsResponse
	metricsErr error
	roc        *analytics.ModelROCResponse
	rocErr     error
	dormant    *analytics.DormantAccountsResponse
	dormantErr error
	apt        *analytics.APTDetectionResponse
	aptErr     error
	predict    *analytics.PredictResponse
	predictErr error
}

func (f *fakeAPI) Summary(ctx context.Context) (*analytics.SummaryResponse, error) {
	return f.summary, f.summaryErr
}
func (f *fakeAPI) Health(ctx context.Context) (*analytics.HealthResponse, error) {
	return f.health, f.healthErr
}
func (f *fakeAPI) NosyAdmins(ctx context.Context) (*analytics.NosyAdminResponse, error) {
	return f.nosy, f.nosyErr
}
func (f *fakeAPI) LiveEvents(ctx context.Context) (*analytics.LiveEventsResponse, error) {
	return f.liveEvents, f.liveErr
}
func (f *fakeAPI) ModelMetrics(ctx context.Context) (*analytics.ModelMetricsResponse, error) {
	return f.metrics, f.metricsErr
}
func (f *fakeAPI) ModelROC(ctx context.Context) (*analytics.ModelROCResponse, error) {
	return f.roc, f.rocErr
}
func (f *fakeAPI) DormantAccounts(ctx context.Context) (*analytics.DormantAccountsResponse, error) {
	return f.dormant, f.dormantErr
}
func (f *fakeAPI) DetectAPT(ctx context.Context) (*analytics.APTDetectionResponse, error) {
	return f.apt, f.aptErr
}
func (f *fakeAPI) Predict(ctx context.Context, event types.AuditEvent) (*analytics.PredictResponse, error) {
	return f.predict, f.predictErr
}

func healthyAPI() *fakeAPI {
	return &fakeAPI{
		summary: &analytics.SummaryResponse{
			Message: "ok",
			Data:    analytics.SummaryData{TotalEvents: 100, Anomalies: 7, Accuracy: 0.93},
		},
		health: &analytics.HealthResponse{Status: "healthy"},
		nosy:   &analytics.NosyAdminResponse{NosyAdmins: map[string]int{}, Threshold: 10},
		liveEvents: &analytics.LiveEventsResponse{
			Events: []types.AuditEvent{
				{UserID: "u1", Action: "SELECT", IsSuspicious: true},
				{UserID: "u2", Action: "INSERT"},
			},
			TotalEvents:     100,
			SuspiciousCount: 7,
			AttackTypes:     map[string]int{"sql_injection": 3},
		},
		metrics: &analytics.ModelMetricsResponse{
			ConfusionMatrix: types.ConfusionMatrix{TrueNegative: 80, TruePositive: 15},
			Metrics:         types.DerivedMetrics{Accuracy: 0.95},
			TestSize:        100,
		},
		roc: &analytics.ModelROCResponse{
			FPR: []float64{0, 1}, TPR: []float64{0, 1}, Thresholds: []float64{1, 0}, AUC: 0.91,
		},
		dormant: &analytics.DormantAccountsResponse{
			DormantAccounts: map[string]analytics.DormantAccount{"old_svc": {TotalActions: 4}},
			TotalFlagged:    1,
		},
		apt: &analytics.APTDetectionResponse{
			APTThreats: map[string]analytics.APTThreat{
				"insider_4": {TotalSuspiciousActions: 5, Severity: "critical", APTScore: 50},
			},
			TotalFlagged: 1,
		},
		predict: &analytics.PredictResponse{Prediction: "normal", Confidence: 0.9},
	}
}

func testDashboard(api AnalyticsAPI) *Dashboard {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	cfg := config.DashboardConfig{EnrichMaxConcurrent: 2}
	return New(api, cfg, log)
}

func refreshAll(t *testing.T, d *Dashboard) {
	t.Helper()
	ctx := context.Background()
	d.refreshSummary(ctx)
	d.refreshHealth(ctx)
	d.refreshNosyAdmins(ctx)
	d.refreshLiveEvents(ctx)
	d.refreshModelMetrics(ctx)
	d.refreshModelROC(ctx)
	d.refreshDormantAccounts(ctx)
	d.refreshAPT(ctx)
}

func TestDashboard_LoadingBeforeFirstFetch(t *testing.T) {
	d := testDashboard(healthyAPI())
	if got := d.State(); got != StateLoading {
		t.Errorf("state = %q, want loading", got)
	}
}

func TestDashboard_ReadyAfterPrimaries(t *testing.T) {
	d := testDashboard(healthyAPI())
	ctx := context.Background()
	d.refreshSummary(ctx)
	d.refreshHealth(ctx)
	d.refreshNosyAdmins(ctx)

	if got := d.State(); got != StateReady {
		t.Errorf("state = %q, want ready", got)
	}
}

func TestDashboard_PrimaryFailureBlocks(t *testing.T) {
	api := healthyAPI()
	d := testDashboard(api)
	refreshAll(t, d)

	api.healthErr = errors.New("connection refused")
	if err := d.refreshHealth(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := d.State(); got != StateConnectionError {
		t.Errorf("state = %q, want connection_error after health failure", got)
	}

	// Recovery on the next successful cycle.
	api.healthErr = nil
	if err := d.refreshHealth(context.Background()); err != nil {
		t.Fatalf("refreshHealth: %v", err)
	}
	if got := d.State(); got != StateReady {
		t.Errorf("state = %q, want ready after recovery", got)
	}
}

func TestDashboard_SecondaryFailureDoesNotBlock(t *testing.T) {
	api := healthyAPI()
	d := testDashboard(api)
	refreshAll(t, d)

	api.liveErr = errors.New("boom")
	api.rocErr = errors.New("boom")
	d.refreshLiveEvents(context.Background())
	d.refreshModelROC(context.Background())

	if got := d.State(); got != StateReady {
		t.Errorf("state = %q, secondary failures must not block", got)
	}
}

func TestDashboard_StaleSnapshotKeptOnFailure(t *testing.T) {
	api := healthyAPI()
	d := testDashboard(api)
	refreshAll(t, d)

	api.liveErr = errors.New("fetch failed")
	d.refreshLiveEvents(context.Background())

	snap := d.Snapshot()
	if len(snap.Events) != 2 {
		t.Errorf("len(events) = %d, want previous batch retained", len(snap.Events))
	}
	if snap.TotalEvents != 100 {
		t.Errorf("total events = %d", snap.TotalEvents)
	}
}

func TestDashboard_SnapshotAggregates(t *testing.T) {
	d := testDashboard(healthyAPI())
	refreshAll(t, d)

	snap := d.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state = %q", snap.State)
	}
	if snap.Summary == nil || snap.Summary.TotalEvents != 100 {
		t.Errorf("summary = %+v", snap.Summary)
	}
	if len(snap.Timeline) != 2 || len(snap.ActionDistribution) != 2 {
		t.Errorf("timeline=%d actions=%d", len(snap.Timeline), len(snap.ActionDistribution))
	}
	if len(snap.AttackTypes) != 1 || snap.AttackTypes[0].Name != "sql_injection" {
		t.Errorf("attack types = %+v", snap.AttackTypes)
	}
	for i, ev := range snap.Events {
		if ev.Prediction == nil {
			t.Errorf("event %d not enriched", i)
		}
	}
	if snap.Model == nil {
		t.Fatal("model evaluation missing")
	}
	if snap.Model.AUC != 0.91 || snap.Model.AUCQuality.Label != "good" {
		t.Errorf("model = %+v", snap.Model)
	}
	if len(snap.Model.Diagonal) != 2 {
		t.Errorf("diagonal = %+v", snap.Model.Diagonal)
	}
	if snap.DormantAccounts == nil || snap.DormantAccounts.TotalFlagged != 1 {
		t.Errorf("dormant = %+v", snap.DormantAccounts)
	}
	if snap.APTThreats == nil || snap.APTThreats.APTThreats["insider_4"].Severity != "critical" {
		t.Errorf("apt = %+v", snap.APTThreats)
	}
}

func TestDashboard_AlertFromNosyAdmins(t *testing.T) {
	api := healthyAPI()
	api.nosy = &analytics.NosyAdminResponse{
		NosyAdmins:      map[string]int{"admin_9": 22},
		Threshold:       10,
		TotalAdminReads: 30,
	}
	d := testDashboard(api)
	d.refreshNosyAdmins(context.Background())

	snap := d.Snapshot()
	if snap.Alert == nil || !snap.Alert.Active {
		t.Errorf("alert = %+v, want active", snap.Alert)
	}
}

func TestDashboard_EnrichmentFailureKeepsBatch(t *testing.T) {
	api := healthyAPI()
	api.predictErr = errors.New("model down")
	d := testDashboard(api)

	if err := d.refreshLiveEvents(context.Background()); err != nil {
		t.Fatalf("refreshLiveEvents: %v", err)
	}
	snap := d.Snapshot()
	if len(snap.Events) != 2 {
		t.Fatalf("len(events) = %d", len(snap.Events))
	}
	for i, ev := range snap.Events {
		if ev.Prediction != nil {
			t.Errorf("event %d enriched despite model outage", i)
		}
	}
}

func TestDashboard_ROCMismatchIsError(t *testing.T) {
	api := healthyAPI()
	api.roc = &analytics.ModelROCResponse{FPR: []float64{0, 1}, TPR: []float64{0}, Thresholds: []float64{1, 0}}
	d := testDashboard(api)

	if err := d.refreshModelROC(context.Background()); err == nil {
		t.Error("expected error for mismatched ROC arrays")
	}
	if snap := d.Snapshot(); snap.Model != nil {
		t.Error("malformed ROC payload must not populate the model view")
	}
}

func TestDashboard_SubscribeReceivesSnapshots(t *testing.T) {
	d := testDashboard(healthyAPI())
	ch, cancel := d.Subscribe()
	defer cancel()

	d.refreshSummary(context.Background())

	select {
	case snap := <-ch:
		if snap.Summary == nil {
			t.Error("published snapshot missing summary")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published after refresh")
	}
}

func TestDashboard_StartAndStop(t *testing.T) {
	d := testDashboard(healthyAPI())
	d.cfg = config.DashboardConfig{
		SummaryInterval:         time.Hour,
		HealthInterval:          time.Hour,
		NosyAdminInterval:       time.Hour,
		LiveEventsInterval:      time.Hour,
		ModelMetricsInterval:    time.Hour,
		ModelROCInterval:        time.Hour,
		DormantAccountsInterval: time.Hour,
		APTInterval:             time.Hour,
		EnrichMaxConcurrent:     2,
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Immediate first cycles populate the primaries.
	deadline := time.After(2 * time.Second)
	for d.State() != StateReady {
		select {
		case <-deadline:
			t.Fatalf("state = %q, never became ready", d.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	snap := d.Snapshot()
	if len(snap.Sources) != 8 {
		t.Errorf("len(sources) = %d, want 8", len(snap.Sources))
	}
	d.Stop()
}
