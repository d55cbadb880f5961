// Package analytics provides a typed client for the Smart Grid Security
// Analytics API. One method per endpoint; no retries — the polling scheduler
// owns retry timing via its next tick.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/types"
)

// Client handles communication with the analytics service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

// Config for the analytics client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new analytics API client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// SummaryData holds the top-line counters from /api/test.
type SummaryData struct {
	TotalEvents int     `json:"total_events"`
	Anomalies   int     `json:"anomalies"`
	Accuracy    float64 `json:"accuracy"`
}

// SummaryResponse is the /api/test payload.
type SummaryResponse struct {
	Message string      `json:"message"`
	Data    SummaryData `json:"data"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// NosyAdminResponse is the /api/detect/nosy-admin payload.
type NosyAdminResponse struct {
	NosyAdmins      map[string]int `json:"nosy_admins"`
	Threshold       int            `json:"threshold"`
	TotalAdminReads int            `json:"total_admin_reads"`
}

// LiveEventsResponse is the /api/live-events payload: the recent event batch
// plus the attack-type histogram computed server-side over all events.
type LiveEventsResponse struct {
	Events          []types.AuditEvent `json:"events"`
	TotalEvents     int                `json:"total_events"`
	SuspiciousCount int                `json:"suspicious_count"`
	AttackTypes     map[string]int     `json:"attack_types"`
}

// PredictProbabilities carries per-class probabilities from /api/predict.
type PredictProbabilities struct {
	Normal     float64 `json:"normal"`
	Suspicious float64 `json:"suspicious"`
}

// PredictResponse is the /api/predict payload. The service reports model
// failures in-band with a 200, so Err must be checked alongside Prediction.
type PredictResponse struct {
	Prediction    string               `json:"prediction"`
	Confidence    float64              `json:"confidence"`
	Probabilities PredictProbabilities `json:"probabilities"`
	Err           string               `json:"error,omitempty"`
}

// Verdict converts the response into a Prediction, or reports that the
// service could not classify the event.
func (r *PredictResponse) Verdict() (*types.Prediction, bool) {
	if r.Err != "" {
		return nil, false
	}
	label := types.PredictionLabel(r.Prediction)
	if label != types.PredictionNormal && label != types.PredictionSuspicious {
		return nil, false
	}
	return &types.Prediction{Label: label, Confidence: r.Confidence}, true
}

// ModelMetricsResponse is the /api/model-metrics payload.
type ModelMetricsResponse struct {
	ConfusionMatrix types.ConfusionMatrix `json:"confusion_matrix"`
	Metrics         types.DerivedMetrics  `json:"metrics"`
	TestSize        int                   `json:"test_size"`
}

// ModelROCResponse is the /api/model-roc payload. The three arrays are
// index-aligned.
type ModelROCResponse struct {
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	Thresholds []float64 `json:"thresholds"`
	AUC        float64   `json:"auc"`
}

// DormantAccount describes a flagged account from /api/detect/dormant-accounts.
type DormantAccount struct {
	MaxInactivityHours     float64 `json:"max_inactivity_hours"`
	LastActive             string  `json:"last_active"`
	TotalActions           int     `json:"total_actions"`
	SuspiciousReactivation bool    `json:"suspicious_reactivation"`
}

// DormantAccountsResponse is the /api/detect/dormant-accounts payload.
type DormantAccountsResponse struct {
	DormantAccounts map[string]DormantAccount `json:"dormant_accounts"`
	ThresholdHours  int                       `json:"threshold_hours"`
	TotalFlagged    int                       `json:"total_flagged"`
}

// APTThreat describes one candidate from /api/detect/apt: a user with
// repeated suspicious actions over time.
type APTThreat struct {
	TotalSuspiciousActions int      `json:"total_suspicious_actions"`
	TimeSpanHours          float64  `json:"time_span_hours"`
	AttackTypes            []string `json:"attack_types"`
	TargetedTables         []string `json:"targeted_tables"`
	Severity               string   `json:"severity"`
	APTScore               float64  `json:"apt_score"`
}

// APTDetectionResponse is the /api/detect/apt payload.
type APTDetectionResponse struct {
	APTThreats      map[string]APTThreat `json:"apt_threats"`
	TotalFlagged    int                  `json:"total_flagged"`
	DetectionMethod string               `json:"detection_method"`
}

// FilteredEventsResponse is the /api/events/filter payload.
type FilteredEventsResponse struct {
	Events        []types.AuditEvent `json:"events"`
	TotalFiltered int                `json:"total_filtered"`
	TotalEvents   int                `json:"total_events"`
}

// Summary fetches the top-line counters.
func (c *Client) Summary(ctx context.Context) (*SummaryResponse, error) {
	var out SummaryResponse
	if err := c.getJSON(ctx, "/api/test", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks analytics service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NosyAdmins fetches the admin-read counters and the detection threshold.
func (c *Client) NosyAdmins(ctx context.Context) (*NosyAdminResponse, error) {
	var out NosyAdminResponse
	if err := c.getJSON(ctx, "/api/detect/nosy-admin", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LiveEvents fetches the recent event batch and attack-type histogram.
func (c *Client) LiveEvents(ctx context.Context) (*LiveEventsResponse, error) {
	var out LiveEventsResponse
	if err := c.getJSON(ctx, "/api/live-events", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelMetrics fetches the confusion matrix and derived quality metrics.
func (c *Client) ModelMetrics(ctx context.Context) (*ModelMetricsResponse, error) {
	var out ModelMetricsResponse
	if err := c.getJSON(ctx, "/api/model-metrics", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelROC fetches the ROC curve arrays and AUC.
func (c *Client) ModelROC(ctx context.Context) (*ModelROCResponse, error) {
	var out ModelROCResponse
	if err := c.getJSON(ctx, "/api/model-roc", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DormantAccounts fetches accounts flagged for suspicious reactivation.
func (c *Client) DormantAccounts(ctx context.Context) (*DormantAccountsResponse, error) {
	var out DormantAccountsResponse
	if err := c.getJSON(ctx, "/api/detect/dormant-accounts", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectAPT fetches users flagged for repeated suspicious actions over time.
func (c *Client) DetectAPT(ctx context.Context) (*APTDetectionResponse, error) {
	var out APTDetectionResponse
	if err := c.getJSON(ctx, "/api/detect/apt", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict requests a model verdict for a single event.
func (c *Client) Predict(ctx context.Context, event types.AuditEvent) (*PredictResponse, error) {
	fullURL := c.baseURL + "/api/predict"

	// The model endpoint consumes the raw event fields, never a previously
	// attached verdict.
	event.Prediction = nil
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServerError{URL: fullURL, StatusCode: resp.StatusCode}
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &DecodeError{URL: fullURL, Err: err}
	}
	return &out, nil
}

// ExportCSV streams the full event export. The payload is opaque to the
// dashboard and handed to the caller unchanged.
func (c *Client) ExportCSV(ctx context.Context) ([]byte, error) {
	fullURL := c.baseURL + "/api/export/csv"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServerError{URL: fullURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{URL: fullURL, Err: err}
	}
	return data, nil
}

// FilterEvents fetches a filtered event view. Empty or "all" filter values
// are omitted from the query.
func (c *Client) FilterEvents(ctx context.Context, attackType, threatLevel string) (*FilteredEventsResponse, error) {
	q := url.Values{}
	if attackType != "" && attackType != "all" {
		q.Set("attack_type", attackType)
	}
	if threatLevel != "" && threatLevel != "all" {
		q.Set("threat_level", threatLevel)
	}
	path := "/api/events/filter"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out FilteredEventsResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	fullURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{URL: fullURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{URL: fullURL, Err: err}
	}

	c.log.WithFields(logrus.Fields{
		"url":    fullURL,
		"status": resp.StatusCode,
	}).Debug("Analytics fetch complete")

	return nil
}
