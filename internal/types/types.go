// Package types defines shared types for audit events, predictions, and
// chart-ready series used by the aggregation pipeline and the dashboard API.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp wraps time.Time to accept the analytics service's naive ISO-8601
// timestamps (no timezone) alongside RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses a JSON string in any of the supported layouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON emits RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// PredictionLabel is the model's verdict for an audit event.
type PredictionLabel string

const (
	PredictionNormal     PredictionLabel = "normal"
	PredictionSuspicious PredictionLabel = "suspicious"
)

// Prediction is a model verdict attached to an audit event by enrichment.
type Prediction struct {
	Label      PredictionLabel `json:"label"`
	Confidence float64         `json:"confidence"`
}

// AuditEvent is a raw audit event from the analytics service. An event is
// immutable once enriched; enrichment attaches Prediction without touching
// the original fields.
type AuditEvent struct {
	Timestamp    Timestamp   `json:"timestamp"`
	UserID       string      `json:"user_id"`
	Action       string      `json:"action"`
	TableName    string      `json:"table_name"`
	IsSuspicious bool        `json:"is_suspicious"`
	ThreatLevel  string      `json:"threat_level,omitempty"`
	AttackType   string      `json:"attack_type,omitempty"`
	Prediction   *Prediction `json:"prediction,omitempty"`
}

// TimelinePoint is one step of the threat/normal timeline. One point per
// event, in delivery order.
type TimelinePoint struct {
	Label       string `json:"label"`
	ThreatCount int    `json:"threat_count"`
	NormalCount int    `json:"normal_count"`
}

// UserActivityPoint pairs a user with their event count.
type UserActivityPoint struct {
	User        string `json:"user"`
	ActionCount int    `json:"action_count"`
}

// CategoryPoint is a generic name/count chart entry.
type CategoryPoint struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ROCPoint is one point of the ROC curve.
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// ConfusionMatrix holds binary classifier outcome counts as reported by the
// analytics service.
type ConfusionMatrix struct {
	TrueNegative  int `json:"true_negative"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TruePositive  int `json:"true_positive"`
}

// DerivedMetrics are classifier quality metrics supplied by the source. The
// dashboard labels them for display but never recomputes them.
type DerivedMetrics struct {
	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	Specificity float64 `json:"specificity"`
}
