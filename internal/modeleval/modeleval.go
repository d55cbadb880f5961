// Package modeleval shapes raw model-evaluation payloads (ROC arrays, AUC,
// confusion matrix confidence values) into display-ready form. Quality cut
// points here are fixed display policy, not statistically derived.
package modeleval

import (
	"fmt"

	"github.com/invisible-tech/gridsec-dashboard/internal/types"
)

// QualityBucket labels a metric value for display.
type QualityBucket struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ConfidenceLevel buckets a prediction confidence for display.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ROCPoints zips the index-aligned fpr/tpr/threshold arrays into curve
// points. The arrays must be pairwise consistent.
func ROCPoints(fpr, tpr, thresholds []float64) ([]types.ROCPoint, error) {
	if len(fpr) != len(tpr) || len(fpr) != len(thresholds) {
		return nil, fmt.Errorf("mismatched ROC arrays: fpr=%d tpr=%d thresholds=%d",
			len(fpr), len(tpr), len(thresholds))
	}

	points := make([]types.ROCPoint, len(fpr))
	for i := range fpr {
		points[i] = types.ROCPoint{FPR: fpr[i], TPR: tpr[i], Threshold: thresholds[i]}
	}
	return points, nil
}

// Diagonal returns the random-classifier reference line. Always exactly
// (0,0)→(1,1), independent of the curve.
func Diagonal() []types.ROCPoint {
	return []types.ROCPoint{
		{FPR: 0, TPR: 0},
		{FPR: 1, TPR: 1},
	}
}

// AUCQuality maps an AUC value to its display bucket.
func AUCQuality(auc float64) QualityBucket {
	switch {
	case auc >= 0.95:
		return QualityBucket{Label: "excellent", Color: "green"}
	case auc >= 0.90:
		return QualityBucket{Label: "good", Color: "blue"}
	case auc >= 0.80:
		return QualityBucket{Label: "fair", Color: "orange"}
	default:
		return QualityBucket{Label: "poor", Color: "red"}
	}
}

// ConfidenceBucket maps a prediction confidence to its display level.
func ConfidenceBucket(confidence float64) ConfidenceLevel {
	switch {
	case confidence > 0.8:
		return ConfidenceHigh
	case confidence > 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
