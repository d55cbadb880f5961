// Package alerting evaluates the admin-read counters into the dashboard's
// security alert state.
package alerting

// State is the alert banner state handed to the presentation layer.
type State struct {
	Active          bool           `json:"active"`
	Threshold       int            `json:"threshold"`
	Admins          map[string]int `json:"admins"`
	TotalAdminReads int            `json:"total_admin_reads"`
}

// Evaluate applies the alert policy to the admin-read counter map. The alert
// fires when the map has any entry at all; the analytics service already
// filtered by its own threshold, so the threshold here is informational and
// is never compared against individual counts.
// TODO: confirm with the analytics team whether per-entry threshold
// comparison was intended before changing this.
func Evaluate(nosyAdmins map[string]int, threshold, totalAdminReads int) State {
	return State{
		Active:          len(nosyAdmins) > 0,
		Threshold:       threshold,
		Admins:          nosyAdmins,
		TotalAdminReads: totalAdminReads,
	}
}
