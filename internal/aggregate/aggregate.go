// Package aggregate derives chart-ready series from an enriched audit event
// batch. Every function is pure: series are rebuilt from scratch on each
// fetch cycle and never accumulate across cycles.
package aggregate

import (
	"sort"

	"github.com/invisible-tech/gridsec-dashboard/internal/types"
)

const (
	// TopUserLimit caps the user-activity ranking.
	TopUserLimit = 5
	// maxUsernameLen truncates long usernames for chart labels.
	maxUsernameLen = 15
)

// Timeline produces one point per event, in delivery order. A suspicious
// event contributes threat=1/normal=0 and vice versa. This is a per-event
// step sequence, not a time-bucketed histogram; the renderer expects exactly
// this shape.
func Timeline(events []types.AuditEvent) []types.TimelinePoint {
	points := make([]types.TimelinePoint, 0, len(events))
	for _, ev := range events {
		p := types.TimelinePoint{Label: ev.Timestamp.Format("15:04:05")}
		if ev.IsSuspicious {
			p.ThreatCount = 1
		} else {
			p.NormalCount = 1
		}
		points = append(points, p)
	}
	return points
}

// UserActivity counts events per user and returns the first TopUserLimit
// distinct users in encounter order, each with their total count. The cut is
// by encounter order, not by magnitude; a heavy user seen sixth is excluded.
func UserActivity(events []types.AuditEvent) []types.UserActivityPoint {
	counts := make(map[string]int, len(events))
	var order []string
	for _, ev := range events {
		if _, seen := counts[ev.UserID]; !seen {
			order = append(order, ev.UserID)
		}
		counts[ev.UserID]++
	}

	if len(order) > TopUserLimit {
		order = order[:TopUserLimit]
	}
	points := make([]types.UserActivityPoint, 0, len(order))
	for _, user := range order {
		points = append(points, types.UserActivityPoint{
			User:        truncate(user, maxUsernameLen),
			ActionCount: counts[user],
		})
	}
	return points
}

// ActionDistribution counts events per action, one point per distinct action
// in first-seen order.
func ActionDistribution(events []types.AuditEvent) []types.CategoryPoint {
	counts := make(map[string]int, len(events))
	var order []string
	for _, ev := range events {
		if _, seen := counts[ev.Action]; !seen {
			order = append(order, ev.Action)
		}
		counts[ev.Action]++
	}

	points := make([]types.CategoryPoint, 0, len(order))
	for _, action := range order {
		points = append(points, types.CategoryPoint{Name: action, Count: counts[action]})
	}
	return points
}

// AttackTypeDistribution converts the attack-type histogram reported by the
// live-events payload into chart points. The histogram is computed
// server-side over all events, not derived from the delivered batch. Keys
// are sorted for a stable series order.
func AttackTypeDistribution(attackTypes map[string]int) []types.CategoryPoint {
	names := make([]string, 0, len(attackTypes))
	for name := range attackTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]types.CategoryPoint, 0, len(names))
	for _, name := range names {
		points = append(points, types.CategoryPoint{Name: name, Count: attackTypes[name]})
	}
	return points
}

// truncate cuts on rune boundaries so multibyte usernames never yield an
// invalid label.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
