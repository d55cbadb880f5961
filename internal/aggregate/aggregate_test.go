package aggregate

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/invisible-tech/gridsec-dashboard/internal/types"
)

func ev(user, action string, suspicious bool) types.AuditEvent {
	return types.AuditEvent{
		Timestamp:    types.Timestamp{Time: time.Date(2026, 8, 30, 10, 30, 45, 0, time.UTC)},
		UserID:       user,
		Action:       action,
		IsSuspicious: suspicious,
	}
}

func TestTimeline(t *testing.T) {
	events := []types.AuditEvent{
		ev("u1", "SELECT", true),
		ev("u2", "INSERT", false),
		ev("u3", "DELETE", true),
	}

	points := Timeline(events)
	if len(points) != 3 {
		t.Fatalf("len(points) = %d, want one point per event", len(points))
	}
	want := []struct{ threat, normal int }{{1, 0}, {0, 1}, {1, 0}}
	for i, p := range points {
		if p.ThreatCount != want[i].threat || p.NormalCount != want[i].normal {
			t.Errorf("point %d = {threat:%d normal:%d}", i, p.ThreatCount, p.NormalCount)
		}
		if p.Label != "10:30:45" {
			t.Errorf("point %d label = %q", i, p.Label)
		}
	}
}

func TestTimeline_Empty(t *testing.T) {
	if points := Timeline(nil); len(points) != 0 {
		t.Errorf("len(points) = %d for empty batch", len(points))
	}
}

func TestUserActivity_FirstSeenCut(t *testing.T) {
	users := []string{"A", "B", "A", "C", "B", "D", "E", "F"}
	events := make([]types.AuditEvent, 0, len(users))
	for _, u := range users {
		events = append(events, ev(u, "SELECT", false))
	}

	points := UserActivity(events)
	if len(points) != TopUserLimit {
		t.Fatalf("len(points) = %d, want %d", len(points), TopUserLimit)
	}
	want := []types.UserActivityPoint{
		{User: "A", ActionCount: 2},
		{User: "B", ActionCount: 2},
		{User: "C", ActionCount: 1},
		{User: "D", ActionCount: 1},
		{User: "E", ActionCount: 1},
	}
	for i, p := range points {
		if p != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestUserActivity_CountsBeyondCut(t *testing.T) {
	// F appears six times but is seen sixth; the cut is by encounter order,
	// not magnitude.
	users := []string{"A", "B", "C", "D", "E", "F", "F", "F", "F", "F", "F"}
	events := make([]types.AuditEvent, 0, len(users))
	for _, u := range users {
		events = append(events, ev(u, "SELECT", false))
	}

	points := UserActivity(events)
	for _, p := range points {
		if p.User == "F" {
			t.Error("user seen sixth must be excluded regardless of count")
		}
	}
}

func TestUserActivity_TruncatesLongUsernames(t *testing.T) {
	long := "very_long_operator_username"
	points := UserActivity([]types.AuditEvent{ev(long, "SELECT", false)})
	if len(points) != 1 {
		t.Fatalf("len(points) = %d", len(points))
	}
	if got := points[0].User; got != long[:15] {
		t.Errorf("user label = %q, want %q", got, long[:15])
	}
}

func TestUserActivity_TruncatesOnRuneBoundary(t *testing.T) {
	// 16 two-byte runes; a byte cut at 15 would split the eighth rune.
	user := "дддддддддддддддд"
	points := UserActivity([]types.AuditEvent{ev(user, "SELECT", false)})
	if len(points) != 1 {
		t.Fatalf("len(points) = %d", len(points))
	}
	got := points[0].User
	if got != string([]rune(user)[:15]) {
		t.Errorf("user label = %q, want first 15 runes", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("label %q is not valid UTF-8", got)
	}
}

func TestActionDistribution_FirstSeenOrder(t *testing.T) {
	events := []types.AuditEvent{
		ev("u1", "SELECT", false),
		ev("u2", "DELETE", true),
		ev("u3", "SELECT", false),
		ev("u4", "INSERT", false),
	}

	points := ActionDistribution(events)
	want := []types.CategoryPoint{
		{Name: "SELECT", Count: 2},
		{Name: "DELETE", Count: 1},
		{Name: "INSERT", Count: 1},
	}
	if len(points) != len(want) {
		t.Fatalf("len(points) = %d, want %d", len(points), len(want))
	}
	for i, p := range points {
		if p != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestAttackTypeDistribution_SortedStable(t *testing.T) {
	points := AttackTypeDistribution(map[string]int{
		"privilege_escalation": 4,
		"data_exfiltration":    9,
		"sql_injection":        2,
	})
	want := []types.CategoryPoint{
		{Name: "data_exfiltration", Count: 9},
		{Name: "privilege_escalation", Count: 4},
		{Name: "sql_injection", Count: 2},
	}
	if len(points) != len(want) {
		t.Fatalf("len(points) = %d", len(points))
	}
	for i, p := range points {
		if p != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestAttackTypeDistribution_Empty(t *testing.T) {
	if points := AttackTypeDistribution(nil); len(points) != 0 {
		t.Errorf("len(points) = %d for nil histogram", len(points))
	}
}
