package types

import (
	"encoding/json"
	"testing"
)

func TestTimestamp_UnmarshalJSON_Naive(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2026-08-30T14:05:09.123456"`), &ts); err != nil {
		t.Fatalf("unmarshal naive timestamp: %v", err)
	}
	if ts.Hour() != 14 || ts.Minute() != 5 || ts.Second() != 9 {
		t.Errorf("parsed time = %v", ts.Time)
	}
}

func TestTimestamp_UnmarshalJSON_RFC3339(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2026-08-30T14:05:09Z"`), &ts); err != nil {
		t.Fatalf("unmarshal RFC3339 timestamp: %v", err)
	}
	if ts.Year() != 2026 {
		t.Errorf("parsed year = %d", ts.Year())
	}
}

func TestTimestamp_UnmarshalJSON_NoFraction(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2026-08-30T14:05:09"`), &ts); err != nil {
		t.Fatalf("unmarshal second-precision timestamp: %v", err)
	}
}

func TestTimestamp_UnmarshalJSON_Invalid(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestAuditEvent_Unmarshal(t *testing.T) {
	raw := []byte(`{
		"timestamp": "2026-08-30T10:00:00.500000",
		"user_id": "grid_operator_7",
		"action": "SELECT",
		"table_name": "meter_readings",
		"is_suspicious": true,
		"threat_level": "high",
		"attack_type": "data_exfiltration"
	}`)
	var ev AuditEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.UserID != "grid_operator_7" || ev.Action != "SELECT" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.IsSuspicious || ev.AttackType != "data_exfiltration" {
		t.Errorf("threat fields = %v %q", ev.IsSuspicious, ev.AttackType)
	}
	if ev.Prediction != nil {
		t.Error("prediction should be absent before enrichment")
	}
}

func TestAuditEvent_MarshalOmitsEmptyPrediction(t *testing.T) {
	ev := AuditEvent{UserID: "u1", Action: "INSERT", TableName: "alarms"}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if _, ok := m["prediction"]; ok {
		t.Error("nil prediction should be omitted")
	}
	if _, ok := m["threat_level"]; ok {
		t.Error("empty threat_level should be omitted")
	}
}

func TestPrediction_Labels(t *testing.T) {
	if PredictionNormal != "normal" || PredictionSuspicious != "suspicious" {
		t.Errorf("labels = %q %q", PredictionNormal, PredictionSuspicious)
	}
}
