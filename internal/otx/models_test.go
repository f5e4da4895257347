package otx

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPulseUnmarshalTimestampFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "rfc3339",
			body: `{"id": "p1", "modified": "2024-03-01T10:00:00Z"}`,
			want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "zoneless microseconds",
			body: `{"id": "p1", "modified": "2024-03-01T10:00:00.123456"}`,
			want: time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC),
		},
		{
			name: "zoneless without fraction",
			body: `{"id": "p1", "modified": "2024-03-01T10:00:00"}`,
			want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pulse Pulse
			if err := json.Unmarshal([]byte(tt.body), &pulse); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !pulse.Modified.Equal(tt.want) {
				t.Errorf("Modified = %v, want %v", pulse.Modified, tt.want)
			}
			if !pulse.Created.IsZero() {
				t.Errorf("Created = %v, want zero for absent field", pulse.Created)
			}
		})
	}
}

func TestPulseUnmarshalKeepsOtherFields(t *testing.T) {
	body := `{
		"id": "p1",
		"name": "campaign",
		"revision": 3,
		"TLP": "amber",
		"indicators": [
			{"indicator": "198.51.100.7", "type": "IPv4", "is_active": 1,
			 "created": "2024-03-01T09:30:00.500000"}
		]
	}`

	var pulse Pulse
	if err := json.Unmarshal([]byte(body), &pulse); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if pulse.Name != "campaign" || pulse.Revision != 3 || pulse.TLP != "amber" {
		t.Errorf("unexpected pulse fields: %+v", pulse)
	}
	if len(pulse.Indicators) != 1 {
		t.Fatalf("indicators = %d, want 1", len(pulse.Indicators))
	}

	ioc := pulse.Indicators[0]
	if ioc.Value != "198.51.100.7" || !ioc.Active() {
		t.Errorf("unexpected indicator: %+v", ioc)
	}
	want := time.Date(2024, 3, 1, 9, 30, 0, 500000000, time.UTC)
	if !ioc.Created.Equal(want) {
		t.Errorf("indicator Created = %v, want %v", ioc.Created, want)
	}
}

func TestPulseUnmarshalRejectsGarbageTimestamp(t *testing.T) {
	var pulse Pulse
	err := json.Unmarshal([]byte(`{"id": "p1", "modified": "yesterday"}`), &pulse)
	if err == nil {
		t.Fatal("expected an error for an unparseable timestamp")
	}
}
