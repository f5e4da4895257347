package opencti

import (
	"testing"
	"time"
)

func TestParseStateEmpty(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		state, err := ParseState(raw)
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", raw, err)
		}
		if state.LastRun != 0 || state.LatestPulseTimestamp != "" {
			t.Errorf("expected zero state for %q, got %+v", raw, state)
		}
		if !state.LastRunTime().IsZero() {
			t.Error("expected zero last run time")
		}
		if !state.Watermark().IsZero() {
			t.Error("expected zero watermark")
		}
	}
}

func TestParseStateRoundTrip(t *testing.T) {
	original := State{
		LastRun:              1685620800,
		LatestPulseTimestamp: "2023-06-01T12:00:00Z",
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	decoded, err := ParseState(encoded)
	if err != nil {
		t.Fatalf("ParseState returned error: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v vs %+v", decoded, original)
	}

	wantRun := time.Unix(1685620800, 0).UTC()
	if !decoded.LastRunTime().Equal(wantRun) {
		t.Errorf("LastRunTime = %v, want %v", decoded.LastRunTime(), wantRun)
	}

	wantMark := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if !decoded.Watermark().Equal(wantMark) {
		t.Errorf("Watermark = %v, want %v", decoded.Watermark(), wantMark)
	}
}

func TestParseStateInvalid(t *testing.T) {
	if _, err := ParseState("{not json"); err == nil {
		t.Error("expected error for malformed state")
	}
}
