package opencti

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the connector state held by the platform between runs.
type State struct {
	LastRun              int64  `json:"last_run,omitempty"`
	LatestPulseTimestamp string `json:"latest_pulse_timestamp,omitempty"`
}

// ParseState decodes a connector state string. Empty and "null" strings are
// valid and yield the zero state (connector has never run).
func ParseState(raw string) (State, error) {
	if raw == "" || raw == "null" {
		return State{}, nil
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, fmt.Errorf("parse connector state: %w", err)
	}
	return state, nil
}

// Encode serializes the state for storage on the platform.
func (s State) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LastRunTime returns the last run as a time, or the zero time when the
// connector has never run.
func (s State) LastRunTime() time.Time {
	if s.LastRun == 0 {
		return time.Time{}
	}
	return time.Unix(s.LastRun, 0).UTC()
}

// Watermark returns the modification lower bound for the next fetch, or the
// zero time when none is recorded.
func (s State) Watermark() time.Time {
	if s.LatestPulseTimestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.LatestPulseTimestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
