package journal

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNopJournal(t *testing.T) {
	ctx := context.Background()
	var j Journal = Nop{}

	id, err := j.StartRun(ctx, time.Now())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id != "" {
		t.Errorf("StartRun id = %q, want empty", id)
	}

	if err := j.FinishRun(ctx, RunRecord{Status: RunStatusSucceeded}); err != nil {
		t.Errorf("FinishRun: %v", err)
	}
	if err := j.LogError(ctx, ImportError{Stage: "push", Message: "boom"}); err != nil {
		t.Errorf("LogError: %v", err)
	}

	runs, err := j.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("RecentRuns = %v, want empty", runs)
	}

	if err := j.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestRunRecordJSON(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	record := RunRecord{
		ID:             "run-1",
		StartedAt:      started,
		FinishedAt:     &finished,
		PulsesFetched:  4,
		BundlesSent:    3,
		IndicatorsSent: 42,
		Status:         RunStatusSucceeded,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	body := string(data)
	for _, want := range []string{`"id":"run-1"`, `"status":"succeeded"`, `"bundles_sent":3`} {
		if !strings.Contains(body, want) {
			t.Errorf("marshaled record missing %s: %s", want, body)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("empty error should be omitted: %s", body)
	}
}
