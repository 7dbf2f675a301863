package rate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDetectorTest(t *testing.T, cfg DetectorConfig, now func() time.Time) *Detector {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDetector(rdb, cfg, now)
}

func TestAssessCleanTraffic(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{}, nil)

	a, err := d.Assess(context.Background(), "10.0.0.1", "tablet-app/2.1")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if a.Suspicious || a.Score != 0 {
		t.Fatalf("expected clean assessment, got %+v", a)
	}
}

func TestAssessHighVolume(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{VolumeThreshold: 5, SuspicionScore: 40}, nil)
	ctx := context.Background()

	var last Assessment
	for i := 0; i < 5; i++ {
		a, err := d.Assess(ctx, "10.0.0.1", "tablet-app/2.1")
		if err != nil {
			t.Fatalf("Assess error: %v", err)
		}
		last = a
	}

	if !last.Suspicious {
		t.Fatalf("expected high volume to be suspicious: %+v", last)
	}
	if last.Score < 40 {
		t.Fatalf("expected volume signal in score, got %d", last.Score)
	}
	found := false
	for _, s := range last.Signals {
		if s == "high_attempt_volume" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing high_attempt_volume signal: %v", last.Signals)
	}
}

func TestAssessUserAgentChurn(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{SuspicionScore: 25}, nil)
	ctx := context.Background()

	var last Assessment
	for i := 0; i < 5; i++ {
		a, err := d.Assess(ctx, "10.0.0.1", fmt.Sprintf("agent-%d", i))
		if err != nil {
			t.Fatalf("Assess error: %v", err)
		}
		last = a
	}

	found := false
	for _, s := range last.Signals {
		if s == "user_agent_churn" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected user_agent_churn signal: %+v", last)
	}
}

func TestAssessDistributedOrigin(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{SuspicionScore: 20}, nil)
	ctx := context.Background()

	var last Assessment
	for i := 0; i < 7; i++ {
		a, err := d.Assess(ctx, fmt.Sprintf("10.0.0.%d", i), "same-agent/1.0")
		if err != nil {
			t.Fatalf("Assess error: %v", err)
		}
		last = a
	}

	found := false
	for _, s := range last.Signals {
		if s == "distributed_origin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected distributed_origin signal: %+v", last)
	}
}

func TestAssessOffHours(t *testing.T) {
	threeAM := func() time.Time {
		return time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	}
	d := newDetectorTest(t, DetectorConfig{OpenHour: 8, CloseHour: 23, SuspicionScore: 15}, threeAM)

	a, err := d.Assess(context.Background(), "10.0.0.1", "tablet-app/2.1")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	found := false
	for _, s := range a.Signals {
		if s == "off_hours_activity" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected off_hours_activity at 3am: %+v", a)
	}

	noon := func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	d2 := newDetectorTest(t, DetectorConfig{OpenHour: 8, CloseHour: 23, SuspicionScore: 15}, noon)
	a2, err := d2.Assess(context.Background(), "10.0.0.1", "tablet-app/2.1")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if a2.Score != 0 {
		t.Fatalf("expected no off-hours signal at noon: %+v", a2)
	}
}

func TestAlertPacing(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{
		VolumeThreshold: 1,
		SuspicionScore:  40,
		AlertInterval:   time.Hour,
	}, nil)
	ctx := context.Background()

	first, err := d.Assess(ctx, "10.0.0.1", "agent/1.0")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if !first.Suspicious || !first.Alert {
		t.Fatalf("expected first suspicious assessment to alert: %+v", first)
	}

	second, err := d.Assess(ctx, "10.0.0.1", "agent/1.0")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if !second.Suspicious {
		t.Fatalf("expected second assessment to stay suspicious: %+v", second)
	}
	if second.Alert {
		t.Fatal("expected alert pacing to suppress the second alert")
	}
}

func TestAlertPacerEviction(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := newDetectorTest(t, DetectorConfig{Window: time.Minute}, func() time.Time { return current })

	for i := 0; i < 200; i++ {
		d.allowAlert(fmt.Sprintf("198.51.100.%d", i))
	}
	if got := len(d.pacers); got != 200 {
		t.Fatalf("expected 200 pacers before eviction, got %d", got)
	}

	// Once the window passes, the next call sweeps every idle entry.
	current = current.Add(2 * time.Minute)
	d.allowAlert("203.0.113.9")
	if got := len(d.pacers); got != 1 {
		t.Fatalf("expected idle pacers evicted, got %d", got)
	}
	if _, ok := d.pacers["203.0.113.9"]; !ok {
		t.Fatal("expected the live pacer to survive the sweep")
	}
}

func TestAssessNeverBlocks(t *testing.T) {
	d := newDetectorTest(t, DetectorConfig{VolumeThreshold: 1, SuspicionScore: 1}, nil)

	// Even a maximally suspicious assessment is informational only.
	a, err := d.Assess(context.Background(), "10.0.0.1", "agent/1.0")
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if !a.Suspicious {
		t.Fatalf("expected suspicious assessment: %+v", a)
	}
}
