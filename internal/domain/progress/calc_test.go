package progress

import (
	"math/rand"
	"testing"
	"time"
)

func TestPercentageClampedForArbitraryInputs(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		start := r.Float64()*2000 - 1000
		current := r.Float64()*4000 - 2000
		target := r.Float64()*2000 - 1000
		if i%10 == 0 {
			target = start
		}
		got := Percentage(start, current, target)
		if got < 0 || got > 100 {
			t.Fatalf("percentage(%v,%v,%v)=%v out of range", start, current, target, got)
		}
	}
}

func TestPercentageDegenerateRange(t *testing.T) {
	if got := Percentage(5, 5, 5); got != 100 {
		t.Fatalf("percentage(5,5,5): want=100 got=%v", got)
	}
	if got := Percentage(5, 3, 5); got != 0 {
		t.Fatalf("percentage(5,3,5): want=0 got=%v", got)
	}
}

func TestPercentageLinearAndClamped(t *testing.T) {
	cases := []struct {
		start, current, target, want float64
	}{
		{0, 40, 100, 40},
		{0, 150, 200, 75},
		{100, 50, 0, 50},
		{0, 250, 100, 100},
		{10, 0, 20, 0},
	}
	for _, tc := range cases {
		if got := Percentage(tc.start, tc.current, tc.target); got != tc.want {
			t.Fatalf("percentage(%v,%v,%v): want=%v got=%v", tc.start, tc.current, tc.target, tc.want, got)
		}
	}
}

func TestClassifyCompletionOverridesDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	if got := DefaultPolicy().Classify(10, &past, 100, 100, now); got != StatusCompleted {
		t.Fatalf("want=completed got=%s", got)
	}
}

func TestClassifyWithoutDueDateBoundary(t *testing.T) {
	now := time.Now()
	p := DefaultPolicy()
	if got := p.Classify(75, nil, 75, 100, now); got != StatusOnTrack {
		t.Fatalf("75: want=on_track got=%s", got)
	}
	if got := p.Classify(74.99, nil, 74.99, 100, now); got != StatusAtRisk {
		t.Fatalf("74.99: want=at_risk got=%s", got)
	}
}

func TestClassifyWithDueDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	// 81 of 90 days elapsed: expected progress is 90.
	due := now.Add(9 * 24 * time.Hour)
	cases := []struct {
		pct  float64
		want Status
	}{
		{95, StatusOnTrack},
		{81, StatusOnTrack},
		{75, StatusAtRisk},
		{65.5, StatusAtRisk},
		{64, StatusOffTrack},
	}
	for _, tc := range cases {
		if got := p.Classify(tc.pct, &due, tc.pct, 100, now); got != tc.want {
			t.Fatalf("pct=%v: want=%s got=%s", tc.pct, tc.want, got)
		}
	}
}

func TestExpectedPercentageIsUnclamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	overrun := now.Add(-9 * 24 * time.Hour)
	if got := p.ExpectedPercentage(overrun, now); got <= 100 {
		t.Fatalf("overrun cycle should project past 100, got=%v", got)
	}
	farOut := now.Add(180 * 24 * time.Hour)
	if got := p.ExpectedPercentage(farOut, now); got >= 0 {
		t.Fatalf("far due date should project below 0, got=%v", got)
	}
	// A negative projection keeps anything non-negative on track.
	if got := p.Classify(0, &farOut, 0, 100, now); got != StatusOnTrack {
		t.Fatalf("want=on_track got=%s", got)
	}
}

func TestScenarioCreateWithoutDueDate(t *testing.T) {
	r := Record{StartingValue: 0, TargetValue: 100, CurrentValue: 40}
	r.Recompute(DefaultPolicy(), time.Now())
	if r.ProgressPercentage != 40 {
		t.Fatalf("percentage: want=40 got=%v", r.ProgressPercentage)
	}
	if r.Status != StatusAtRisk {
		t.Fatalf("status: want=at_risk got=%s", r.Status)
	}
}

func TestScenarioBehindScheduleIsAtRisk(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(9 * 24 * time.Hour)
	r := Record{StartingValue: 0, TargetValue: 200, CurrentValue: 150, DueDate: &due}
	r.Recompute(DefaultPolicy(), now)
	if r.ProgressPercentage != 75 {
		t.Fatalf("percentage: want=75 got=%v", r.ProgressPercentage)
	}
	if r.Status != StatusAtRisk {
		t.Fatalf("status: want=at_risk got=%s", r.Status)
	}
}

func TestRecomputeRoundsBeforeClassifying(t *testing.T) {
	r := Record{StartingValue: 0, TargetValue: 3, CurrentValue: 1}
	r.Recompute(DefaultPolicy(), time.Now())
	if r.ProgressPercentage != 33.33 {
		t.Fatalf("percentage: want=33.33 got=%v", r.ProgressPercentage)
	}
}

func TestCustomCycleLength(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(15 * 24 * time.Hour)
	p := Policy{CycleLength: 30 * 24 * time.Hour}
	if got := p.ExpectedPercentage(due, now); got != 50 {
		t.Fatalf("expected: want=50 got=%v", got)
	}
	if got := (Policy{}).cycleDays(); got != 90 {
		t.Fatalf("zero policy should fall back to 90 days, got=%v", got)
	}
}

func TestDaysUntilRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := DaysUntil(now.Add(36*time.Hour), now); got != 2 {
		t.Fatalf("want=2 got=%d", got)
	}
	if got := DaysUntil(now.Add(-36*time.Hour), now); got != -1 {
		t.Fatalf("want=-1 got=%d", got)
	}
}
