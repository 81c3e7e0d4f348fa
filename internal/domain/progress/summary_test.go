package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func rec(version int, pct float64, at time.Time) Record {
	return Record{
		ID:                 uuid.New(),
		Version:            version,
		ProgressPercentage: pct,
		RecordedAt:         at,
		Status:             StatusAtRisk,
	}
}

func TestSummarizeEmptyHistory(t *testing.T) {
	if _, err := Summarize(nil, time.Now()); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("want ErrEmptyHistory, got %v", err)
	}
}

func TestSummarizeSingleRecordHasNoRate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := Summarize([]Record{rec(1, 80, now)}, now)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.AverageProgressRate != nil || s.EstimatedCompletionDate != nil {
		t.Fatalf("single record should not produce a trend: %+v", s)
	}
	if s.TotalUpdates != 1 || !s.IsOnTrack {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.DaysUntilDue != nil {
		t.Fatalf("daysUntilDue should be nil without due date")
	}
}

func TestSummarizeForecastsCompletion(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []Record{
		rec(2, 40, t0.Add(10*24*time.Hour)),
		rec(1, 20, t0),
	}
	s, err := Summarize(history, t0)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.CurrentProgress != 40 {
		t.Fatalf("latest should be the most recent record, got %v", s.CurrentProgress)
	}
	if s.AverageProgressRate == nil || *s.AverageProgressRate != 2 {
		t.Fatalf("rate: want=2 got=%v", s.AverageProgressRate)
	}
	want := t0.Add(40 * 24 * time.Hour)
	if s.EstimatedCompletionDate == nil || !s.EstimatedCompletionDate.Equal(want) {
		t.Fatalf("eta: want=%s got=%v", want, s.EstimatedCompletionDate)
	}
	// No due date: falls back to the 75 threshold.
	if s.IsOnTrack {
		t.Fatalf("40%% without due date should not be on track")
	}
}

func TestSummarizeSameDayUsesOneDaySpan(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s, err := Summarize([]Record{rec(1, 10, t0), rec(2, 30, t0.Add(2*time.Hour))}, t0)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.AverageProgressRate == nil || *s.AverageProgressRate != 20 {
		t.Fatalf("rate: want=20 got=%v", s.AverageProgressRate)
	}
}

func TestSummarizeNoForecastWhenRegressingOrStalled(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, latest := range []float64{50, 30, 10} {
		s, err := Summarize([]Record{rec(1, 50, t0), rec(2, latest, t0.Add(5*24*time.Hour))}, t0)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if s.EstimatedCompletionDate != nil {
			t.Fatalf("latest=%v: eta should be absent, got %v", latest, s.EstimatedCompletionDate)
		}
	}
}

func TestSummarizeOnTrackAgainstDueDate(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	early := t0.Add(20 * 24 * time.Hour)
	late := t0.Add(60 * 24 * time.Hour)

	mk := func(due time.Time) []Record {
		a := rec(1, 20, t0)
		b := rec(2, 40, t0.Add(10*24*time.Hour))
		a.DueDate, b.DueDate = &due, &due
		return []Record{a, b}
	}

	s, _ := Summarize(mk(late), t0)
	if !s.IsOnTrack {
		t.Fatalf("eta (day 40) before due (day 60) should be on track")
	}
	if s.DaysUntilDue == nil || *s.DaysUntilDue != 60 {
		t.Fatalf("daysUntilDue: want=60 got=%v", s.DaysUntilDue)
	}
	s, _ = Summarize(mk(early), t0)
	if s.IsOnTrack {
		t.Fatalf("eta (day 40) after due (day 20) should not be on track")
	}
}

func TestSummarizeCompletedIsOnTrack(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := t0.Add(-24 * time.Hour)
	a := rec(1, 100, t0)
	a.DueDate = &past
	s, _ := Summarize([]Record{a}, t0)
	if !s.IsOnTrack {
		t.Fatalf("100%% should always be on track")
	}
}

func TestSummarizeIgnoresSoftDeleted(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deleted := rec(1, 0, t0)
	deleted.DeletedAt = gorm.DeletedAt{Time: t0, Valid: true}
	s, err := Summarize([]Record{deleted, rec(2, 50, t0.Add(24*time.Hour))}, t0)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.TotalUpdates != 1 || s.AverageProgressRate != nil {
		t.Fatalf("deleted record should not count: %+v", s)
	}
	if _, err := Summarize([]Record{deleted}, t0); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("only deleted history should be empty, got %v", err)
	}
}

func TestNewViewDerivedFields(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := Record{TargetValue: 100, CurrentValue: 60, DueDate: &due, Status: StatusAtRisk}
	v := NewView(r, now)
	if v.RemainingValue != 40 {
		t.Fatalf("remaining: want=40 got=%v", v.RemainingValue)
	}
	if !v.IsOverdue {
		t.Fatalf("should be overdue")
	}
	if v.DaysUntilDue == nil || *v.DaysUntilDue != -9 {
		t.Fatalf("daysUntilDue: want=-9 got=%v", v.DaysUntilDue)
	}

	r.Status = StatusCompleted
	if NewView(r, now).IsOverdue {
		t.Fatalf("completed record is never overdue")
	}
	r.DueDate = nil
	if v := NewView(r, now); v.IsOverdue || v.DaysUntilDue != nil {
		t.Fatalf("no due date: %+v", v)
	}
}
