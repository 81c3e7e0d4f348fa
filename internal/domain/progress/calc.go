package progress

import (
	"math"
	"time"
)

const (
	DefaultCycleLength = 90 * 24 * time.Hour

	// Without a due date there is nothing to fall behind, so only
	// on_track/at_risk are possible.
	onTrackThreshold = 75.0

	onTrackDelta = -10.0
	atRiskDelta  = -25.0
)

// Percentage maps (start, current, target) onto [0, 100].
func Percentage(start, current, target float64) float64 {
	if target == start {
		if current >= target {
			return 100
		}
		return 0
	}
	raw := (current - start) / (target - start) * 100
	return clamp(raw, 0, 100)
}

// Round2 rounds to two decimals, matching the numeric(5,2) column.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Policy holds the planning assumptions used to classify schedule health.
type Policy struct {
	CycleLength time.Duration
}

func DefaultPolicy() Policy {
	return Policy{CycleLength: DefaultCycleLength}
}

func (p Policy) cycleDays() float64 {
	if p.CycleLength <= 0 {
		return DefaultCycleLength.Hours() / 24
	}
	return p.CycleLength.Hours() / 24
}

// Classify derives a status. Reaching the target wins over every other
// signal, including a missed due date.
func (p Policy) Classify(percentage float64, dueDate *time.Time, current, target float64, now time.Time) Status {
	if current >= target {
		return StatusCompleted
	}
	if dueDate == nil {
		if percentage >= onTrackThreshold {
			return StatusOnTrack
		}
		return StatusAtRisk
	}

	// expected is a linear projection and deliberately left unclamped.
	delta := percentage - p.ExpectedPercentage(*dueDate, now)
	switch {
	case delta >= onTrackDelta:
		return StatusOnTrack
	case delta >= atRiskDelta:
		return StatusAtRisk
	default:
		return StatusOffTrack
	}
}

// ExpectedPercentage is the share of the cycle that has elapsed at now,
// assuming the cycle ends on dueDate.
func (p Policy) ExpectedPercentage(dueDate, now time.Time) float64 {
	cycle := p.cycleDays()
	daysRemaining := dueDate.Sub(now).Hours() / 24
	daysPassed := cycle - daysRemaining
	return daysPassed / cycle * 100
}

// DaysUntil returns the whole days until due, rounded up.
func DaysUntil(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}
