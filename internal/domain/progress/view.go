package progress

import "time"

// View is a record plus the read-only fields derived at read time.
type View struct {
	Record
	RemainingValue float64 `json:"remainingValue"`
	IsOverdue      bool    `json:"isOverdue"`
	DaysUntilDue   *int    `json:"daysUntilDue"`
}

func NewView(r Record, now time.Time) View {
	v := View{
		Record:         r,
		RemainingValue: r.TargetValue - r.CurrentValue,
	}
	if r.DueDate != nil {
		v.IsOverdue = now.After(*r.DueDate) && r.Status != StatusCompleted
		d := DaysUntil(*r.DueDate, now)
		v.DaysUntilDue = &d
	}
	return v
}

func NewViews(rs []Record, now time.Time) []View {
	out := make([]View, 0, len(rs))
	for _, r := range rs {
		out = append(out, NewView(r, now))
	}
	return out
}
