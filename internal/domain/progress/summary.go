package progress

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyHistory = errors.New("progress history is empty")

const day = 24 * time.Hour

type Summary struct {
	KeyResultID             uuid.UUID  `json:"keyResultId"`
	ObjectiveID             uuid.UUID  `json:"objectiveId"`
	KeyResultName           string     `json:"keyResultName"`
	CurrentProgress         float64    `json:"currentProgress"`
	Status                  Status     `json:"status"`
	TotalUpdates            int        `json:"totalUpdates"`
	LastUpdated             time.Time  `json:"lastUpdated"`
	AverageProgressRate     *float64   `json:"averageProgressRate,omitempty"`
	EstimatedCompletionDate *time.Time `json:"estimatedCompletionDate,omitempty"`
	DaysUntilDue            *int       `json:"daysUntilDue"`
	IsOnTrack               bool       `json:"isOnTrack"`
}

// Summarize builds the trend summary of one key result's history.
// Soft-deleted records are ignored. The input does not need to be sorted.
func Summarize(history []Record, now time.Time) (Summary, error) {
	live := make([]Record, 0, len(history))
	for _, r := range history {
		if r.DeletedAt.Valid {
			continue
		}
		live = append(live, r)
	}
	if len(live) == 0 {
		return Summary{}, ErrEmptyHistory
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].RecordedAt.Equal(live[j].RecordedAt) {
			return live[i].Version < live[j].Version
		}
		return live[i].RecordedAt.Before(live[j].RecordedAt)
	})

	oldest := live[0]
	latest := live[len(live)-1]

	out := Summary{
		KeyResultID:     latest.KeyResultID,
		ObjectiveID:     latest.ObjectiveID,
		KeyResultName:   latest.KeyResultName,
		CurrentProgress: latest.ProgressPercentage,
		Status:          latest.Status,
		TotalUpdates:    len(live),
		LastUpdated:     latest.RecordedAt,
	}

	if len(live) > 1 {
		daysSpan := math.Max(1, latest.RecordedAt.Sub(oldest.RecordedAt).Hours()/24)
		rate := (latest.ProgressPercentage - oldest.ProgressPercentage) / daysSpan
		out.AverageProgressRate = &rate

		if rate > 0 && latest.ProgressPercentage < 100 {
			daysToComplete := (100 - latest.ProgressPercentage) / rate
			eta := latest.RecordedAt.Add(time.Duration(daysToComplete * float64(day)))
			out.EstimatedCompletionDate = &eta
		}
	}

	if latest.DueDate != nil {
		d := DaysUntil(*latest.DueDate, now)
		out.DaysUntilDue = &d
	}
	out.IsOnTrack = isOnTrack(latest.ProgressPercentage, latest.DueDate, out.EstimatedCompletionDate)
	return out, nil
}

func isOnTrack(current float64, dueDate, estimated *time.Time) bool {
	if current >= 100 {
		return true
	}
	if dueDate == nil || estimated == nil {
		return current >= onTrackThreshold
	}
	return !estimated.After(*dueDate)
}
