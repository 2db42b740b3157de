package schedule

import (
	"sort"
	"time"

	"github.com/taskmaster/scheduler/internal/domain/entities"
)

// Summary holds the dashboard counters.
type Summary struct {
	TotalTasks     int `json:"totalTasks"`
	OpenTasks      int `json:"openTasks"`
	CompletedTasks int `json:"completedTasks"`
	OverdueTasks   int `json:"overdueTasks"`
	HighPriority   int `json:"highPriority"`
	UpcomingEvents int `json:"upcomingEvents"`
}

// Summarize counts tasks by status and the events that have not ended yet.
// HighPriority counts open high priority tasks only.
func Summarize(st State, now time.Time) Summary {
	sum := Summary{TotalTasks: len(st.Tasks)}
	for _, t := range st.Tasks {
		if t.Completed {
			sum.CompletedTasks++
			continue
		}
		sum.OpenTasks++
		if t.IsOverdue(now) {
			sum.OverdueTasks++
		}
		if t.Priority == entities.PriorityHigh {
			sum.HighPriority++
		}
	}
	for _, e := range st.Events {
		if !e.End.Before(now) {
			sum.UpcomingEvents++
		}
	}
	return sum
}

// EventsBetween returns the events overlapping [from, to) ordered by start.
func EventsBetween(events []entities.Event, from, to time.Time) []entities.Event {
	out := make([]entities.Event, 0)
	for _, e := range events {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// TasksDueBetween returns the tasks with a due date in [from, to) ordered by
// due date. Tasks without a due date are never included.
func TasksDueBetween(tasks []entities.Task, from, to time.Time) []entities.Task {
	out := make([]entities.Task, 0)
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(from) || !t.DueDate.Before(to) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}
