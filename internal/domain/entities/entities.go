package entities

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrEventNotFound  = errors.New("event not found")
	ErrBlobNotFound   = errors.New("blob not found")
	ErrMissingToken   = errors.New("BLOB_READ_WRITE_TOKEN is not configured")
	ErrInvalidDataset = errors.New("invalid data format")
)

// Priority of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (p Priority) String() string {
	return string(p)
}

// Task is a to-do item. DueDate is nil when the task has no due date.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	c.Tags = append([]string{}, t.Tags...)
	return c
}

// IsOverdue reports whether the task is open and its due date lies before now.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// Event is a calendar entry spanning [Start, End].
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`
	AllDay      bool      `json:"allDay"`
}

// Overlaps reports whether the event intersects the half-open range [from, to).
func (e Event) Overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && !e.End.Before(from)
}

// TaskDraft carries the fields of a task that does not have an id yet.
// The validate tags are checked by the presentation layer, not by the store.
type TaskDraft struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority" validate:"required,oneof=low medium high"`
	Tags        []string   `json:"tags"`
}

// TaskPatch is a partial task update. Nil fields keep their current value.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Priority    *Priority  `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Tags        []string   `json:"tags,omitempty"`
}

// Apply merges the patch into t. A zero due date in the patch is treated as
// absent, so the previous due date is kept.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if due := NormalizeTime(p.DueDate); due != nil {
		t.DueDate = due
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = append([]string{}, p.Tags...)
	}
	return t
}

// EventDraft carries the fields of an event that does not have an id yet.
type EventDraft struct {
	Title       string    `json:"title" validate:"required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	Description string    `json:"description"`
	AllDay      bool      `json:"allDay"`
}

// EventPatch is a partial event update. Nil fields keep their current value.
type EventPatch struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Description *string    `json:"description,omitempty"`
	AllDay      *bool      `json:"allDay,omitempty"`
}

// Apply merges the patch into e.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if start := NormalizeTime(p.Start); start != nil {
		e.Start = *start
	}
	if end := NormalizeTime(p.End); end != nil {
		e.End = *end
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	return e
}

// Dataset is the whole persisted document: every task and every event.
type Dataset struct {
	Tasks  []Task  `json:"tasks"`
	Events []Event `json:"events"`
}

// Normalize replaces nil collections (and nil tag lists) with empty ones so the
// document always serialises as arrays.
func (d *Dataset) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.Events == nil {
		d.Events = []Event{}
	}
	for i := range d.Tasks {
		if d.Tasks[i].Tags == nil {
			d.Tasks[i].Tags = []string{}
		}
		d.Tasks[i].DueDate = NormalizeTime(d.Tasks[i].DueDate)
	}
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	return Dataset{
		Tasks:  CloneTasks(d.Tasks),
		Events: CloneEvents(d.Events),
	}
}

// CloneTasks deep-copies a task slice, keeping nil as nil.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// CloneEvents copies an event slice, keeping nil as nil.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	return append(make([]Event, 0, len(events)), events...)
}

// NormalizeTime maps a nil or zero instant to nil and copies anything else.
func NormalizeTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	c := *t
	return &c
}
